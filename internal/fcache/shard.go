package fcache

import (
	"container/list"
	"sync"
)

type item struct {
	key   uint64
	value []byte
}

type shard struct {
	mu         sync.Mutex
	maxBytes   uint64
	totalBytes uint64
	evictList  *list.List
	items      map[uint64]*list.Element
}

func newShard(maxBytes uint64) *shard {
	return &shard{
		maxBytes:  maxBytes,
		evictList: list.New(),
		items:     make(map[uint64]*list.Element),
	}
}

func (s *shard) get(key uint64) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return nil, false
	}

	s.evictList.MoveToFront(elem)
	return elem.Value.(*item).value, true
}

// put returns how many items were added (0 or 1) and how many were evicted
// to keep the shard under its byte budget.
func (s *shard) put(key uint64, value []byte) (added, evicted int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		it := elem.Value.(*item)
		s.totalBytes -= uint64(len(it.value))
		it.value = value
		s.totalBytes += uint64(len(value))
		s.evictList.MoveToFront(elem)
	} else {
		s.items[key] = s.evictList.PushFront(&item{key: key, value: value})
		s.totalBytes += uint64(len(value))
		added = 1
	}

	for s.totalBytes > s.maxBytes {
		if !s.removeOldest() {
			break
		}
		evicted++
	}

	return added, evicted
}

func (s *shard) remove(key uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return false
	}

	s.removeElement(elem)
	return true
}

func (s *shard) purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.items)
	s.items = make(map[uint64]*list.Element)
	s.evictList.Init()
	s.totalBytes = 0
	return n
}

func (s *shard) removeOldest() bool {
	elem := s.evictList.Back()
	if elem == nil {
		return false
	}

	s.removeElement(elem)
	return true
}

func (s *shard) removeElement(elem *list.Element) {
	s.evictList.Remove(elem)
	it := elem.Value.(*item)
	delete(s.items, it.key)
	s.totalBytes -= uint64(len(it.value))
}
