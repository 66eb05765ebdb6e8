// Package fcache is a byte-bounded sharded LRU used to keep hot static
// files in memory. Keys are xxhash digests of file paths, values the file
// contents. Each shard holds its own slice of the total byte budget so
// shards never contend on a shared eviction list.
package fcache

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/pbnjay/memory"
	"github.com/pkg/errors"
)

var (
	ErrIllegalCapacity = errors.New("illegal cache capacity")
	ErrInvalidSharding = errors.New("invalid sharding")
)

const (
	DefaultShards = 16

	minBudgetBytes = 8 << 20
)

// DefaultBudget sizes the cache off the machine: a 64th of total system
// memory, never below 8MiB.
func DefaultBudget() uint64 {
	budget := memory.TotalMemory() / 64
	if budget < minBudgetBytes {
		budget = minBudgetBytes
	}
	return budget
}

func Key(path string) uint64 {
	return xxhash.Sum64String(path)
}

type Cache struct {
	maxBytes uint64
	count    int64
	shards   []*shard
}

func New(shards int, maxTotalBytes uint64) (*Cache, error) {
	if maxTotalBytes == 0 {
		return nil, ErrIllegalCapacity
	}

	if shards < 1 {
		return nil, ErrInvalidSharding
	}

	c := &Cache{
		maxBytes: maxTotalBytes,
		shards:   make([]*shard, shards),
	}

	shardMaxBytes := maxTotalBytes / uint64(shards)
	if shardMaxBytes == 0 {
		shardMaxBytes = 1
	}

	for i := range c.shards {
		c.shards[i] = newShard(shardMaxBytes)
	}

	return c, nil
}

// Put stores value under key and reports whether anything was evicted to
// make room. Values larger than a whole shard are not cached.
func (c *Cache) Put(key uint64, value []byte) bool {
	s := c.getShard(key)
	if uint64(len(value)) > s.maxBytes {
		return false
	}

	added, evictions := s.put(key, value)
	atomic.AddInt64(&c.count, int64(added)-int64(evictions))
	return evictions > 0
}

func (c *Cache) Get(key uint64) ([]byte, bool) {
	return c.getShard(key).get(key)
}

func (c *Cache) Remove(key uint64) {
	if c.getShard(key).remove(key) {
		atomic.AddInt64(&c.count, -1)
	}
}

func (c *Cache) Purge() {
	for _, s := range c.shards {
		atomic.AddInt64(&c.count, -int64(s.purge()))
	}
}

func (c *Cache) Count() int {
	return int(atomic.LoadInt64(&c.count))
}

func (c *Cache) getShard(key uint64) *shard {
	return c.shards[key%uint64(len(c.shards))]
}
