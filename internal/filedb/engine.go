package filedb

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/btree"
)

var (
	ErrKeyAlreadyExists      = errors.New("key already exists")
	ErrKeyDoesNotExist       = errors.New("key does not exist in database")
	ErrDatabaseAlreadyClosed = errors.New("database already closed")
)

const castPanic = "how could a primary key item not be of type *entry"

type entryIterator func(ent *entry) bool

// engine owns the in-memory state: the btree over primary keys and the label
// index. It performs no locking of its own; every method expects the caller
// to hold mu, which is shared with the DB facade so that the background
// flush and vacuum goroutines serialize against transactions.
type engine struct {
	dbFile        string
	cfg           *Config
	mu            *sync.RWMutex
	persistence   *persistence
	pks           *btree.BTree
	labels        *labelIndex
	stopCh        chan struct{}
	runningVacuum bool
	totalDeletes  uint64
	closed        bool
}

func newEngine(dbFile string, cfg *Config, mu *sync.RWMutex) *engine {
	return &engine{
		dbFile: dbFile,
		cfg:    cfg,
		mu:     mu,
		pks:    btree.NewNonConcurrent(byPrimaryKeys),
		labels: newLabelIndex(),
		stopCh: make(chan struct{}),
	}
}

func (e *engine) init() error {
	if e.dbFile == InMemory {
		return nil
	}

	p, err := newPersistence(e.dbFile, e.cfg.PersistenceStrategy, e.cfg.TruncateFileOnOpen)
	if err != nil {
		return err
	}
	e.persistence = p

	if err := e.persistence.load(func(d deserializable) error {
		return d.deserialize(e)
	}); err != nil {
		return err
	}

	if e.cfg.PersistenceStrategy == Async {
		go e.asyncFlush(e.cfg.AsyncFlushInterval)
	}

	if !e.cfg.DisableAutoVacuum && !e.cfg.AutoVacuumOnlyOnClose {
		go e.scheduleVacuum(e.cfg.AutoVacuumInterval)
	}

	return nil
}

func (e *engine) asyncFlush(d time.Duration) {
	t := time.NewTicker(d)
	defer t.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-t.C:
			e.mu.Lock()
			if e.closed {
				e.mu.Unlock()
				return
			}
			if err := e.persistence.sync(); err != nil {
				e.mu.Unlock()
				return
			}
			e.mu.Unlock()
		}
	}
}

func (e *engine) scheduleVacuum(d time.Duration) {
	t := time.NewTicker(d)
	defer t.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-t.C:
			e.mu.Lock()
			if e.closed {
				e.mu.Unlock()
				return
			}
			if e.runningVacuum || e.totalDeletes < e.cfg.AutoVacuumMinDeletes {
				e.mu.Unlock()
				continue
			}

			e.runningVacuum = true
			err := e.runVacuumUnderLock()
			e.runningVacuum = false
			e.mu.Unlock()

			if err != nil {
				return
			}
		}
	}
}

// runVacuumUnderLock rewrites the log so it contains one set command per
// live entry, dropping the history of deletes and overwrites.
func (e *engine) runVacuumUnderLock() error {
	if e.persistence == nil {
		return nil
	}

	rs := &respSerializer{}
	e.pks.Ascend(nil, func(i interface{}) bool {
		ent, ok := i.(*entry)
		if !ok {
			panic(castPanic)
		}
		_ = ent.serialize(rs)
		return true
	})

	if err := e.persistence.writeAndSwap(rs); err != nil {
		return err
	}

	e.totalDeletes = 0
	return nil
}

func (e *engine) close() error {
	if e.closed {
		return ErrDatabaseAlreadyClosed
	}

	close(e.stopCh)

	if !e.cfg.DisableAutoVacuum {
		if err := e.runVacuumUnderLock(); err != nil {
			return err
		}
	}

	defer func() {
		e.pks = nil
		e.labels = nil
		e.persistence = nil
		e.closed = true
	}()

	if e.persistence != nil {
		return e.persistence.close()
	}

	return nil
}

func (e *engine) count() int {
	return e.pks.Len()
}

func (e *engine) findByKey(key string) (*entry, error) {
	found := e.pks.Get(&entry{key: newPK(key)})
	if found == nil {
		return nil, errors.Wrapf(ErrKeyDoesNotExist, "key %s", key)
	}

	ent, ok := found.(*entry)
	if !ok {
		panic(castPanic)
	}

	return ent, nil
}

func (e *engine) insert(ent *entry) error {
	existing := e.pks.Set(ent)
	if existing != nil {
		// put the previous entry back, the insert must not clobber it
		_ = e.pks.Set(existing)
		return errors.Wrapf(ErrKeyAlreadyExists, "key %s", ent.key.String())
	}

	e.indexLabels(ent)
	return nil
}

func (e *engine) put(ent *entry, replace bool) error {
	existing := e.pks.Set(ent)
	if existing != nil {
		existingEnt, ok := existing.(*entry)
		if !ok {
			panic(castPanic)
		}

		if !replace {
			_ = e.pks.Set(existingEnt)
			return errors.Wrapf(ErrKeyAlreadyExists, "key %s", ent.key.String())
		}

		e.labels.removeEntry(existingEnt)
	}

	e.indexLabels(ent)
	return nil
}

func (e *engine) remove(key PK) error {
	found := e.pks.Get(&entry{key: key})
	if found == nil {
		return errors.Wrapf(ErrKeyDoesNotExist, "key %s", key.String())
	}

	ent, ok := found.(*entry)
	if !ok {
		panic(castPanic)
	}

	e.labels.removeEntry(ent)
	e.pks.Delete(&entry{key: key})
	e.totalDeletes++

	return nil
}

func (e *engine) indexLabels(ent *entry) {
	for n, v := range ent.labels {
		e.labels.add(n, v, ent)
	}
}

func (e *engine) upsertLabel(name, value string, ent *entry) {
	if prev, ok := ent.labels[name]; ok {
		if prev == value {
			return
		}
		e.labels.remove(name, prev, ent)
	}

	ent.setLabel(name, value)
	e.labels.add(name, value, ent)
}

func (e *engine) removeLabel(name string, ent *entry) {
	v, ok := ent.labels[name]
	if !ok {
		return
	}

	e.labels.remove(name, v, ent)
	delete(ent.labels, name)
}

func (e *engine) findByLabel(name, value string) []*entry {
	return e.labels.find(name, value)
}

func (e *engine) scanAscend(ctx context.Context, ir entryIterator) {
	e.pks.Ascend(nil, contextAwareIterator(ctx, ir))
}

func (e *engine) scanDescend(ctx context.Context, ir entryIterator) {
	e.pks.Descend(nil, contextAwareIterator(ctx, ir))
}

// segmentAligned reports whether a prefix ends on a segment boundary. Only
// then are matching keys contiguous in the index: a prefix cutting into a
// numeric segment matches keys that sort apart, e.g. "task:1" matches
// task:1 and task:10 but task:2 orders between them.
func segmentAligned(prefix string) bool {
	return strings.HasSuffix(prefix, ":")
}

func (e *engine) scanPrefixAscend(ctx context.Context, prefix string, ir entryIterator) {
	if !segmentAligned(prefix) {
		e.pks.Ascend(nil, contextAwareIterator(ctx, func(ent *entry) bool {
			if !ent.key.HasPrefix(prefix) {
				return true
			}
			return ir(ent)
		}))
		return
	}

	e.pks.Ascend(&entry{key: newPK(prefix)}, contextAwareIterator(ctx, func(ent *entry) bool {
		if !ent.key.HasPrefix(prefix) {
			return false
		}
		return ir(ent)
	}))
}

func (e *engine) scanPrefixDescend(ctx context.Context, prefix string, ir entryIterator) {
	if !segmentAligned(prefix) {
		e.pks.Descend(nil, contextAwareIterator(ctx, func(ent *entry) bool {
			if !ent.key.HasPrefix(prefix) {
				return true
			}
			return ir(ent)
		}))
		return
	}

	// aligned prefixes are contiguous in segment order, so walk down from
	// the top, skip until the prefix is reached and stop after it
	seen := false
	e.pks.Descend(nil, contextAwareIterator(ctx, func(ent *entry) bool {
		if !ent.key.HasPrefix(prefix) {
			return !seen
		}
		seen = true
		return ir(ent)
	}))
}

func contextAwareIterator(ctx context.Context, ir entryIterator) func(item interface{}) bool {
	return func(item interface{}) bool {
		if ctx.Err() != nil {
			return false
		}

		ent, ok := item.(*entry)
		if !ok {
			panic(castPanic)
		}

		return ir(ent)
	}
}
