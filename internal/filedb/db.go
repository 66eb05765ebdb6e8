// Package filedb is an embedded document store persisted to a single file.
// Values are JSON blobs addressed by colon-segmented keys, indexed in memory
// by a btree and optionally by string labels. All writes go through an
// append-only command log which is replayed on open and compacted by vacuum.
package filedb

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

type DB struct {
	e      *engine
	mu     sync.RWMutex
	closed bool
}

type UserCallback func(tx *Tx) error

// Open loads (or creates) a database file. Pass InMemory as path for an
// ephemeral store. A nil cfg means sync persistence with default vacuuming.
func Open(path string, cfg *Config) (*DB, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()

	db := &DB{}
	db.e = newEngine(path, cfg, &db.mu)

	if err := db.e.init(); err != nil {
		return nil, err
	}

	return db, nil
}

func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrDatabaseAlreadyClosed
	}

	if err := db.e.close(); err != nil {
		return err
	}

	db.e = nil
	db.closed = true
	return nil
}

func (db *DB) Count() int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.e.count()
}

// View runs a read only transaction.
func (db *DB) View(ctx context.Context, cb UserCallback) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return ErrDatabaseAlreadyClosed
	}

	tx := &Tx{e: db.e, ctx: ctx, readOnly: true}

	if err := cb(tx); err != nil {
		return errors.Wrap(err, "db read failed")
	}

	return nil
}

// Update runs a read-write transaction. If the callback errors the
// in-memory state is rolled back and nothing reaches the log.
func (db *DB) Update(ctx context.Context, cb UserCallback) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrDatabaseAlreadyClosed
	}

	tx := &Tx{e: db.e, ctx: ctx}

	if err := cb(tx); err != nil {
		if rbErr := tx.rollback(); rbErr != nil {
			return errors.Wrap(err, rbErr.Error())
		}

		return errors.Wrap(err, "db write failed. rolled back")
	}

	return tx.commit()
}

// Vacuum compacts the log on demand.
func (db *DB) Vacuum() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrDatabaseAlreadyClosed
	}

	return db.e.runVacuumUnderLock()
}
