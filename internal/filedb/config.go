package filedb

import "time"

type PersistenceStrategy string

const (
	Async PersistenceStrategy = "async"
	Sync  PersistenceStrategy = "sync"
)

// InMemory as a database path keeps everything in RAM, nothing ever
// touches the disk.
const InMemory = ":memory:"

const defaultAutoVacuumMinDeletes uint64 = 1000

var (
	defaultAutoVacuumInterval = 10 * time.Minute
	defaultFlushInterval      = 1 * time.Second
)

type Config struct {
	PersistenceStrategy   PersistenceStrategy
	TruncateFileOnOpen    bool
	AsyncFlushInterval    time.Duration
	DisableAutoVacuum     bool
	AutoVacuumOnlyOnClose bool
	AutoVacuumMinDeletes  uint64
	AutoVacuumInterval    time.Duration
}

func (cfg *Config) setDefaults() {
	if cfg.PersistenceStrategy == "" {
		cfg.PersistenceStrategy = Sync
	}

	if cfg.PersistenceStrategy == Async && cfg.AsyncFlushInterval == 0 {
		cfg.AsyncFlushInterval = defaultFlushInterval
	}

	if cfg.AutoVacuumInterval == 0 {
		cfg.AutoVacuumInterval = defaultAutoVacuumInterval
	}

	if cfg.AutoVacuumMinDeletes == 0 {
		cfg.AutoVacuumMinDeletes = defaultAutoVacuumMinDeletes
	}
}
