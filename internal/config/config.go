package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ErrConfigInvalid = errors.New("config invalid")

type Config struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	StaticDir  string `yaml:"static_dir"`
	DataFile   string `yaml:"data_file"`
	CORSOrigin string `yaml:"cors_origin"`
	Debug      bool   `yaml:"debug"`

	// Persistence controls how the data file is flushed: "sync" fsyncs on
	// every commit, "async" on FlushInterval.
	Persistence   string        `yaml:"persistence"`
	FlushInterval time.Duration `yaml:"flush_interval"`

	// FileCacheBytes bounds the static file cache. Zero means a default
	// derived from total system memory.
	FileCacheBytes uint64 `yaml:"file_cache_bytes"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

func Default() Config {
	return Config{
		Host:        "127.0.0.1",
		Port:        8080,
		DataFile:    "backend.db",
		Persistence: "sync",
	}
}

// Load reads a YAML config file and merges it over the defaults. A missing
// path returns plain defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "could not read config file %s", path)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "could not parse config file %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return errors.Wrapf(ErrConfigInvalid, "port %d out of range", cfg.Port)
	}

	switch cfg.Persistence {
	case "", "sync", "async":
	default:
		return errors.Wrapf(ErrConfigInvalid, "unknown persistence strategy %q", cfg.Persistence)
	}

	if cfg.DataFile == "" {
		return errors.Wrap(ErrConfigInvalid, "data_file must not be empty")
	}

	return nil
}
