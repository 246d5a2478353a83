package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config is the runtime configuration; the sensor catalog is separate and
// lives at Schema.Path.
type Config struct {
	Link struct {
		Address       string `toml:"address"`
		ReadTimeoutMS int    `toml:"read_timeout_ms"`
		BackoffBaseMS int    `toml:"backoff_base_ms"`
		BackoffMaxMS  int    `toml:"backoff_max_ms"`
	} `toml:"link"`
	Hub struct {
		QueueSize int `toml:"queue_size"`
		SlowLimit int `toml:"slow_limit"`
	} `toml:"hub"`
	Emulation struct {
		Enable     bool  `toml:"enable"`
		IntervalMS int   `toml:"interval_ms"`
		Seed       int64 `toml:"seed"`
	} `toml:"emulation"`
	Feed struct {
		Listen string `toml:"listen"`
	} `toml:"feed"`
	Schema struct {
		Path string `toml:"path"`
	} `toml:"schema"`
}

// loadConfig resolves fileName relative to the binary when it is not an
// absolute path.
func loadConfig(fileName string) (*Config, error) {
	path := fileName
	if !filepath.IsAbs(path) {
		dir, err := filepath.Abs(filepath.Dir(os.Args[0]))
		if err != nil {
			return nil, errors.Wrap(err, "unable to determine binary location")
		}
		path = filepath.Join(dir, fileName)
		if _, err := os.Stat(path); err != nil {
			// fall back to the working directory
			path = fileName
		}
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open config %s", fileName)
	}
	defer file.Close()
	return loadConfigFromReader(file)
}

func loadConfigFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "unable to parse configuration")
	}
	if cfg.Emulation.IntervalMS <= 0 {
		cfg.Emulation.IntervalMS = 100
	}
	return cfg, nil
}
