package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ProjectRoot string   `toml:"project_root"`
	Roots       []string `toml:"roots"`
	Exclude     Exclude  `toml:"exclude"`
	Worker      Worker   `toml:"worker"`
	Cache       Cache    `toml:"cache"`
	Rename      Rename   `toml:"rename"`
	Audit       Audit    `toml:"audit"`
	Watch       Watch    `toml:"watch"`
	Metrics     Metrics  `toml:"metrics"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Worker struct {
	Command        []string      `toml:"command"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	MaxRestarts    int           `toml:"max_restarts"`
	RateLimit      RateLimit     `toml:"rate_limit"`
	Parallelism    int           `toml:"parallelism"`
}

type RateLimit struct {
	Enabled           bool `toml:"enabled"`
	RequestsPerMinute int  `toml:"requests_per_minute"`
	Burst             int  `toml:"burst"`
}

type Cache struct {
	Capacity int `toml:"capacity"`
}

type Rename struct {
	// Strict promotes warnings to plan blockers.
	Strict bool `toml:"strict"`
	// AttributeHeuristics includes heuristic attribute matches in plans.
	AttributeHeuristics bool `toml:"attribute_heuristics"`
}

type Audit struct {
	Path string `toml:"path"`
}

type Watch struct {
	Enabled  bool          `toml:"enabled"`
	Debounce time.Duration `toml:"debounce"`
}

type Metrics struct {
	Listen string `toml:"listen"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a usable configuration when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.ProjectRoot == "" {
		cfg.ProjectRoot = "."
	}
	if len(cfg.Roots) == 0 {
		cfg.Roots = []string{cfg.ProjectRoot}
	}
	if len(cfg.Worker.Command) == 0 {
		cfg.Worker.Command = []string{"resym-worker"}
	}
	if cfg.Worker.RequestTimeout == 0 {
		cfg.Worker.RequestTimeout = 30 * time.Second
	}
	if cfg.Worker.MaxRestarts == 0 {
		cfg.Worker.MaxRestarts = 3
	}
	if cfg.Worker.Parallelism == 0 {
		cfg.Worker.Parallelism = 4
	}
	if cfg.Worker.RateLimit.Enabled {
		if cfg.Worker.RateLimit.RequestsPerMinute == 0 {
			cfg.Worker.RateLimit.RequestsPerMinute = 600
		}
		if cfg.Worker.RateLimit.Burst == 0 {
			cfg.Worker.RateLimit.Burst = 20
		}
	}
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = 512
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
}
