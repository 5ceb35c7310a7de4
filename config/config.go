package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Service Service `yaml:"service"`
	Tracker Tracker `yaml:"tracker"`
	Source  Source  `yaml:"source"`
	Logging Logging `yaml:"logging"`
	Metrics Metrics `yaml:"metrics"`
}

type Service struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type Tracker struct {
	// SavedQueueSize bounds the per-pair buffer of diffs that arrive before
	// the pair's book is initialized. Oldest entries are evicted first.
	SavedQueueSize int `yaml:"saved_queue_size"`
	// PastDiffWindow bounds the per-pair window of applied diffs kept for
	// replay when a fresh snapshot lands.
	PastDiffWindow int           `yaml:"past_diff_window"`
	TrackingBuffer int           `yaml:"tracking_buffer"`
	ErrorBackoff   time.Duration `yaml:"error_backoff"`
}

type Source struct {
	Binance ExchangeSource `yaml:"binance"`
	Kucoin  ExchangeSource `yaml:"kucoin"`
}

type ExchangeSource struct {
	Enabled          bool          `yaml:"enabled"`
	TradingPairs     []string      `yaml:"trading_pairs"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	SnapshotDepth    int           `yaml:"snapshot_depth"`
	RequestsPerSec   float64       `yaml:"requests_per_second"`
	Burst            int           `yaml:"burst"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Tracker.SavedQueueSize == 0 {
		c.Tracker.SavedQueueSize = 1000
	}
	if c.Tracker.PastDiffWindow == 0 {
		c.Tracker.PastDiffWindow = 32
	}
	if c.Tracker.TrackingBuffer == 0 {
		c.Tracker.TrackingBuffer = 128
	}
	if c.Tracker.ErrorBackoff == 0 {
		c.Tracker.ErrorBackoff = 5 * time.Second
	}
	for _, src := range []*ExchangeSource{&c.Source.Binance, &c.Source.Kucoin} {
		if src.SnapshotInterval == 0 {
			src.SnapshotInterval = time.Hour
		}
		if src.SnapshotDepth == 0 {
			src.SnapshotDepth = 1000
		}
		if src.RequestsPerSec == 0 {
			src.RequestsPerSec = 5
		}
		if src.Burst == 0 {
			src.Burst = 1
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":8080"
	}
}

func (c *Config) validate() error {
	if c.Source.Binance.Enabled && len(c.Source.Binance.TradingPairs) == 0 {
		return fmt.Errorf("source.binance is enabled but has no trading pairs")
	}
	if c.Source.Kucoin.Enabled && len(c.Source.Kucoin.TradingPairs) == 0 {
		return fmt.Errorf("source.kucoin is enabled but has no trading pairs")
	}
	return nil
}
