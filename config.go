package isotp

import (
	"fmt"
	"os"
	"strconv"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// Config carries the stack-level tunables. The zero value is usable:
// missing fields fall back to the defaults below.
type Config struct {
	// PollIntervalMs is the period of the poll driver in milliseconds. It
	// bounds the resolution of STmin pacing and protocol timeouts.
	PollIntervalMs int `yaml:"pollIntervalMs"`

	// QueueDepth is the capacity of the inbound frame queue shared by all
	// links. On overflow the newest frame is dropped and counted.
	QueueDepth int `yaml:"queueDepth"`

	// DefaultBufferSize is the size of the send and receive buffers
	// allocated for links that do not bring their own.
	DefaultBufferSize int `yaml:"defaultBufferSize"`
}

// DefaultConfig returns the stock configuration: 5 ms poll interval, a
// 32-frame queue and 256-byte link buffers.
func DefaultConfig() Config {
	return Config{
		PollIntervalMs:    5,
		QueueDepth:        32,
		DefaultBufferSize: 256,
	}
}

// LoadConfig reads a YAML config file and applies environment overrides
// (ISOTP_POLL_INTERVAL_MS, ISOTP_QUEUE_DEPTH, ISOTP_BUFFER_SIZE). A missing
// file is not an error; the defaults are used.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return cfg, fmt.Errorf("isotp: read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("isotp: parse config: %w", err)
		}
	}
	overrideInt(&cfg.PollIntervalMs, "ISOTP_POLL_INTERVAL_MS")
	overrideInt(&cfg.QueueDepth, "ISOTP_QUEUE_DEPTH")
	overrideInt(&cfg.DefaultBufferSize, "ISOTP_BUFFER_SIZE")
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PollIntervalMs <= 0 {
		c.PollIntervalMs = def.PollIntervalMs
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = def.QueueDepth
	}
	if c.DefaultBufferSize <= 0 {
		c.DefaultBufferSize = def.DefaultBufferSize
	}
	return c
}

func (c Config) validate() error {
	if c.PollIntervalMs <= 0 {
		return fmt.Errorf("isotp: pollIntervalMs must be positive, got %d", c.PollIntervalMs)
	}
	if c.QueueDepth <= 0 {
		return fmt.Errorf("isotp: queueDepth must be positive, got %d", c.QueueDepth)
	}
	if c.DefaultBufferSize <= 0 {
		return fmt.Errorf("isotp: defaultBufferSize must be positive, got %d", c.DefaultBufferSize)
	}
	return nil
}

func (c Config) pollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}
