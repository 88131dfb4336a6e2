// Package config loads the YAML description of channels and aggregators and
// builds the process logger.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	defaultLogLevel        = "info"
	defaultHTTPPort        = ":8080"
	defaultChannelCapacity = 1000
)

// Config is the top-level service configuration.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`
	HTTPPort  string `yaml:"http_port"`

	// ErrorChannelCapacity defaults to 1000 when absent; 0 means unbounded.
	ErrorChannelCapacity *int `yaml:"error_channel_capacity"`

	Channels    []ChannelConfig    `yaml:"channels"`
	Aggregators []AggregatorConfig `yaml:"aggregators"`
}

// ChannelConfig describes one named channel.
type ChannelConfig struct {
	Name string `yaml:"name"`
	// Capacity of 0 means unbounded.
	Capacity int `yaml:"capacity"`
}

// AggregatorConfig describes an aggregator endpoint reading from Input and
// writing reduced messages to Output.
type AggregatorConfig struct {
	Name              string        `yaml:"name"`
	Input             string        `yaml:"input"`
	Output            string        `yaml:"output"`
	Workers           int           `yaml:"workers"`
	CorrelationHeader string        `yaml:"correlation_header"`
	SequenceSize      int           `yaml:"sequence_size"`
	SequenceHeader    string        `yaml:"sequence_header"`
	GroupTimeout      time.Duration `yaml:"group_timeout"`
	TrackCompleted    int           `yaml:"track_completed"`
	Discard           string        `yaml:"discard"`
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.HTTPPort == "" {
		c.HTTPPort = defaultHTTPPort
	}
	if c.ErrorChannelCapacity == nil {
		capacity := defaultChannelCapacity
		c.ErrorChannelCapacity = &capacity
	}
	for i := range c.Aggregators {
		a := &c.Aggregators[i]
		if a.Workers <= 0 {
			a.Workers = 1
		}
		if a.CorrelationHeader == "" {
			a.CorrelationHeader = "correlationId"
		}
		if a.SequenceSize == 0 && a.SequenceHeader == "" {
			a.SequenceHeader = "sequenceSize"
		}
	}
}

// Validate checks references between channels and aggregators.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level '%s': %w", c.LogLevel, err)
	}
	if c.ErrorChannelCapacity != nil && *c.ErrorChannelCapacity < 0 {
		return fmt.Errorf("error_channel_capacity cannot be negative")
	}

	channels := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channel name cannot be empty")
		}
		if channels[ch.Name] {
			return fmt.Errorf("duplicate channel '%s'", ch.Name)
		}
		if ch.Capacity < 0 {
			return fmt.Errorf("channel '%s' capacity cannot be negative", ch.Name)
		}
		channels[ch.Name] = true
	}

	names := make(map[string]bool, len(c.Aggregators))
	for _, a := range c.Aggregators {
		if a.Name == "" {
			return fmt.Errorf("aggregator name cannot be empty")
		}
		if names[a.Name] {
			return fmt.Errorf("duplicate aggregator '%s'", a.Name)
		}
		names[a.Name] = true
		if !channels[a.Input] {
			return fmt.Errorf("aggregator '%s' references unknown input channel '%s'", a.Name, a.Input)
		}
		if !channels[a.Output] {
			return fmt.Errorf("aggregator '%s' references unknown output channel '%s'", a.Name, a.Output)
		}
		if a.Discard != "" && !channels[a.Discard] {
			return fmt.Errorf("aggregator '%s' references unknown discard channel '%s'", a.Name, a.Discard)
		}
		if a.SequenceSize < 0 {
			return fmt.Errorf("aggregator '%s' sequence_size cannot be negative", a.Name)
		}
		if a.GroupTimeout < 0 {
			return fmt.Errorf("aggregator '%s' group_timeout cannot be negative", a.Name)
		}
		if a.GroupTimeout > 0 && a.GroupTimeout < time.Millisecond {
			return fmt.Errorf("aggregator '%s' group_timeout must be at least 1ms", a.Name)
		}
	}
	return nil
}

// NewLogger builds the process-wide logger. It is constructed once at startup
// and passed to every component.
func NewLogger(level string, pretty bool) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level '%s': %w", level, err)
	}
	var w io.Writer = os.Stderr
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
