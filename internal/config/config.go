// ABOUTME: YAML configuration for the player
// ABOUTME: Loads the file with env expansion, fills defaults and validates
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/mch25/pcmstream/pkg/stream"
	"gopkg.in/yaml.v3"
)

// Config represents the complete player configuration
type Config struct {
	Stream    StreamConfig    `yaml:"stream"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Control   ControlConfig   `yaml:"control"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Log       LogConfig       `yaml:"log"`
}

// StreamConfig describes the network source
type StreamConfig struct {
	URL            string          `yaml:"url"`
	ConnectTimeout time.Duration   `yaml:"connect_timeout"`
	ReadTimeout    time.Duration   `yaml:"read_timeout"`
	Reconnect      ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig holds the reconnect backoff
type ReconnectConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// PlaybackConfig holds device and buffering options
type PlaybackConfig struct {
	Backend            string        `yaml:"backend"`
	NativeRate         int           `yaml:"native_rate"`
	QueueCapacity      int           `yaml:"queue_capacity"`
	MinBufferedChunks  int           `yaml:"min_buffered_chunks"`
	BufferPollInterval time.Duration `yaml:"buffer_poll_interval"`
	BufferPollAttempts int           `yaml:"buffer_poll_attempts"`
	ResampleMode       string        `yaml:"resample_mode"`
}

// ControlConfig holds the control API listener
type ControlConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DiscoveryConfig holds mDNS options
type DiscoveryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Name          string        `yaml:"name"`
	BrowseTimeout time.Duration `yaml:"browse_timeout"`
}

// LogConfig holds logging options
type LogConfig struct {
	File string `yaml:"file"`
	TUI  bool   `yaml:"tui"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg := &Config{
		Control:   ControlConfig{Enabled: true},
		Discovery: DiscoveryConfig{Enabled: true},
		Log:       LogConfig{TUI: true},
	}
	cfg.setDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Stream.ConnectTimeout == 0 {
		c.Stream.ConnectTimeout = 10 * time.Second
	}
	if c.Stream.ReadTimeout == 0 {
		c.Stream.ReadTimeout = 30 * time.Second
	}
	if c.Stream.Reconnect.BaseDelay == 0 {
		c.Stream.Reconnect.BaseDelay = 2 * time.Second
	}
	if c.Stream.Reconnect.MaxDelay == 0 {
		c.Stream.Reconnect.MaxDelay = 10 * time.Second
	}
	if c.Stream.Reconnect.MaxAttempts == 0 {
		c.Stream.Reconnect.MaxAttempts = 50
	}
	if c.Playback.Backend == "" {
		c.Playback.Backend = "oto"
	}
	if c.Playback.QueueCapacity == 0 {
		c.Playback.QueueCapacity = 30
	}
	if c.Playback.MinBufferedChunks == 0 {
		c.Playback.MinBufferedChunks = 3
	}
	if c.Playback.BufferPollInterval == 0 {
		c.Playback.BufferPollInterval = 100 * time.Millisecond
	}
	if c.Playback.BufferPollAttempts == 0 {
		c.Playback.BufferPollAttempts = 150
	}
	if c.Playback.ResampleMode == "" {
		c.Playback.ResampleMode = "chunk"
	}
	if c.Control.Addr == "" {
		c.Control.Addr = ":8927"
	}
	if c.Discovery.BrowseTimeout == 0 {
		c.Discovery.BrowseTimeout = 10 * time.Second
	}
	if c.Log.File == "" {
		c.Log.File = "pcmstream.log"
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}
	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}
	return nil
}

// Validate validates stream configuration
func (s *StreamConfig) Validate() error {
	if s.URL != "" {
		u, err := url.Parse(s.URL)
		if err != nil {
			return fmt.Errorf("invalid url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("url must be http or https, got %q", s.URL)
		}
	}
	if s.ConnectTimeout < 0 || s.ReadTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if s.Reconnect.MaxDelay < s.Reconnect.BaseDelay {
		return fmt.Errorf("reconnect max_delay (%v) must not be below base_delay (%v)",
			s.Reconnect.MaxDelay, s.Reconnect.BaseDelay)
	}
	if s.Reconnect.MaxAttempts < 1 {
		return fmt.Errorf("reconnect max_attempts must be at least 1, got %d", s.Reconnect.MaxAttempts)
	}
	return nil
}

// Backoff converts the reconnect settings
func (s *StreamConfig) Backoff() stream.Backoff {
	return stream.Backoff{
		Base:        s.Reconnect.BaseDelay,
		Max:         s.Reconnect.MaxDelay,
		MaxAttempts: s.Reconnect.MaxAttempts,
	}
}

// Validate validates playback configuration
func (p *PlaybackConfig) Validate() error {
	switch p.Backend {
	case "oto", "malgo", "portaudio", "null":
	default:
		return fmt.Errorf("unknown backend %q", p.Backend)
	}
	if p.NativeRate < 0 {
		return fmt.Errorf("native_rate must not be negative, got %d", p.NativeRate)
	}
	if p.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", p.QueueCapacity)
	}
	if p.MinBufferedChunks > p.QueueCapacity {
		return fmt.Errorf("min_buffered_chunks (%d) must not exceed queue_capacity (%d)",
			p.MinBufferedChunks, p.QueueCapacity)
	}
	if p.ResampleMode != "chunk" && p.ResampleMode != "stream" {
		return fmt.Errorf("resample_mode must be chunk or stream, got %q", p.ResampleMode)
	}
	return nil
}
