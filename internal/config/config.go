// Package config loads the settings file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "~/.timbuk/config.yaml"

// Backend names accepted in the backend setting.
const (
	BackendRender = "render"
	BackendMIDI   = "midi"
	BackendSilent = "silent"
)

type MIDI struct {
	OutPort string `yaml:"out_port"`
	InPort  string `yaml:"in_port"`
	// Channel is 1-based as printed on hardware.
	Channel int `yaml:"channel"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Backend       string        `yaml:"backend"`
	SampleRate    int           `yaml:"sample_rate"`
	BufferSize    time.Duration `yaml:"buffer_size"`
	MIDI          MIDI          `yaml:"midi"`
	DataDir       string        `yaml:"data_dir"`
	HTTP          HTTP          `yaml:"http"`
	Author        string        `yaml:"author"`
	StatusTimeout time.Duration `yaml:"status_timeout"`
}

func Default() Config {
	return Config{
		Backend:       BackendRender,
		SampleRate:    48000,
		BufferSize:    20 * time.Millisecond,
		MIDI:          MIDI{OutPort: "", InPort: "", Channel: 1},
		DataDir:       "~/.timbuk",
		HTTP:          HTTP{Addr: "127.0.0.1:8765"},
		Author:        "User",
		StatusTimeout: 3 * time.Second,
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	p, err := homedir.Expand(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to expand config path %s: %w", path, err)
	}

	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, cfg.expand()
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", p, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", p, err)
	}
	return cfg, cfg.expand()
}

func (c *Config) expand() error {
	dir, err := homedir.Expand(c.DataDir)
	if err != nil {
		return fmt.Errorf("failed to expand data dir %s: %w", c.DataDir, err)
	}
	c.DataDir = filepath.Clean(dir)
	return nil
}

// Validate checks values that cannot be repaired by falling back to defaults.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendRender, BackendMIDI, BackendSilent:
	default:
		return fmt.Errorf("unknown backend %q (want %s, %s or %s)", c.Backend, BackendRender, BackendMIDI, BackendSilent)
	}
	if c.MIDI.Channel < 1 || c.MIDI.Channel > 16 {
		return fmt.Errorf("midi channel must be in range 1-16, got %d", c.MIDI.Channel)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	return nil
}

// Override applies command-line values; empty strings leave a setting alone.
func (c *Config) Override(backend, dataDir string) error {
	if backend != "" {
		c.Backend = backend
	}
	if dataDir != "" {
		c.DataDir = dataDir
	}
	if err := c.Validate(); err != nil {
		return err
	}
	return c.expand()
}

// Marshal renders c as YAML, for writing a starter config.
func (c Config) Marshal() ([]byte, error) {
	b, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return b, nil
}
