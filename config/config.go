// Package config loads the chromatune configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/RyanBlaney/sonido-chroma/detector"
	"github.com/RyanBlaney/sonido-chroma/logging"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration
type Config struct {
	Log      LogConfig       `yaml:"log"`
	Input    InputConfig     `yaml:"input"`
	Detector detector.Config `yaml:"detector"`
	Metrics  MetricsConfig   `yaml:"metrics"`
}

// LogConfig configures the default logger
type LogConfig struct {
	Level   string `yaml:"level"`
	NoColor bool   `yaml:"no_color"`

	// File receives log output; the terminal view discards logs without it
	File string `yaml:"file"`
}

// InputConfig selects the audio source
type InputConfig struct {
	// Path is an audio file; empty selects the microphone
	Path string `yaml:"path"`

	// Microphone asks for the default input device explicitly and conflicts
	// with Path
	Microphone bool `yaml:"microphone"`

	// BlockSize is the number of samples per Process call, like an audio
	// driver's buffer size
	BlockSize int `yaml:"block_size"`

	// Realtime paces file input at its sample rate
	Realtime bool `yaml:"realtime"`
}

// UsesMicrophone reports whether the input is the default capture device
func (c InputConfig) UsesMicrophone() bool {
	return c.Microphone || c.Path == ""
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	// Listen is the address serving /metrics; empty disables it
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info"},
		Input:    InputConfig{BlockSize: 128, Realtime: true},
		Detector: detector.DefaultConfig(),
	}
}

// Load reads and validates the YAML file at path. Keys missing from the file
// keep their Default values.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the defaults and validates
// the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate returns every problem found in cfg, joined
func Validate(cfg *Config) error {
	var errs []error

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if cfg.Input.Path != "" && cfg.Input.Microphone {
		errs = append(errs, errors.New("input: path and microphone are mutually exclusive"))
	}
	if cfg.Input.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("input.block_size must be positive, got %d", cfg.Input.BlockSize))
	}

	if err := cfg.Detector.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("detector: %w", err))
	}

	return errors.Join(errs...)
}
