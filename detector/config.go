package detector

import (
	"errors"
	"fmt"

	"github.com/RyanBlaney/sonido-chroma/algorithms/chroma"
	"github.com/RyanBlaney/sonido-chroma/algorithms/spectral"
	"github.com/RyanBlaney/sonido-chroma/estimator/neural"
)

// Mode selects the estimator feeding the smoother
type Mode string

const (
	ModePrecise     Mode = "precise"
	ModeLightweight Mode = "lightweight"
	ModeSpectral    Mode = "spectral"
)

// ErrUnknownMode is returned for a mode name that is not recognised
var ErrUnknownMode = errors.New("unknown detection mode")

// Default smoother thresholds. The two estimators report confidence on
// unrelated scales, so each gets its own.
const (
	DefaultNeuralThreshold   = 0.1
	DefaultSpectralThreshold = 0.005
)

// Modes lists every mode in cycling order
func Modes() []Mode {
	return []Mode{ModePrecise, ModeLightweight, ModeSpectral}
}

// ParseMode validates a mode name
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	return m.code() != 0
}

// Neural reports whether m runs a neural model
func (m Mode) Neural() bool {
	return m == ModePrecise || m == ModeLightweight
}

// Kind returns the model kind for a neural mode
func (m Mode) Kind() neural.Kind {
	if m == ModeLightweight {
		return neural.Lightweight
	}
	return neural.Precise
}

// Next returns the mode after m in cycling order
func (m Mode) Next() Mode {
	modes := Modes()
	for i, mode := range modes {
		if mode == m {
			return modes[(i+1)%len(modes)]
		}
	}
	return modes[0]
}

func (m Mode) String() string {
	return string(m)
}

// code packs a mode into the low byte of the detector state; 0 means inactive
func (m Mode) code() uint64 {
	switch m {
	case ModeSpectral:
		return 1
	case ModePrecise:
		return 2
	case ModeLightweight:
		return 3
	}
	return 0
}

func modeFromCode(c uint64) Mode {
	switch c {
	case 1:
		return ModeSpectral
	case 2:
		return ModePrecise
	case 3:
		return ModeLightweight
	}
	return ""
}

// Config holds detector configuration
type Config struct {
	// Mode is activated by New
	Mode Mode `yaml:"mode" json:"mode"`

	// NativeRate is the sample rate of the blocks passed to Process
	NativeRate int `yaml:"native_rate" json:"native_rate"`

	// FilterSize is the smoother window in observations
	FilterSize int `yaml:"filter_size" json:"filter_size"`

	NeuralThreshold   float64 `yaml:"neural_threshold" json:"neural_threshold"`
	SpectralThreshold float64 `yaml:"spectral_threshold" json:"spectral_threshold"`

	// MaxInFlight bounds concurrent model forward passes
	MaxInFlight int `yaml:"max_in_flight" json:"max_in_flight"`

	// QueueCapacity is the number of frames (or quanta) buffered between the
	// audio thread and analysis before new ones are dropped
	QueueCapacity int `yaml:"queue_capacity" json:"queue_capacity"`

	// AnalyserSmoothing is the spectral analyser's temporal smoothing constant
	AnalyserSmoothing float64 `yaml:"analyser_smoothing" json:"analyser_smoothing"`

	// ModelRoot is the directory holding <kind>/model.json
	ModelRoot string `yaml:"model_root" json:"model_root"`
}

// DefaultConfig returns the default detector configuration
func DefaultConfig() Config {
	return Config{
		Mode:              ModePrecise,
		NativeRate:        48000,
		FilterSize:        chroma.DefaultFilterSize,
		NeuralThreshold:   DefaultNeuralThreshold,
		SpectralThreshold: DefaultSpectralThreshold,
		MaxInFlight:       2,
		QueueCapacity:     8,
		AnalyserSmoothing: spectral.DefaultSmoothing,
		ModelRoot:         "assets/models",
	}
}

// Threshold returns the smoother threshold for a mode
func (c Config) Threshold(m Mode) float64 {
	if m.Neural() {
		return c.NeuralThreshold
	}
	return c.SpectralThreshold
}

// Validate reports every invalid field at once
func (c Config) Validate() error {
	var errs []error

	if !c.Mode.Valid() {
		errs = append(errs, fmt.Errorf("mode: %w: %q", ErrUnknownMode, c.Mode))
	}
	if c.NativeRate <= 0 {
		errs = append(errs, fmt.Errorf("native_rate must be positive, got %d", c.NativeRate))
	}
	if c.FilterSize <= 0 {
		errs = append(errs, fmt.Errorf("filter_size must be positive, got %d", c.FilterSize))
	}
	if c.NeuralThreshold < 0 {
		errs = append(errs, fmt.Errorf("neural_threshold must not be negative, got %g", c.NeuralThreshold))
	}
	if c.SpectralThreshold < 0 {
		errs = append(errs, fmt.Errorf("spectral_threshold must not be negative, got %g", c.SpectralThreshold))
	}
	if c.MaxInFlight <= 0 {
		errs = append(errs, fmt.Errorf("max_in_flight must be positive, got %d", c.MaxInFlight))
	}
	if c.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("queue_capacity must be positive, got %d", c.QueueCapacity))
	}
	if c.AnalyserSmoothing < 0 || c.AnalyserSmoothing >= 1 {
		errs = append(errs, fmt.Errorf("analyser_smoothing must be in [0, 1), got %g", c.AnalyserSmoothing))
	}

	return errors.Join(errs...)
}
