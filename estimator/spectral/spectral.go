// Package spectral estimates a pitch class directly from the magnitude
// spectrum, folding every audible bin into a 12-class energy pool.
package spectral

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-chroma/algorithms/chroma"
	"github.com/RyanBlaney/sonido-chroma/algorithms/spectral"
	"github.com/RyanBlaney/sonido-chroma/estimator"
	"github.com/RyanBlaney/sonido-chroma/stream"
	"gonum.org/v1/gonum/floats"
)

const (
	// NoiseFloor is the level (dB) below which a bin is ignored
	NoiseFloor = -100.0

	// MinFrequency and MaxFrequency bound the bins that contribute, in Hz
	MinFrequency = 32.0
	MaxFrequency = 4096.0
)

// Config configures the spectral estimator
type Config struct {
	SampleRate float64 `yaml:"sample_rate" json:"sample_rate"`
	FFTSize    int     `yaml:"fft_size" json:"fft_size"`
	Smoothing  float64 `yaml:"smoothing" json:"smoothing"`
}

// DefaultConfig returns the analyser settings for a native sample rate
func DefaultConfig(sampleRate float64) Config {
	return Config{
		SampleRate: sampleRate,
		FFTSize:    spectral.DefaultFFTSize,
		Smoothing:  spectral.DefaultSmoothing,
	}
}

// Estimator runs one analysis pass per quantum. It owns the analyser's
// smoothing state and must be driven from a single goroutine.
type Estimator struct {
	analyser *spectral.Analyser
	db       []float64

	// Per-bin pitch classes and in-tune weights. They depend only on the bin
	// frequency, so they are computed once.
	classes []int
	weights []float64
	first   int
	last    int

	pool [chroma.NumClasses]float64
}

// New creates a spectral estimator
func New(cfg Config) (*Estimator, error) {
	if cfg.FFTSize != stream.QuantumSize {
		return nil, fmt.Errorf("fft size %d must match the %d sample quantum", cfg.FFTSize, stream.QuantumSize)
	}
	analyser, err := spectral.NewAnalyser(cfg.FFTSize, cfg.SampleRate, cfg.Smoothing)
	if err != nil {
		return nil, err
	}

	bins := analyser.BinCount()
	e := &Estimator{
		analyser: analyser,
		db:       make([]float64, bins),
		classes:  make([]int, bins),
		weights:  make([]float64, bins),
		first:    bins,
		last:     -1,
	}

	for k := range bins {
		f := analyser.BinFrequency(k)
		if f < MinFrequency || f > MaxFrequency {
			continue
		}
		c := chroma.Coerce(f)
		e.classes[k] = c.Class
		e.weights[k] = c.Weight
		e.first = min(e.first, k)
		e.last = max(e.last, k)
	}

	return e, nil
}

// Estimate analyses the most recent quantum of native-rate samples
func (e *Estimator) Estimate(block *stream.Block) (estimator.Chroma, error) {
	if err := e.analyser.FloatFrequencyData(e.db, block[:]); err != nil {
		return estimator.Chroma{}, err
	}
	return e.EstimateSpectrum(e.db), nil
}

// EstimateSpectrum folds a dB spectrum (one value per analyser bin) into the
// chroma pool and returns its strongest class. Ties go to the lowest class;
// an empty pool reports class 0 with zero confidence.
func (e *Estimator) EstimateSpectrum(db []float64) estimator.Chroma {
	for c := range e.pool {
		e.pool[c] = 0
	}

	last := min(e.last, len(db)-1)
	for k := e.first; k <= last; k++ {
		level := db[k]
		if level < NoiseFloor || math.IsNaN(level) {
			continue
		}
		e.pool[e.classes[k]] += math.Pow(10, level/20) * e.weights[k]
	}

	best := floats.MaxIdx(e.pool[:])
	return estimator.Chroma{Class: best, Confidence: e.pool[best]}
}

// Pool returns the accumulated energy of each class from the last pass
func (e *Estimator) Pool() [chroma.NumClasses]float64 {
	return e.pool
}

// BinCount returns the number of spectrum bins EstimateSpectrum expects
func (e *Estimator) BinCount() int {
	return e.analyser.BinCount()
}

// BinFrequency returns the centre frequency of bin k in Hz
func (e *Estimator) BinFrequency(k int) float64 {
	return e.analyser.BinFrequency(k)
}

// Reset clears the analyser's smoothing history
func (e *Estimator) Reset() {
	e.analyser.Reset()
}
