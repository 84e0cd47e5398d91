package spectral

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-chroma/algorithms/windowing"
)

const (
	// DefaultFFTSize gives 2048 frequency bins
	DefaultFFTSize = 4096

	// DefaultSmoothing is the temporal smoothing constant applied between passes
	DefaultSmoothing = 0.8
)

// Analyser turns blocks of time-domain samples into a magnitude spectrum in
// decibels, the same way a browser AnalyserNode does:
//
//  1. Blackman window (alpha 0.16) over the last fftSize samples
//  2. FFT, magnitude |X[k]| / N
//  3. temporal smoothing: s[k] = tau*s[k] + (1-tau)*|X[k]|
//  4. 20*log10(s[k]); zero magnitude reads as -Inf
//
// The smoothing state makes an Analyser stateful; it is not safe for
// concurrent use.
type Analyser struct {
	fftSize    int
	sampleRate float64
	smoothing  float64

	window   *windowing.Blackman
	fft      *FFT
	windowed []float64
	current  []float64
	smoothed []float64
}

// NewAnalyser creates an analyser for a given native sample rate
func NewAnalyser(fftSize int, sampleRate, smoothing float64) (*Analyser, error) {
	if fftSize < 2 || fftSize%2 != 0 {
		return nil, fmt.Errorf("fft size must be a positive even number, got %d", fftSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}
	if smoothing < 0 || smoothing >= 1 {
		return nil, fmt.Errorf("smoothing must be in [0, 1), got %g", smoothing)
	}

	return &Analyser{
		fftSize:    fftSize,
		sampleRate: sampleRate,
		smoothing:  smoothing,
		window:     windowing.NewBlackman(fftSize, false),
		fft:        NewFFT(),
		windowed:   make([]float64, fftSize),
		current:    make([]float64, fftSize/2),
		smoothed:   make([]float64, fftSize/2),
	}, nil
}

// FloatFrequencyData analyses samples (exactly fftSize long, oldest first) and
// writes the smoothed spectrum in dB into dst (BinCount long).
func (a *Analyser) FloatFrequencyData(dst []float64, samples []float32) error {
	if len(dst) != a.BinCount() {
		return fmt.Errorf("destination length (%d) doesn't match bin count (%d)", len(dst), a.BinCount())
	}
	if err := a.window.ApplyTo(a.windowed, samples); err != nil {
		return err
	}

	a.fft.Magnitudes(a.current, a.windowed)

	tau := a.smoothing
	for k, mag := range a.current {
		s := tau*a.smoothed[k] + (1-tau)*mag
		if math.IsNaN(s) || math.IsInf(s, 0) {
			s = 0
		}
		a.smoothed[k] = s
		dst[k] = 20 * math.Log10(s)
	}

	return nil
}

// BinFrequency returns the centre frequency of bin k in Hz
func (a *Analyser) BinFrequency(k int) float64 {
	return float64(k) * a.sampleRate / float64(a.fftSize)
}

// BinCount returns the number of frequency bins (fftSize / 2)
func (a *Analyser) BinCount() int {
	return a.fftSize / 2
}

// FFTSize returns the analysis window length
func (a *Analyser) FFTSize() int {
	return a.fftSize
}

// SampleRate returns the native sample rate the analyser was built for
func (a *Analyser) SampleRate() float64 {
	return a.sampleRate
}

// Reset clears the smoothing history
func (a *Analyser) Reset() {
	for k := range a.smoothed {
		a.smoothed[k] = 0
	}
}
