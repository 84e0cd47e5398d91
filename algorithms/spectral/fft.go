package spectral

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// FFT provides Fast Fourier Transform functionality
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes the FFT of a real signal using mjibson/go-dsp
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}

	// mjibson/go-dsp handles all sizes, including non-power-of-2
	return fft.FFTReal(x)
}

// Magnitudes writes |X[k]| / N for the first len(dst) bins of the FFT of x.
// dst must not be longer than x.
func (f *FFT) Magnitudes(dst []float64, x []float64) {
	if len(x) == 0 {
		return
	}

	spectrum := f.Compute(x)
	scale := 1.0 / float64(len(x))
	for k := range dst {
		dst[k] = cmplx.Abs(spectrum[k]) * scale
	}
}
