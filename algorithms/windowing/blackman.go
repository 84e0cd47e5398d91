package windowing

import (
	"fmt"
	"math"
)

// DefaultBlackmanAlpha is the alpha of the "exact" Blackman window used by
// browser analyser nodes (a0 = 0.42, a1 = 0.5, a2 = 0.08).
const DefaultBlackmanAlpha = 0.16

// Blackman represents a Blackman window function
type Blackman struct {
	size         int
	alpha        float64
	symmetric    bool
	coefficients []float64
}

// NewBlackman creates a new Blackman window with the default alpha.
// Analysis windows should be periodic (symmetric = false).
func NewBlackman(size int, symmetric bool) *Blackman {
	return NewBlackmanAlpha(size, DefaultBlackmanAlpha, symmetric)
}

// NewBlackmanAlpha creates a Blackman window with a custom alpha
func NewBlackmanAlpha(size int, alpha float64, symmetric bool) *Blackman {
	b := &Blackman{
		size:      size,
		alpha:     alpha,
		symmetric: symmetric,
	}
	b.generate()
	return b
}

func (b *Blackman) generate() {
	b.coefficients = make([]float64, b.size)
	if b.size == 0 {
		return
	}

	denominator := float64(b.size)
	if b.symmetric && b.size > 1 {
		denominator = float64(b.size - 1)
	}

	a0 := (1 - b.alpha) / 2
	a1 := 0.5
	a2 := b.alpha / 2

	for i := range b.size {
		arg := 2 * math.Pi * float64(i) / denominator
		b.coefficients[i] = a0 - a1*math.Cos(arg) + a2*math.Cos(2*arg)
	}
}

// ApplyTo writes the windowed float32 signal into dst without allocating.
// Both slices must match the window size.
func (b *Blackman) ApplyTo(dst []float64, signal []float32) error {
	if len(signal) != b.size || len(dst) != b.size {
		return fmt.Errorf("signal length (%d) / destination length (%d) doesn't match window size (%d)",
			len(signal), len(dst), b.size)
	}

	for i, s := range signal {
		dst[i] = float64(s) * b.coefficients[i]
	}

	return nil
}

// ApplyInPlace applies the window to a signal in-place
func (b *Blackman) ApplyInPlace(signal []float64) error {
	if len(signal) != b.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), b.size)
	}

	for i := range signal {
		signal[i] *= b.coefficients[i]
	}

	return nil
}

// Coefficient returns the i-th window coefficient
func (b *Blackman) Coefficient(i int) float64 {
	return b.coefficients[i]
}

// Size returns the window size
func (b *Blackman) Size() int {
	return b.size
}
