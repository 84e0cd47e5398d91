// Package estimator defines the per-frame estimates produced by the neural
// and spectral back-ends, and the class/weight observation both reduce to
// before smoothing.
package estimator

import (
	"math"

	"github.com/RyanBlaney/sonido-chroma/algorithms/chroma"
)

// Pitch is one neural estimate: a frequency and an estimator-specific,
// unnormalized confidence.
type Pitch struct {
	Frequency  float64 `json:"frequency"`  // Hz
	Confidence float64 `json:"confidence"` // model units, not comparable across models
}

// Chroma is one spectral estimate: a pitch class and the energy that backs it.
type Chroma struct {
	Class      int     `json:"class"`      // 0=C ... 11=B
	Confidence float64 `json:"confidence"` // unnormalized, comparable only for similar input energy
}

// Observation is one smoother input
type Observation struct {
	Class  int
	Weight float64
}

// Observer is implemented by every estimate type
type Observer interface {
	Observation() (Observation, bool)
}

// Observation snaps the pitch to its nearest class. The in-tune weight is
// scaled by the model confidence. ok is false for a frequency that cannot be
// placed on the scale (zero, negative, NaN or infinite) and for a non-finite
// confidence.
func (p Pitch) Observation() (Observation, bool) {
	if !chroma.ValidFrequency(p.Frequency) {
		return Observation{}, false
	}
	c := chroma.Coerce(p.Frequency)
	w := c.Weight * p.Confidence
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return Observation{}, false
	}
	return Observation{Class: c.Class, Weight: w}, true
}

// Observation passes the class and confidence through unchanged
func (c Chroma) Observation() (Observation, bool) {
	return Observation{Class: chroma.Normalize(c.Class), Weight: c.Confidence}, true
}
