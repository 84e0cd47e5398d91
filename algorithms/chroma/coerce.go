package chroma

import "math"

// Coercion is a frequency snapped to the nearest semitone.
//
// Weight is 1 exactly in tune and follows the parabola 1 - (2*offTune)^2.
// offTune never exceeds half a semitone, so the weight bottoms out at 0 on
// the boundary between two notes (a frequency ratio of 2^(1/24)).
type Coercion struct {
	Class  int
	Weight float64
}

// Coerce maps a frequency in Hz to its nearest pitch class and in-tune weight.
// freq must be positive and finite; callers guard that.
func Coerce(freq float64) Coercion {
	midi := ReferenceMIDI + NumClasses*math.Log2(freq/ReferenceFrequency)
	// Round half up, so an exact half-semitone goes to the upper note.
	rounded := math.Floor(midi + 0.5)
	offTune := midi - rounded

	return Coercion{
		Class:  Normalize(int(rounded)),
		Weight: 1 - (2*offTune)*(2*offTune),
	}
}

// ValidFrequency reports whether freq can be passed to Coerce
func ValidFrequency(freq float64) bool {
	return freq > 0 && !math.IsInf(freq, 0) && !math.IsNaN(freq)
}
