package chroma

import (
	"fmt"
	"math"
)

// NumClasses is the number of pitch classes in an octave
const NumClasses = 12

// A4 reference tuning used throughout the package
const (
	ReferenceFrequency = 440.0
	ReferenceMIDI      = 69
)

var pitchClassNames = [NumClasses]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Name returns the pitch class name (0=C, 1=C#, ..., 11=B).
// Out of range classes are folded into [0, 11] first.
func Name(class int) string {
	return pitchClassNames[Normalize(class)]
}

// Normalize folds any integer into [0, 11], including negatives
func Normalize(class int) int {
	return ((class % NumClasses) + NumClasses) % NumClasses
}

// Frequency returns the equal-tempered frequency of a pitch class in the given
// MIDI octave (octave 4 holds A4 = 440 Hz).
func Frequency(class, octave int) float64 {
	midi := float64(Normalize(class) + (octave+1)*NumClasses)
	return ReferenceFrequency * math.Pow(2, (midi-ReferenceMIDI)/NumClasses)
}

// ParseName converts a pitch class name back to its class number
func ParseName(name string) (int, error) {
	for i, n := range pitchClassNames {
		if n == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown pitch class %q", name)
}
