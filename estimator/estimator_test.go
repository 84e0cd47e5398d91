package estimator

import (
	"math"
	"testing"

	"github.com/RyanBlaney/sonido-chroma/algorithms/chroma"
)

func TestPitchObservation(t *testing.T) {
	tests := []struct {
		name   string
		pitch  Pitch
		class  int
		weight float64
		ok     bool
	}{
		{"A4 in tune", Pitch{Frequency: 440, Confidence: 0.5}, 9, 0.5, true},
		{"C4 full confidence", Pitch{Frequency: chroma.Frequency(0, 4), Confidence: 1}, 0, 1, true},
		{"zero", Pitch{Frequency: 0, Confidence: 1}, 0, 0, false},
		{"negative", Pitch{Frequency: -440, Confidence: 1}, 0, 0, false},
		{"NaN", Pitch{Frequency: math.NaN(), Confidence: 1}, 0, 0, false},
		{"NaN confidence", Pitch{Frequency: 440, Confidence: math.NaN()}, 0, 0, false},
		{"infinite confidence", Pitch{Frequency: 440, Confidence: math.Inf(1)}, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, ok := tt.pitch.Observation()
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if !ok {
				return
			}
			if obs.Class != tt.class {
				t.Errorf("expected class %d, got %d", tt.class, obs.Class)
			}
			if math.Abs(obs.Weight-tt.weight) > 1e-9 {
				t.Errorf("expected weight %g, got %g", tt.weight, obs.Weight)
			}
		})
	}
}

func TestChromaObservation(t *testing.T) {
	var o Observer = Chroma{Class: 14, Confidence: 0.02}
	obs, ok := o.Observation()
	if !ok || obs.Class != 2 || obs.Weight != 0.02 {
		t.Errorf("expected {2 0.02}, got %+v (ok=%v)", obs, ok)
	}
}
