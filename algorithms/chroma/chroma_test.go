package chroma

import (
	"math"
	"math/rand"
	"testing"
)

func midiToFrequency(m int) float64 {
	return 440 * math.Pow(2, float64(m-69)/12)
}

func TestCoerceInTuneNotes(t *testing.T) {
	for m := -24; m <= 127; m++ {
		got := Coerce(midiToFrequency(m))
		if want := Normalize(m); got.Class != want {
			t.Errorf("midi %d: expected class %d, got %d", m, want, got.Class)
		}
		if math.Abs(got.Weight-1) > 1e-9 {
			t.Errorf("midi %d: expected weight 1, got %g", m, got.Weight)
		}
	}
}

func TestCoerceHalfSemitoneBoundary(t *testing.T) {
	for m := 21; m <= 108; m++ {
		f := midiToFrequency(m)
		got := Coerce(f * math.Pow(2, 1.0/24))
		if math.Abs(got.Weight) > 1e-9 {
			t.Errorf("midi %d: expected weight ~0 on the boundary, got %g", m, got.Weight)
		}
	}
}

func TestCoerceOffTuneParabola(t *testing.T) {
	// A4 a tenth of a semitone sharp.
	got := Coerce(440 * math.Pow(2, 0.1/12))
	if got.Class != 9 {
		t.Errorf("expected class 9 (A), got %d", got.Class)
	}
	if want := 1 - 0.2*0.2; math.Abs(got.Weight-want) > 1e-9 {
		t.Errorf("expected weight %g, got %g", want, got.Weight)
	}

	// Weight is symmetric around the note.
	flat := Coerce(440 * math.Pow(2, -0.1/12))
	if math.Abs(flat.Weight-got.Weight) > 1e-9 {
		t.Errorf("expected symmetric weights, got %g and %g", flat.Weight, got.Weight)
	}
}

func TestNamesAndFrequency(t *testing.T) {
	if Name(9) != "A" || Name(-3) != "A" || Name(13) != "C#" {
		t.Errorf("unexpected names: %s %s %s", Name(9), Name(-3), Name(13))
	}
	if f := Frequency(9, 4); math.Abs(f-440) > 1e-9 {
		t.Errorf("expected A4 = 440, got %g", f)
	}
	if f := Frequency(0, 4); math.Abs(f-261.6255653) > 1e-6 {
		t.Errorf("expected C4 ~261.63, got %g", f)
	}
	c, err := ParseName("F#")
	if err != nil || c != 6 {
		t.Errorf("ParseName(F#) = %d, %v", c, err)
	}
	if _, err := ParseName("H"); err == nil {
		t.Error("expected error for unknown name")
	}
}

func TestValidFrequency(t *testing.T) {
	for _, f := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if ValidFrequency(f) {
			t.Errorf("expected %g to be invalid", f)
		}
	}
	if !ValidFrequency(440) {
		t.Error("expected 440 to be valid")
	}
}

func newAverage(t *testing.T, size int, threshold float64) *RunningAverage {
	t.Helper()
	ra, err := NewRunningAverage(size, threshold)
	if err != nil {
		t.Fatalf("NewRunningAverage: %v", err)
	}
	return ra
}

func TestRunningAverageSteadyState(t *testing.T) {
	ra := newAverage(t, DefaultFilterSize, 0.1)
	for range DefaultFilterSize {
		ra.Observe(4, 0.5)
	}

	if got := ra.Accumulator(4); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("expected accumulator 0.5, got %g", got)
	}
	for c := range NumClasses {
		if c != 4 && ra.Accumulator(c) != 0 {
			t.Errorf("class %d: expected 0, got %g", c, ra.Accumulator(c))
		}
	}
}

func TestRunningAverageEviction(t *testing.T) {
	ra := newAverage(t, 8, 0)
	ra.Observe(1, 1)
	for range 8 {
		ra.Observe(2, 1)
	}

	if got := ra.Accumulator(1); math.Abs(got) > 1e-12 {
		t.Errorf("first observation not evicted: %g", got)
	}
	if got := ra.Accumulator(2); math.Abs(got-1) > 1e-12 {
		t.Errorf("expected class 2 at 1, got %g", got)
	}
}

func TestRunningAverageThreshold(t *testing.T) {
	ra := newAverage(t, 4, 0.1)

	ra.Observe(7, 0.2) // mean 0.05
	if _, w, ok := ra.Best(); ok {
		t.Errorf("expected no detection at %g", w)
	}

	ra.Observe(7, 0.2) // mean 0.1, not below threshold
	c, w, ok := ra.Best()
	if !ok || c != 7 {
		t.Errorf("expected class 7 detected, got %d (%g, %v)", c, w, ok)
	}
}

func TestRunningAverageTiesPreferLowestClass(t *testing.T) {
	ra := newAverage(t, 4, 0)
	ra.Observe(5, 1)
	ra.Observe(3, 1)

	if c, _, _ := ra.Best(); c != 3 {
		t.Errorf("expected tie to resolve to class 3, got %d", c)
	}
}

func TestRunningAverageReset(t *testing.T) {
	ra := newAverage(t, 32, 0.1)
	for range 16 {
		ra.Observe(3, 1)
	}
	if c, _, ok := ra.Best(); !ok || c != 3 {
		t.Fatalf("expected class 3 before reset, got %d %v", c, ok)
	}

	ra.Reset()
	if _, w, ok := ra.Best(); ok || w != 0 {
		t.Errorf("expected no detection after reset, got weight %g", w)
	}

	// A reset smoother must not evict ghosts of old observations.
	ra.Observe(6, 1)
	if got := ra.Accumulator(3); got != 0 {
		t.Errorf("class 3 went to %g after reset", got)
	}
}

func TestRunningAverageInvariantUnderRandomInput(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const size = 5
	ra := newAverage(t, size, 0)

	type obs struct {
		class  int
		weight float64
	}
	var history []obs

	for range 500 {
		o := obs{class: rng.Intn(NumClasses), weight: rng.Float64()*2 - 0.5}
		ra.Observe(o.class, o.weight)
		history = append(history, o)

		var want [NumClasses]float64
		start := max(0, len(history)-size)
		for _, h := range history[start:] {
			want[h.class] += h.weight / size
		}
		for c := range NumClasses {
			if math.Abs(ra.Accumulator(c)-want[c]) > 1e-9 {
				t.Fatalf("class %d: accumulator %g, want %g", c, ra.Accumulator(c), want[c])
			}
		}
	}
}

func TestRunningAverageIgnoresNonFiniteWeights(t *testing.T) {
	ra := newAverage(t, 4, 0.5)
	ra.Observe(2, math.NaN())
	ra.Observe(2, math.Inf(1))
	ra.Observe(5, math.Inf(-1))
	for range 40 {
		ra.Observe(9, 1)
	}

	c, w, ok := ra.Best()
	if !ok || c != 9 || math.Abs(w-1) > 1e-12 {
		t.Errorf("expected class 9 at 1, got %d (%g, %v)", c, w, ok)
	}
	for class := range NumClasses {
		if got := ra.Accumulator(class); math.IsNaN(got) || math.IsInf(got, 0) {
			t.Errorf("class %d accumulator is %g", class, got)
		}
	}
}

func TestNewRunningAverageRejectsEmptyWindow(t *testing.T) {
	if _, err := NewRunningAverage(0, 0.1); err == nil {
		t.Error("expected error for zero filter size")
	}
}
