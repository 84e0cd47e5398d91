package spectral

import (
	"math"
	"testing"

	"github.com/RyanBlaney/sonido-chroma/algorithms/chroma"
	"github.com/RyanBlaney/sonido-chroma/stream"
)

func newEstimator(t *testing.T, rate float64) *Estimator {
	t.Helper()
	e, err := New(DefaultConfig(rate))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func silentSpectrum(n int) []float64 {
	db := make([]float64, n)
	for i := range db {
		db[i] = math.Inf(-1)
	}
	return db
}

func TestNewRejectsMismatchedFFTSize(t *testing.T) {
	cfg := DefaultConfig(48000)
	cfg.FFTSize = 2048
	if _, err := New(cfg); err == nil {
		t.Error("expected error for fft size different from the quantum")
	}

	cfg = DefaultConfig(0)
	if _, err := New(cfg); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestEstimateSpectrumSingleBin(t *testing.T) {
	e := newEstimator(t, 48000)
	db := silentSpectrum(e.BinCount())

	// Bin 37 is 433.6 Hz at 48 kHz, nearest to A.
	db[37] = -20
	got := e.EstimateSpectrum(db)

	c := chroma.Coerce(e.BinFrequency(37))
	if got.Class != 9 || c.Class != 9 {
		t.Fatalf("expected class 9, got %d", got.Class)
	}
	if want := 0.1 * c.Weight; math.Abs(got.Confidence-want) > 1e-12 {
		t.Errorf("expected confidence %g, got %g", want, got.Confidence)
	}
}

func TestEstimateSpectrumIgnoresNoiseAndOutOfRangeBins(t *testing.T) {
	e := newEstimator(t, 48000)
	db := silentSpectrum(e.BinCount())

	db[37] = -40
	db[2] = 0      // 23 Hz, below range
	db[400] = 0    // 4687 Hz, above range
	db[100] = -101 // below the noise floor

	got := e.EstimateSpectrum(db)
	if got.Class != 9 {
		t.Errorf("expected class 9, got %d (pool %v)", got.Class, e.Pool())
	}

	pool := e.Pool()
	for c, v := range pool {
		if c != 9 && v != 0 {
			t.Errorf("expected empty class %d, got %g", c, v)
		}
	}
}

func TestEstimateSpectrumSilence(t *testing.T) {
	e := newEstimator(t, 44100)
	got := e.EstimateSpectrum(silentSpectrum(e.BinCount()))
	if got.Class != 0 || got.Confidence != 0 {
		t.Errorf("expected class 0 with zero confidence, got %+v", got)
	}
}

func TestEstimateSine(t *testing.T) {
	for _, rate := range []float64{44100, 48000} {
		e := newEstimator(t, rate)

		var block stream.Block
		for i := range block {
			block[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/rate))
		}

		var conf float64
		for pass := range 8 {
			got, err := e.Estimate(&block)
			if err != nil {
				t.Fatalf("Estimate: %v", err)
			}
			if got.Class != 9 {
				t.Fatalf("%g Hz pass %d: expected class 9, got %d", rate, pass, got.Class)
			}
			if got.Confidence < conf {
				t.Errorf("%g Hz pass %d: confidence fell from %g to %g", rate, pass, conf, got.Confidence)
			}
			conf = got.Confidence
		}
		if conf < 0.005 {
			t.Errorf("%g Hz: expected confidence above the spectral threshold, got %g", rate, conf)
		}

		e.Reset()
		var silence stream.Block
		got, _ := e.Estimate(&silence)
		if got.Confidence != 0 {
			t.Errorf("expected zero confidence on silence after reset, got %g", got.Confidence)
		}
	}
}
