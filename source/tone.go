package source

import (
	"io"
	"math"
	"time"
)

// Tone is a synthetic sine source, mostly for tests and demos
type Tone struct {
	freq      float64
	rate      int
	amplitude float64
	remaining int // samples left; negative means endless
	phase     float64
}

// NewTone returns a sine at freq Hz. A zero duration never ends.
func NewTone(freq float64, rate int, amplitude float64, duration time.Duration) *Tone {
	remaining := -1
	if duration > 0 {
		remaining = int(duration.Seconds() * float64(rate))
	}
	return &Tone{freq: freq, rate: rate, amplitude: amplitude, remaining: remaining}
}

func (t *Tone) SampleRate() int { return t.rate }
func (t *Tone) Channels() int   { return 1 }

func (t *Tone) Read(dst []float32) (int, error) {
	n := len(dst)
	if t.remaining >= 0 {
		if t.remaining == 0 {
			return 0, io.EOF
		}
		n = min(n, t.remaining)
		t.remaining -= n
	}

	step := 2 * math.Pi * t.freq / float64(t.rate)
	for i := range n {
		dst[i] = float32(t.amplitude * math.Sin(t.phase))
		t.phase = math.Mod(t.phase+step, 2*math.Pi)
	}
	return n, nil
}

func (t *Tone) Close() error { return nil }
