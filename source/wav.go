package source

import (
	"fmt"
	"io"

	"github.com/unixpickle/wav"
)

// WAV is a fully decoded WAV file
type WAV struct {
	sound    wav.Sound
	samples  []wav.Sample
	channels int
	pos      int
}

// OpenWAV decodes the WAV file at path into memory
func OpenWAV(path string) (*WAV, error) {
	s, err := wav.ReadSoundFile(path)
	if err != nil {
		return nil, fmt.Errorf("source: read wav %q: %w", path, err)
	}
	return NewWAV(s)
}

// NewWAV wraps an already decoded sound
func NewWAV(s wav.Sound) (*WAV, error) {
	if s.Channels() <= 0 || s.SampleRate() <= 0 {
		return nil, fmt.Errorf("source: wav has %d channels at %d Hz", s.Channels(), s.SampleRate())
	}
	return &WAV{sound: s, samples: s.Samples(), channels: s.Channels()}, nil
}

func (w *WAV) SampleRate() int { return w.sound.SampleRate() }
func (w *WAV) Channels() int   { return w.channels }

func (w *WAV) Read(dst []float32) (int, error) {
	n := firstChannel(dst, w.samples[w.pos:], w.channels, func(s wav.Sample) float32 { return float32(s) })
	if n == 0 && len(dst) > 0 {
		return 0, io.EOF
	}
	w.pos += n * w.channels
	return n, nil
}

func (w *WAV) Close() error {
	w.samples, w.pos = nil, 0
	return nil
}
