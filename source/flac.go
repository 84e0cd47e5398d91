package source

import (
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

// FLAC streams a FLAC file frame by frame through mewkiz/flac
type FLAC struct {
	stream  *flac.Stream
	scale   float32
	pending []int32
}

// OpenFLAC opens the FLAC file at path
func OpenFLAC(path string) (*FLAC, error) {
	stream, err := flac.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open flac %q: %w", path, err)
	}
	bits := stream.Info.BitsPerSample
	if bits == 0 || bits > 32 {
		stream.Close()
		return nil, fmt.Errorf("source: flac has %d bits per sample", bits)
	}
	return &FLAC{
		stream: stream,
		scale:  float32(uint64(1) << (bits - 1)),
	}, nil
}

func (f *FLAC) SampleRate() int { return int(f.stream.Info.SampleRate) }
func (f *FLAC) Channels() int   { return int(f.stream.Info.NChannels) }

func (f *FLAC) Read(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	for len(f.pending) == 0 {
		frame, err := f.stream.ParseNext()
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		if err != nil {
			return 0, fmt.Errorf("source: decode flac frame: %w", err)
		}
		if len(frame.Subframes) == 0 {
			continue
		}
		f.pending = frame.Subframes[0].Samples
	}

	n := firstChannel(dst, f.pending, 1, func(s int32) float32 { return float32(s) / f.scale })
	f.pending = f.pending[n:]
	return n, nil
}

func (f *FLAC) Close() error {
	return f.stream.Close()
}
