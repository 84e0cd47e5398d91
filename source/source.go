// Package source provides audio inputs for the detector: decoded files, an
// ffmpeg pipe, a synthetic tone and the system microphone.
//
// Pull sources implement Source and are driven by Pump. The microphone pushes
// blocks from its driver callback instead.
package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/RyanBlaney/sonido-chroma/logging"
)

// ErrUnsupportedFormat is returned by Open for files no decoder handles
var ErrUnsupportedFormat = errors.New("source: unsupported format")

// Source is a pull audio source. Read fills dst with channel 0 of the next
// samples in [-1, 1] and returns io.EOF once the input is exhausted.
type Source interface {
	SampleRate() int
	Channels() int
	Read(dst []float32) (int, error)
	Close() error
}

type openOptions struct {
	ffmpeg *FFmpegConfig
	logger logging.Logger
}

// Option configures Open
type Option func(*openOptions)

// WithFFmpeg lets Open fall back to an ffmpeg pipe for extensions without a
// native decoder
func WithFFmpeg(cfg FFmpegConfig) Option {
	return func(o *openOptions) { o.ffmpeg = &cfg }
}

// WithLogger sets the logger used by the opened source
func WithLogger(l logging.Logger) Option {
	return func(o *openOptions) { o.logger = l }
}

// Open picks a decoder from the file extension
func Open(ctx context.Context, path string, opts ...Option) (Source, error) {
	o := openOptions{
		logger: logging.GetGlobalLogger().WithFields(logging.Fields{"component": "source"}),
	}
	for _, opt := range opts {
		opt(&o)
	}

	ext := strings.ToLower(filepath.Ext(path))
	o.logger.Debug("Opening audio file", logging.Fields{
		"path":      path,
		"extension": ext,
	})

	switch ext {
	case ".wav", ".wave":
		return OpenWAV(path)
	case ".mp3":
		return OpenMP3(path)
	case ".flac":
		return OpenFLAC(path)
	}

	if o.ffmpeg == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return OpenFFmpeg(ctx, path, *o.ffmpeg, o.logger)
}

// firstChannel copies channel 0 of interleaved samples into dst, converting
// with conv. It returns the number of frames copied.
func firstChannel[T any](dst []float32, interleaved []T, channels int, conv func(T) float32) int {
	n := min(len(dst), len(interleaved)/channels)
	for i := range n {
		dst[i] = conv(interleaved[i*channels])
	}
	return n
}
