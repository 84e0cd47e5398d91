package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// pacingSlack is how far ahead of the wall clock a realtime pump may run
// before it sleeps
const pacingSlack = 10 * time.Millisecond

type pumpOptions struct {
	realtime bool
}

// PumpOption configures Pump
type PumpOption func(*pumpOptions)

// WithRealtime paces delivery at the source's sample rate, as a driver would
func WithRealtime() PumpOption {
	return func(o *pumpOptions) { o.realtime = true }
}

// Pump reads src in blocks of blockSize samples and hands each to fn until
// the source is exhausted or ctx is done. The block passed to fn is reused.
// It returns nil at end of input.
func Pump(ctx context.Context, src Source, blockSize int, fn func([]float32), opts ...PumpOption) error {
	if blockSize <= 0 {
		return fmt.Errorf("source: block size must be positive, got %d", blockSize)
	}
	var o pumpOptions
	for _, opt := range opts {
		opt(&o)
	}

	block := make([]float32, blockSize)
	rate := float64(src.SampleRate())
	start := time.Now()
	var delivered int64

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := src.Read(block)
		if n > 0 {
			fn(block[:n])
			delivered += int64(n)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if o.realtime && rate > 0 {
			due := start.Add(time.Duration(float64(delivered) / rate * float64(time.Second)))
			if wait := time.Until(due); wait > pacingSlack {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
		}
	}
}
