// Package stream holds the audio-thread side of the pipeline: resampling,
// framing, quantum counting and the lock-free hand-off to worker goroutines.
//
// Everything here runs inside the audio driver callback. Nothing allocates
// after construction, nothing blocks and nothing takes a lock.
package stream

import "fmt"

// TargetSampleRate is the rate frames are produced at
const TargetSampleRate = 16000

// Resampler converts native-rate mono blocks to the target rate by linear
// interpolation.
//
// The fractional read position (phase) survives across blocks, and the last
// sample of every block is kept so the first output samples of the next block
// interpolate across the boundary instead of clicking.
type Resampler struct {
	nativeRate int
	targetRate int
	step       float64
	phase      float64
	last       float32
}

// NewResampler creates a resampler from nativeRate to targetRate
func NewResampler(nativeRate, targetRate int) (*Resampler, error) {
	if nativeRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive, got %d -> %d", nativeRate, targetRate)
	}

	return &Resampler{
		nativeRate: nativeRate,
		targetRate: targetRate,
		step:       float64(nativeRate) / float64(targetRate),
	}, nil
}

// Process resamples one driver block and hands every output sample to emit
func (r *Resampler) Process(block []float32, emit func(float32)) {
	n := len(block)
	if n == 0 {
		return
	}

loop:
	for r.phase < float64(n) {
		// phase is >= -1, so truncation only misbehaves in [-1, 0): handle it first.
		var index int
		if r.phase < 0 {
			index = -1
		} else {
			index = int(r.phase)
		}
		fraction := r.phase - float64(index)

		var s0, s1 float32
		switch {
		case index < 0:
			s0, s1 = r.last, block[0]
		case index >= n-1:
			// Upper neighbour lives in the next block.
			break loop
		default:
			s0, s1 = block[index], block[index+1]
		}

		emit(float32(float64(s0) + float64(s1-s0)*fraction))
		r.phase += r.step
	}

	r.phase -= float64(n)
	r.last = block[n-1]
}

// Reset forgets the carried phase and boundary sample
func (r *Resampler) Reset() {
	r.phase = 0
	r.last = 0
}

// Step returns nativeRate / targetRate
func (r *Resampler) Step() float64 {
	return r.step
}
