package stream

const (
	// FrameSize is the number of target-rate samples in one frame
	FrameSize = 1024

	// OverlapSize is the number of samples consecutive frames share
	OverlapSize = 256

	// HopSize is the number of new samples between two frames
	HopSize = FrameSize - OverlapSize
)

// Frame is one fixed-size analysis window at TargetSampleRate.
// It is an array, so assigning it copies it.
type Frame [FrameSize]float32

// Framer accumulates samples and emits a Frame every HopSize samples once the
// first FrameSize samples have arrived.
//
// After an emission the last OverlapSize samples move to the front and filling
// resumes behind them, so frame[n][HopSize:] == frame[n+1][:OverlapSize].
// The frame passed to emit is the framer's own buffer: it is only valid during
// the call and must be copied to be kept.
type Framer struct {
	buffer  Frame
	written int
	emit    func(*Frame)
	pushFn  func(float32)
}

// NewFramer creates a framer that calls emit for every completed frame
func NewFramer(emit func(*Frame)) *Framer {
	f := &Framer{emit: emit}
	// Bound once here so the audio thread never creates a method value.
	f.pushFn = f.Push
	return f
}

// Push appends one sample
func (f *Framer) Push(sample float32) {
	f.buffer[f.written] = sample
	f.written++

	if f.written >= FrameSize {
		f.flush()
	}
}

// PushFunc returns Push as a pre-bound function value, for use as the emit
// callback of a Resampler.
func (f *Framer) PushFunc() func(float32) {
	return f.pushFn
}

// Write appends a block of samples that is already at the target rate. A block
// may complete several frames; every one of them is emitted.
func (f *Framer) Write(block []float32) {
	for len(block) > 0 {
		n := copy(f.buffer[f.written:], block)
		f.written += n
		block = block[n:]

		if f.written >= FrameSize {
			f.flush()
		}
	}
}

func (f *Framer) flush() {
	f.emit(&f.buffer)
	copy(f.buffer[:OverlapSize], f.buffer[HopSize:])
	f.written = OverlapSize
}

// Buffered returns how many samples are waiting for the next frame
func (f *Framer) Buffered() int {
	return f.written
}

// Reset drops any partially filled frame
func (f *Framer) Reset() {
	f.buffer = Frame{}
	f.written = 0
}
