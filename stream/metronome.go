package stream

// QuantumSize is the number of native samples between two spectral analyses
const QuantumSize = 4096

// Block is the most recent QuantumSize native-rate samples, oldest first
type Block [QuantumSize]float32

// Metronome counts native samples and ticks once the count reaches its target.
// The count then restarts from zero: a block that overshoots the target does
// not carry the remainder into the next quantum.
type Metronome struct {
	target int
	count  int
}

// NewMetronome creates a metronome ticking every target samples
func NewMetronome(target int) *Metronome {
	if target <= 0 {
		target = QuantumSize
	}
	return &Metronome{target: target}
}

// Advance adds n samples and reports whether a quantum boundary was crossed
func (m *Metronome) Advance(n int) bool {
	m.count += n
	if m.count >= m.target {
		m.count = 0
		return true
	}
	return false
}

// Reset restarts the count
func (m *Metronome) Reset() {
	m.count = 0
}

// History keeps the last len(Block) native samples in a ring so the audio
// thread can copy out a snapshot on every quantum.
type History struct {
	ring Block
	pos  int
}

// Write appends a block of samples, overwriting the oldest ones
func (h *History) Write(block []float32) {
	// Only the tail can survive when the block is longer than the ring.
	if len(block) > QuantumSize {
		block = block[len(block)-QuantumSize:]
	}
	for len(block) > 0 {
		n := copy(h.ring[h.pos:], block)
		h.pos = (h.pos + n) % QuantumSize
		block = block[n:]
	}
}

// Snapshot copies the ring into dst in chronological order
func (h *History) Snapshot(dst *Block) {
	n := copy(dst[:], h.ring[h.pos:])
	copy(dst[n:], h.ring[:h.pos])
}

// Reset zeroes the history
func (h *History) Reset() {
	h.ring = Block{}
	h.pos = 0
}
