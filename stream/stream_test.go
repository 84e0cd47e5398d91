package stream

import (
	"math"
	"runtime"
	"sync"
	"testing"
)

func collect(r *Resampler, blocks ...[]float32) []float32 {
	var out []float32
	emit := func(s float32) { out = append(out, s) }
	for _, b := range blocks {
		r.Process(b, emit)
	}
	return out
}

func sineBlock(n int, freq, rate float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / rate))
	}
	return out
}

func split(x []float32, size int) [][]float32 {
	var blocks [][]float32
	for len(x) > 0 {
		n := min(size, len(x))
		blocks = append(blocks, x[:n])
		x = x[n:]
	}
	return blocks
}

func TestNewResamplerValidation(t *testing.T) {
	if _, err := NewResampler(0, 16000); err == nil {
		t.Error("expected error for zero native rate")
	}
	r, err := NewResampler(48000, 16000)
	if err != nil {
		t.Fatalf("NewResampler: %v", err)
	}
	if r.Step() != 3 {
		t.Errorf("expected step 3, got %g", r.Step())
	}
}

func TestResamplerDeterministic(t *testing.T) {
	input := sineBlock(44100, 440, 44100)

	run := func() []float32 {
		r, _ := NewResampler(44100, TargetSampleRate)
		return collect(r, split(input, 128)...)
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("run lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			t.Fatalf("sample %d differs: %g vs %g", i, a[i], b[i])
		}
	}
}

func TestResamplerBlockBoundariesAreSeamless(t *testing.T) {
	input := sineBlock(4800, 1000, 48000)

	whole, _ := NewResampler(48000, TargetSampleRate)
	want := collect(whole, input)

	chunked, _ := NewResampler(48000, TargetSampleRate)
	got := collect(chunked, split(input, 100)...)

	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: expected %g, got %g", i, want[i], got[i])
		}
	}
}

func TestResamplerInterpolatesRamp(t *testing.T) {
	// A ramp survives linear interpolation exactly: output[i] == i * step.
	ramp := make([]float32, 441)
	for i := range ramp {
		ramp[i] = float32(i)
	}

	r, _ := NewResampler(44100, 16000)
	out := collect(r, split(ramp, 64)...)

	if len(out) == 0 {
		t.Fatal("resampler produced no output")
	}
	for i, s := range out {
		want := float64(i) * r.Step()
		if math.Abs(float64(s)-want) > 1e-3 {
			t.Fatalf("sample %d: expected %g, got %g", i, want, s)
		}
	}
}

func TestResamplerUpsampling(t *testing.T) {
	r, _ := NewResampler(8000, 16000)
	out := collect(r, []float32{0, 1, 2, 3}, []float32{4, 5})

	want := []float32{0, 0.5, 1, 1.5, 2, 2.5, 3, 3.5, 4, 4.5}
	if len(out) != len(want) {
		t.Fatalf("expected %d samples, got %d: %v", len(want), len(out), out)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d: expected %g, got %g", i, want[i], out[i])
		}
	}
}

func TestFramerOverlap(t *testing.T) {
	var frames []Frame
	f := NewFramer(func(fr *Frame) { frames = append(frames, *fr) })

	const total = 10000
	ramp := make([]float32, total)
	for i := range ramp {
		ramp[i] = float32(i)
	}
	for _, b := range split(ramp, 333) {
		f.Write(b)
	}

	wantFrames := 1 + (total-FrameSize)/HopSize
	if len(frames) != wantFrames {
		t.Fatalf("expected %d frames, got %d", wantFrames, len(frames))
	}

	for n, fr := range frames {
		if fr[0] != float32(n*HopSize) {
			t.Errorf("frame %d starts at %g, want %d", n, fr[0], n*HopSize)
		}
		if n+1 < len(frames) {
			next := frames[n+1]
			for i := range OverlapSize {
				if fr[HopSize+i] != next[i] {
					t.Fatalf("frame %d/%d overlap mismatch at %d", n, n+1, i)
				}
			}
		}
	}

	if want := OverlapSize + (total-FrameSize)%HopSize; f.Buffered() != want {
		t.Errorf("expected %d buffered samples, got %d", want, f.Buffered())
	}
}

func TestFramerEmitsEveryFrameOfALargeBlock(t *testing.T) {
	count := 0
	f := NewFramer(func(*Frame) { count++ })
	f.Write(make([]float32, 5000))

	if count != 6 {
		t.Errorf("expected 6 frames from a 5000 sample block, got %d", count)
	}
}

func TestFramerPushMatchesWrite(t *testing.T) {
	input := sineBlock(3000, 300, 16000)

	var viaWrite, viaPush []Frame
	w := NewFramer(func(fr *Frame) { viaWrite = append(viaWrite, *fr) })
	p := NewFramer(func(fr *Frame) { viaPush = append(viaPush, *fr) })

	w.Write(input)
	push := p.PushFunc()
	for _, s := range input {
		push(s)
	}

	if len(viaWrite) != len(viaPush) {
		t.Fatalf("frame counts differ: %d vs %d", len(viaWrite), len(viaPush))
	}
	for i := range viaWrite {
		if viaWrite[i] != viaPush[i] {
			t.Errorf("frame %d differs", i)
		}
	}

	p.Reset()
	if p.Buffered() != 0 {
		t.Errorf("expected empty framer after reset, got %d", p.Buffered())
	}
}

func TestResamplerIntoFramerFrameCount(t *testing.T) {
	frames := 0
	f := NewFramer(func(*Frame) { frames++ })
	r, _ := NewResampler(48000, TargetSampleRate)

	// One second at 48 kHz is 16000 target samples.
	for _, b := range split(sineBlock(48000, 440, 48000), 128) {
		r.Process(b, f.PushFunc())
	}

	if want := 1 + (16000-FrameSize)/HopSize; frames != want {
		t.Errorf("expected %d frames, got %d", want, frames)
	}
}

func TestAudioPathDoesNotAllocate(t *testing.T) {
	block := sineBlock(128, 440, 44100)

	r, err := NewResampler(44100, TargetSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	emitted := 0
	emit := func(float32) { emitted++ }
	if n := testing.AllocsPerRun(1000, func() { r.Process(block, emit) }); n != 0 {
		t.Errorf("Resampler.Process: expected no allocations, got %g", n)
	}
	if emitted == 0 {
		t.Error("expected resampled output")
	}

	frames := 0
	f := NewFramer(func(*Frame) { frames++ })
	if n := testing.AllocsPerRun(1000, func() { f.Write(block) }); n != 0 {
		t.Errorf("Framer.Write: expected no allocations, got %g", n)
	}
	if frames == 0 {
		t.Error("expected frames to be emitted")
	}

	resampled := NewFramer(func(*Frame) { frames++ })
	push := resampled.PushFunc()
	if n := testing.AllocsPerRun(1000, func() { r.Process(block, push) }); n != 0 {
		t.Errorf("Resampler into Framer: expected no allocations, got %g", n)
	}

	q := NewQueue[Frame](4)
	var in, out Frame
	if n := testing.AllocsPerRun(1000, func() {
		q.TryPush(&in)
		q.TryPop(&out)
	}); n != 0 {
		t.Errorf("Queue: expected no allocations, got %g", n)
	}
	full := NewQueue[Frame](1)
	full.TryPush(&in)
	if n := testing.AllocsPerRun(1000, func() { full.TryPush(&in) }); n != 0 {
		t.Errorf("Queue.TryPush on a full queue: expected no allocations, got %g", n)
	}
}

func TestMetronomeHardReset(t *testing.T) {
	m := NewMetronome(QuantumSize)

	ticks := 0
	for range 64 {
		if m.Advance(128) {
			ticks++
		}
	}
	if ticks != 2 {
		t.Errorf("expected 2 ticks for 64 blocks of 128, got %d", ticks)
	}

	m.Reset()
	var at []int
	for i := 1; i <= 10; i++ {
		if m.Advance(1000) {
			at = append(at, i)
		}
	}
	// 5000 >= 4096 fires on block 5, the 904 overshoot is dropped.
	if len(at) != 2 || at[0] != 5 || at[1] != 10 {
		t.Errorf("expected ticks on blocks 5 and 10, got %v", at)
	}
}

func TestHistorySnapshotOrder(t *testing.T) {
	var h History
	ramp := make([]float32, QuantumSize+500)
	for i := range ramp {
		ramp[i] = float32(i)
	}
	for _, b := range split(ramp, 300) {
		h.Write(b)
	}

	var snap Block
	h.Snapshot(&snap)
	for i := range snap {
		if want := float32(500 + i); snap[i] != want {
			t.Fatalf("snapshot[%d] = %g, want %g", i, snap[i], want)
		}
	}

	h.Write(make([]float32, 2*QuantumSize))
	h.Snapshot(&snap)
	for i := range snap {
		if snap[i] != 0 {
			t.Fatalf("expected zeros after oversized write, got %g at %d", snap[i], i)
		}
	}
}

func TestQueueFIFOAndCapacity(t *testing.T) {
	q := NewQueue[int](3)
	if q.Cap() != 4 {
		t.Fatalf("expected capacity rounded to 4, got %d", q.Cap())
	}

	for i := range 4 {
		v := i
		if !q.TryPush(&v) {
			t.Fatalf("push %d rejected", i)
		}
	}
	extra := 99
	if q.TryPush(&extra) {
		t.Error("expected push into full queue to fail")
	}

	if q.Len() != 4 {
		t.Errorf("expected 4 queued items, got %d", q.Len())
	}

	for i := range 4 {
		var v int
		if !q.TryPop(&v) || v != i {
			t.Fatalf("pop %d: got %d", i, v)
		}
	}
	var v int
	if q.TryPop(&v) {
		t.Error("expected empty queue")
	}
}

func TestQueueConcurrentProducerConsumer(t *testing.T) {
	q := NewQueue[Frame](8)
	const n = 2000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var fr Frame
		for i := 0; i < n; {
			fr[0] = float32(i)
			fr[FrameSize-1] = float32(i)
			if q.TryPush(&fr) {
				i++
			}
		}
	}()

	var got Frame
	for want := 0; want < n; {
		if !q.TryPop(&got) {
			runtime.Gosched()
			continue
		}
		if got[0] != float32(want) || got[FrameSize-1] != float32(want) {
			t.Fatalf("expected frame %d, got %g/%g", want, got[0], got[FrameSize-1])
		}
		want++
	}
	wg.Wait()
}
