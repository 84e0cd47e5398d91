// Package detector runs the chroma detection pipeline.
//
// Audio arrives on a real-time thread through Process, which only resamples,
// frames and hands fixed-size copies to lock-free queues. A dispatch goroutine
// polls the queues: spectral quanta are analysed inline, neural frames are
// inferred on a bounded set of goroutines. A single apply goroutine owns the
// smoother, so observations never race. Results are published through
// Current and an optional listener.
package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RyanBlaney/sonido-chroma/algorithms/chroma"
	"github.com/RyanBlaney/sonido-chroma/estimator"
	"github.com/RyanBlaney/sonido-chroma/estimator/neural"
	spectralest "github.com/RyanBlaney/sonido-chroma/estimator/spectral"
	"github.com/RyanBlaney/sonido-chroma/logging"
	"github.com/RyanBlaney/sonido-chroma/observe"
	"github.com/RyanBlaney/sonido-chroma/stream"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by operations on a closed detector
var ErrClosed = errors.New("detector closed")

// pollInterval is how often dispatch drains the queues. The audio thread
// never signals it, so a frame waits at most this long.
const pollInterval = 2 * time.Millisecond

// Result is the smoothed detection state after one observation.
// Class and Weight describe the leading class even when Detected is false.
type Result struct {
	Class    int     `json:"class"`
	Weight   float64 `json:"weight"`
	Detected bool    `json:"detected"`
	Mode     Mode    `json:"mode"`
}

// Name returns the detected pitch class name, or "" without a detection
func (r Result) Name() string {
	if !r.Detected {
		return ""
	}
	return chroma.Name(r.Class)
}

func (r Result) String() string {
	if !r.Detected {
		return "-"
	}
	return fmt.Sprintf("%s (%.4f)", chroma.Name(r.Class), r.Weight)
}

// Listener receives every published result on the detector's apply goroutine.
// It must return quickly.
type Listener func(Result)

// Stats are cumulative audio-thread counters
type Stats struct {
	FramesQueued  int64
	FramesDropped int64
	QuantaQueued  int64
	QuantaDropped int64
}

type frameItem struct {
	gen   uint32
	frame stream.Frame
}

type quantumItem struct {
	gen   uint32
	block stream.Block
}

type result struct {
	gen uint32
	obs estimator.Observation
}

type control struct {
	gen       uint32
	mode      Mode
	threshold float64
	ack       chan struct{}
}

// activeEstimator is the estimator serving one generation
type activeEstimator struct {
	gen    uint32
	mode   Mode
	neural *neural.Estimator
}

// audioState is touched only by the goroutine calling Process
type audioState struct {
	state uint64
	gen   uint32
	mode  Mode

	resampler *stream.Resampler
	framer    *stream.Framer
	push      func(float32)
	metronome *stream.Metronome
	history   stream.History

	frame   frameItem
	quantum quantumItem
}

// Detector turns a stream of audio blocks into smoothed pitch classes
type Detector struct {
	cfg      Config
	logger   logging.Logger
	metrics  *observe.Metrics
	loader   neural.Loader
	cache    *neural.Cache
	listener Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
	modeMu sync.Mutex

	// state packs generation<<8 | mode code. A new generation tells the audio
	// thread to drop everything it has buffered.
	state  atomic.Uint64
	active atomic.Pointer[activeEstimator]

	audio  audioState
	frames *stream.Queue[frameItem]
	quanta *stream.Queue[quantumItem]

	framesQueued  atomic.Int64
	framesDropped atomic.Int64
	quantaQueued  atomic.Int64
	quantaDropped atomic.Int64
	reported      Stats

	spectral    *spectralest.Estimator
	spectralGen uint32

	smoother *chroma.RunningAverage
	results  chan result
	control  chan control
	current  atomic.Pointer[Result]
}

// Option configures a Detector
type Option func(*Detector)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// WithMetrics sets the metrics instruments
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Detector) {
		d.metrics = m
	}
}

// WithLoader sets the model loader used when no cache is given
func WithLoader(loader neural.Loader) Option {
	return func(d *Detector) {
		d.loader = loader
	}
}

// WithCache shares a model cache between detectors
func WithCache(cache *neural.Cache) Option {
	return func(d *Detector) {
		d.cache = cache
	}
}

// WithListener registers a callback for every published result
func WithListener(fn Listener) Option {
	return func(d *Detector) {
		d.listener = fn
	}
}

// New builds a detector, starts its goroutines and activates cfg.Mode. ctx
// bounds the initial model load only; the detector runs until Close.
func New(ctx context.Context, cfg Config, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector config: %w", err)
	}

	d := &Detector{cfg: cfg}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logging.GetGlobalLogger().WithFields(logging.Fields{"component": "detector"})
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	if d.cache == nil {
		loader := d.loader
		if loader == nil {
			loader = neural.NewDirLoader(cfg.ModelRoot)
		}
		d.cache = neural.NewCache(loader,
			neural.WithCacheLogger(d.logger),
			neural.WithLoadObserver(func(kind neural.Kind, elapsed time.Duration, err error) {
				d.metrics.RecordModelLoad(context.Background(), kind.String(), elapsed, err)
			}),
		)
	}

	var err error
	if d.smoother, err = chroma.NewRunningAverage(cfg.FilterSize, cfg.Threshold(cfg.Mode)); err != nil {
		return nil, err
	}
	if d.audio.resampler, err = stream.NewResampler(cfg.NativeRate, stream.TargetSampleRate); err != nil {
		return nil, err
	}
	d.spectral, err = spectralest.New(spectralest.Config{
		SampleRate: float64(cfg.NativeRate),
		FFTSize:    stream.QuantumSize,
		Smoothing:  cfg.AnalyserSmoothing,
	})
	if err != nil {
		return nil, err
	}

	d.audio.framer = stream.NewFramer(d.enqueueFrame)
	d.audio.push = d.audio.framer.PushFunc()
	d.audio.metronome = stream.NewMetronome(stream.QuantumSize)
	d.frames = stream.NewQueue[frameItem](cfg.QueueCapacity)
	d.quanta = stream.NewQueue[quantumItem](cfg.QueueCapacity)
	d.results = make(chan result, cfg.QueueCapacity)
	d.control = make(chan control)

	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.wg.Add(2)
	go d.dispatch()
	go d.apply()

	if err := d.SetMode(ctx, cfg.Mode); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Process feeds one block of native-rate mono samples. It is the audio-thread
// entry point: it never blocks, locks or allocates, and it must not be called
// concurrently with itself. Blocks are ignored after Close.
func (d *Detector) Process(block []float32) {
	if d.closed.Load() {
		return
	}

	a := &d.audio
	if s := d.state.Load(); s != a.state {
		d.switchAudio(s)
	}

	switch {
	case a.mode == ModeSpectral:
		a.history.Write(block)
		if a.metronome.Advance(len(block)) {
			a.history.Snapshot(&a.quantum.block)
			if d.quanta.TryPush(&a.quantum) {
				d.quantaQueued.Add(1)
			} else {
				d.quantaDropped.Add(1)
			}
		}
	case a.mode.Neural():
		if d.cfg.NativeRate == stream.TargetSampleRate {
			a.framer.Write(block)
		} else {
			a.resampler.Process(block, a.push)
		}
	}
}

func (d *Detector) switchAudio(s uint64) {
	a := &d.audio
	a.state = s
	a.gen = uint32(s >> 8)
	a.mode = modeFromCode(s & 0xff)
	a.frame.gen = a.gen
	a.quantum.gen = a.gen

	a.resampler.Reset()
	a.framer.Reset()
	a.metronome.Reset()
	a.history.Reset()
}

func (d *Detector) enqueueFrame(f *stream.Frame) {
	a := &d.audio
	a.frame.frame = *f
	if d.frames.TryPush(&a.frame) {
		d.framesQueued.Add(1)
	} else {
		d.framesDropped.Add(1)
	}
}

// SetMode switches estimators. A neural model is loaded (or taken from the
// cache) first; if that fails the error is returned and the current mode keeps
// running. On success all buffered audio and smoothing history is discarded
// and Current reports no detection until new observations arrive.
func (d *Detector) SetMode(ctx context.Context, mode Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	d.modeMu.Lock()
	defer d.modeMu.Unlock()

	if d.closed.Load() {
		return ErrClosed
	}

	next := &activeEstimator{mode: mode}
	if mode.Neural() {
		model, err := d.cache.Get(ctx, mode.Kind())
		if err != nil {
			d.logger.Error(err, "failed to activate mode", logging.Fields{"mode": mode.String()})
			return fmt.Errorf("activate %s mode: %w", mode, err)
		}
		if next.neural, err = neural.NewEstimator(model); err != nil {
			return fmt.Errorf("activate %s mode: %w", mode, err)
		}
	}

	next.gen = uint32(d.state.Load()>>8) + 1
	d.active.Store(next)
	d.state.Store(uint64(next.gen)<<8 | mode.code())

	ack := make(chan struct{})
	select {
	case d.control <- control{gen: next.gen, mode: mode, threshold: d.cfg.Threshold(mode), ack: ack}:
	case <-d.ctx.Done():
		return ErrClosed
	}
	select {
	case <-ack:
	case <-d.ctx.Done():
		return ErrClosed
	}

	d.metrics.RecordModeSwitch(context.Background(), mode.String())
	d.logger.Info("detection mode changed", logging.Fields{
		"mode":       mode.String(),
		"generation": next.gen,
	})
	return nil
}

// Mode returns the active mode
func (d *Detector) Mode() Mode {
	return modeFromCode(d.state.Load() & 0xff)
}

// Current returns the latest published result
func (d *Detector) Current() Result {
	if r := d.current.Load(); r != nil {
		return *r
	}
	return Result{Mode: d.Mode()}
}

// Stats returns the audio-thread queue counters
func (d *Detector) Stats() Stats {
	return Stats{
		FramesQueued:  d.framesQueued.Load(),
		FramesDropped: d.framesDropped.Load(),
		QuantaQueued:  d.quantaQueued.Load(),
		QuantaDropped: d.quantaDropped.Load(),
	}
}

// Close stops analysis and waits for every goroutine. Pending estimates are
// discarded and the listener is not called after Close returns.
func (d *Detector) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.cancel()
	d.wg.Wait()
	d.flushStats()
	return nil
}

func (d *Detector) dispatch() {
	defer d.wg.Done()

	var inflight errgroup.Group
	inflight.SetLimit(d.cfg.MaxInFlight)
	defer inflight.Wait()

	poll := time.NewTicker(pollInterval)
	defer poll.Stop()
	stats := time.NewTicker(time.Second)
	defer stats.Stop()

	var fi frameItem
	var qi quantumItem
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-poll.C:
			for d.ctx.Err() == nil && d.frames.TryPop(&fi) {
				d.infer(&inflight, fi)
			}
			for d.ctx.Err() == nil && d.quanta.TryPop(&qi) {
				d.analyse(&qi)
			}
		case <-stats.C:
			d.flushStats()
		}
	}
}

// activeFor returns the estimator serving gen, or nil once gen is stale
func (d *Detector) activeFor(gen uint32) *activeEstimator {
	a := d.active.Load()
	if a == nil || a.gen != gen {
		d.metrics.StaleResults.Add(context.Background(), 1)
		return nil
	}
	return a
}

func (d *Detector) infer(g *errgroup.Group, item frameItem) {
	a := d.activeFor(item.gen)
	if a == nil || a.neural == nil {
		return
	}

	g.Go(func() error {
		kind := a.neural.Kind().String()
		d.metrics.InferenceInFlight.Add(d.ctx, 1)
		defer d.metrics.InferenceInFlight.Add(d.ctx, -1)

		start := time.Now()
		pitch, err := a.neural.Estimate(d.ctx, &item.frame)
		d.metrics.RecordInference(d.ctx, kind, time.Since(start), err)
		if err != nil {
			if d.ctx.Err() == nil {
				d.logger.Error(err, "inference failed", logging.Fields{"model": kind})
			}
			return nil
		}

		if obs, ok := pitch.Observation(); ok {
			d.deliver(result{gen: item.gen, obs: obs})
		}
		return nil
	})
}

func (d *Detector) analyse(item *quantumItem) {
	a := d.activeFor(item.gen)
	if a == nil || a.mode != ModeSpectral {
		return
	}

	// The analyser's smoothing must not carry over from an earlier spectral run.
	if d.spectralGen != item.gen {
		d.spectral.Reset()
		d.spectralGen = item.gen
	}

	c, err := d.spectral.Estimate(&item.block)
	if err != nil {
		d.logger.Error(err, "spectral analysis failed")
		return
	}
	d.metrics.AnalysisPasses.Add(d.ctx, 1)

	obs, _ := c.Observation()
	d.deliver(result{gen: item.gen, obs: obs})
}

func (d *Detector) deliver(r result) {
	select {
	case d.results <- r:
	case <-d.ctx.Done():
	}
}

func (d *Detector) apply() {
	defer d.wg.Done()

	var gen uint32
	var mode Mode
	for {
		select {
		case <-d.ctx.Done():
			return

		case c := <-d.control:
			gen, mode = c.gen, c.mode
			d.smoother.Reset()
			d.smoother.SetThreshold(c.threshold)
			d.publish(Result{Mode: mode})
			close(c.ack)

		case r := <-d.results:
			if r.gen != gen {
				d.metrics.StaleResults.Add(d.ctx, 1)
				continue
			}
			d.smoother.Observe(r.obs.Class, r.obs.Weight)
			class, weight, ok := d.smoother.Best()
			d.publish(Result{Class: class, Weight: weight, Detected: ok, Mode: mode})
		}
	}
}

func (d *Detector) publish(r Result) {
	d.current.Store(&r)
	if r.Detected {
		d.metrics.RecordDetection(d.ctx, r.Mode.String(), chroma.Name(r.Class))
	}
	if d.listener != nil && d.ctx.Err() == nil {
		d.listener(r)
	}
}

func (d *Detector) flushStats() {
	ctx := context.Background()
	s := d.Stats()

	d.metrics.RecordQueued(ctx, "frame", s.FramesQueued-d.reported.FramesQueued)
	d.metrics.RecordDropped(ctx, "frame", s.FramesDropped-d.reported.FramesDropped)
	d.metrics.RecordQueued(ctx, "quantum", s.QuantaQueued-d.reported.QuantaQueued)
	d.metrics.RecordDropped(ctx, "quantum", s.QuantaDropped-d.reported.QuantaDropped)

	if dropped := s.FramesDropped - d.reported.FramesDropped + s.QuantaDropped - d.reported.QuantaDropped; dropped > 0 {
		d.logger.Warn("analysis fell behind, audio dropped", logging.Fields{
			"frames": s.FramesDropped - d.reported.FramesDropped,
			"quanta": s.QuantaDropped - d.reported.QuantaDropped,
		})
	}
	d.reported = s
}
