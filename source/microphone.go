package source

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/RyanBlaney/sonido-chroma/logging"
	"github.com/gen2brain/malgo"
)

// MicrophoneConfig selects the capture format
type MicrophoneConfig struct {
	// SampleRate requested from the device; 0 uses the device default
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels captured; only channel 0 reaches the callback
	Channels int `yaml:"channels" json:"channels"`

	// PeriodFrames is the driver buffer size; 0 lets the backend choose
	PeriodFrames int `yaml:"period_frames" json:"period_frames"`
}

// defaultPeriodFrames sizes the callback buffer when the backend picks the
// period. Longer callbacks are delivered in several blocks.
const defaultPeriodFrames = 4096

// DefaultMicrophoneConfig captures mono at the device's rate
func DefaultMicrophoneConfig() MicrophoneConfig {
	return MicrophoneConfig{Channels: 1}
}

// Microphone captures from the default input device. The callback passed to
// OpenMicrophone runs on the driver's audio thread and must not block; the
// slice it receives is reused after it returns.
type Microphone struct {
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	channels int
	scratch  []float32
	onBlock  func([]float32)

	closeOnce sync.Once
}

// OpenMicrophone initializes capture. Call Start to begin delivering blocks.
func OpenMicrophone(cfg MicrophoneConfig, onBlock func([]float32), logger logging.Logger) (*Microphone, error) {
	if onBlock == nil {
		return nil, errors.New("source: microphone needs a block callback")
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	logger = logger.WithFields(logging.Fields{"component": "microphone"})

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", logging.Fields{"message": message})
	})
	if err != nil {
		return nil, fmt.Errorf("source: init audio context: %w", err)
	}

	m := &Microphone{
		ctx:      ctx,
		channels: cfg.Channels,
		scratch:  make([]float32, max(cfg.PeriodFrames, defaultPeriodFrames)),
		onBlock:  onBlock,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.PeriodFrames)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: m.onData,
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("source: init capture device: %w", err)
	}
	m.device = device

	logger.Info("Microphone initialized", logging.Fields{
		"sample_rate": device.SampleRate(),
		"channels":    cfg.Channels,
	})
	return m, nil
}

func (m *Microphone) onData(_, input []byte, frameCount uint32) {
	if len(input) < 4 {
		return
	}
	samples := unsafe.Slice((*float32)(unsafe.Pointer(&input[0])), len(input)/4)
	samples = samples[:min(len(samples), int(frameCount)*m.channels)]

	for len(samples) >= m.channels {
		n := firstChannel(m.scratch, samples, m.channels, identity)
		m.onBlock(m.scratch[:n])
		samples = samples[n*m.channels:]
	}
}

func identity(s float32) float32 { return s }

// SampleRate is the rate the device actually runs at
func (m *Microphone) SampleRate() int { return int(m.device.SampleRate()) }

// Start begins capture
func (m *Microphone) Start() error {
	if err := m.device.Start(); err != nil {
		return fmt.Errorf("source: start capture device: %w", err)
	}
	return nil
}

// Close stops capture and releases the device. No callback runs after it
// returns.
func (m *Microphone) Close() error {
	var err error
	m.closeOnce.Do(func() {
		if m.device.IsStarted() {
			err = m.device.Stop()
		}
		m.device.Uninit()
		if uerr := m.ctx.Uninit(); uerr != nil && err == nil {
			err = uerr
		}
		m.ctx.Free()
	})
	return err
}
