// Command chromatune shows the pitch class of live or recorded audio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RyanBlaney/sonido-chroma/config"
	"github.com/RyanBlaney/sonido-chroma/detector"
	"github.com/RyanBlaney/sonido-chroma/logging"
	"github.com/RyanBlaney/sonido-chroma/observe"
	tea "github.com/charmbracelet/bubbletea"
)

var version = "dev"

var (
	configPath = flag.String("config", "", "YAML config file")
	inputPath  = flag.String("input", "", "Audio file to analyse (WAV, MP3, FLAC, anything ffmpeg reads)")
	useMic     = flag.Bool("mic", false, "Capture from the default microphone")
	modeFlag   = flag.String("mode", "", "Detection mode: precise, lightweight or spectral")
	metrics    = flag.String("metrics", "", "Address serving Prometheus /metrics, e.g. :9464")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	plain      = flag.Bool("plain", false, "Print detections instead of the terminal view")
	logFile    = flag.String("log-file", "", "Log file used with the terminal view")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, closeLog, err := setupLogging(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(err, "chromatune failed")
		closeLog()
		os.Exit(1)
	}
}

// loadConfig merges the config file with command-line overrides
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	if *inputPath != "" {
		cfg.Input.Path = *inputPath
		cfg.Input.Microphone = false
	}
	if *useMic {
		cfg.Input.Microphone = true
		cfg.Input.Path = ""
	}
	if *modeFlag != "" {
		mode, err := detector.ParseMode(*modeFlag)
		if err != nil {
			return nil, err
		}
		cfg.Detector.Mode = mode
	}
	if *metrics != "" {
		cfg.Metrics.Listen = *metrics
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}

	if err := config.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setupLogging installs the global logger. The terminal view owns stdout, so
// with it logs go to the configured file or nowhere.
func setupLogging(cfg *config.Config) (logging.Logger, func(), error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}

	var logger *logging.DefaultLogger
	closeLog := func() {}
	switch {
	case cfg.Log.File != "":
		f, err := os.OpenFile(cfg.Log.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			return nil, nil, fmt.Errorf("error opening log file: %w", err)
		}
		logger = logging.NewWriterLogger(f, f, false)
		closeLog = func() { f.Close() }
	case *plain:
		logger = logging.NewDefaultLogger()
	default:
		logger = logging.NewWriterLogger(io.Discard, io.Discard, false)
	}

	logger.SetLevel(level)
	logging.SetGlobalLogger(logger)
	if cfg.Log.NoColor {
		logging.DisableColors()
	}
	return logger, closeLog, nil
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	m := observe.DefaultMetrics()
	if cfg.Metrics.Listen != "" {
		provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = provider.Shutdown(shutdownCtx)
		}()

		if m, err = observe.NewMetrics(provider.MeterProvider()); err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		srv := serveMetrics(cfg.Metrics.Listen, provider.Handler(), logger)
		defer srv.Close()
	}

	in, err := openInput(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer in.Close()

	dcfg := cfg.Detector
	dcfg.NativeRate = in.SampleRate()

	var opts []detector.Option
	opts = append(opts, detector.WithMetrics(m))
	if *plain {
		opts = append(opts, detector.WithListener(printer(os.Stdout)))
	}
	det, err := newDetector(ctx, dcfg, logger, opts...)
	if err != nil {
		return err
	}
	defer det.Close()

	logger.Info("Detector running", logging.Fields{
		"mode":        det.Mode(),
		"sample_rate": dcfg.NativeRate,
		"input":       in.Name(),
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- in.Run(runCtx, det.Process) }()

	if *plain {
		select {
		case err := <-done:
			if err != nil {
				return err
			}
			// Let queued frames finish before reporting.
			drain(ctx, det)
			fmt.Fprintln(os.Stdout, "final:", formatResult(det.Current()))
			return nil
		case <-ctx.Done():
			return nil
		}
	}

	model := NewModel(det, in.Name(), dcfg.NativeRate)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	go func() {
		err := <-done
		program.Send(InputDoneMsg{Err: err})
	}()

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// newDetector starts a detector in the configured mode, falling back to
// spectral analysis when the neural model cannot be loaded
func newDetector(ctx context.Context, cfg detector.Config, logger logging.Logger, opts ...detector.Option) (*detector.Detector, error) {
	det, err := detector.New(ctx, cfg, opts...)
	if err == nil || cfg.Mode == detector.ModeSpectral {
		return det, err
	}

	logger.Warn("Model unavailable, falling back to spectral mode", logging.Fields{
		"mode":  cfg.Mode,
		"error": err.Error(),
	})
	cfg.Mode = detector.ModeSpectral
	return detector.New(ctx, cfg, opts...)
}

func serveMetrics(addr string, h http.Handler, logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Serving metrics", logging.Fields{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "Metrics server stopped")
		}
	}()
	return srv
}

// drain waits until the published result settles
func drain(ctx context.Context, det *detector.Detector) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	last := det.Current()
	for range 20 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cur := det.Current()
		if cur == last {
			return
		}
		last = cur
	}
}

// printer writes each change of detection as one line
func printer(w io.Writer) detector.Listener {
	var last detector.Result
	return func(r detector.Result) {
		if r.Detected == last.Detected && r.Class == last.Class && r.Mode == last.Mode {
			return
		}
		last = r
		fmt.Fprintln(w, formatResult(r))
	}
}
