package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/RyanBlaney/sonido-chroma/config"
	"github.com/RyanBlaney/sonido-chroma/logging"
	"github.com/RyanBlaney/sonido-chroma/source"
)

// input unifies pull sources driven by Pump and the push-driven microphone
type input struct {
	name      string
	src       source.Source
	mic       *source.Microphone
	process   func([]float32)
	blockSize int
	realtime  bool
}

func openInput(ctx context.Context, cfg *config.Config, logger logging.Logger) (*input, error) {
	in := &input{blockSize: cfg.Input.BlockSize, realtime: cfg.Input.Realtime}

	if cfg.Input.UsesMicrophone() {
		micCfg := source.DefaultMicrophoneConfig()
		micCfg.PeriodFrames = cfg.Input.BlockSize
		mic, err := source.OpenMicrophone(micCfg, func(block []float32) { in.process(block) }, logger)
		if err != nil {
			return nil, err
		}
		in.name = "microphone"
		in.mic = mic
		return in, nil
	}

	src, err := source.Open(ctx, cfg.Input.Path,
		source.WithFFmpeg(source.DefaultFFmpegConfig()),
		source.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	in.name = filepath.Base(cfg.Input.Path)
	in.src = src
	return in, nil
}

func (in *input) Name() string { return in.name }

func (in *input) SampleRate() int {
	if in.mic != nil {
		return in.mic.SampleRate()
	}
	return in.src.SampleRate()
}

// Run delivers audio to process until the input ends or ctx is done. The
// microphone runs until ctx is done.
func (in *input) Run(ctx context.Context, process func([]float32)) error {
	in.process = process
	if in.mic != nil {
		if err := in.mic.Start(); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	}

	var opts []source.PumpOption
	if in.realtime {
		opts = append(opts, source.WithRealtime())
	}
	err := source.Pump(ctx, in.src, in.blockSize, process, opts...)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (in *input) Close() error {
	if in.mic != nil {
		return in.mic.Close()
	}
	return in.src.Close()
}
