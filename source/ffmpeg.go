package source

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-chroma/logging"
)

// FFmpegConfig configures the ffmpeg pipe source
type FFmpegConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path" json:"ffmpeg_path"`   // Path to ffmpeg binary
	FFprobePath string `yaml:"ffprobe_path" json:"ffprobe_path"` // Path to ffprobe binary

	// SampleRate of the decoded output; 0 keeps the input's rate
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// ProbeTimeout bounds the ffprobe call
	ProbeTimeout time.Duration `yaml:"probe_timeout" json:"probe_timeout"`
}

// DefaultFFmpegConfig returns default ffmpeg configuration
func DefaultFFmpegConfig() FFmpegConfig {
	return FFmpegConfig{
		FFmpegPath:   "ffmpeg",  // Assume in PATH
		FFprobePath:  "ffprobe", // Assume in PATH
		ProbeTimeout: 10 * time.Second,
	}
}

// StreamInfo holds the properties ffprobe reports for the first audio stream
type StreamInfo struct {
	SampleRate int
	Channels   int
	Codec      string
	Duration   float64
}

// FFmpeg decodes any format ffmpeg understands into mono float32 on a pipe
type FFmpeg struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	reader *bufio.Reader
	info   StreamInfo
	rate   int
	buf    []byte
	logger logging.Logger
}

// OpenFFmpeg probes path and starts an ffmpeg process streaming it
func OpenFFmpeg(ctx context.Context, path string, cfg FFmpegConfig, logger logging.Logger) (*FFmpeg, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	logger = logger.WithFields(logging.Fields{
		"component": "ffmpeg_source",
		"path":      path,
	})

	info, err := Probe(ctx, path, cfg)
	if err != nil {
		logger.Error(err, "Failed to probe audio file")
		return nil, err
	}

	rate := cfg.SampleRate
	if rate <= 0 {
		rate = info.SampleRate
	}

	args := []string{
		"-v", "error",
		"-nostdin",
		"-i", path,
		"-map", "0:a:0",
		"-vn",         // No video
		"-f", "f32le", // Output raw float32 little-endian
		"-ac", "1",
		"-ar", strconv.Itoa(rate),
		"pipe:1",
	}

	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, cfg.FFmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("source: ffmpeg stdout: %w", err)
	}

	logger.Debug("Running FFmpeg command", logging.Fields{
		"command": fmt.Sprintf("%s %s", cfg.FFmpegPath, strings.Join(args, " ")),
	})

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("source: start ffmpeg: %w", err)
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate":  info.SampleRate,
		"input_channels":     info.Channels,
		"input_codec":        info.Codec,
		"input_duration":     info.Duration,
		"output_sample_rate": rate,
	})

	return &FFmpeg{
		cmd:    cmd,
		cancel: cancel,
		stdout: stdout,
		reader: bufio.NewReader(stdout),
		info:   info,
		rate:   rate,
		logger: logger,
	}, nil
}

// Info returns what ffprobe reported about the input
func (f *FFmpeg) Info() StreamInfo { return f.info }

func (f *FFmpeg) SampleRate() int { return f.rate }

// Channels reports 1: ffmpeg downmixes before the pipe
func (f *FFmpeg) Channels() int { return 1 }

func (f *FFmpeg) Read(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	need := len(dst) * 4
	if cap(f.buf) < need {
		f.buf = make([]byte, need)
	}
	buf := f.buf[:need]

	got, err := io.ReadFull(f.reader, buf)
	n := got / 4
	for i := range n {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}

	switch {
	case err == nil, errors.Is(err, io.ErrUnexpectedEOF) && n > 0:
		return n, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return n, io.EOF
	default:
		return n, fmt.Errorf("source: read ffmpeg output: %w", err)
	}
}

// Close stops ffmpeg and reaps the process
func (f *FFmpeg) Close() error {
	f.cancel()
	err := f.cmd.Wait()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Killed by our own cancel.
		return nil
	}
	return err
}

// Probe runs ffprobe on the first audio stream of path
func Probe(ctx context.Context, path string, cfg FFmpegConfig) (StreamInfo, error) {
	args := []string{
		"-v", "quiet", // Suppress verbose output
		"-print_format", "json", // JSON output
		"-show_streams",          // Show stream info
		"-select_streams", "a:0", // First audio stream only
		path,
	}

	if cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ProbeTimeout)
		defer cancel()
	}

	output, err := exec.CommandContext(ctx, cfg.FFprobePath, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return StreamInfo{}, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, string(exitErr.Stderr))
		}
		return StreamInfo{}, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbe(output)
}

func parseProbe(data []byte) (StreamInfo, error) {
	var probe struct {
		Streams []struct {
			CodecType  string `json:"codec_type"`
			CodecName  string `json:"codec_name"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
			Duration   string `json:"duration"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(data, &probe); err != nil {
		return StreamInfo{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return StreamInfo{}, errors.New("no audio streams found")
	}

	stream := probe.Streams[0]
	if stream.CodecType != "audio" {
		return StreamInfo{}, fmt.Errorf("stream is not audio type: %s", stream.CodecType)
	}

	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || sampleRate <= 0 {
		return StreamInfo{}, fmt.Errorf("invalid sample rate %q", stream.SampleRate)
	}
	if stream.Channels <= 0 {
		return StreamInfo{}, fmt.Errorf("invalid channel count: %d", stream.Channels)
	}

	duration, err := strconv.ParseFloat(stream.Duration, 64)
	if err != nil {
		duration = 0
	}

	return StreamInfo{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
	}, nil
}
