package source

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always decodes to interleaved 16-bit little-endian stereo
const (
	mp3Channels    = 2
	mp3FrameBytes  = 2 * mp3Channels
	mp3ReadAhead   = 4096 * mp3FrameBytes
	int16Magnitude = 32768
)

// MP3 streams an MP3 file through go-mp3
type MP3 struct {
	file    *os.File
	decoder *mp3.Decoder
	reader  *bufio.Reader
	buf     []byte
}

// OpenMP3 opens the MP3 file at path
func OpenMP3(path string) (*MP3, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open mp3 %q: %w", path, err)
	}
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("source: create mp3 decoder: %w", err)
	}
	return &MP3{
		file:    f,
		decoder: dec,
		reader:  bufio.NewReaderSize(dec, mp3ReadAhead),
	}, nil
}

func (m *MP3) SampleRate() int { return m.decoder.SampleRate() }
func (m *MP3) Channels() int   { return mp3Channels }

func (m *MP3) Read(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	need := len(dst) * mp3FrameBytes
	if cap(m.buf) < need {
		m.buf = make([]byte, need)
	}
	buf := m.buf[:need]

	got, err := io.ReadFull(m.reader, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	frames := got / mp3FrameBytes
	for i := range frames {
		s := int16(binary.LittleEndian.Uint16(buf[i*mp3FrameBytes:]))
		dst[i] = float32(s) / int16Magnitude
	}

	if err != nil && !errors.Is(err, io.EOF) {
		return frames, fmt.Errorf("source: decode mp3: %w", err)
	}
	if frames == 0 {
		return 0, io.EOF
	}
	return frames, nil
}

func (m *MP3) Close() error {
	return m.file.Close()
}
