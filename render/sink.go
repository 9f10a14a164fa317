package render

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"callaudio/engine"
)

// Sink receives rendered PCM for one playback.
type Sink interface {
	WriteSample(pcm []int16) error
	Close() error
}

// SinkFactory opens a sink for one playback named name on stream.
type SinkFactory func(name string, stream engine.StreamType, sampleRate, channels int) (Sink, error)

// FuncSink hands every buffer to a callback, the way a platform output
// stream would consume it.
type FuncSink func(pcm []int16)

func (f FuncSink) WriteSample(pcm []int16) error {
	f(pcm)
	return nil
}

func (f FuncSink) Close() error { return nil }

// NullSink discards audio and counts samples.
type NullSink struct {
	written atomic.Int64
}

func (s *NullSink) WriteSample(pcm []int16) error {
	s.written.Add(int64(len(pcm)))
	return nil
}

func (s *NullSink) Close() error { return nil }

// Written returns the number of samples discarded so far.
func (s *NullSink) Written() int64 { return s.written.Load() }

// NullSinks returns a factory that opens NullSinks.
func NullSinks() SinkFactory {
	return func(string, engine.StreamType, int, int) (Sink, error) {
		return &NullSink{}, nil
	}
}

// WAVSink records PCM into a 16-bit wav file.
type WAVSink struct {
	mu       sync.Mutex
	f      *os.File
	enc    *wav.Encoder
	format *audio.Format
	closed bool
}

// NewWAVSink creates path and writes a wav header for the format.
func NewWAVSink(path string, sampleRate, channels int) (*WAVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav sink: %w", err)
	}
	return &WAVSink{
		f:      f,
		enc:    wav.NewEncoder(f, sampleRate, 16, channels, 1),
		format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
	}, nil
}

func (s *WAVSink) WriteSample(pcm []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}
	data := make([]int, len(pcm))
	for i, v := range pcm {
		data[i] = int(v)
	}
	return s.enc.Write(&audio.IntBuffer{Data: data, Format: s.format, SourceBitDepth: 16})
}

func (s *WAVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.enc.Close(); err != nil {
		_ = s.f.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return s.f.Close()
}

// WAVSinks returns a factory that records each playback to its own file in
// dir.
func WAVSinks(dir string) SinkFactory {
	var seq atomic.Int64
	return func(name string, stream engine.StreamType, sampleRate, channels int) (Sink, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("render dir: %w", err)
		}
		file := fmt.Sprintf("%04d-%s-%s.wav", seq.Add(1), stream, name)
		return NewWAVSink(filepath.Join(dir, file), sampleRate, channels)
	}
}
