// Package render turns ringtone assets and synthesized tones into PCM and
// pushes it, buffer by buffer, into an output sink. A render runs until its
// context is cancelled or the source ends; cancellation is checked before
// every buffer.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"callaudio/engine"
)

// Source yields interleaved 16-bit PCM.
type Source interface {
	SampleRate() int
	Channels() int
	// Read fills dst and returns the number of samples written. It returns
	// io.EOF once the source is exhausted.
	Read(dst []int16) (int, error)
}

// Options configures a Renderer.
type Options struct {
	Sinks SinkFactory
	// FrameDuration is the length of one buffer.
	FrameDuration time.Duration
	// Paced waits one frame between buffers, as a real output device would.
	Paced bool
	// SampleRate is used for synthesized tones.
	SampleRate    int
	ToneAmplitude int16
}

// DefaultOptions renders 20ms buffers at 8kHz into NullSinks.
func DefaultOptions() Options {
	return Options{
		Sinks:         NullSinks(),
		FrameDuration: 20 * time.Millisecond,
		Paced:         true,
		SampleRate:    8000,
		ToneAmplitude: 8000,
	}
}

// Renderer runs render loops. It is safe for concurrent use.
type Renderer struct {
	opts Options
	log  *logrus.Entry

	mu      sync.Mutex
	seq     uint64
	running map[uint64]context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Renderer. Zero option fields take their defaults.
func New(opts Options, log *logrus.Entry) *Renderer {
	def := DefaultOptions()
	if opts.Sinks == nil {
		opts.Sinks = def.Sinks
	}
	if opts.FrameDuration <= 0 {
		opts.FrameDuration = def.FrameDuration
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = def.SampleRate
	}
	if opts.ToneAmplitude == 0 {
		opts.ToneAmplitude = def.ToneAmplitude
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Renderer{
		opts:    opts,
		log:     log,
		running: make(map[uint64]context.CancelFunc),
	}
}

// PlayAsset decodes path and renders it on stream. With loop set the clip
// repeats until ctx is cancelled. PlayAsset blocks until the render ends.
func (r *Renderer) PlayAsset(ctx context.Context, path string, stream engine.StreamType, loop bool) error {
	clip, err := OpenAsset(path)
	if err != nil {
		return err
	}
	var src Source = clip
	if loop {
		src = clip.Looping()
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return r.render(ctx, name, src, stream)
}

// PlayTone synthesizes tone and renders it on stream, blocking until the
// tone ends or ctx is cancelled.
func (r *Renderer) PlayTone(ctx context.Context, tone Tone, stream engine.StreamType) error {
	src, err := NewToneSource(tone, r.opts.SampleRate, r.opts.ToneAmplitude)
	if err != nil {
		return fmt.Errorf("tone %s: %w", tone.Name, err)
	}
	return r.render(ctx, tone.Name, src, stream)
}

// Release cancels every render in flight. Loops exit at their next buffer.
func (r *Renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, cancel := range r.running {
		cancel()
		delete(r.running, id)
	}
}

// Wait blocks until every render loop has returned.
func (r *Renderer) Wait() {
	r.wg.Wait()
}

// Active returns the number of renders in flight.
func (r *Renderer) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

func (r *Renderer) register(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.seq++
	id := r.seq
	r.running[id] = cancel
	r.mu.Unlock()
	r.wg.Add(1)
	return ctx, func() {
		r.mu.Lock()
		delete(r.running, id)
		r.mu.Unlock()
		cancel()
		r.wg.Done()
	}
}

func (r *Renderer) render(ctx context.Context, name string, src Source, stream engine.StreamType) (err error) {
	ctx, done := r.register(ctx)
	defer done()

	sink, err := r.opts.Sinks(name, stream, src.SampleRate(), src.Channels())
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	log := r.log.WithFields(logrus.Fields{"render": name, "stream": stream})
	log.Debug("render started")

	frame := src.SampleRate() * src.Channels() * int(r.opts.FrameDuration/time.Millisecond) / 1000
	if frame <= 0 {
		frame = 160
	}
	buf := make([]int16, frame)

	var tick <-chan time.Time
	if r.opts.Paced {
		ticker := time.NewTicker(r.opts.FrameDuration)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if ctx.Err() != nil {
			log.Debug("render stopped")
			return nil
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if werr := sink.WriteSample(buf[:n]); werr != nil {
				return fmt.Errorf("write sample: %w", werr)
			}
		}
		if errors.Is(rerr, io.EOF) {
			log.Debug("render finished")
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("read source: %w", rerr)
		}
		if tick != nil {
			select {
			case <-ctx.Done():
			case <-tick:
			}
		}
	}
}
