package render

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callaudio/engine"
)

type captureSinks struct {
	mu    sync.Mutex
	sinks []*NullSink
}

func (c *captureSinks) factory(string, engine.StreamType, int, int) (Sink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &NullSink{}
	c.sinks = append(c.sinks, s)
	return s, nil
}

func (c *captureSinks) written() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, s := range c.sinks {
		n += s.Written()
	}
	return n
}

func unpaced(sinks SinkFactory) Options {
	return Options{Sinks: sinks, FrameDuration: 20 * time.Millisecond, SampleRate: 8000, ToneAmplitude: 1000}
}

func TestLookupDTMF(t *testing.T) {
	k, ok := DTMFKind('5')
	require.True(t, ok)
	tone, ok := Lookup(k)
	require.True(t, ok)
	assert.Equal(t, "dtmf-5", tone.Name)
	assert.Equal(t, []Hz{770, 1336}, tone.Segments[0].Freq)

	k, ok = DTMFKind('#')
	require.True(t, ok)
	tone, _ = Lookup(k)
	assert.Equal(t, []Hz{941, 1477}, tone.Segments[0].Freq)

	_, ok = DTMFKind('x')
	assert.False(t, ok)
}

func TestToneSourceLength(t *testing.T) {
	tone := Tone{Name: "t", Segments: []Segment{{Freq: []Hz{425}, Dur: 100 * time.Millisecond, Silence: 50 * time.Millisecond}}}
	src, err := NewToneSource(tone, 8000, 1000)
	require.NoError(t, err)

	total := 0
	buf := make([]int16, 256)
	for {
		n, err := src.Read(buf)
		total += n
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, 1200, total)
}

func TestToneSourceSilenceIsZero(t *testing.T) {
	tone := Tone{Name: "t", Segments: []Segment{{Freq: []Hz{425}, Dur: 10 * time.Millisecond, Silence: 10 * time.Millisecond}}}
	src, err := NewToneSource(tone, 8000, 1000)
	require.NoError(t, err)
	buf := make([]int16, 160)
	n, err := src.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 160, n)
	for _, v := range buf[80:] {
		assert.Zero(t, v)
	}
}

func TestEmptyToneRejected(t *testing.T) {
	_, err := NewToneSource(Tone{Name: "empty", Repeat: true}, 8000, 1000)
	assert.ErrorIs(t, err, ErrEmptyTone)
}

func TestClipLooping(t *testing.T) {
	clip := NewClip(8000, 1, []int16{1, 2, 3})
	buf := make([]int16, 7)
	n, err := clip.Looping().Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, []int16{1, 2, 3, 1, 2, 3, 1}, buf)

	n, _ = clip.Read(buf)
	assert.Equal(t, 3, n)
	_, err = clip.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPlayToneFinishes(t *testing.T) {
	sinks := &captureSinks{}
	r := New(unpaced(sinks.factory), nil)
	tone, _ := Lookup(ToneDTMF1)

	require.NoError(t, r.PlayTone(context.Background(), tone, engine.StreamDTMF))
	assert.Equal(t, int64(1200), sinks.written())
	assert.Zero(t, r.Active())
}

func TestReleaseStopsLoopingTone(t *testing.T) {
	r := New(Options{Sinks: NullSinks(), FrameDuration: 5 * time.Millisecond, Paced: true, SampleRate: 8000}, nil)
	tone, _ := Lookup(ToneRingback)

	done := make(chan error, 1)
	go func() { done <- r.PlayTone(context.Background(), tone, engine.StreamVoiceCall) }()

	require.Eventually(t, func() bool { return r.Active() == 1 }, time.Second, 5*time.Millisecond)
	r.Release()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("render loop did not observe release")
	}
	r.Wait()
}

func TestWAVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ring.wav")

	sink, err := NewWAVSink(path, 8000, 1)
	require.NoError(t, err)
	samples := make([]int16, 800)
	for i := range samples {
		samples[i] = int16(i * 10)
	}
	require.NoError(t, sink.WriteSample(samples))
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close(), "close is idempotent")

	clip, err := OpenAsset(path)
	require.NoError(t, err)
	assert.Equal(t, 8000, clip.SampleRate())
	assert.Equal(t, 1, clip.Channels())
	assert.Equal(t, 800, clip.Len())
}

func TestPlayAssetRecordsToWAV(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tone.wav")
	sink, err := NewWAVSink(src, 8000, 1)
	require.NoError(t, err)
	require.NoError(t, sink.WriteSample(make([]int16, 400)))
	require.NoError(t, sink.Close())

	out := filepath.Join(dir, "out")
	r := New(unpaced(WAVSinks(out)), nil)
	require.NoError(t, r.PlayAsset(context.Background(), src, engine.StreamRing, false))

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0001-ring-tone.wav", entries[0].Name())
}

func TestOpenAssetErrors(t *testing.T) {
	_, err := OpenAsset(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "ring.flac")
	require.NoError(t, os.WriteFile(path, []byte("fLaC"), 0o644))
	_, err = OpenAsset(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	path = filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a wav file at all"), 0o644))
	_, err = OpenAsset(path)
	assert.Error(t, err)
}
