package enginetest

import (
	"context"
	"sync"

	"callaudio/engine"
	"callaudio/render"
)

// Renderer records renders. Assets and repeating tones block until their
// context is cancelled; other tones return at once. A set AssetErr makes
// asset renders fail immediately.
type Renderer struct {
	AssetErr error

	mu       sync.Mutex
	assets   []string
	tones    []string
	streams  []engine.StreamType
	releases int
}

func (r *Renderer) PlayAsset(ctx context.Context, path string, stream engine.StreamType, loop bool) error {
	r.mu.Lock()
	r.assets = append(r.assets, path)
	r.streams = append(r.streams, stream)
	r.mu.Unlock()
	if r.AssetErr != nil {
		return r.AssetErr
	}
	<-ctx.Done()
	return nil
}

func (r *Renderer) PlayTone(ctx context.Context, tone render.Tone, stream engine.StreamType) error {
	r.mu.Lock()
	r.tones = append(r.tones, tone.Name)
	r.streams = append(r.streams, stream)
	r.mu.Unlock()
	if tone.Repeat {
		<-ctx.Done()
	}
	return nil
}

func (r *Renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releases++
}

// Assets returns the asset paths rendered so far.
func (r *Renderer) Assets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.assets...)
}

// Tones returns the names of the tones rendered so far.
func (r *Renderer) Tones() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tones...)
}

// Streams returns the stream of every render, in order.
func (r *Renderer) Streams() []engine.StreamType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.StreamType(nil), r.streams...)
}

// Releases returns how many times Release was called.
func (r *Renderer) Releases() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releases
}
