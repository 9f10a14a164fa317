// Package playback holds the two playable cues of a call: the ringtone
// (Ring) and call-progress or keypad tones (Tone). Each Play starts a
// detached render goroutine; Stop cancels it cooperatively and returns
// without waiting for the loop to notice.
package playback

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"callaudio/engine"
	"callaudio/render"
)

var (
	// ErrRingerSilent is returned when the ringer mode forbids any alert.
	ErrRingerSilent = errors.New("ringer is silent")
	// ErrAssetUnset is returned when audible ringing has no ringtone path.
	ErrAssetUnset = errors.New("ringtone path is not set")
	// ErrAlreadyPlaying is returned by Play on a cue that is playing.
	ErrAlreadyPlaying = errors.New("already playing")
	// ErrUnknownTone is returned for a tone kind missing from the catalogue.
	ErrUnknownTone = errors.New("unknown tone")
)

// Renderer is the rendering collaborator. Both calls block until the
// render ends or ctx is cancelled.
type Renderer interface {
	PlayAsset(ctx context.Context, path string, stream engine.StreamType, loop bool) error
	PlayTone(ctx context.Context, tone render.Tone, stream engine.StreamType) error
	Release()
}

// task is one detached render.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func start(log *logrus.Entry, run func(ctx context.Context) error, finished func(err error)) *task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		err := run(ctx)
		if err != nil {
			log.WithError(err).Warn("render failed")
		}
		if finished != nil {
			finished(err)
		}
	}()
	return t
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

// Ring is a ringtone with optional vibration.
type Ring struct {
	renderer Renderer
	vibrator engine.Vibrator
	log      *logrus.Entry

	path          string
	ringer        engine.RingerMode
	vibrateInRing bool

	mu        sync.Mutex
	playing   bool
	vibrating bool
	task      *task
}

// NewRing prepares a ringtone for path under the given ringer mode.
// vibrateInRing adds vibration to audible ringing.
func NewRing(renderer Renderer, vibrator engine.Vibrator, path string, ringer engine.RingerMode, vibrateInRing bool, log *logrus.Entry) *Ring {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Ring{
		renderer:      renderer,
		vibrator:      vibrator,
		log:           log.WithField("cue", "ringtone"),
		path:          path,
		ringer:        ringer,
		vibrateInRing: vibrateInRing,
	}
}

// ShouldPlaySound reports whether the ringer mode allows audible ringing.
func (r *Ring) ShouldPlaySound() bool {
	return r.ringer == engine.RingerNormal
}

// ShouldVibrate reports whether the ringer mode asks for vibration.
func (r *Ring) ShouldVibrate() bool {
	switch r.ringer {
	case engine.RingerVibrate:
		return true
	case engine.RingerNormal:
		return r.vibrateInRing
	default:
		return false
	}
}

// Play starts ringing. A silent ringer refuses; a vibrate-only ringer
// vibrates without sound.
func (r *Ring) Play() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.playing {
		return ErrAlreadyPlaying
	}
	if r.ringer == engine.RingerSilent {
		return ErrRingerSilent
	}
	sound := r.ShouldPlaySound()
	if sound && r.path == "" {
		return ErrAssetUnset
	}

	if sound {
		if r.renderer == nil {
			return ErrAssetUnset
		}
		path := r.path
		var cur *task
		cur = start(r.log, func(ctx context.Context) error {
			return r.renderer.PlayAsset(ctx, path, engine.StreamRing, true)
		}, func(err error) { r.renderEnded(cur, err) })
		r.task = cur
	} else {
		r.task = &task{cancel: func() {}, done: closedChan()}
	}

	if r.ShouldVibrate() && r.vibrator != nil {
		if err := r.vibrator.StartVibrate(); err != nil {
			r.log.WithError(err).Warn("vibrate start failed")
		} else {
			r.vibrating = true
		}
	}
	r.playing = true
	r.log.WithFields(logrus.Fields{"path": r.path, "ringer": r.ringer, "vibrate": r.vibrating}).Info("ringtone started")
	return nil
}

// renderEnded handles a render loop of cur that exited without Stop. The
// ring keeps going as vibration only when vibrating; otherwise it is over.
func (r *Ring) renderEnded(cur *task, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.task != cur || !r.playing || r.vibrating {
		return
	}
	r.playing = false
	r.log.WithError(err).Warn("ringtone ended without stop")
}

// Stop stops ringing. Stopping a stopped ringtone succeeds.
func (r *Ring) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.playing {
		return nil
	}
	r.playing = false
	r.task.cancel()
	if r.vibrating {
		r.vibrating = false
		if err := r.vibrator.CancelVibrate(); err != nil {
			r.log.WithError(err).Warn("vibrate cancel failed")
		}
	}
	r.log.Info("ringtone stopped")
	return nil
}

// IsPlaying reports whether the ring is sounding or vibrating.
func (r *Ring) IsPlaying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}

// Done is closed when the render loop of the last Play has exited.
func (r *Ring) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.task == nil {
		return closedChan()
	}
	return r.task.done
}

// Tone is a call-progress or DTMF tone.
type Tone struct {
	renderer Renderer
	kind     render.ToneKind
	tone     render.Tone
	stream   engine.StreamType
	log      *logrus.Entry

	mu      sync.Mutex
	playing bool
	task    *task
}

// NewTone prepares the catalogue tone kind.
func NewTone(renderer Renderer, kind render.ToneKind, log *logrus.Entry) (*Tone, error) {
	tone, ok := render.Lookup(kind)
	if !ok {
		return nil, ErrUnknownTone
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	stream := engine.StreamVoiceCall
	if kind.IsDTMF() {
		stream = engine.StreamDTMF
	}
	return &Tone{
		renderer: renderer,
		kind:     kind,
		tone:     tone,
		stream:   stream,
		log:      log.WithField("cue", tone.Name),
	}, nil
}

// Kind returns the tone kind.
func (t *Tone) Kind() render.ToneKind { return t.kind }

// Play starts the tone. Non-repeating tones stop by themselves.
func (t *Tone) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing {
		return ErrAlreadyPlaying
	}
	if t.renderer == nil {
		return ErrUnknownTone
	}
	tone, stream := t.tone, t.stream
	var cur *task
	cur = start(t.log, func(ctx context.Context) error {
		return t.renderer.PlayTone(ctx, tone, stream)
	}, func(error) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.task == cur {
			t.playing = false
		}
	})
	t.task = cur
	t.playing = true
	t.log.Debug("tone started")
	return nil
}

// Stop stops the tone. Stopping a stopped tone succeeds.
func (t *Tone) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.playing {
		return nil
	}
	t.playing = false
	t.task.cancel()
	t.log.Debug("tone stopped")
	return nil
}

// IsPlaying reports whether the tone is still sounding.
func (t *Tone) IsPlaying() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

// Done is closed when the render loop of the last Play has exited.
func (t *Tone) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.task == nil {
		return closedChan()
	}
	return t.task.done
}
