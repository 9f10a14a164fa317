package orchestrator

import (
	"errors"
	"fmt"

	"callaudio/call"
	"callaudio/playback"
	"callaudio/render"
)

// PlayRingtone starts the configured ringtone for the single incoming call.
func (o *Orchestrator) PlayRingtone() error {
	return o.PlayRingtoneFrom("")
}

// PlayRingtoneFrom starts ringing with path, or the configured ringtone
// when path is empty. It refuses unless exactly one call is incoming, none
// is alerting and no ringtone is playing.
func (o *Orchestrator) PlayRingtoneFrom(path string) error {
	if o.tracker.GetCallCount(call.StateIncoming) != 1 || o.tracker.GetCallCount(call.StateAlerting) != 0 {
		o.metrics.failure("ringtone")
		return fmt.Errorf("%w: ringtone needs exactly one incoming call", ErrInvalidOperation)
	}
	if path == "" {
		path = o.cfg.RingtonePath
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ring != nil && o.ring.IsPlaying() {
		return fmt.Errorf("%w: ringtone already playing", ErrInvalidOperation)
	}
	ring := playback.NewRing(o.deps.Renderer, o.deps.Vibrator, path, o.deps.Engine.RingerMode(),
		o.cfg.VibrateWhenRinging, o.log)
	if err := ring.Play(); err != nil {
		o.metrics.failure("ringtone")
		if errors.Is(err, playback.ErrAssetUnset) {
			return fmt.Errorf("%w: %w", ErrLocalResourceMissing, err)
		}
		return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}
	o.ring = ring
	o.metrics.ringtone()
	return nil
}

// StopRingtone stops the current ringtone. Stopping when nothing rings
// succeeds.
func (o *Orchestrator) StopRingtone() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ring == nil {
		return nil
	}
	return o.ring.Stop()
}

// IsCurrentRinging reports whether the ringtone is playing.
func (o *Orchestrator) IsCurrentRinging() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ring != nil && o.ring.IsPlaying()
}

// SetLocalRingbackNeeded records whether the network expects ringback to
// be generated locally.
func (o *Orchestrator) SetLocalRingbackNeeded(needed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.localRingback = needed
}

// PlayRingback starts the ringback tone if local ringback is needed.
func (o *Orchestrator) PlayRingback() error {
	o.mu.Lock()
	needed := o.localRingback
	o.mu.Unlock()
	if !needed {
		o.log.Debug("ringback provided by network")
		return nil
	}
	return o.PlayCallTone(render.ToneRingback)
}

// StopRingback stops the ringback tone, leaving other tones alone.
func (o *Orchestrator) StopRingback() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tone == nil || o.tone.Kind() != render.ToneRingback {
		return nil
	}
	return o.tone.Stop()
}

// PlayWaitingTone starts the call-waiting tone.
func (o *Orchestrator) PlayWaitingTone() error {
	return o.PlayCallTone(render.ToneCallWaiting)
}

// PlayCallTone replaces the current tone with kind.
func (o *Orchestrator) PlayCallTone(kind render.ToneKind) error {
	tone, err := playback.NewTone(o.deps.Renderer, kind, o.log)
	if err != nil {
		o.metrics.failure("tone")
		return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tone != nil {
		o.tone.Stop()
	}
	if err := tone.Play(); err != nil {
		o.metrics.failure("tone")
		return fmt.Errorf("%w: %w", ErrLocalResourceMissing, err)
	}
	o.tone = tone
	o.metrics.tone(kind)
	return nil
}

// StopCallTone stops whichever tone is playing.
func (o *Orchestrator) StopCallTone() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tone == nil {
		return nil
	}
	return o.tone.Stop()
}

// PlayDTMF plays the keypad tone for digit during an active call.
func (o *Orchestrator) PlayDTMF(digit rune) error {
	if o.tracker.GetCallCount(call.StateActive) == 0 {
		return fmt.Errorf("%w: dtmf without an active call", ErrInvalidOperation)
	}
	kind, ok := render.DTMFKind(digit)
	if !ok {
		return fmt.Errorf("%w: %q is not a dtmf key", ErrInvalidOperation, digit)
	}
	return o.PlayCallTone(kind)
}

// ReleaseRenderer cancels every render in flight.
func (o *Orchestrator) ReleaseRenderer() {
	o.deps.Renderer.Release()
}
