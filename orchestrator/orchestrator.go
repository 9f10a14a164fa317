// Package orchestrator is the entry point the call-control engine drives on
// every call lifecycle change. It keeps the live call set and the call
// state tracker, derives the interrupt state, and feeds the scene and
// device routers. Ringtone, tone, mute and volume controls are exposed to
// the UI and hands-free service.
package orchestrator

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"callaudio/call"
	"callaudio/device"
	"callaudio/engine"
	"callaudio/playback"
	"callaudio/render"
	"callaudio/scene"
	"callaudio/tracker"
)

// Config holds the audio settings the orchestrator needs.
type Config struct {
	RingtonePath       string
	EarpieceAvailable  bool
	VibrateWhenRinging bool
	PreferHandsFree    bool
}

// Deps are the external collaborators. Engine and Renderer are required.
type Deps struct {
	Engine    engine.Engine
	HandsFree engine.HandsFree
	Vibrator  engine.Vibrator
	Renderer  playback.Renderer
	Metrics   *Metrics
}

// Orchestrator coordinates call audio.
type Orchestrator struct {
	cfg     Config
	deps    Deps
	log     *logrus.Entry
	metrics *Metrics

	tracker *tracker.Tracker
	devices *device.Router
	scenes  *scene.Router

	// eventMu serializes lifecycle notifications and teardown. It is held
	// while the routers run, so nothing under mu may call back into them.
	eventMu sync.Mutex

	mu            sync.Mutex
	ready         bool
	calls         map[int]*call.Record
	interrupt     call.InterruptState
	localRingback bool
	ring          *playback.Ring
	tone          *playback.Tone
}

// New creates an Orchestrator. Initialize must be called before use.
func New(cfg Config, deps Deps, log *logrus.Entry) *Orchestrator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{
		cfg:     cfg,
		deps:    deps,
		log:     log,
		metrics: deps.Metrics,
		tracker: tracker.New(),
		calls:   make(map[int]*call.Record),
	}
}

// Initialize builds the device and scene routers. A missing engine or
// renderer is logged and returned; the orchestrator then refuses every
// lifecycle event.
func (o *Orchestrator) Initialize() error {
	o.eventMu.Lock()
	defer o.eventMu.Unlock()

	if o.deps.Engine == nil || o.deps.Renderer == nil {
		err := fmt.Errorf("%w: audio engine and renderer are required", ErrLocalResourceMissing)
		o.log.WithError(err).Error("call audio initialization failed")
		return err
	}

	o.devices = device.NewRouter(o.deps.Engine, o.deps.HandsFree, o, device.Options{
		EarpieceAvailable: o.cfg.EarpieceAvailable,
		PreferHandsFree:   o.cfg.PreferHandsFree,
		OnSwitch: func(_, to device.Device) {
			o.metrics.deviceSwitch(to)
		},
	}, o.log.WithField("router", "device"))

	o.scenes = scene.NewRouter(o.deps.Engine, o.tracker, o, o.devices, o.log.WithField("router", "scene"))
	o.scenes.OnTransition = o.metrics.transition

	o.mu.Lock()
	o.ready = true
	o.mu.Unlock()
	o.log.WithFields(logrus.Fields{
		"earpiece":           o.cfg.EarpieceAvailable,
		"prefer_hands_free":  o.cfg.PreferHandsFree,
		"vibrate_in_ringing": o.cfg.VibrateWhenRinging,
	}).Info("call audio initialized")
	return nil
}

func (o *Orchestrator) isReady() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ready
}

// OnCallStateUpdated applies one lifecycle change of rec. Next-state
// effects run before prior-state effects, so the tracker already reflects
// the new state when the prior one is checked for emptiness.
func (o *Orchestrator) OnCallStateUpdated(rec *call.Record, prior, next call.State) {
	if rec == nil {
		return
	}
	o.eventMu.Lock()
	defer o.eventMu.Unlock()

	log := o.log.WithFields(logrus.Fields{
		"call":   rec.ID(),
		"number": rec.Number(),
		"kind":   rec.Kind(),
		"prior":  prior,
		"next":   next,
	})
	if !o.isReady() {
		log.Error("call state update before initialization")
		return
	}
	log.Info("call state updated")
	o.metrics.lifecycle(next)

	o.addCall(rec)
	o.handleNextState(rec, next)
	if prior != next {
		o.handlePriorState(rec, prior, next)
	}
	if next == call.StateDisconnected {
		o.removeCall(rec)
	}
}

func (o *Orchestrator) handleNextState(rec *call.Record, next call.State) {
	o.tracker.AddCall(rec.Number(), next)

	switch next {
	case call.StateDialing, call.StateAlerting, call.StateIncoming, call.StateWaiting:
		o.setInterrupt(call.InterruptRinging)
	case call.StateActive:
		o.setInterrupt(call.InterruptActivated)
	case call.StateDisconnected:
		o.setInterrupt(o.remainingInterrupt(rec.Number()))
	}

	if ev, ok := newCallEvent(next, rec.Kind()); ok {
		o.scenes.Dispatch(ev)
	}
}

func (o *Orchestrator) handlePriorState(rec *call.Record, prior, next call.State) {
	tracked, ok := prior.Tracked()
	if !ok {
		return
	}
	if nt, ok := next.Tracked(); ok && nt == tracked {
		return
	}
	number := rec.Number()
	o.tracker.DeleteCall(number, tracked)
	if o.tracker.GetCallCount(tracked) > 0 {
		return
	}

	var ev scene.Event
	switch tracked {
	case call.StateDialing:
		o.stopRingbackIfIdle()
		ev = scene.EventNoMoreDialing
	case call.StateAlerting:
		o.stopRingbackIfIdle()
		ev = scene.EventNoMoreAlerting
	case call.StateIncoming:
		o.StopRingtone()
		if next != call.StateActive {
			o.ReleaseRenderer()
		}
		ev = scene.EventNoMoreIncoming
	case call.StateActive:
		if !o.deps.Engine.SetMicrophoneMute(false) {
			o.log.Warn("microphone unmute refused")
			o.metrics.failure("unmute")
		}
		ev = scene.EventNoMoreActive
	case call.StateHolding:
		ev = scene.EventNoMoreHolding
	}
	o.scenes.Dispatch(ev)
}

// stopRingbackIfIdle stops ringback once no call is dialing or alerting.
// A dialing call that moved to alerting keeps the ringback it just started.
func (o *Orchestrator) stopRingbackIfIdle() {
	if o.tracker.GetCallCount(call.StateDialing)+o.tracker.GetCallCount(call.StateAlerting) == 0 {
		o.StopRingback()
	}
}

// newCallEvent maps a lifecycle state to the scene event announcing it.
// Packet-switched calls use the IMS scene.
func newCallEvent(s call.State, kind call.Kind) (scene.Event, bool) {
	switch s {
	case call.StateDialing:
		return scene.EventNewDialing, true
	case call.StateAlerting:
		return scene.EventNewAlerting, true
	case call.StateIncoming, call.StateWaiting:
		return scene.EventNewIncoming, true
	case call.StateActive:
		if kind == call.KindCellular {
			return scene.EventNewActiveCS, true
		}
		return scene.EventNewActiveIMS, true
	}
	return 0, false
}

// remainingInterrupt derives the interrupt state of the calls other than
// number. A disconnect uses it instead of resetting to deactivated, so
// the calls still up keep audio focus.
func (o *Orchestrator) remainingInterrupt(number string) call.InterruptState {
	others := func(s call.State) int {
		n := o.tracker.GetCallCount(s)
		if o.tracker.Contains(number, s) {
			n--
		}
		return n
	}
	switch {
	case others(call.StateActive) > 0, others(call.StateHolding) > 0:
		return call.InterruptActivated
	case others(call.StateIncoming) > 0, others(call.StateDialing) > 0, others(call.StateAlerting) > 0:
		return call.InterruptRinging
	}
	return call.InterruptDeactivated
}

func (o *Orchestrator) setInterrupt(s call.InterruptState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.interrupt != s {
		o.log.WithFields(logrus.Fields{"from": o.interrupt, "to": s}).Debug("interrupt state changed")
	}
	o.interrupt = s
}

func (o *Orchestrator) addCall(rec *call.Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.calls[rec.ID()]; ok {
		return
	}
	o.calls[rec.ID()] = rec
	o.metrics.liveCalls(len(o.calls))
}

func (o *Orchestrator) removeCall(rec *call.Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.calls, rec.ID())
	o.metrics.liveCalls(len(o.calls))
}

// NewCallCreated registers a call before its first state change.
func (o *Orchestrator) NewCallCreated(rec *call.Record) {
	if rec == nil {
		return
	}
	o.addCall(rec)
}

// CallDestroyed drops a call the engine released without a disconnect.
func (o *Orchestrator) CallDestroyed(rec *call.Record) {
	if rec == nil {
		return
	}
	o.removeCall(rec)
}

// IncomingCallActivated is called when the user answers.
func (o *Orchestrator) IncomingCallActivated(rec *call.Record) {
	o.StopRingtone()
}

// IncomingCallHungUp is called when the user rejects an incoming call. The
// call-ended tone is played if other calls remain.
func (o *Orchestrator) IncomingCallHungUp(rec *call.Record) {
	o.StopRingtone()
	if rec == nil {
		return
	}
	o.mu.Lock()
	others := 0
	for id := range o.calls {
		if id != rec.ID() {
			others++
		}
	}
	o.mu.Unlock()
	if others > 0 {
		if err := o.PlayCallTone(render.ToneCallEnded); err != nil {
			o.log.WithError(err).Warn("call ended tone failed")
		}
	}
}

// Calls returns the live call set.
func (o *Orchestrator) Calls() []*call.Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*call.Record, 0, len(o.calls))
	for _, c := range o.calls {
		out = append(out, c)
	}
	return out
}

// InterruptState returns the audio focus the calls require.
func (o *Orchestrator) InterruptState() call.InterruptState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.interrupt
}

// GetCurrentActiveCall returns the record of the current active call, or
// nil.
func (o *Orchestrator) GetCurrentActiveCall() *call.Record {
	number := o.tracker.GetCurrentActiveCall()
	if number == "" {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.findLocked(number)
}

func (o *Orchestrator) findLocked(number string) *call.Record {
	var found *call.Record
	for _, c := range o.calls {
		if c.Number() != number {
			continue
		}
		if found == nil || c.ID() < found.ID() {
			found = c
		}
	}
	return found
}

// ActiveSpeakerphoneOn reports the speakerphone flag of the current
// active call.
func (o *Orchestrator) ActiveSpeakerphoneOn() bool {
	if c := o.GetCurrentActiveCall(); c != nil {
		return c.SpeakerphoneOn()
	}
	return false
}

// SetMute mutes or unmutes the microphone. A live emergency call forces
// unmute.
func (o *Orchestrator) SetMute(mute bool) error {
	o.mu.Lock()
	if len(o.calls) == 0 {
		o.mu.Unlock()
		o.metrics.failure("mute")
		return fmt.Errorf("%w: mute without a call", ErrInvalidOperation)
	}
	for _, c := range o.calls {
		if c.IsEmergency() && c.State() != call.StateDisconnected {
			if mute {
				o.log.WithField("call", c.ID()).Warn("mute overridden by emergency call")
			}
			mute = false
			break
		}
	}
	o.mu.Unlock()

	if !o.deps.Engine.SetMicrophoneMute(mute) {
		o.metrics.failure("mute")
		return fmt.Errorf("%w: microphone mute refused", ErrDeviceUnavailable)
	}
	o.log.WithField("mute", mute).Info("microphone mute set")
	return nil
}

// SetVolume sets the volume of stream, clamped to the engine's range.
func (o *Orchestrator) SetVolume(stream engine.StreamType, level int) error {
	max := o.deps.Engine.MaxVolume(stream)
	if level < 0 {
		level = 0
	}
	if level > max {
		level = max
	}
	if !o.deps.Engine.SetVolume(stream, level) {
		o.metrics.failure("volume")
		return fmt.Errorf("%w: volume %d on %s refused", ErrDeviceUnavailable, level, stream)
	}
	return nil
}

// GetInitialAudioDevice runs the device priority policy on the current
// inputs.
func (o *Orchestrator) GetInitialAudioDevice() device.Device {
	return device.SelectInitial(o.InterruptState(), o.devices.Availability(), o.ActiveSpeakerphoneOn())
}

// SetAudioDevice routes call audio to d and records the choice on the
// active call.
func (o *Orchestrator) SetAudioDevice(d device.Device) error {
	if !o.isReady() {
		return fmt.Errorf("%w: not initialized", ErrInvalidOperation)
	}
	if !d.Physical() {
		return fmt.Errorf("%w: %s is not an audio device", ErrInvalidOperation, d)
	}
	if !o.devices.IsAvailable(d) {
		o.metrics.failure("set_device")
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, d)
	}
	if !o.devices.SwitchDevice(d) {
		o.metrics.failure("set_device")
		return fmt.Errorf("%w: switch to %s failed", ErrDeviceUnavailable, d)
	}
	if c := o.GetCurrentActiveCall(); c != nil {
		c.SetSpeakerphoneOn(d == device.Loudspeaker)
	}
	return nil
}

// ProcessDeviceEvent forwards a connectivity or user event to the device
// router.
func (o *Orchestrator) ProcessDeviceEvent(ev device.Event) bool {
	if !o.isReady() {
		return false
	}
	return o.devices.ProcessEvent(ev)
}

// CurrentDevice returns the device in use.
func (o *Orchestrator) CurrentDevice() device.Device {
	if !o.isReady() {
		return device.Disabled
	}
	return o.devices.CurrentDevice()
}

// IsAudioActivated reports whether call audio holds focus.
func (o *Orchestrator) IsAudioActivated() bool {
	return o.isReady() && o.devices.IsActivated()
}

// SceneState returns the scene sub-state.
func (o *Orchestrator) SceneState() scene.State {
	if !o.isReady() {
		return scene.StateInactive
	}
	return o.scenes.State()
}

// Shutdown stops all cues and returns the routers to idle.
func (o *Orchestrator) Shutdown() {
	o.eventMu.Lock()
	defer o.eventMu.Unlock()
	if !o.isReady() {
		return
	}
	o.StopRingtone()
	o.StopCallTone()
	o.ReleaseRenderer()
	o.scenes.Dispatch(scene.EventSwitchInactive)
	o.devices.ProcessEvent(device.EventAudioDeactivated)

	o.mu.Lock()
	o.ready = false
	o.interrupt = call.InterruptDeactivated
	o.mu.Unlock()
	o.log.Info("call audio shut down")
}
