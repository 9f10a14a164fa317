package scene

import (
	"sync"

	"github.com/sirupsen/logrus"

	"callaudio/device"
	"callaudio/engine"
)

// Player starts and releases the audio cues tied to scene states.
type Player interface {
	PlayRingtone() error
	PlayRingback() error
	PlayWaitingTone() error
	ReleaseRenderer()
}

// DeviceNotifier receives the audio focus changes a transition implies.
type DeviceNotifier interface {
	ProcessEvent(ev device.Event) bool
}

// Router is the scene state machine. Dispatch is serialized by mu, so at
// most one transition is in flight. Cue effects and the device notify run
// under mu too; a Player must not call back into the Router.
type Router struct {
	eng     engine.Engine
	query   Query
	player  Player
	devices DeviceNotifier
	log     *logrus.Entry

	// OnTransition, if set, is called under the router lock after every
	// committed state change.
	OnTransition func(from, to State)

	mu    sync.Mutex
	state State
	scene engine.Scene
}

// NewRouter creates a Router in the inactive state.
func NewRouter(eng engine.Engine, query Query, player Player, devices DeviceNotifier, log *logrus.Entry) *Router {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Router{
		eng:     eng,
		query:   query,
		player:  player,
		devices: devices,
		log:     log,
		state:   StateInactive,
		scene:   engine.SceneDefault,
	}
}

// Dispatch runs ev through the state machine. It returns false when the
// engine refused the new scene; the previous state is kept and the event
// is dropped.
func (r *Router) Dispatch(ev Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := transition(r.state, ev, r.query)
	log := r.log.WithFields(logrus.Fields{"event": ev, "state": r.state})

	for _, e := range p.pre {
		r.run(e, log)
	}
	if !p.switches {
		log.Debug("scene event handled without transition")
		return true
	}

	scene := p.scene
	if p.keepScene {
		scene = r.scene
	}
	if r.eng == nil || !r.eng.SetScene(scene) {
		log.WithFields(logrus.Fields{"target": p.target, "scene": scene}).Warn("audio scene refused, transition dropped")
		return false
	}

	prev := r.state
	r.state = p.target
	r.scene = scene
	log.WithFields(logrus.Fields{"target": p.target, "scene": scene}).Info("audio scene switched")
	if r.OnTransition != nil {
		r.OnTransition(prev, p.target)
	}

	for _, e := range p.post {
		r.run(e, log)
	}
	if r.devices != nil && !r.devices.ProcessEvent(p.device) {
		log.WithField("device_event", p.device).Warn("device router rejected event")
	}
	return true
}

func (r *Router) run(e effect, log *logrus.Entry) {
	if r.player == nil {
		return
	}
	var err error
	switch e {
	case effRingback:
		err = r.player.PlayRingback()
	case effRingtone:
		err = r.player.PlayRingtone()
	case effWaitingTone:
		err = r.player.PlayWaitingTone()
	case effReleaseRenderer:
		r.player.ReleaseRenderer()
	}
	if err != nil {
		log.WithError(err).WithField("effect", e).Warn("scene effect failed")
	}
}

// State returns the current scene sub-state.
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Scene returns the scene last accepted by the engine.
func (r *Router) Scene() engine.Scene {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scene
}
