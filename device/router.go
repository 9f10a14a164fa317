package device

import (
	"sync"

	"github.com/sirupsen/logrus"

	"callaudio/call"
	"callaudio/engine"
)

// Policy supplies the call-side inputs of device selection.
type Policy interface {
	InterruptState() call.InterruptState
	ActiveSpeakerphoneOn() bool
}

// Options configures a Router.
type Options struct {
	EarpieceAvailable bool
	// PreferHandsFree makes the first activation ask the hands-free service
	// for a SCO link before running the priority policy.
	PreferHandsFree bool
	// OnSwitch, if set, is called under the router lock after every change
	// of the current device.
	OnSwitch func(from, to Device)
}

type routerState struct {
	current     Device
	activated   bool
	activatedBy Event
	activatedIn call.InterruptState
	scoTried    bool
	avail       Availability
}

type actionKind int

const (
	actNone actionKind = iota
	actSwitch
	actConnectSco
	actRefuse
)

type action struct {
	kind   actionKind
	target Device
}

type inputs struct {
	interrupt       call.InterruptState
	speakerOn       bool
	preferHandsFree bool
}

func (in inputs) initial(avail Availability) Device {
	return SelectInitial(in.interrupt, avail, in.speakerOn)
}

// handle is the transition function. It returns the state to commit when
// the action succeeds and the action to run; only availability changes are
// kept when the action fails.
func handle(s routerState, ev Event, in inputs) (routerState, action) {
	next := s
	switch ev {
	case EventEnableEarpiece, EventEnableSpeaker, EventEnableWiredHeadset, EventEnableBluetooth:
		if !s.activated {
			return s, action{kind: actRefuse}
		}
		return next, action{kind: actSwitch, target: enableTarget(ev)}

	case EventAudioActivated, EventAudioRinging:
		// repeated focus under the same interrupt state keeps the current
		// device, so user selections survive scene changes
		if s.activated && s.activatedBy == ev && s.activatedIn == in.interrupt {
			return s, action{kind: actNone}
		}
		next.activated = true
		next.activatedBy = ev
		next.activatedIn = in.interrupt
		if !s.activated && in.preferHandsFree && !s.scoTried {
			next.scoTried = true
			return next, action{kind: actConnectSco}
		}
		return next, action{kind: actSwitch, target: in.initial(s.avail)}

	case EventAudioDeactivated:
		if !s.activated {
			return s, action{kind: actNone}
		}
		next.activated = false
		return next, action{kind: actSwitch, target: Disabled}

	case EventBluetoothConnected:
		next.avail.BluetoothSco = true
		if !s.activated {
			return next, action{kind: actNone}
		}
		return next, action{kind: actSwitch, target: BluetoothSco}

	case EventBluetoothDisconnected:
		next.avail.BluetoothSco = false
		if s.current != BluetoothSco {
			return next, action{kind: actNone}
		}
		return next, action{kind: actSwitch, target: in.initial(next.avail)}

	case EventWiredHeadsetConnected:
		next.avail.WiredHeadset = true
		if !s.activated || s.current == BluetoothSco {
			return next, action{kind: actNone}
		}
		return next, action{kind: actSwitch, target: WiredHeadset}

	case EventWiredHeadsetDisconnected:
		next.avail.WiredHeadset = false
		if s.current != WiredHeadset {
			return next, action{kind: actNone}
		}
		return next, action{kind: actSwitch, target: in.initial(next.avail)}

	case EventReInit:
		if !s.activated {
			return s, action{kind: actNone}
		}
		return next, action{kind: actSwitch, target: in.initial(s.avail)}
	}
	return s, action{kind: actRefuse}
}

func enableTarget(ev Event) Device {
	switch ev {
	case EventEnableEarpiece:
		return Earpiece
	case EventEnableSpeaker:
		return Loudspeaker
	case EventEnableWiredHeadset:
		return WiredHeadset
	default:
		return BluetoothSco
	}
}

// Router owns the current audio device.
type Router struct {
	eng       engine.Engine
	handsFree engine.HandsFree
	policy    Policy
	opts      Options
	log       *logrus.Entry

	mu      sync.Mutex
	state   routerState
	enabled map[Device]bool
}

// NewRouter creates a Router in the Disabled state. The loudspeaker is
// always available; the earpiece as configured.
func NewRouter(eng engine.Engine, handsFree engine.HandsFree, policy Policy, opts Options, log *logrus.Entry) *Router {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Router{
		eng:       eng,
		handsFree: handsFree,
		policy:    policy,
		opts:      opts,
		log:       log,
		state: routerState{
			current: Disabled,
			avail: Availability{
				Earpiece:    opts.EarpieceAvailable,
				Loudspeaker: true,
			},
		},
		enabled: make(map[Device]bool),
	}
}

// ProcessEvent runs one event through the state machine and reports
// whether it was handled successfully.
func (r *Router) ProcessEvent(ev Event) bool {
	in := inputs{preferHandsFree: r.opts.PreferHandsFree}
	if r.policy != nil {
		in.interrupt = r.policy.InterruptState()
		in.speakerOn = r.policy.ActiveSpeakerphoneOn()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next, act := handle(r.state, ev, in)
	log := r.log.WithFields(logrus.Fields{
		"event":     ev,
		"device":    r.state.current,
		"interrupt": in.interrupt,
	})

	switch act.kind {
	case actNone:
		r.state = next
		return true
	case actRefuse:
		log.Debug("device event refused")
		return false
	case actConnectSco:
		if r.handsFree != nil && r.handsFree.ConnectSco("") {
			log.Info("requested bluetooth sco connection")
			r.state = next
			return true
		}
		log.Warn("bluetooth sco connect failed, falling back to priority policy")
		act = action{kind: actSwitch, target: in.initial(next.avail)}
	}

	if !r.switchLocked(act.target, next.avail) {
		log.WithField("target", act.target).Warn("device switch failed")
		r.state.avail = next.avail
		return false
	}
	current := r.state.current
	r.state = next
	r.state.current = current
	log.WithField("target", current).Debug("device event handled")
	return true
}

// SwitchDevice selects d directly, for user-driven routing during a call.
func (r *Router) SwitchDevice(d Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.activated {
		r.log.WithField("device", d).Warn("switch refused, audio not activated")
		return false
	}
	if d == r.state.current {
		return true
	}
	return r.switchLocked(d, r.state.avail)
}

// switchLocked enables d, keeping the enabled flags mutually exclusive.
// r.mu must be held.
func (r *Router) switchLocked(d Device, avail Availability) bool {
	prev := r.state.current
	if d == Disabled {
		for k := range r.enabled {
			delete(r.enabled, k)
		}
		r.state.current = Disabled
		r.notifySwitch(prev, Disabled)
		return true
	}
	if !avail.Has(d) {
		return false
	}
	typ, ok := d.Type()
	if !ok || r.eng == nil || !r.eng.ActivateDevice(typ) {
		return false
	}
	for k := range r.enabled {
		delete(r.enabled, k)
	}
	r.enabled[d] = true
	r.state.current = d
	r.notifySwitch(prev, d)
	return true
}

func (r *Router) notifySwitch(prev, next Device) {
	if prev == next {
		return
	}
	if r.handsFree != nil {
		if next == BluetoothSco {
			r.handsFree.SetScoState(engine.ScoConnected)
		} else if prev == BluetoothSco {
			r.handsFree.SetScoState(engine.ScoDisconnected)
		}
	}
	r.log.WithFields(logrus.Fields{"from": prev, "to": next}).Info("audio device switched")
	if r.opts.OnSwitch != nil {
		r.opts.OnSwitch(prev, next)
	}
}

// CurrentDevice returns the device in use.
func (r *Router) CurrentDevice() Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.current
}

// IsActivated reports whether call audio is active or ringing.
func (r *Router) IsActivated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.activated
}

// IsEnabled reports whether d is the enabled device.
func (r *Router) IsEnabled(d Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled[d]
}

// Availability returns a snapshot of the availability flags.
func (r *Router) Availability() Availability {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.avail
}

// IsAvailable reports whether d is available.
func (r *Router) IsAvailable(d Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.avail.Has(d)
}

// SetAvailable records availability without re-routing. Connectivity
// changes that should move audio go through ProcessEvent.
func (r *Router) SetAvailable(d Device, available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.avail.set(d, available)
}
