// Package scene implements the audio-scene state machine. Each transition
// sets the engine scene, starts the cue that belongs to the new state and
// tells the device router what kind of audio focus is now needed.
package scene

import (
	"fmt"

	"callaudio/call"
	"callaudio/device"
	"callaudio/engine"
)

// State is the scene sub-state.
type State int

const (
	StateInactive State = iota
	StateDialing
	StateAlerting
	StateIncoming
	StateCSCall
	StateIMSCall
	StateHolding
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateDialing:
		return "dialing"
	case StateAlerting:
		return "alerting"
	case StateIncoming:
		return "incoming"
	case StateCSCall:
		return "cs-call"
	case StateIMSCall:
		return "ims-call"
	case StateHolding:
		return "holding"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Event drives the router. Switch events move to a fixed state; New and
// NoMore events are interpreted by the current state.
type Event int

const (
	EventSwitchDialing Event = iota
	EventSwitchAlerting
	EventSwitchIncoming
	EventSwitchCS
	EventSwitchIMS
	EventSwitchHolding
	EventSwitchInactive

	EventNewDialing
	EventNewAlerting
	EventNewIncoming
	EventNewActiveCS
	EventNewActiveIMS
	EventNoMoreDialing
	EventNoMoreAlerting
	EventNoMoreIncoming
	EventNoMoreActive
	EventNoMoreHolding

	eventNone
)

var eventNames = map[Event]string{
	EventSwitchDialing:  "switch-dialing",
	EventSwitchAlerting: "switch-alerting",
	EventSwitchIncoming: "switch-incoming",
	EventSwitchCS:       "switch-cs",
	EventSwitchIMS:      "switch-ims",
	EventSwitchHolding:  "switch-holding",
	EventSwitchInactive: "switch-inactive",
	EventNewDialing:     "new-dialing",
	EventNewAlerting:    "new-alerting",
	EventNewIncoming:    "new-incoming",
	EventNewActiveCS:    "new-active-cs",
	EventNewActiveIMS:   "new-active-ims",
	EventNoMoreDialing:  "no-more-dialing",
	EventNoMoreAlerting: "no-more-alerting",
	EventNoMoreIncoming: "no-more-incoming",
	EventNoMoreActive:   "no-more-active",
	EventNoMoreHolding:  "no-more-holding",
}

func (e Event) String() string {
	if n, ok := eventNames[e]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%d)", int(e))
}

// IsSwitch reports whether e names its target state directly.
func (e Event) IsSwitch() bool {
	return e >= EventSwitchDialing && e <= EventSwitchInactive
}

// Query is the read side of the call-state tracker.
type Query interface {
	ShouldSwitchState(state call.State) bool
	UpdateNeeded() (call.State, bool)
}

type effect int

const (
	effRingback effect = iota
	effRingtone
	effWaitingTone
	effReleaseRenderer
)

func (e effect) String() string {
	switch e {
	case effRingback:
		return "ringback"
	case effRingtone:
		return "ringtone"
	case effWaitingTone:
		return "waiting-tone"
	default:
		return "release-renderer"
	}
}

// plan is what one event asks the router to do.
type plan struct {
	// pre runs whether or not a switch follows.
	pre []effect

	switches  bool
	target    State
	scene     engine.Scene
	keepScene bool
	post      []effect
	device    device.Event
}

type switchSpec struct {
	target    State
	scene     engine.Scene
	keepScene bool
	post      []effect
	device    device.Event
}

var switchTable = map[Event]switchSpec{
	EventSwitchDialing:  {target: StateDialing, scene: engine.ScenePhoneCall, device: device.EventAudioActivated},
	EventSwitchAlerting: {target: StateAlerting, scene: engine.ScenePhoneCall, post: []effect{effRingback}, device: device.EventAudioActivated},
	EventSwitchIncoming: {target: StateIncoming, scene: engine.SceneRinging, post: []effect{effRingtone}, device: device.EventAudioRinging},
	EventSwitchCS:       {target: StateCSCall, scene: engine.ScenePhoneCall, device: device.EventAudioActivated},
	EventSwitchIMS:      {target: StateIMSCall, scene: engine.ScenePhoneCall, device: device.EventAudioActivated},
	EventSwitchHolding:  {target: StateHolding, keepScene: true, device: device.EventAudioActivated},
	EventSwitchInactive: {target: StateInactive, scene: engine.SceneDefault, device: device.EventAudioDeactivated},
}

// transition is the scene state machine as a pure function of the current
// state, the event and the tracker's answers.
func transition(s State, ev Event, q Query) plan {
	var pre []effect
	if !ev.IsSwitch() {
		ev, pre = react(s, ev, q)
		if ev == eventNone {
			return plan{pre: pre}
		}
	}
	spec, ok := switchTable[ev]
	if !ok || spec.target == s {
		return plan{pre: pre}
	}
	return plan{
		pre:       pre,
		switches:  true,
		target:    spec.target,
		scene:     spec.scene,
		keepScene: spec.keepScene,
		post:      spec.post,
		device:    spec.device,
	}
}

// react is the per-state handling of New and NoMore events.
func react(s State, ev Event, q Query) (Event, []effect) {
	switch s {
	case StateInactive:
		switch ev {
		case EventNewDialing:
			return EventSwitchDialing, nil
		case EventNewAlerting:
			return EventSwitchAlerting, nil
		case EventNewIncoming:
			return EventSwitchIncoming, nil
		case EventNewActiveCS:
			return EventSwitchCS, nil
		case EventNewActiveIMS:
			return EventSwitchIMS, nil
		}

	case StateDialing:
		switch ev {
		case EventNewAlerting:
			return EventSwitchAlerting, nil
		case EventNewActiveCS:
			return EventSwitchCS, nil
		case EventNewActiveIMS:
			return EventSwitchIMS, nil
		case EventNoMoreDialing:
			return next(q), nil
		}

	case StateAlerting:
		switch ev {
		case EventNewActiveCS:
			return EventSwitchCS, nil
		case EventNewActiveIMS:
			return EventSwitchIMS, nil
		case EventNoMoreAlerting:
			return next(q), nil
		}

	case StateIncoming:
		switch ev {
		case EventNewActiveCS, EventNewActiveIMS:
			if q.ShouldSwitchState(call.StateActive) {
				return activeSwitch(ev), nil
			}
		case EventNoMoreIncoming:
			return next(q), nil
		}

	case StateCSCall, StateIMSCall:
		switch ev {
		case EventNewActiveCS:
			if s == StateIMSCall {
				return EventSwitchCS, nil
			}
		case EventNewActiveIMS:
			if s == StateCSCall {
				return EventSwitchIMS, nil
			}
		case EventNewIncoming:
			return eventNone, []effect{effWaitingTone}
		case EventNoMoreActive:
			return next(q), []effect{effReleaseRenderer}
		}

	case StateHolding:
		switch ev {
		case EventNewActiveCS, EventNewActiveIMS:
			if q.ShouldSwitchState(call.StateActive) {
				return activeSwitch(ev), nil
			}
		case EventNewIncoming:
			if q.ShouldSwitchState(call.StateIncoming) {
				return EventSwitchIncoming, nil
			}
		case EventNewDialing:
			if q.ShouldSwitchState(call.StateDialing) {
				return EventSwitchDialing, nil
			}
		case EventNoMoreHolding:
			return next(q), nil
		}
	}
	return eventNone, nil
}

func activeSwitch(ev Event) Event {
	if ev == EventNewActiveIMS {
		return EventSwitchIMS
	}
	return EventSwitchCS
}

// next asks the tracker which scene follows once the current one has no
// calls left.
func next(q Query) Event {
	st, ok := q.UpdateNeeded()
	if !ok {
		return EventSwitchInactive
	}
	switch st {
	case call.StateHolding:
		return EventSwitchHolding
	case call.StateIncoming:
		return EventSwitchIncoming
	case call.StateDialing:
		return EventSwitchDialing
	case call.StateAlerting:
		return EventSwitchAlerting
	default:
		return EventSwitchInactive
	}
}
