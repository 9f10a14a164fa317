// Package call holds the call record shared between the call-control
// engine and the audio orchestrator, and the small enums both sides use.
package call

import (
	"fmt"
	"sync"
)

// State represents the lifecycle state of a call.
type State int

const (
	StateIdle State = iota
	StateDialing
	StateAlerting
	StateIncoming
	StateWaiting
	StateActive
	StateHolding
	StateDisconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDialing:
		return "dialing"
	case StateAlerting:
		return "alerting"
	case StateIncoming:
		return "incoming"
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	case StateHolding:
		return "holding"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Tracked folds lifecycle states into the five categories the audio layer
// keeps numbers for. Waiting calls count as incoming. ok is false for states
// that are not tracked.
func (s State) Tracked() (State, bool) {
	switch s {
	case StateDialing, StateAlerting, StateIncoming, StateActive, StateHolding:
		return s, true
	case StateWaiting:
		return StateIncoming, true
	default:
		return s, false
	}
}

// Kind is the transport a call is carried on.
type Kind int

const (
	KindCellular Kind = iota
	KindIP
	KindOTT
)

func (k Kind) String() string {
	switch k {
	case KindCellular:
		return "cellular"
	case KindIP:
		return "ip"
	case KindOTT:
		return "ott"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// InterruptState is the audio focus the calls currently require.
type InterruptState int

const (
	InterruptDeactivated InterruptState = iota
	InterruptActivated
	InterruptRinging
)

func (s InterruptState) String() string {
	switch s {
	case InterruptDeactivated:
		return "deactivated"
	case InterruptActivated:
		return "activated"
	case InterruptRinging:
		return "ringing"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Record is a single call as seen by the call-control engine.
type Record struct {
	id        int
	number    string
	kind      Kind
	emergency bool

	mu        sync.RWMutex
	state     State
	speakerOn bool
}

// NewRecord creates a call record in the idle state.
func NewRecord(id int, number string, kind Kind, emergency bool) *Record {
	return &Record{
		id:        id,
		number:    number,
		kind:      kind,
		emergency: emergency,
		state:     StateIdle,
	}
}

func (r *Record) ID() int           { return r.id }
func (r *Record) Number() string    { return r.number }
func (r *Record) Kind() Kind        { return r.kind }
func (r *Record) IsEmergency() bool { return r.emergency }

// State returns the current lifecycle state.
func (r *Record) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// SetState updates the lifecycle state and returns the previous one.
func (r *Record) SetState(s State) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.state
	r.state = s
	return prev
}

// SpeakerphoneOn reports whether the user asked for loudspeaker on this call.
func (r *Record) SpeakerphoneOn() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.speakerOn
}

func (r *Record) SetSpeakerphoneOn(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speakerOn = on
}
