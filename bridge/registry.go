// Package bridge turns signalling from the SIP and Telegram sides into
// call records and lifecycle notifications for the audio orchestrator.
package bridge

import (
	"sync"

	"github.com/sirupsen/logrus"

	"callaudio/call"
)

// Audio is the part of the orchestrator a bridge drives.
type Audio interface {
	NewCallCreated(rec *call.Record)
	OnCallStateUpdated(rec *call.Record, prior, next call.State)
	IncomingCallActivated(rec *call.Record)
	IncomingCallHungUp(rec *call.Record)
	CallDestroyed(rec *call.Record)
	SetLocalRingbackNeeded(needed bool)
	PlayDTMF(digit rune) error
}

// Event is one signalling change. Key identifies the call within its
// bridge, e.g. "sip:<call-id>". An event with Digits set only plays keypad
// feedback.
type Event struct {
	Key    string
	Number string
	Kind   call.Kind
	State  call.State
	// LocalRingback marks an alerting call whose ringback the network
	// does not provide.
	LocalRingback bool
	Digits        string
}

// Registry owns the call records of all bridges.
type Registry struct {
	audio     Audio
	emergency map[string]struct{}
	log       *logrus.Entry

	mu     sync.Mutex
	nextID int
	calls  map[string]*call.Record
}

// NewRegistry creates a Registry. Calls to an emergency number are flagged
// on their record.
func NewRegistry(audio Audio, emergency []string, log *logrus.Entry) *Registry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r := &Registry{
		audio:     audio,
		emergency: make(map[string]struct{}, len(emergency)),
		log:       log,
		calls:     make(map[string]*call.Record),
	}
	for _, n := range emergency {
		r.emergency[n] = struct{}{}
	}
	return r
}

// Apply records ev and notifies the orchestrator. An incoming call while
// another call is up becomes waiting.
func (r *Registry) Apply(ev Event) {
	if ev.Digits != "" {
		r.dtmf(ev)
		return
	}

	r.mu.Lock()
	rec, ok := r.calls[ev.Key]
	if !ok {
		if ev.State == call.StateDisconnecting || ev.State == call.StateDisconnected {
			r.mu.Unlock()
			r.log.WithField("key", ev.Key).Debug("end of unknown call ignored")
			return
		}
		r.nextID++
		_, emergency := r.emergency[ev.Number]
		rec = call.NewRecord(r.nextID, ev.Number, ev.Kind, emergency)
		r.calls[ev.Key] = rec
	}
	state := ev.State
	if state == call.StateIncoming && r.busyLocked(rec) {
		state = call.StateWaiting
	}
	if state == call.StateDisconnected {
		delete(r.calls, ev.Key)
	}
	r.mu.Unlock()

	if !ok {
		r.audio.NewCallCreated(rec)
	}
	if state == call.StateAlerting {
		r.audio.SetLocalRingbackNeeded(ev.LocalRingback)
	}

	prior := rec.SetState(state)
	ringing := prior == call.StateIncoming || prior == call.StateWaiting
	switch {
	case ringing && state == call.StateActive:
		r.audio.IncomingCallActivated(rec)
	case ringing && state == call.StateDisconnected:
		r.audio.IncomingCallHungUp(rec)
	}
	r.log.WithFields(logrus.Fields{
		"key":   ev.Key,
		"call":  rec.ID(),
		"prior": prior,
		"next":  state,
	}).Debug("call event")
	r.audio.OnCallStateUpdated(rec, prior, state)
}

func (r *Registry) busyLocked(self *call.Record) bool {
	for _, c := range r.calls {
		if c == self {
			continue
		}
		switch c.State() {
		case call.StateActive, call.StateHolding, call.StateDialing, call.StateAlerting:
			return true
		}
	}
	return false
}

func (r *Registry) dtmf(ev Event) {
	for _, d := range ev.Digits {
		if err := r.audio.PlayDTMF(d); err != nil {
			r.log.WithError(err).WithField("digit", string(d)).Warn("dtmf feedback failed")
		}
	}
}

// Lookup returns the record for key.
func (r *Registry) Lookup(key string) (*call.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.calls[key]
	return rec, ok
}

// Release forgets key without a disconnect, e.g. when its bridge goes
// away under it.
func (r *Registry) Release(key string) bool {
	r.mu.Lock()
	rec, ok := r.calls[key]
	delete(r.calls, key)
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.log.WithField("key", key).Info("call released")
	r.audio.CallDestroyed(rec)
	return true
}

// Keys returns the keys of all live calls.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.calls))
	for k := range r.calls {
		keys = append(keys, k)
	}
	return keys
}
