package device

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callaudio/call"
	"callaudio/engine"
	"callaudio/engine/enginetest"
)

type fakePolicy struct {
	mu        sync.Mutex
	interrupt call.InterruptState
	speakerOn bool
}

func (p *fakePolicy) InterruptState() call.InterruptState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interrupt
}

func (p *fakePolicy) ActiveSpeakerphoneOn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speakerOn
}

func (p *fakePolicy) set(st call.InterruptState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interrupt = st
}

func newTestRouter(opts Options) (*Router, *enginetest.Engine, *enginetest.HandsFree, *fakePolicy) {
	eng := enginetest.NewEngine()
	hf := &enginetest.HandsFree{}
	policy := &fakePolicy{}
	return NewRouter(eng, hf, policy, opts, nil), eng, hf, policy
}

func TestSelectInitialPriority(t *testing.T) {
	all := Availability{Earpiece: true, Loudspeaker: true, WiredHeadset: true, BluetoothSco: true}
	tests := []struct {
		name      string
		interrupt call.InterruptState
		avail     Availability
		speakerOn bool
		want      Device
	}{
		{"deactivated", call.InterruptDeactivated, all, false, Disabled},
		{"bluetooth beats wired", call.InterruptActivated, all, false, BluetoothSco},
		{"bluetooth while ringing", call.InterruptRinging, all, true, BluetoothSco},
		{"wired", call.InterruptActivated, Availability{Earpiece: true, WiredHeadset: true}, false, WiredHeadset},
		{"ringing uses speaker", call.InterruptRinging, Availability{Earpiece: true}, false, Loudspeaker},
		{"speakerphone requested", call.InterruptActivated, Availability{Earpiece: true}, true, Loudspeaker},
		{"earpiece", call.InterruptActivated, Availability{Earpiece: true}, false, Earpiece},
		{"fallback", call.InterruptActivated, Availability{}, false, Loudspeaker},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectInitial(tt.interrupt, tt.avail, tt.speakerOn))
		})
	}
}

func TestActivatedIsIdempotent(t *testing.T) {
	r, eng, _, policy := newTestRouter(Options{EarpieceAvailable: true})
	policy.set(call.InterruptActivated)

	require.True(t, r.ProcessEvent(EventAudioActivated))
	assert.Equal(t, Earpiece, r.CurrentDevice())
	activations := len(eng.Activated)

	require.True(t, r.ProcessEvent(EventAudioActivated))
	assert.Equal(t, activations, len(eng.Activated), "second activation must not touch the engine")
	assert.Equal(t, Earpiece, r.CurrentDevice())
}

func TestRingingThenActivatedReevaluates(t *testing.T) {
	r, _, _, policy := newTestRouter(Options{EarpieceAvailable: true})

	policy.set(call.InterruptRinging)
	require.True(t, r.ProcessEvent(EventAudioRinging))
	assert.Equal(t, Loudspeaker, r.CurrentDevice())

	policy.set(call.InterruptActivated)
	require.True(t, r.ProcessEvent(EventAudioActivated))
	assert.Equal(t, Earpiece, r.CurrentDevice())
	assert.True(t, r.IsEnabled(Earpiece))
	assert.False(t, r.IsEnabled(Loudspeaker), "enabled flags are exclusive")
}

func TestDeactivatedDisablesOnlyWhenActivated(t *testing.T) {
	r, _, _, policy := newTestRouter(Options{EarpieceAvailable: true})

	assert.True(t, r.ProcessEvent(EventAudioDeactivated))
	assert.Equal(t, Disabled, r.CurrentDevice())

	policy.set(call.InterruptActivated)
	r.ProcessEvent(EventAudioActivated)
	require.True(t, r.ProcessEvent(EventAudioDeactivated))
	assert.Equal(t, Disabled, r.CurrentDevice())
	assert.False(t, r.IsActivated())
	assert.False(t, r.IsEnabled(Earpiece))
}

func TestActivationFailureKeepsState(t *testing.T) {
	r, eng, _, policy := newTestRouter(Options{EarpieceAvailable: true})
	policy.set(call.InterruptActivated)
	eng.SetFailActivate(engine.DeviceEarpiece, true)

	assert.False(t, r.ProcessEvent(EventAudioActivated))
	assert.Equal(t, Disabled, r.CurrentDevice())
	assert.False(t, r.IsActivated())

	eng.SetFailActivate(engine.DeviceEarpiece, false)
	assert.True(t, r.ProcessEvent(EventAudioActivated))
	assert.Equal(t, Earpiece, r.CurrentDevice())
}

func TestBluetoothScoNotifications(t *testing.T) {
	r, _, hf, policy := newTestRouter(Options{EarpieceAvailable: true})
	policy.set(call.InterruptActivated)
	r.ProcessEvent(EventAudioActivated)

	require.True(t, r.ProcessEvent(EventBluetoothConnected))
	assert.Equal(t, BluetoothSco, r.CurrentDevice())
	assert.Equal(t, []engine.ScoState{engine.ScoConnected}, hf.ScoStates())

	require.True(t, r.ProcessEvent(EventBluetoothDisconnected))
	assert.Equal(t, Earpiece, r.CurrentDevice())
	assert.Equal(t, []engine.ScoState{engine.ScoConnected, engine.ScoDisconnected}, hf.ScoStates())
}

func TestWiredHeadsetFollowsConnectivity(t *testing.T) {
	r, _, _, policy := newTestRouter(Options{EarpieceAvailable: true})

	assert.True(t, r.ProcessEvent(EventWiredHeadsetConnected))
	assert.Equal(t, Disabled, r.CurrentDevice(), "no routing while idle")
	assert.True(t, r.IsAvailable(WiredHeadset))

	policy.set(call.InterruptActivated)
	r.ProcessEvent(EventAudioActivated)
	assert.Equal(t, WiredHeadset, r.CurrentDevice())

	r.ProcessEvent(EventWiredHeadsetDisconnected)
	assert.Equal(t, Earpiece, r.CurrentDevice())
}

func TestEnableRequiresAvailability(t *testing.T) {
	r, _, _, policy := newTestRouter(Options{EarpieceAvailable: true})
	assert.False(t, r.ProcessEvent(EventEnableSpeaker), "refused while idle")

	policy.set(call.InterruptActivated)
	r.ProcessEvent(EventAudioActivated)
	assert.False(t, r.ProcessEvent(EventEnableWiredHeadset))
	assert.Equal(t, Earpiece, r.CurrentDevice())

	assert.True(t, r.ProcessEvent(EventEnableSpeaker))
	assert.Equal(t, Loudspeaker, r.CurrentDevice())

	assert.True(t, r.SwitchDevice(Earpiece))
	assert.Equal(t, Earpiece, r.CurrentDevice())
}

func TestPreferredHandsFreeConnectsFirst(t *testing.T) {
	r, _, hf, policy := newTestRouter(Options{EarpieceAvailable: true, PreferHandsFree: true})
	hf.ConnectOK = true
	policy.set(call.InterruptActivated)

	require.True(t, r.ProcessEvent(EventAudioActivated))
	assert.Equal(t, 1, hf.ConnectCount())
	assert.Equal(t, Disabled, r.CurrentDevice(), "waits for the sco link to come up")

	require.True(t, r.ProcessEvent(EventBluetoothConnected))
	assert.Equal(t, BluetoothSco, r.CurrentDevice())

	r.ProcessEvent(EventAudioDeactivated)
	r.ProcessEvent(EventAudioActivated)
	assert.Equal(t, 1, hf.ConnectCount(), "only the first activation asks for sco")
}

func TestPreferredHandsFreeFallsBack(t *testing.T) {
	r, _, hf, policy := newTestRouter(Options{EarpieceAvailable: true, PreferHandsFree: true})
	policy.set(call.InterruptActivated)

	require.True(t, r.ProcessEvent(EventAudioActivated))
	assert.Equal(t, 1, hf.ConnectCount())
	assert.Equal(t, Earpiece, r.CurrentDevice())
}

func TestOnSwitchObserver(t *testing.T) {
	var switches [][2]Device
	r, _, _, policy := newTestRouter(Options{
		EarpieceAvailable: true,
		OnSwitch:          func(from, to Device) { switches = append(switches, [2]Device{from, to}) },
	})
	policy.set(call.InterruptActivated)
	r.ProcessEvent(EventAudioActivated)
	r.ProcessEvent(EventAudioDeactivated)
	assert.Equal(t, [][2]Device{{Disabled, Earpiece}, {Earpiece, Disabled}}, switches)
}
