package scene

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callaudio/call"
	"callaudio/device"
	"callaudio/engine"
	"callaudio/engine/enginetest"
	"callaudio/tracker"
)

type countingPlayer struct {
	mu       sync.Mutex
	ringtone int
	ringback int
	waiting  int
	released int
}

func (p *countingPlayer) PlayRingtone() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ringtone++
	return nil
}

func (p *countingPlayer) PlayRingback() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ringback++
	return nil
}

func (p *countingPlayer) PlayWaitingTone() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waiting++
	return nil
}

func (p *countingPlayer) ReleaseRenderer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released++
}

type recordingDevices struct {
	events []device.Event
}

func (d *recordingDevices) ProcessEvent(ev device.Event) bool {
	d.events = append(d.events, ev)
	return true
}

type fixture struct {
	router  *Router
	eng     *enginetest.Engine
	tracker *tracker.Tracker
	player  *countingPlayer
	devices *recordingDevices
}

func newFixture() *fixture {
	f := &fixture{
		eng:     enginetest.NewEngine(),
		tracker: tracker.New(),
		player:  &countingPlayer{},
		devices: &recordingDevices{},
	}
	f.router = NewRouter(f.eng, f.tracker, f.player, f.devices, nil)
	return f
}

func TestSwitchTable(t *testing.T) {
	tests := []struct {
		ev     Event
		state  State
		scene  engine.Scene
		device device.Event
	}{
		{EventSwitchDialing, StateDialing, engine.ScenePhoneCall, device.EventAudioActivated},
		{EventSwitchAlerting, StateAlerting, engine.ScenePhoneCall, device.EventAudioActivated},
		{EventSwitchIncoming, StateIncoming, engine.SceneRinging, device.EventAudioRinging},
		{EventSwitchCS, StateCSCall, engine.ScenePhoneCall, device.EventAudioActivated},
		{EventSwitchIMS, StateIMSCall, engine.ScenePhoneCall, device.EventAudioActivated},
	}
	for _, tt := range tests {
		t.Run(tt.ev.String(), func(t *testing.T) {
			f := newFixture()
			require.True(t, f.router.Dispatch(tt.ev))
			assert.Equal(t, tt.state, f.router.State())
			assert.Equal(t, tt.scene, f.router.Scene())
			assert.Equal(t, []device.Event{tt.device}, f.devices.events)
		})
	}
}

func TestSwitchHoldingKeepsScene(t *testing.T) {
	f := newFixture()
	f.router.Dispatch(EventSwitchCS)
	require.True(t, f.router.Dispatch(EventSwitchHolding))
	assert.Equal(t, StateHolding, f.router.State())
	assert.Equal(t, engine.ScenePhoneCall, f.router.Scene())
	last, _ := f.eng.LastScene()
	assert.Equal(t, engine.ScenePhoneCall, last)
}

func TestSwitchInactive(t *testing.T) {
	f := newFixture()
	f.router.Dispatch(EventSwitchDialing)
	require.True(t, f.router.Dispatch(EventSwitchInactive))
	assert.Equal(t, StateInactive, f.router.State())
	assert.Equal(t, engine.SceneDefault, f.router.Scene())
	assert.Equal(t, device.EventAudioDeactivated, f.devices.events[len(f.devices.events)-1])
}

func TestIncomingStartsRingtoneOnce(t *testing.T) {
	f := newFixture()
	f.tracker.AddCall("100", call.StateIncoming)

	require.True(t, f.router.Dispatch(EventNewIncoming))
	require.True(t, f.router.Dispatch(EventSwitchIncoming))
	require.True(t, f.router.Dispatch(EventNewIncoming))
	assert.Equal(t, 1, f.player.ringtone)
}

func TestAlertingStartsRingback(t *testing.T) {
	f := newFixture()
	f.router.Dispatch(EventNewDialing)
	f.router.Dispatch(EventNewAlerting)
	assert.Equal(t, StateAlerting, f.router.State())
	assert.Equal(t, 1, f.player.ringback)
}

func TestSceneFailureKeepsState(t *testing.T) {
	f := newFixture()
	f.router.Dispatch(EventSwitchCS)
	f.eng.SetFailScene(true)

	assert.False(t, f.router.Dispatch(EventSwitchInactive))
	assert.Equal(t, StateCSCall, f.router.State())
	assert.Equal(t, engine.ScenePhoneCall, f.router.Scene())
	assert.Len(t, f.devices.events, 1, "failed transition must not notify the device router")
}

func TestCallWaitingPlaysTone(t *testing.T) {
	f := newFixture()
	f.tracker.AddCall("A", call.StateActive)
	f.router.Dispatch(EventNewActiveCS)
	require.Equal(t, StateCSCall, f.router.State())

	f.tracker.AddCall("B", call.StateIncoming)
	require.True(t, f.router.Dispatch(EventNewIncoming))
	assert.Equal(t, StateCSCall, f.router.State())
	assert.Equal(t, 1, f.player.waiting)
	assert.Equal(t, 0, f.player.ringtone)
}

func TestNoMoreActiveFallsBackToHolding(t *testing.T) {
	f := newFixture()
	f.tracker.AddCall("A", call.StateActive)
	f.router.Dispatch(EventNewActiveCS)

	f.tracker.AddCall("A", call.StateHolding)
	f.tracker.DeleteCall("A", call.StateActive)
	require.True(t, f.router.Dispatch(EventNoMoreActive))
	assert.Equal(t, StateHolding, f.router.State())
	assert.Equal(t, 1, f.player.released)
}

func TestNoMoreActiveWithoutCallsGoesInactive(t *testing.T) {
	f := newFixture()
	f.router.Dispatch(EventNewActiveIMS)
	require.Equal(t, StateIMSCall, f.router.State())

	f.router.Dispatch(EventNoMoreActive)
	assert.Equal(t, StateInactive, f.router.State())
}

func TestHoldingSwitchesOnlyForSingleCall(t *testing.T) {
	f := newFixture()
	f.router.Dispatch(EventSwitchHolding)

	f.tracker.AddCall("1", call.StateIncoming)
	f.tracker.AddCall("2", call.StateIncoming)
	f.router.Dispatch(EventNewIncoming)
	assert.Equal(t, StateHolding, f.router.State(), "two incoming calls do not qualify")

	f.tracker.DeleteCall("2", call.StateIncoming)
	f.router.Dispatch(EventNewIncoming)
	assert.Equal(t, StateIncoming, f.router.State())
}

func TestIncomingToActiveRequiresSingleActive(t *testing.T) {
	f := newFixture()
	f.tracker.AddCall("1", call.StateIncoming)
	f.router.Dispatch(EventNewIncoming)

	f.tracker.AddCall("1", call.StateActive)
	f.router.Dispatch(EventNewActiveIMS)
	assert.Equal(t, StateIMSCall, f.router.State())
}

func TestOnTransitionObserver(t *testing.T) {
	f := newFixture()
	var seen [][2]State
	f.router.OnTransition = func(from, to State) { seen = append(seen, [2]State{from, to}) }
	f.router.Dispatch(EventSwitchDialing)
	f.router.Dispatch(EventSwitchDialing)
	f.router.Dispatch(EventSwitchInactive)
	assert.Equal(t, [][2]State{{StateInactive, StateDialing}, {StateDialing, StateInactive}}, seen)
}

type lockCheckingPlayer struct {
	countingPlayer
	router   *Router
	unlocked bool
}

func (p *lockCheckingPlayer) PlayRingtone() error {
	if p.router.mu.TryLock() {
		p.unlocked = true
		p.router.mu.Unlock()
	}
	return p.countingPlayer.PlayRingtone()
}

type lockCheckingDevices struct {
	router   *Router
	unlocked bool
}

func (d *lockCheckingDevices) ProcessEvent(device.Event) bool {
	if d.router.mu.TryLock() {
		d.unlocked = true
		d.router.mu.Unlock()
	}
	return true
}

func TestEffectsRunUnderRouterLock(t *testing.T) {
	eng := enginetest.NewEngine()
	tr := tracker.New()
	player := &lockCheckingPlayer{}
	devices := &lockCheckingDevices{}
	r := NewRouter(eng, tr, player, devices, nil)
	player.router, devices.router = r, r

	tr.AddCall("100", call.StateIncoming)
	require.True(t, r.Dispatch(EventSwitchIncoming))
	assert.Equal(t, 1, player.ringtone)
	assert.False(t, player.unlocked, "ringtone started outside the dispatch lock")
	assert.False(t, devices.unlocked, "device notified outside the dispatch lock")
}
