package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callaudio/call"
	"callaudio/device"
	"callaudio/engine/enginetest"
	"callaudio/orchestrator"
	"callaudio/scene"
)

func newAudio(t *testing.T) (*orchestrator.Orchestrator, *enginetest.Engine, *enginetest.Renderer) {
	t.Helper()
	eng := enginetest.NewEngine()
	rr := &enginetest.Renderer{}
	o := orchestrator.New(orchestrator.Config{
		RingtonePath:      "/ring.wav",
		EarpieceAvailable: true,
	}, orchestrator.Deps{Engine: eng, Vibrator: &enginetest.Vibrator{}, Renderer: rr}, nil)
	require.NoError(t, o.Initialize())
	t.Cleanup(o.Shutdown)
	return o, eng, rr
}

func TestRegistryIncomingCall(t *testing.T) {
	o, _, _ := newAudio(t)
	r := NewRegistry(o, nil, nil)

	r.Apply(Event{Key: "sip:a", Number: "100", Kind: call.KindIP, State: call.StateIncoming})
	rec, ok := r.Lookup("sip:a")
	require.True(t, ok)
	assert.Equal(t, call.StateIncoming, rec.State())
	assert.True(t, o.IsCurrentRinging())

	r.Apply(Event{Key: "sip:a", Number: "100", Kind: call.KindIP, State: call.StateActive})
	assert.False(t, o.IsCurrentRinging())
	assert.Equal(t, scene.StateIMSCall, o.SceneState())
	assert.Equal(t, device.Earpiece, o.CurrentDevice())

	r.Apply(Event{Key: "sip:a", State: call.StateDisconnected})
	_, ok = r.Lookup("sip:a")
	assert.False(t, ok)
	assert.Empty(t, o.Calls())
	assert.Equal(t, scene.StateInactive, o.SceneState())
}

func TestRegistrySecondCallWaits(t *testing.T) {
	o, _, rr := newAudio(t)
	r := NewRegistry(o, nil, nil)

	r.Apply(Event{Key: "sip:a", Number: "100", Kind: call.KindIP, State: call.StateIncoming})
	r.Apply(Event{Key: "sip:a", Number: "100", Kind: call.KindIP, State: call.StateActive})
	r.Apply(Event{Key: "tg:7", Number: "+3100", Kind: call.KindOTT, State: call.StateIncoming})

	rec, ok := r.Lookup("tg:7")
	require.True(t, ok)
	assert.Equal(t, call.StateWaiting, rec.State())
	assert.Equal(t, scene.StateIMSCall, o.SceneState())
	assert.Eventually(t, func() bool {
		tones := rr.Tones()
		return len(tones) == 1 && tones[0] == "call-waiting"
	}, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"sip:a", "tg:7"}, r.Keys())
}

func TestRegistryEmergencyNumber(t *testing.T) {
	o, eng, _ := newAudio(t)
	r := NewRegistry(o, []string{"112"}, nil)

	r.Apply(Event{Key: "sip:e", Number: "112", Kind: call.KindIP, State: call.StateDialing})
	r.Apply(Event{Key: "sip:e", Number: "112", Kind: call.KindIP, State: call.StateActive})
	rec, _ := r.Lookup("sip:e")
	assert.True(t, rec.IsEmergency())

	require.NoError(t, o.SetMute(true))
	mute, _ := eng.LastMute()
	assert.False(t, mute)
}

func TestRegistryLocalRingback(t *testing.T) {
	o, _, rr := newAudio(t)
	r := NewRegistry(o, nil, nil)

	r.Apply(Event{Key: "sip:o", Number: "200", Kind: call.KindIP, State: call.StateDialing})
	r.Apply(Event{Key: "sip:o", Number: "200", Kind: call.KindIP, State: call.StateAlerting, LocalRingback: true})
	assert.Eventually(t, func() bool {
		tones := rr.Tones()
		return len(tones) == 1 && tones[0] == "ringback"
	}, time.Second, 5*time.Millisecond)
}

func TestRegistryDTMFAndUnknownEnd(t *testing.T) {
	o, _, rr := newAudio(t)
	r := NewRegistry(o, nil, nil)

	r.Apply(Event{Key: "sip:x", State: call.StateDisconnected})
	assert.Empty(t, r.Keys())
	assert.Empty(t, o.Calls())

	r.Apply(Event{Key: "sip:a", Number: "100", Kind: call.KindIP, State: call.StateDialing})
	r.Apply(Event{Key: "sip:a", Number: "100", Kind: call.KindIP, State: call.StateActive})
	r.Apply(Event{Key: "sip:a", Digits: "1#"})
	assert.Eventually(t, func() bool { return len(rr.Tones()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestRegistryRelease(t *testing.T) {
	o, _, _ := newAudio(t)
	r := NewRegistry(o, nil, nil)

	r.Apply(Event{Key: "tg:1", Number: "+3100", Kind: call.KindOTT, State: call.StateDialing})
	require.Len(t, o.Calls(), 1)

	assert.True(t, r.Release("tg:1"))
	assert.False(t, r.Release("tg:1"))
	assert.Empty(t, r.Keys())
	assert.Empty(t, o.Calls())
}
