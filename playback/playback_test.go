package playback

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callaudio/engine"
	"callaudio/engine/enginetest"
	"callaudio/render"
)

func waitDone(t *testing.T, c <-chan struct{}) {
	t.Helper()
	select {
	case <-c:
	case <-time.After(2 * time.Second):
		t.Fatal("render goroutine did not exit")
	}
}

func TestRingNormalPlaysAndVibrates(t *testing.T) {
	rr := &enginetest.Renderer{}
	vib := &enginetest.Vibrator{}
	ring := NewRing(rr, vib, "/ring.ogg", engine.RingerNormal, true, nil)

	require.NoError(t, ring.Play())
	assert.True(t, ring.IsPlaying())
	require.Eventually(t, func() bool { return len(rr.Assets()) == 1 }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, ring.Play(), ErrAlreadyPlaying)

	require.NoError(t, ring.Stop())
	waitDone(t, ring.Done())
	starts, cancels := vib.Counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, cancels)
}

func TestRingStopIsIdempotent(t *testing.T) {
	ring := NewRing(&enginetest.Renderer{}, &enginetest.Vibrator{}, "/ring.ogg", engine.RingerNormal, false, nil)
	assert.NoError(t, ring.Stop())
	require.NoError(t, ring.Play())
	assert.NoError(t, ring.Stop())
	assert.NoError(t, ring.Stop())
	assert.False(t, ring.IsPlaying())
}

func TestRingVibrateOnly(t *testing.T) {
	rr := &enginetest.Renderer{}
	vib := &enginetest.Vibrator{}
	ring := NewRing(rr, vib, "", engine.RingerVibrate, false, nil)

	require.NoError(t, ring.Play())
	assert.Empty(t, rr.Assets())
	starts, _ := vib.Counts()
	assert.Equal(t, 1, starts)
	require.NoError(t, ring.Stop())
}

func TestRingSilentRefuses(t *testing.T) {
	vib := &enginetest.Vibrator{}
	ring := NewRing(&enginetest.Renderer{}, vib, "/ring.ogg", engine.RingerSilent, true, nil)
	assert.ErrorIs(t, ring.Play(), ErrRingerSilent)
	assert.False(t, ring.IsPlaying())
	starts, _ := vib.Counts()
	assert.Zero(t, starts)
}

func TestRingWithoutAssetRefuses(t *testing.T) {
	ring := NewRing(&enginetest.Renderer{}, nil, "", engine.RingerNormal, false, nil)
	assert.ErrorIs(t, ring.Play(), ErrAssetUnset)
}

func TestRingVibratorFailureStillRings(t *testing.T) {
	vib := &enginetest.Vibrator{Fail: true}
	ring := NewRing(&enginetest.Renderer{}, vib, "/ring.ogg", engine.RingerNormal, true, nil)
	require.NoError(t, ring.Play())
	require.NoError(t, ring.Stop())
	_, cancels := vib.Counts()
	assert.Zero(t, cancels)
}

func TestRingRenderFailureEndsRinging(t *testing.T) {
	rr := &enginetest.Renderer{AssetErr: errors.New("unsupported audio asset format")}
	ring := NewRing(rr, &enginetest.Vibrator{}, "/ring.xyz", engine.RingerNormal, false, nil)

	require.NoError(t, ring.Play())
	waitDone(t, ring.Done())
	assert.False(t, ring.IsPlaying())
	assert.NoError(t, ring.Play(), "ring can be started again")
	waitDone(t, ring.Done())
	assert.NoError(t, ring.Stop())
}

func TestRingRenderFailureKeepsVibrating(t *testing.T) {
	rr := &enginetest.Renderer{AssetErr: errors.New("decode failed")}
	vib := &enginetest.Vibrator{}
	ring := NewRing(rr, vib, "/ring.ogg", engine.RingerNormal, true, nil)

	require.NoError(t, ring.Play())
	waitDone(t, ring.Done())
	assert.True(t, ring.IsPlaying())

	require.NoError(t, ring.Stop())
	_, cancels := vib.Counts()
	assert.Equal(t, 1, cancels)
}

func TestToneFinishesOnItsOwn(t *testing.T) {
	rr := &enginetest.Renderer{}
	tone, err := NewTone(rr, render.ToneDTMF7, nil)
	require.NoError(t, err)

	require.NoError(t, tone.Play())
	waitDone(t, tone.Done())
	assert.False(t, tone.IsPlaying())
	assert.Equal(t, []engine.StreamType{engine.StreamDTMF}, rr.Streams())
}

func TestRepeatingToneStops(t *testing.T) {
	rr := &enginetest.Renderer{}
	tone, err := NewTone(rr, render.ToneRingback, nil)
	require.NoError(t, err)

	require.NoError(t, tone.Play())
	assert.True(t, tone.IsPlaying())
	require.NoError(t, tone.Stop())
	require.NoError(t, tone.Stop())
	waitDone(t, tone.Done())
	assert.False(t, tone.IsPlaying())
}

func TestUnknownTone(t *testing.T) {
	_, err := NewTone(&enginetest.Renderer{}, render.ToneKind(999), nil)
	assert.ErrorIs(t, err, ErrUnknownTone)
}
