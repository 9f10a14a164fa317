// Package enginetest provides recording fakes of the engine collaborators.
package enginetest

import (
	"errors"
	"sync"

	"callaudio/engine"
)

// ErrVibrator is returned by Vibrator when configured to fail.
var ErrVibrator = errors.New("vibrator failure")

// Engine is a recording engine.Engine. Fail* fields make the matching call
// return false.
type Engine struct {
	mu sync.Mutex

	FailScene    bool
	FailActivate map[engine.DeviceType]bool
	FailMute     bool
	Ringer       engine.RingerMode
	MaxLevel     int

	Scenes    []engine.Scene
	Activated []engine.DeviceType
	Mutes     []bool
	Volumes   map[engine.StreamType]int
}

// NewEngine returns a fake that accepts everything.
func NewEngine() *Engine {
	return &Engine{
		FailActivate: make(map[engine.DeviceType]bool),
		MaxLevel:     15,
		Volumes:      make(map[engine.StreamType]int),
	}
}

func (e *Engine) SetScene(scene engine.Scene) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailScene {
		return false
	}
	e.Scenes = append(e.Scenes, scene)
	return true
}

// LastScene returns the most recently accepted scene.
func (e *Engine) LastScene() (engine.Scene, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Scenes) == 0 {
		return engine.SceneDefault, false
	}
	return e.Scenes[len(e.Scenes)-1], true
}

func (e *Engine) SetFailScene(fail bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.FailScene = fail
}

func (e *Engine) SetFailActivate(device engine.DeviceType, fail bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.FailActivate[device] = fail
}

func (e *Engine) ActivateDevice(device engine.DeviceType) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailActivate[device] {
		return false
	}
	e.Activated = append(e.Activated, device)
	return true
}

func (e *Engine) IsDeviceActive(device engine.DeviceType) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Activated) > 0 && e.Activated[len(e.Activated)-1] == device
}

func (e *Engine) SetMicrophoneMute(mute bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailMute {
		return false
	}
	e.Mutes = append(e.Mutes, mute)
	return true
}

// LastMute returns the most recent mute request that reached the engine.
func (e *Engine) LastMute() (bool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Mutes) == 0 {
		return false, false
	}
	return e.Mutes[len(e.Mutes)-1], true
}

func (e *Engine) RingerMode() engine.RingerMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Ringer
}

func (e *Engine) SetVolume(stream engine.StreamType, level int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Volumes[stream] = level
	return true
}

func (e *Engine) MaxVolume(engine.StreamType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.MaxLevel
}

// HandsFree is a recording engine.HandsFree.
type HandsFree struct {
	mu sync.Mutex

	ConnectOK bool
	Available bool
	Connects  []string
	States    []engine.ScoState
}

func (h *HandsFree) ConnectSco(address string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Connects = append(h.Connects, address)
	return h.ConnectOK
}

func (h *HandsFree) SetScoState(state engine.ScoState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.States = append(h.States, state)
}

func (h *HandsFree) IsAvailable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Available
}

// ScoStates returns a copy of the reported SCO states.
func (h *HandsFree) ScoStates() []engine.ScoState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]engine.ScoState(nil), h.States...)
}

// ConnectCount returns how many SCO connections were requested.
func (h *HandsFree) ConnectCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Connects)
}

// Vibrator counts start and cancel requests.
type Vibrator struct {
	mu sync.Mutex

	Fail    bool
	Starts  int
	Cancels int
}

func (v *Vibrator) StartVibrate() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.Fail {
		return ErrVibrator
	}
	v.Starts++
	return nil
}

func (v *Vibrator) CancelVibrate() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Cancels++
	return nil
}

// Counts returns the start and cancel counts.
func (v *Vibrator) Counts() (starts, cancels int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Starts, v.Cancels
}
