package engine

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Stub is an in-process engine used when no platform audio service is
// linked in. It accepts every request, remembers the resulting state and
// logs what a real engine would have been asked to do.
type Stub struct {
	log *logrus.Entry

	mu        sync.Mutex
	scene     Scene
	active    DeviceType
	hasActive bool
	muted     bool
	ringer    RingerMode
	volumes   map[StreamType]int
	scoState  ScoState
}

// NewStub creates a Stub engine with the given ringer mode.
func NewStub(log *logrus.Entry, ringer RingerMode) *Stub {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Stub{
		log:     log,
		ringer:  ringer,
		volumes: make(map[StreamType]int),
	}
}

func (s *Stub) SetScene(scene Scene) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.WithField("scene", scene).Debug("set audio scene")
	s.scene = scene
	return true
}

// Scene returns the last scene set.
func (s *Stub) Scene() Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene
}

func (s *Stub) ActivateDevice(device DeviceType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.WithField("device", device).Debug("activate audio device")
	s.active = device
	s.hasActive = true
	return true
}

func (s *Stub) IsDeviceActive(device DeviceType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasActive && s.active == device
}

func (s *Stub) SetMicrophoneMute(mute bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.WithField("mute", mute).Debug("set microphone mute")
	s.muted = mute
	return true
}

func (s *Stub) RingerMode() RingerMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ringer
}

// SetRingerMode changes the ringer mode reported to the core.
func (s *Stub) SetRingerMode(mode RingerMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ringer = mode
}

func (s *Stub) SetVolume(stream StreamType, level int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumes[stream] = level
	return true
}

func (s *Stub) MaxVolume(StreamType) int { return 15 }

// ConnectSco always fails: the stub has no Bluetooth stack behind it.
func (s *Stub) ConnectSco(address string) bool {
	s.log.WithField("address", address).Debug("sco connect requested, no hands-free stack")
	return false
}

func (s *Stub) SetScoState(state ScoState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scoState = state
	s.log.WithField("sco", state).Debug("sco state changed")
}

func (s *Stub) IsAvailable() bool { return false }

func (s *Stub) StartVibrate() error {
	s.log.Debug("vibrate start")
	return nil
}

func (s *Stub) CancelVibrate() error {
	s.log.Debug("vibrate cancel")
	return nil
}
