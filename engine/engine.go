// Package engine declares the platform collaborators the call audio core
// drives: the audio engine, the Bluetooth hands-free service and the
// vibrator.
package engine

import "fmt"

// Scene is the acoustic mode presented to the audio engine.
type Scene int

const (
	SceneDefault Scene = iota
	SceneRinging
	ScenePhoneCall
)

func (s Scene) String() string {
	switch s {
	case SceneDefault:
		return "default"
	case SceneRinging:
		return "ringing"
	case ScenePhoneCall:
		return "phone-call"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// DeviceType is a physical audio path the engine can activate.
type DeviceType int

const (
	DeviceEarpiece DeviceType = iota
	DeviceSpeaker
	DeviceWiredHeadset
	DeviceBluetoothSCO
)

func (d DeviceType) String() string {
	switch d {
	case DeviceEarpiece:
		return "earpiece"
	case DeviceSpeaker:
		return "speaker"
	case DeviceWiredHeadset:
		return "wired-headset"
	case DeviceBluetoothSCO:
		return "bluetooth-sco"
	default:
		return fmt.Sprintf("unknown(%d)", int(d))
	}
}

// RingerMode is the user's ringer setting.
type RingerMode int

const (
	RingerNormal RingerMode = iota
	RingerVibrate
	RingerSilent
)

func (m RingerMode) String() string {
	switch m {
	case RingerNormal:
		return "normal"
	case RingerVibrate:
		return "vibrate"
	case RingerSilent:
		return "silent"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// StreamType selects the volume stream a sound plays on.
type StreamType int

const (
	StreamVoiceCall StreamType = iota
	StreamRing
	StreamDTMF
)

func (s StreamType) String() string {
	switch s {
	case StreamVoiceCall:
		return "voice-call"
	case StreamRing:
		return "ring"
	case StreamDTMF:
		return "dtmf"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ScoState is reported to the hands-free service whenever the SCO link
// becomes, or stops being, the active audio path.
type ScoState int

const (
	ScoDisconnected ScoState = iota
	ScoConnected
)

func (s ScoState) String() string {
	if s == ScoConnected {
		return "connected"
	}
	return "disconnected"
}

// Engine is the audio engine. Every mutating call reports success; a false
// return means the engine refused (device busy, path missing).
type Engine interface {
	SetScene(scene Scene) bool
	ActivateDevice(device DeviceType) bool
	IsDeviceActive(device DeviceType) bool
	SetMicrophoneMute(mute bool) bool
	RingerMode() RingerMode
	SetVolume(stream StreamType, level int) bool
	MaxVolume(stream StreamType) int
}

// HandsFree is the Bluetooth hands-free profile service.
type HandsFree interface {
	// ConnectSco asks for a SCO link to address, or to the active device
	// when address is empty.
	ConnectSco(address string) bool
	SetScoState(state ScoState)
	IsAvailable() bool
}

// Vibrator drives the vibration motor.
type Vibrator interface {
	StartVibrate() error
	CancelVibrate() error
}
