// Package device implements the audio-device state machine: which physical
// path a call uses, and how that choice follows call activity and device
// connectivity.
package device

import (
	"fmt"

	"callaudio/call"
	"callaudio/engine"
)

// Device is the routing state. Disabled means no path is in use.
type Device int

const (
	Disabled Device = iota
	Earpiece
	Loudspeaker
	WiredHeadset
	BluetoothSco
)

func (d Device) String() string {
	switch d {
	case Disabled:
		return "disabled"
	case Earpiece:
		return "earpiece"
	case Loudspeaker:
		return "loudspeaker"
	case WiredHeadset:
		return "wired-headset"
	case BluetoothSco:
		return "bluetooth-sco"
	default:
		return fmt.Sprintf("unknown(%d)", int(d))
	}
}

// Physical reports whether d names a real audio path.
func (d Device) Physical() bool {
	_, ok := d.Type()
	return ok
}

// Type maps d to the engine's device type.
func (d Device) Type() (engine.DeviceType, bool) {
	switch d {
	case Earpiece:
		return engine.DeviceEarpiece, true
	case Loudspeaker:
		return engine.DeviceSpeaker, true
	case WiredHeadset:
		return engine.DeviceWiredHeadset, true
	case BluetoothSco:
		return engine.DeviceBluetoothSCO, true
	default:
		return 0, false
	}
}

// FromType maps an engine device type back to a Device.
func FromType(t engine.DeviceType) Device {
	switch t {
	case engine.DeviceEarpiece:
		return Earpiece
	case engine.DeviceSpeaker:
		return Loudspeaker
	case engine.DeviceWiredHeadset:
		return WiredHeadset
	case engine.DeviceBluetoothSCO:
		return BluetoothSco
	default:
		return Disabled
	}
}

// Event drives the router.
type Event int

const (
	EventEnableEarpiece Event = iota
	EventEnableSpeaker
	EventEnableWiredHeadset
	EventEnableBluetooth
	EventAudioActivated
	EventAudioRinging
	EventAudioDeactivated
	EventBluetoothConnected
	EventBluetoothDisconnected
	EventWiredHeadsetConnected
	EventWiredHeadsetDisconnected
	EventReInit
)

func (e Event) String() string {
	switch e {
	case EventEnableEarpiece:
		return "enable-earpiece"
	case EventEnableSpeaker:
		return "enable-speaker"
	case EventEnableWiredHeadset:
		return "enable-wired-headset"
	case EventEnableBluetooth:
		return "enable-bluetooth"
	case EventAudioActivated:
		return "audio-activated"
	case EventAudioRinging:
		return "audio-ringing"
	case EventAudioDeactivated:
		return "audio-deactivated"
	case EventBluetoothConnected:
		return "bluetooth-connected"
	case EventBluetoothDisconnected:
		return "bluetooth-disconnected"
	case EventWiredHeadsetConnected:
		return "wired-headset-connected"
	case EventWiredHeadsetDisconnected:
		return "wired-headset-disconnected"
	case EventReInit:
		return "re-init"
	default:
		return fmt.Sprintf("unknown(%d)", int(e))
	}
}

// Availability is the externally reported presence of each device.
type Availability struct {
	Earpiece     bool
	Loudspeaker  bool
	WiredHeadset bool
	BluetoothSco bool
}

// Has reports whether d is available. Disabled is always available.
func (a Availability) Has(d Device) bool {
	switch d {
	case Disabled:
		return true
	case Earpiece:
		return a.Earpiece
	case Loudspeaker:
		return a.Loudspeaker
	case WiredHeadset:
		return a.WiredHeadset
	case BluetoothSco:
		return a.BluetoothSco
	default:
		return false
	}
}

func (a *Availability) set(d Device, v bool) {
	switch d {
	case Earpiece:
		a.Earpiece = v
	case Loudspeaker:
		a.Loudspeaker = v
	case WiredHeadset:
		a.WiredHeadset = v
	case BluetoothSco:
		a.BluetoothSco = v
	}
}

// SelectInitial is the device priority policy: Bluetooth, wired headset,
// loudspeaker while ringing or when the active call asked for it,
// earpiece, and loudspeaker as the last resort.
func SelectInitial(st call.InterruptState, avail Availability, speakerOn bool) Device {
	switch {
	case st == call.InterruptDeactivated:
		return Disabled
	case avail.BluetoothSco:
		return BluetoothSco
	case avail.WiredHeadset:
		return WiredHeadset
	case st == call.InterruptRinging:
		return Loudspeaker
	case speakerOn:
		return Loudspeaker
	case avail.Earpiece:
		return Earpiece
	default:
		return Loudspeaker
	}
}
