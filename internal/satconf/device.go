package satconf

import "fmt"

// DeviceKind names the hardware stages an element can carry.
type DeviceKind int

const (
	DeviceSwitch DeviceKind = iota
	DeviceRotor
	DeviceUnicable
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceSwitch:
		return "switch"
	case DeviceRotor:
		return "rotor"
	case DeviceUnicable:
		return "unicable"
	default:
		return fmt.Sprintf("DeviceKind(%d)", int(k))
	}
}

// device is one hardware stage of an element. The set of implementations
// is closed: *SwitchConfig, *RotorConfig and *UnicableConfig.
type device interface {
	kind() DeviceKind

	// tune issues the stage's commands. A positive result asks the
	// coordinator to wait that many seconds before the next stage.
	tune(r *run) (int, error)

	// grace estimates the wait tune would ask for, without I/O.
	grace(sc *SatConf) int

	// post runs once the stage's wait is over.
	post(r *run)
}

// numSlots is the number of device stages per element.
const numSlots = 3

// slots returns the element's stages in tuning order. Absent stages are nil
// so cursor positions stay stable across elements.
func (e *Element) slots(switchFirst bool) [numSlots]device {
	var out [numSlots]device
	var sw, rot device
	if e.Switch != nil {
		sw = e.Switch
	}
	if e.Rotor != nil {
		rot = e.Rotor
	}
	if switchFirst {
		out[0], out[1] = sw, rot
	} else {
		out[0], out[1] = rot, sw
	}
	if e.Unicable != nil {
		out[2] = e.Unicable
	}
	return out
}
