package dvb

import (
	"fmt"
	"strings"
)

// Polarisation of a satellite transponder.
type Polarisation int

const (
	Horizontal Polarisation = iota
	Vertical
	CircularLeft
	CircularRight
)

// String returns the single letter form used in channel lists.
func (p Polarisation) String() string {
	switch p {
	case Horizontal:
		return "H"
	case Vertical:
		return "V"
	case CircularLeft:
		return "L"
	case CircularRight:
		return "R"
	default:
		return fmt.Sprintf("Polarisation(%d)", int(p))
	}
}

// ParsePolarisation accepts "H", "V", "L", "R" or their long names.
func ParsePolarisation(s string) (Polarisation, error) {
	switch strings.ToLower(s) {
	case "h", "horizontal":
		return Horizontal, nil
	case "v", "vertical":
		return Vertical, nil
	case "l", "left", "circular-left":
		return CircularLeft, nil
	case "r", "right", "circular-right":
		return CircularRight, nil
	default:
		return 0, fmt.Errorf("%w: polarisation %q", ErrInvalidParameter, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Polarisation) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Polarisation) UnmarshalText(b []byte) error {
	v, err := ParsePolarisation(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Voltage is the LNB supply voltage. 13V selects vertical or circular-right,
// 18V horizontal or circular-left.
type Voltage int

const (
	VoltageOff Voltage = iota
	Voltage13
	Voltage18
)

func (v Voltage) String() string {
	switch v {
	case VoltageOff:
		return "off"
	case Voltage13:
		return "13V"
	case Voltage18:
		return "18V"
	default:
		return fmt.Sprintf("Voltage(%d)", int(v))
	}
}

// Tone is the 22 kHz continuous tone used for band selection.
type Tone int

const (
	ToneOff Tone = iota
	ToneOn
)

func (t Tone) String() string {
	if t == ToneOn {
		return "on"
	}
	return "off"
}

// Burst is a mini-DiseqC toneburst.
type Burst int

const (
	BurstA Burst = iota
	BurstB
)

func (b Burst) String() string {
	if b == BurstB {
		return "B"
	}
	return "A"
}

// DeliverySystem of a satellite mux.
type DeliverySystem string

const (
	DVBS  DeliverySystem = "DVB-S"
	DVBS2 DeliverySystem = "DVB-S2"
)

// Tuning is a satellite transponder a mux lives on.
type Tuning struct {
	// Network is the logical network (orbital position) the mux belongs to.
	Network string `json:"network"`

	// Frequency is the downlink frequency in kHz.
	Frequency uint32 `json:"frequency"`

	Polarisation   Polarisation   `json:"polarisation"`
	SymbolRate     uint32         `json:"symbol_rate"`
	DeliverySystem DeliverySystem `json:"delivery_system,omitempty"`
	Modulation     string         `json:"modulation,omitempty"`
	FEC            string         `json:"fec,omitempty"`
}

// String formats the tuning the way channel lists do, e.g. "11727000H".
func (t Tuning) String() string {
	return fmt.Sprintf("%d%s", t.Frequency, t.Polarisation)
}
