package dvb

import (
	"encoding/hex"
	"fmt"
)

// DiseqC framing bytes.
const (
	FramingCommand byte = 0xE0
	FramingRepeat  byte = 0xE1
)

// DiseqC addresses.
const (
	AddrAnySwitch  byte = 0x10
	AddrPolarMotor byte = 0x31
)

// DiseqC commands.
const (
	CmdWriteN0        byte = 0x38
	CmdWriteN1        byte = 0x39
	CmdGotoStored     byte = 0x6B
	CmdGotoAngular    byte = 0x6E
	CmdODUChannel     byte = 0x5A
	CmdODUChannelPIN  byte = 0x5C
	CmdEN50607Tune    byte = 0x70
	CmdEN50607TunePIN byte = 0x71
)

// MaxFrameLen is the longest master command the Linux API accepts.
const MaxFrameLen = 6

// Frame is a DiseqC master command as written to the bus.
type Frame []byte

// NewFrame builds a DiseqC 1.x frame: framing, address, command and up to
// three data bytes.
func NewFrame(framing, address, command byte, data ...byte) (Frame, error) {
	if len(data) > 3 {
		return nil, fmt.Errorf("%w: %d data bytes, at most 3", ErrInvalidParameter, len(data))
	}
	f := make(Frame, 0, 3+len(data))
	f = append(f, framing, address, command)
	return append(f, data...), nil
}

// RawFrame wraps a frame that does not follow DiseqC 1.x framing (EN50607).
func RawFrame(b ...byte) (Frame, error) {
	if len(b) == 0 || len(b) > MaxFrameLen {
		return nil, fmt.Errorf("%w: raw frame of %d bytes", ErrInvalidParameter, len(b))
	}
	return Frame(append([]byte(nil), b...)), nil
}

// String renders the frame as spaced hex, e.g. "e0 10 38 f3".
func (f Frame) String() string {
	out := make([]byte, 0, len(f)*3)
	for i, b := range f {
		if i > 0 {
			out = append(out, ' ')
		}
		out = hex.AppendEncode(out, []byte{b})
	}
	return string(out)
}

// Framing returns the framing byte for transmission n of a repeated
// command: 0xE0 first, 0xE1 for the repeats.
func Framing(n int) byte {
	if n == 0 {
		return FramingCommand
	}
	return FramingRepeat
}
