package dvb

import "context"

// Port is the control side of a frontend: the LNB supply, the 22 kHz tone
// and the DiseqC bus.
//
// A Port is owned by whoever opened it. Implementations are not required to
// be safe for concurrent use; callers serialize access.
type Port interface {
	SetVoltage(v Voltage) error
	SetTone(t Tone) error
	SendFrame(f Frame) error
	SendBurst(b Burst) error
	Close() error
}

// Device is an opened frontend: its control port plus the RF lock primitive.
type Device interface {
	Port

	// Tune programs the demodulator without waiting for lock.
	Tune(freq uint32, t Tuning) error

	// Lock tunes the demodulator to freq (kHz, after any LNB or SCR
	// conversion) with the modulation parameters of t.
	Lock(ctx context.Context, freq uint32, t Tuning) error
}

// Opener opens a frontend device node.
type Opener interface {
	Open(path string) (Device, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(path string) (Device, error)

// Open calls f(path).
func (f OpenerFunc) Open(path string) (Device, error) {
	return f(path)
}
