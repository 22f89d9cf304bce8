// Package simdvb is an in-memory frontend that records every command sent
// to it. It backs the "simulated" driver and the package tests.
package simdvb

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/satlink-core/internal/dvb"
)

// Operation names recorded in Call.Op.
const (
	OpVoltage = "voltage"
	OpTone    = "tone"
	OpFrame   = "frame"
	OpBurst   = "burst"
	OpTune    = "tune"
	OpLock    = "lock"
	OpClose   = "close"
)

// Call is one recorded command.
type Call struct {
	Op      string
	Voltage dvb.Voltage
	Tone    dvb.Tone
	Frame   dvb.Frame
	Burst   dvb.Burst
	Freq    uint32
}

func (c Call) String() string {
	switch c.Op {
	case OpVoltage:
		return "voltage " + c.Voltage.String()
	case OpTone:
		return "tone " + c.Tone.String()
	case OpFrame:
		return "frame " + c.Frame.String()
	case OpBurst:
		return "burst " + c.Burst.String()
	case OpTune, OpLock:
		return fmt.Sprintf("%s %d", c.Op, c.Freq)
	default:
		return c.Op
	}
}

// Device records commands and can be told to fail them.
type Device struct {
	Path string

	mu     sync.Mutex
	calls  []Call
	fail   map[string]error
	closed bool
	closes int
}

// NewDevice returns an open device for path.
func NewDevice(path string) *Device {
	return &Device{Path: path, fail: make(map[string]error)}
}

// FailOn makes every subsequent op return err. A nil err clears it.
func (d *Device) FailOn(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.fail, op)
		return
	}
	d.fail[op] = err
}

func (d *Device) record(c Call) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return dvb.ErrPortClosed
	}
	if err := d.fail[c.Op]; err != nil {
		return err
	}
	d.calls = append(d.calls, c)
	return nil
}

// SetVoltage implements dvb.Port.
func (d *Device) SetVoltage(v dvb.Voltage) error {
	return d.record(Call{Op: OpVoltage, Voltage: v})
}

// SetTone implements dvb.Port.
func (d *Device) SetTone(t dvb.Tone) error {
	return d.record(Call{Op: OpTone, Tone: t})
}

// SendFrame implements dvb.Port.
func (d *Device) SendFrame(f dvb.Frame) error {
	return d.record(Call{Op: OpFrame, Frame: append(dvb.Frame(nil), f...)})
}

// SendBurst implements dvb.Port.
func (d *Device) SendBurst(b dvb.Burst) error {
	return d.record(Call{Op: OpBurst, Burst: b})
}

// Tune implements dvb.Device.
func (d *Device) Tune(freq uint32, _ dvb.Tuning) error {
	return d.record(Call{Op: OpTune, Freq: freq})
}

// Lock implements dvb.Device.
func (d *Device) Lock(ctx context.Context, freq uint32, _ dvb.Tuning) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.record(Call{Op: OpLock, Freq: freq})
}

// Close implements dvb.Port. Closing twice is an error so tests catch
// double closes.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	if d.closed {
		return dvb.ErrPortClosed
	}
	d.closed = true
	return nil
}

// Calls returns a copy of the recorded commands.
func (d *Device) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// CallsOf returns the recorded commands of one op.
func (d *Device) CallsOf(op string) []Call {
	var out []Call
	for _, c := range d.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded commands.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// Closed reports whether Close was called, and how many times.
func (d *Device) Closed() (bool, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed, d.closes
}

// Opener hands out a fresh Device per Open and remembers them.
type Opener struct {
	mu      sync.Mutex
	opened  []*Device
	failErr error
}

// NewOpener returns an empty opener.
func NewOpener() *Opener {
	return &Opener{}
}

// Fail makes subsequent opens return err.
func (o *Opener) Fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failErr = err
}

// Open implements dvb.Opener.
func (o *Opener) Open(path string) (dvb.Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failErr != nil {
		return nil, o.failErr
	}
	d := NewDevice(path)
	o.opened = append(o.opened, d)
	return d, nil
}

// Opened returns every device handed out so far.
func (o *Opener) Opened() []*Device {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Device(nil), o.opened...)
}

// Last returns the most recently opened device, or nil.
func (o *Opener) Last() *Device {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.opened) == 0 {
		return nil
	}
	return o.opened[len(o.opened)-1]
}
