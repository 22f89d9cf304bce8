package satconf

import (
	"fmt"
	"time"

	"github.com/nerrad567/satlink-core/internal/dvb"
)

// voltageSettle is the pause after every voltage change.
const voltageSettle = 15 * time.Millisecond

// toneSettle is the pause after a tone change before the frontend tunes.
const toneSettle = 20 * time.Millisecond

// known is a cache slot: a value, or unknown.
type known[T comparable] struct {
	v  T
	ok bool
}

func (k known[T]) is(v T) bool    { return k.ok && k.v == v }
func (k known[T]) get() (T, bool) { return k.v, k.ok }
func (k *known[T]) set(v T)       { k.v, k.ok = v, true }
func (k *known[T]) forget()       { *k = known[T]{} }

// switchKey is what the switch cache compares.
type switchKey struct {
	element string
	pol     int
	band    int
}

// session is the last hardware state successfully asserted on a port.
// A slot is forgotten before its command is written and set only after the
// write succeeds.
type session struct {
	sw      known[switchKey]
	burst   known[dvb.Burst]
	voltage known[dvb.Voltage]
	tone    known[dvb.Tone]
	rotor   known[int] // tenths of a degree
}

func (s *session) invalidate() {
	*s = session{}
}

// line writes to one control port and keeps a session cache in step.
type line struct {
	port  dvb.Port
	cache *session
	force bool
	sleep func(time.Duration)
	sent  *int
}

func hardwareErr(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrHardwareIO, what, err)
}

func (l line) count() {
	if l.sent != nil {
		*l.sent++
	}
}

// writeVoltage sets v unconditionally, without settling.
func (l line) writeVoltage(v dvb.Voltage) error {
	l.cache.voltage.forget()
	if err := l.port.SetVoltage(v); err != nil {
		return hardwareErr("set voltage "+v.String(), err)
	}
	l.count()
	l.cache.voltage.set(v)
	return nil
}

// setVoltage sets v unless the cache already shows it. It reports whether
// a command was written.
func (l line) setVoltage(v dvb.Voltage) (bool, error) {
	if !l.force && l.cache.voltage.is(v) {
		return false, nil
	}
	if err := l.writeVoltage(v); err != nil {
		return false, err
	}
	l.sleep(voltageSettle)
	return true, nil
}

// setTone sets t unless the cache already shows it.
func (l line) setTone(t dvb.Tone) (bool, error) {
	if !l.force && l.cache.tone.is(t) {
		return false, nil
	}
	l.cache.tone.forget()
	if err := l.port.SetTone(t); err != nil {
		return false, hardwareErr("set tone "+t.String(), err)
	}
	l.count()
	l.cache.tone.set(t)
	return true, nil
}

func (l line) send(f dvb.Frame) error {
	if err := l.port.SendFrame(f); err != nil {
		return hardwareErr("send diseqc "+f.String(), err)
	}
	l.count()
	return nil
}

func (l line) sendBurst(b dvb.Burst) error {
	l.cache.burst.forget()
	if err := l.port.SendBurst(b); err != nil {
		return hardwareErr("send toneburst "+b.String(), err)
	}
	l.count()
	l.cache.burst.set(b)
	return nil
}

// start prepares the bus for DiseqC: tone off, then voltage v. When the
// voltage had to change, the LNB and switches get delay to power up.
func (l line) start(delay time.Duration, v dvb.Voltage) error {
	if _, err := l.setTone(dvb.ToneOff); err != nil {
		return err
	}
	changed, err := l.setVoltage(v)
	if err != nil {
		return err
	}
	if changed && delay > voltageSettle {
		l.sleep(delay - voltageSettle)
	}
	return nil
}

// clampMs turns a configured millisecond value into a duration, using def
// for 0 and clamping to [lo, hi].
func clampMs(v, lo, hi, def int) time.Duration {
	if v == 0 {
		v = def
	}
	v = min(max(v, lo), hi)
	return time.Duration(v) * time.Millisecond
}
