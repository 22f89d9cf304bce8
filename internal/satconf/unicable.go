package satconf

import (
	"fmt"
	"math"

	"github.com/nerrad567/satlink-core/internal/dvb"
)

// Standard is a Unicable generation.
type Standard int

const (
	// EN50494 is Unicable I: 8 user bands, 2 positions, 4 MHz steps.
	EN50494 Standard = iota

	// EN50607 is Unicable II / JESS: 32 user bands, 64 positions, 1 MHz steps.
	EN50607
)

func (s Standard) String() string {
	if s == EN50607 {
		return "en50607"
	}
	return "en50494"
}

// NoPin marks a user band without PIN protection.
const NoPin = -1

// Transponder index limits.
const (
	maxIndexEN50494 = 1023
	maxIndexEN50607 = 2047
)

// UnicableConfig is a user band on a Satellite Channel Router.
type UnicableConfig struct {
	Standard Standard

	// SCR is the user band id: 0-7 for EN50494, 0-31 for EN50607.
	SCR int

	// Frequency is the user band centre in MHz.
	Frequency int

	// Pin is 0-255, or NoPin.
	Pin int

	// Position selects the satellite: 0-1 for EN50494, 0-63 for EN50607.
	Position int

	// Group ties elements sharing one cable. 0 is standalone.
	Group int

	// Master marks the element whose frontend powers the shared cable.
	Master bool

	// PowerUpTime and CommandTime are in milliseconds. 0 uses the
	// defaults of 15 and 50.
	PowerUpTime int
	CommandTime int
}

func (u *UnicableConfig) validate() error {
	maxSCR, maxPos := 7, 1
	if u.Standard == EN50607 {
		maxSCR, maxPos = 31, 63
	}
	if u.SCR < 0 || u.SCR > maxSCR {
		return fmt.Errorf("%w: %s scr %d", ErrConfigInvalid, u.Standard, u.SCR)
	}
	if u.Position < 0 || u.Position > maxPos {
		return fmt.Errorf("%w: %s position %d", ErrConfigInvalid, u.Standard, u.Position)
	}
	if u.Frequency <= 0 {
		return fmt.Errorf("%w: user band frequency %d", ErrConfigInvalid, u.Frequency)
	}
	if u.Pin != NoPin && (u.Pin < 0 || u.Pin > 255) {
		return fmt.Errorf("%w: pin out of range", ErrConfigInvalid)
	}
	if u.Group < 0 || (u.Master && u.Group == 0) {
		return fmt.Errorf("%w: group %d master=%v", ErrConfigInvalid, u.Group, u.Master)
	}
	return nil
}

// slave reports whether commands must go through the group master.
func (u *UnicableConfig) slave() bool {
	return u.Group != 0 && !u.Master
}

// TuningFrequency maps an LNB intermediate frequency (kHz) to the frequency
// the frontend must tune (kHz) and the transponder index sent to the SCR.
func (u *UnicableConfig) TuningFrequency(ifFreq uint32) (rf uint32, index int, err error) {
	switch u.Standard {
	case EN50607:
		index = int(math.Round(float64(ifFreq)/1000)) - 100
		if index < 0 || index > maxIndexEN50607 {
			return 0, 0, fmt.Errorf("%w: en50607 transponder index %d for %d kHz", ErrConfigInvalid, index, ifFreq)
		}
		return uint32(u.Frequency) * 1000, index, nil
	default:
		index = (int(ifFreq/1000)+2+u.Frequency)/4 - 350
		if index < 0 || index > maxIndexEN50494 {
			return 0, 0, fmt.Errorf("%w: en50494 transponder index %d for %d kHz", ErrConfigInvalid, index, ifFreq)
		}
		return uint32((index+350)*4000) - ifFreq, index, nil
	}
}

// Frame builds the channel change command for a transponder index.
func (u *UnicableConfig) Frame(index, pol, band int) (dvb.Frame, error) {
	switch u.Standard {
	case EN50607:
		d1 := byte(u.SCR<<3) | byte(index>>8)
		d2 := byte(index)
		d3 := byte(u.Position&0x3F)<<2 | byte(pol)<<1 | byte(band)
		if u.Pin != NoPin {
			return dvb.RawFrame(dvb.CmdEN50607TunePIN, d1, d2, d3, byte(u.Pin))
		}
		return dvb.RawFrame(dvb.CmdEN50607Tune, d1, d2, d3)
	default:
		d1 := byte(u.SCR<<5) | byte(u.Position<<4) | byte(pol)<<3 | byte(band)<<2 | byte(index>>8)
		d2 := byte(index)
		if u.Pin != NoPin {
			return dvb.NewFrame(dvb.FramingCommand, dvb.AddrAnySwitch, dvb.CmdODUChannelPIN, d1, d2, byte(u.Pin))
		}
		return dvb.NewFrame(dvb.FramingCommand, dvb.AddrAnySwitch, dvb.CmdODUChannel, d1, d2)
	}
}

func (u *UnicableConfig) kind() DeviceKind { return DeviceUnicable }

func (u *UnicableConfig) grace(*SatConf) int { return 0 }

func (u *UnicableConfig) post(*run) {}

func (u *UnicableConfig) tune(r *run) (int, error) {
	a := r.a
	frame, err := u.Frame(a.scrIndex, a.Pol, a.Band)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	if u.slave() {
		return 0, u.tuneViaMaster(r, frame)
	}

	m := r.sc.mgr
	m.lockStandalone()
	defer m.standalone.Unlock()
	if err := u.sequence(r, r.line, frame); err != nil {
		return 0, err
	}
	r.sc.logger.Debug("unicable command sent", "element", r.el.ID, "standard", u.Standard.String(),
		"scr", u.SCR, "index", a.scrIndex, "frame", frame.String())
	return 0, nil
}

// tuneViaMaster sends the command on the group master's port, holding the
// group lock for the whole exchange.
func (u *UnicableConfig) tuneViaMaster(r *run, frame dvb.Frame) error {
	g := r.sc.mgr.groups.Group(u.Group)
	g.Lock()
	defer g.Unlock()

	port, master, err := g.AcquireMasterPort()
	if err != nil {
		return err
	}
	defer func() {
		if err := g.ReleaseMasterPort(); err != nil {
			r.sc.logger.Warn("releasing unicable master port", "group", u.Group, "error", err)
		}
	}()

	// A borrowed port belongs to an active master whose cache must follow
	// the cable. An owned port gets a scratch cache.
	cache := &session{}
	if !g.Owned() {
		cache = &master.session
	}
	l := line{port: port, cache: cache, sleep: r.sleep, sent: &r.a.commands}
	if err := u.sequence(r, l, frame); err != nil {
		return err
	}
	r.sc.logger.Debug("unicable command sent via master", "element", r.el.ID, "group", u.Group,
		"master", master.name, "frame", frame.String())
	return nil
}

// sequence runs the voltage-framed command exchange on l. The 22kHz tone
// must be off for the whole exchange.
func (u *UnicableConfig) sequence(r *run, l line, frame dvb.Frame) error {
	powerUp := clampMs(u.PowerUpTime, 10, 500, 15)
	cmdTime := clampMs(u.CommandTime, 10, 300, 50)

	if _, err := l.setTone(dvb.ToneOff); err != nil {
		return err
	}
	for i := 0; i <= r.sc.settings.Policy.DiseqcRepeats; i++ {
		if i > 0 {
			r.sleep(r.sc.mgr.jitter())
		}
		if err := l.writeVoltage(dvb.Voltage18); err != nil {
			return err
		}
		r.sleep(powerUp)
		if err := l.send(frame); err != nil {
			return err
		}
		r.sleep(cmdTime)
		if err := l.writeVoltage(dvb.Voltage13); err != nil {
			return err
		}
	}
	return nil
}
