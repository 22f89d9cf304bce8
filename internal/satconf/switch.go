package satconf

import (
	"fmt"

	"github.com/nerrad567/satlink-core/internal/dvb"
)

// SwitchConfig is a DiseqC 1.0/1.1 switch port with an optional toneburst.
type SwitchConfig struct {
	// Committed port 0-3, or -1 for none.
	Committed int

	// Uncommitted port 0-15, or -1 for none.
	Uncommitted int

	// Toneburst -1 for none, 0 for A, 1 for B.
	Toneburst int

	// PowerUpTime and CommandTime are in milliseconds. 0 uses the
	// defaults of 100 and 25.
	PowerUpTime int
	CommandTime int

	// UncommittedFirst sends the uncommitted command before the committed one.
	UncommittedFirst bool
}

// NewSwitchConfig returns a switch on a committed port with no uncommitted
// port or toneburst.
func NewSwitchConfig(committed int) *SwitchConfig {
	return &SwitchConfig{Committed: committed, Uncommitted: -1, Toneburst: -1}
}

func (s *SwitchConfig) validate() error {
	if s.Committed < -1 || s.Committed > 3 {
		return fmt.Errorf("%w: committed port %d", ErrConfigInvalid, s.Committed)
	}
	if s.Uncommitted < -1 || s.Uncommitted > 15 {
		return fmt.Errorf("%w: uncommitted port %d", ErrConfigInvalid, s.Uncommitted)
	}
	if s.Toneburst < -1 || s.Toneburst > 1 {
		return fmt.Errorf("%w: toneburst %d", ErrConfigInvalid, s.Toneburst)
	}
	return nil
}

// Frames returns the switch commands for one transmission. n > 0 marks a
// repeat.
func (s *SwitchConfig) Frames(pol, band, n int) []dvb.Frame {
	framing := dvb.Framing(n)
	var uncommitted, committed dvb.Frame
	if s.Uncommitted >= 0 {
		uncommitted = dvb.Frame{framing, dvb.AddrAnySwitch, dvb.CmdWriteN1, 0xF0 | byte(s.Uncommitted)}
	}
	if s.Committed >= 0 {
		committed = dvb.Frame{framing, dvb.AddrAnySwitch, dvb.CmdWriteN0,
			0xF0 | byte(s.Committed)<<2 | byte(pol)<<1 | byte(band)}
	}

	var out []dvb.Frame
	if s.UncommittedFirst && uncommitted != nil {
		out = append(out, uncommitted)
	}
	if committed != nil {
		out = append(out, committed)
	}
	if !s.UncommittedFirst && uncommitted != nil {
		out = append(out, uncommitted)
	}
	return out
}

func (s *SwitchConfig) kind() DeviceKind { return DeviceSwitch }

func (s *SwitchConfig) grace(*SatConf) int { return 0 }

func (s *SwitchConfig) post(*run) {}

func (s *SwitchConfig) tune(r *run) (int, error) {
	sc, a := r.sc, r.a
	cmdTime := clampMs(s.CommandTime, 25, 200, 25)
	want := switchKey{element: r.el.ID, pol: a.Pol, band: a.Band}

	if r.line.force || !sc.session.sw.is(want) {
		sc.session.sw.forget()
		if err := r.line.start(clampMs(s.PowerUpTime, 15, 200, 100), a.voltage); err != nil {
			return 0, err
		}
		for i := 0; i <= sc.settings.Policy.DiseqcRepeats; i++ {
			for _, f := range s.Frames(a.Pol, a.Band, i) {
				if err := r.line.send(f); err != nil {
					return 0, err
				}
				r.sleep(cmdTime)
			}
		}
		sc.session.sw.set(want)
		sc.logger.Debug("switch set", "element", r.el.ID,
			"committed", s.Committed, "uncommitted", s.Uncommitted, "pol", a.Pol, "band", a.Band)
	}

	if s.Toneburst >= 0 {
		b := dvb.Burst(s.Toneburst)
		if r.line.force || !sc.session.burst.is(b) {
			if err := r.line.start(clampMs(s.PowerUpTime, 15, 200, 100), a.voltage); err != nil {
				return 0, err
			}
			if err := r.line.sendBurst(b); err != nil {
				return 0, err
			}
			r.sleep(cmdTime)
			sc.logger.Debug("toneburst sent", "element", r.el.ID, "burst", b.String())
		}
	}

	return 0, nil
}
