package satconf

import (
	"fmt"
	"math"

	"github.com/nerrad567/satlink-core/internal/dvb"
)

// RotorKind selects how a rotor is positioned.
type RotorKind int

const (
	// RotorGOTOX moves to a position index stored in the motor.
	RotorGOTOX RotorKind = iota

	// RotorUSALS computes the motor angle from the site and satellite.
	RotorUSALS
)

func (k RotorKind) String() string {
	if k == RotorUSALS {
		return "usals"
	}
	return "gotox"
}

// rotorTolerance is the largest position difference, in tenths of a
// degree, treated as already pointed.
const rotorTolerance = 2

// DefaultMaxRotorMove is the worst case move time in seconds.
const DefaultMaxRotorMove = 120

// RotorConfig is a DiseqC 1.2 positioner.
type RotorConfig struct {
	Kind RotorKind

	// Position is the stored GOTOX index.
	Position int

	// SatLongitude is the orbital position in degrees, negative west. Both
	// kinds use it to track where the dish points.
	SatLongitude float64

	// PowerUpTime and CommandTime are in milliseconds. 0 uses the
	// defaults of 100 and 25.
	PowerUpTime int
	CommandTime int
}

func (rc *RotorConfig) validate() error {
	if rc.Kind == RotorGOTOX && (rc.Position < 0 || rc.Position > 255) {
		return fmt.Errorf("%w: gotox position %d", ErrConfigInvalid, rc.Position)
	}
	if rc.SatLongitude < -180 || rc.SatLongitude > 180 {
		return fmt.Errorf("%w: satellite longitude %.1f", ErrConfigInvalid, rc.SatLongitude)
	}
	return nil
}

// OrbitalPosition converts a longitude to tenths of a degree, rounding
// half away from zero.
func OrbitalPosition(lon float64) int {
	return int(math.Round(lon * 10))
}

// Frame returns the positioning command for transmission n.
func (rc *RotorConfig) Frame(site Site, n int) dvb.Frame {
	if rc.Kind == RotorGOTOX {
		return dvb.Frame{dvb.Framing(n), dvb.AddrPolarMotor, dvb.CmdGotoStored, byte(rc.Position)}
	}
	cmd := USALSCommand(MotorAngle(site, rc.SatLongitude))
	return dvb.Frame{dvb.Framing(n), dvb.AddrPolarMotor, dvb.CmdGotoAngular, byte(cmd >> 8), byte(cmd)}
}

func (rc *RotorConfig) kind() DeviceKind { return DeviceRotor }

// grace estimates the move time in seconds from the cached position.
func (rc *RotorConfig) grace(sc *SatConf) int {
	return sc.rotorGrace(OrbitalPosition(rc.SatLongitude))
}

func (rc *RotorConfig) tune(r *run) (int, error) {
	sc := r.sc
	target := OrbitalPosition(rc.SatLongitude)
	r.a.rotorTarget = target
	r.a.hasRotorTarget = true

	if cur, ok := sc.session.rotor.get(); ok && abs(cur-target) <= rotorTolerance {
		sc.logger.Debug("rotor already positioned", "element", r.el.ID, "position", formatPosition(cur))
		return 0, nil
	}

	grace := sc.rotorGrace(target)
	if cur, ok := sc.session.rotor.get(); ok {
		r.a.rotorDelta = float64(abs(cur-target)) / 10
	}

	// 18V slews faster.
	if err := r.line.start(clampMs(rc.PowerUpTime, 15, 200, 100), dvb.Voltage18); err != nil {
		return 0, err
	}

	cmdTime := clampMs(rc.CommandTime, 10, 100, 25)
	for i := 0; i <= sc.settings.Policy.DiseqcRepeats; i++ {
		if err := r.line.send(rc.Frame(sc.settings.Site, i)); err != nil {
			return 0, err
		}
		r.sleep(cmdTime)
	}

	sc.logger.Info("rotor moving", "element", r.el.ID, "kind", rc.Kind.String(),
		"target", formatPosition(target), "grace_seconds", grace)
	return grace, nil
}

// post records that the dish now points at the target.
func (rc *RotorConfig) post(r *run) {
	if r.a.hasRotorTarget {
		r.sc.session.rotor.set(r.a.rotorTarget)
	}
}

// rotorGrace returns the seconds a move to target takes. Without a known
// position or motor rate it assumes the worst case.
func (sc *SatConf) rotorGrace(target int) int {
	maxMove := sc.settings.MaxRotorMove
	if maxMove <= 0 {
		maxMove = DefaultMaxRotorMove
	}
	cur, ok := sc.session.rotor.get()
	if !ok || sc.settings.MotorRate == 0 {
		return maxMove
	}
	delta := abs(cur - target)
	if delta <= rotorTolerance {
		return 0
	}
	secs := int(math.Round(float64(sc.settings.MotorRate)*float64(delta)/10/1000)) + 1
	return max(secs, 1+sc.settings.MinRotorMove)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// formatPosition renders tenths of a degree as e.g. "19.2E".
func formatPosition(pos int) string {
	dir := 'E'
	if pos < 0 {
		pos, dir = -pos, 'W'
	}
	return fmt.Sprintf("%d.%d%c", pos/10, pos%10, dir)
}
