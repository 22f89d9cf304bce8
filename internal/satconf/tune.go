package satconf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/satlink-core/internal/dvb"
)

// State is the position of a tuning attempt in the coordinator.
type State int

const (
	StateIdle State = iota
	StateSelecting
	StateDeviceSequencing
	StateSuspended
	StateVoltageTone
	StateHandoff
	StateLocked
	StateFailed
	StateCancelled
)

var stateNames = [...]string{
	StateIdle:             "idle",
	StateSelecting:        "selecting",
	StateDeviceSequencing: "device_sequencing",
	StateSuspended:        "suspended",
	StateVoltageTone:      "voltage_tone",
	StateHandoff:          "handoff",
	StateLocked:           "locked",
	StateFailed:           "failed",
	StateCancelled:        "cancelled",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown tuning state %q", b)
}

// Final reports whether an attempt in s has finished.
func (s State) Final() bool {
	return s == StateLocked || s == StateFailed || s == StateCancelled
}

// Request asks a SatConf to point the antenna at a transponder.
type Request struct {
	// MuxID identifies the caller's mux. StopTuning takes the same id.
	MuxID string

	// ElementID forces an element. Empty selects by network.
	ElementID string

	Tuning dvb.Tuning

	// SkipDiseqc only programs the frontend, leaving the antenna alone.
	SkipDiseqc bool

	// Done, if set, is called once when the attempt finishes.
	Done func(Outcome)
}

// Result is what StartTuning knows when it returns.
type Result struct {
	AttemptID             string `json:"attempt_id"`
	State                 State  `json:"state"`
	ElementID             string `json:"element_id,omitempty"`
	Band                  int    `json:"band"`
	Polarity              int    `json:"polarity"`
	IntermediateFrequency uint32 `json:"intermediate_frequency"`
	Frequency             uint32 `json:"frequency"`
	GraceSeconds          int    `json:"grace_seconds,omitempty"`
}

// Outcome describes a finished attempt.
type Outcome struct {
	AttemptID             string
	SatConf               string
	Frontend              string
	MuxID                 string
	ElementID             string
	Tuning                dvb.Tuning
	Band                  int
	Polarity              int
	IntermediateFrequency uint32
	Frequency             uint32
	State                 State
	Err                   error
	GraceSeconds          int
	RotorDelta            float64
	Commands              int
	Started               time.Time
	Finished              time.Time

	done func(Outcome)
}

// Observer is told about every finished attempt. It is called without the
// state lock held.
type Observer interface {
	TuningFinished(o Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Outcome)

// TuningFinished calls f(o).
func (f ObserverFunc) TuningFinished(o Outcome) { f(o) }

// Attempt is one tuning attempt. Fields other than the identity are
// guarded by the state lock.
type Attempt struct {
	ID        string
	MuxID     string
	ElementID string
	Tuning    dvb.Tuning
	Started   time.Time

	Pol       int
	Band      int
	IF        uint32
	Frequency uint32

	req     Request
	el      *Element
	dev     dvb.Device
	ctx     context.Context
	cancel  context.CancelFunc
	state   State
	err     error
	voltage dvb.Voltage
	tone    dvb.Tone

	// Device cursor. awaiting is set while the device at cursor waits
	// out its grace period.
	slots    [numSlots]device
	cursor   int
	awaiting bool
	timer    Timer

	grace          int
	commands       int
	scrIndex       int
	rotorTarget    int
	hasRotorTarget bool
	rotorDelta     float64
}

func (a *Attempt) result() Result {
	return Result{
		AttemptID:             a.ID,
		State:                 a.state,
		ElementID:             a.ElementID,
		Band:                  a.Band,
		Polarity:              a.Pol,
		IntermediateFrequency: a.IF,
		Frequency:             a.Frequency,
		GraceSeconds:          a.grace,
	}
}

// run is the context a device sees while it tunes.
type run struct {
	sc   *SatConf
	el   *Element
	a    *Attempt
	line line
}

func (r *run) sleep(d time.Duration) { r.sc.mgr.sleep(d) }

func (sc *SatConf) newRun(a *Attempt) *run {
	return &run{
		sc: sc,
		el: a.el,
		a:  a,
		line: line{
			port:  a.dev,
			cache: &sc.session,
			force: sc.settings.Policy.DiseqcFull,
			sleep: sc.mgr.sleep,
			sent:  &a.commands,
		},
	}
}

// StartTuning selects an element, sequences its devices and hands the
// final frequency to the frontend.
//
// A previous attempt on the SatConf is cancelled. When a rotor has to
// move, StartTuning returns a Result in StateSuspended and the attempt
// continues from a timer; the outcome is then reported through
// Request.Done and the Observer. Otherwise the returned Result is final.
// ctx bounds only the synchronous part of the attempt.
//
// Errors wrap ErrNotConfigured, ErrConfigInvalid, ErrHardwareIO,
// ErrNoGroupMaster or ErrAttemptCancelled.
func (sc *SatConf) StartTuning(ctx context.Context, req Request) (Result, error) {
	m := sc.mgr
	if m.isClosed() {
		return Result{}, ErrClosed
	}

	m.lock.Lock()
	var notes []Outcome
	if prev := sc.attempt; prev != nil {
		sc.attempt = nil
		if !prev.state.Final() {
			notes = append(notes, sc.finishLocked(prev, StateCancelled, ErrAttemptCancelled))
		}
	}

	a := &Attempt{
		ID:      uuid.NewString(),
		MuxID:   req.MuxID,
		Tuning:  req.Tuning,
		Started: time.Now(),
		req:     req,
		state:   StateSelecting,
	}
	a.ctx, a.cancel = context.WithCancel(m.ctx)
	sc.attempt = a

	ready, done := sc.prepareLocked(a)
	if done == nil && !ready {
		ready, done = sc.driveLocked(a)
	}
	if done != nil {
		notes = append(notes, *done)
	}
	res := a.result()
	m.lock.Unlock()

	for _, o := range notes {
		sc.notify(o)
	}
	if done != nil {
		return res, done.Err
	}
	if !ready {
		return res, nil
	}

	hctx, hcancel := context.WithCancel(ctx)
	defer hcancel()
	stop := context.AfterFunc(a.ctx, hcancel)
	defer stop()
	return sc.handoff(hctx, a)
}

// prepareLocked selects the element, computes the frequency plan and opens
// the frontend. It reports ready for a skip-diseqc tune.
func (sc *SatConf) prepareLocked(a *Attempt) (bool, *Outcome) {
	fail := func(err error) (bool, *Outcome) {
		o := sc.finishLocked(a, StateFailed, err)
		return false, &o
	}

	el, err := sc.selectElement(a.req.ElementID, a.Tuning)
	if err != nil {
		return fail(err)
	}
	a.el, a.ElementID = el, el.ID

	a.Pol = el.LNB.PolarityBit(a.Tuning)
	a.Band = el.LNB.Band(a.Tuning)
	a.IF = el.LNB.IntermediateFrequency(a.Tuning)
	a.Frequency = a.IF
	a.voltage = el.LNB.Voltage(a.Tuning)
	a.tone = el.LNB.Tone(a.Tuning)
	if u := el.Unicable; u != nil {
		rf, index, err := u.TuningFrequency(a.IF)
		if err != nil {
			return fail(err)
		}
		a.Frequency, a.scrIndex = rf, index
		a.voltage, a.tone = dvb.Voltage13, dvb.ToneOff
	}

	dev, err := sc.fe.open()
	if err != nil {
		return fail(err)
	}
	a.dev = dev

	sc.logger.Debug("tuning started", "satconf", sc.name, "attempt", a.ID, "mux", a.MuxID,
		"element", el.ID, "tuning", a.Tuning.String(), "band", a.Band, "pol", a.Pol,
		"if", a.IF, "frequency", a.Frequency)

	if a.req.SkipDiseqc {
		a.state = StateHandoff
		return true, nil
	}

	if sc.settings.Policy.EarlyTune {
		if err := dev.Tune(a.Frequency, a.Tuning); err != nil {
			return fail(hardwareErr("early tune", err))
		}
	}
	a.slots = el.slots(sc.settings.Policy.SwitchRotor)
	a.state = StateDeviceSequencing
	return false, nil
}

// driveLocked runs a from its cursor until it suspends, fails or is ready
// for handoff.
func (sc *SatConf) driveLocked(a *Attempt) (bool, *Outcome) {
	r := sc.newRun(a)
	a.state = StateDeviceSequencing

	for a.cursor < numSlots {
		d := a.slots[a.cursor]
		if d == nil {
			a.cursor++
			continue
		}
		if a.awaiting {
			a.awaiting = false
		} else {
			grace, err := d.tune(r)
			if err != nil {
				sc.logger.Warn("device stage failed", "satconf", sc.name, "attempt", a.ID,
					"element", a.el.ID, "device", d.kind().String(), "error", err)
				o := sc.finishLocked(a, StateFailed, err)
				return false, &o
			}
			if grace > 0 {
				sc.suspendLocked(a, d.kind(), grace)
				return false, nil
			}
		}
		d.post(r)
		a.cursor++
	}

	if err := sc.voltageToneLocked(r); err != nil {
		o := sc.finishLocked(a, StateFailed, err)
		return false, &o
	}
	if u := a.el.Unicable; u == nil || !u.slave() {
		sc.last = a.el.ID
	}
	a.state = StateHandoff
	return true, nil
}

// suspendLocked arms the resume timer. The state lock is not held while
// the timer is pending.
func (sc *SatConf) suspendLocked(a *Attempt, kind DeviceKind, grace int) {
	a.awaiting = true
	a.grace += grace
	a.state = StateSuspended
	a.timer = sc.mgr.sched.AfterFunc(time.Duration(grace)*time.Second, func() {
		sc.resume(a)
	})
	sc.logger.Debug("tuning suspended", "satconf", sc.name, "attempt", a.ID,
		"device", kind.String(), "cursor", a.cursor, "grace_seconds", grace)
}

// resume continues a suspended attempt from its timer.
func (sc *SatConf) resume(a *Attempt) {
	m := sc.mgr
	m.lock.Lock()
	if sc.attempt != a || a.state != StateSuspended {
		m.lock.Unlock()
		return
	}
	a.timer = nil
	sc.logger.Debug("tuning resumed", "satconf", sc.name, "attempt", a.ID, "cursor", a.cursor)
	ready, done := sc.driveLocked(a)
	m.lock.Unlock()

	if done != nil {
		sc.notify(*done)
		return
	}
	if ready {
		_, _ = sc.handoff(a.ctx, a)
	}
}

// voltageToneLocked asserts the LNB supply and band tone. A Unicable slave
// leaves them to the group master.
func (sc *SatConf) voltageToneLocked(r *run) error {
	a := r.a
	if u := a.el.Unicable; u != nil && u.slave() {
		return nil
	}
	a.state = StateVoltageTone
	if _, err := r.line.setVoltage(a.voltage); err != nil {
		return err
	}
	changed, err := r.line.setTone(a.tone)
	if err != nil {
		return err
	}
	if changed {
		r.sleep(toneSettle)
	}
	return nil
}

// handoff asks the frontend to lock, without the state lock held, and
// records the result if the attempt is still current.
func (sc *SatConf) handoff(ctx context.Context, a *Attempt) (Result, error) {
	err := a.dev.Lock(ctx, a.Frequency, a.Tuning)

	m := sc.mgr
	m.lock.Lock()
	if sc.attempt != a || a.state != StateHandoff {
		res := a.result()
		m.lock.Unlock()
		return res, ErrAttemptCancelled
	}
	var o Outcome
	if err != nil {
		o = sc.finishLocked(a, StateFailed, hardwareErr(fmt.Sprintf("locking %d kHz", a.Frequency), err))
	} else {
		o = sc.finishLocked(a, StateLocked, nil)
	}
	res := a.result()
	m.lock.Unlock()

	sc.notify(o)
	return res, o.Err
}

// finishLocked moves a to a final state and builds its outcome. A failed
// or cancelled attempt stops being current; a locked one stays current
// until StopTuning.
func (sc *SatConf) finishLocked(a *Attempt, state State, err error) Outcome {
	a.state, a.err = state, err
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if a.cancel != nil {
		a.cancel()
	}
	if state != StateLocked && sc.attempt == a {
		sc.attempt = nil
	}

	o := Outcome{
		AttemptID:             a.ID,
		SatConf:               sc.name,
		Frontend:              sc.fe.name,
		MuxID:                 a.MuxID,
		ElementID:             a.ElementID,
		Tuning:                a.Tuning,
		Band:                  a.Band,
		Polarity:              a.Pol,
		IntermediateFrequency: a.IF,
		Frequency:             a.Frequency,
		State:                 state,
		Err:                   err,
		GraceSeconds:          a.grace,
		RotorDelta:            a.rotorDelta,
		Commands:              a.commands,
		Started:               a.Started,
		Finished:              time.Now(),
		done:                  a.req.Done,
	}

	switch {
	case state == StateLocked:
		sc.logger.Info("tuning locked", "satconf", sc.name, "attempt", a.ID, "mux", a.MuxID,
			"element", a.ElementID, "frequency", a.Frequency, "commands", a.commands)
	case errors.Is(err, ErrAttemptCancelled):
		sc.logger.Debug("tuning cancelled", "satconf", sc.name, "attempt", a.ID, "mux", a.MuxID)
	default:
		sc.logger.Warn("tuning failed", "satconf", sc.name, "attempt", a.ID, "mux", a.MuxID,
			"element", a.ElementID, "error", err)
	}
	return o
}

func (sc *SatConf) notify(o Outcome) {
	if obs := sc.mgr.observer; obs != nil {
		obs.TuningFinished(o)
	}
	if o.done != nil {
		o.done(o)
	}
}

// StopTuning ends the attempt for muxID. A pending rotor wait is disarmed
// and nothing already sent to the hardware is undone. With LNBPowerOff the
// supply is switched off.
func (sc *SatConf) StopTuning(muxID string) error {
	m := sc.mgr
	m.lock.Lock()
	a := sc.attempt
	if a == nil || a.MuxID != muxID {
		m.lock.Unlock()
		return fmt.Errorf("%w: mux %q is not tuning on %s", ErrNotFound, muxID, sc.name)
	}
	sc.attempt = nil

	var out *Outcome
	if !a.state.Final() {
		o := sc.finishLocked(a, StateCancelled, ErrAttemptCancelled)
		out = &o
	}

	var powerErr error
	if sc.settings.Policy.LNBPowerOff {
		if dev, ok := sc.fe.Active(); ok {
			l := line{port: dev, cache: &sc.session, sleep: m.sleep}
			_, powerErr = l.setVoltage(dvb.VoltageOff)
			sc.session.sw.forget()
			sc.session.burst.forget()
			sc.last = ""
		}
	}
	m.lock.Unlock()

	if out != nil {
		sc.notify(*out)
	}
	if powerErr != nil {
		sc.logger.Warn("lnb power off failed", "satconf", sc.name, "error", powerErr)
		return powerErr
	}
	return nil
}

// IsCompatible reports whether a and b can be received at once through
// this SatConf without re-issuing switch or band commands.
func (sc *SatConf) IsCompatible(a, b dvb.Tuning) bool {
	sc.mgr.lock.Lock()
	defer sc.mgr.lock.Unlock()

	ea, err := sc.selectElement("", a)
	if err != nil {
		return false
	}
	eb, err := sc.selectElement("", b)
	if err != nil || ea != eb {
		return false
	}
	return ea.LNB.Compatible(a, b)
}

// EstimatedGraceSeconds returns how long tuning t would wait for devices,
// judged from the session cache. It is 0 when t is not configured.
func (sc *SatConf) EstimatedGraceSeconds(t dvb.Tuning) int {
	sc.mgr.lock.Lock()
	defer sc.mgr.lock.Unlock()

	el, err := sc.selectElement("", t)
	if err != nil {
		return 0
	}
	total := 0
	for _, d := range el.slots(sc.settings.Policy.SwitchRotor) {
		if d != nil {
			total += d.grace(sc)
		}
	}
	return total
}
