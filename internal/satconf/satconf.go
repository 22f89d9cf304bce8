package satconf

import (
	"fmt"
	"slices"

	"github.com/nerrad567/satlink-core/internal/dvb"
	"github.com/nerrad567/satlink-core/internal/lnb"
)

// Policy holds the per-SatConf tuning flags.
type Policy struct {
	// DiseqcRepeats is how many times each command is repeated after the
	// first transmission.
	DiseqcRepeats int

	// DiseqcFull re-sends every command on every tune, ignoring the
	// session cache.
	DiseqcFull bool

	// SwitchRotor sequences the switch before the rotor.
	SwitchRotor bool

	// EarlyTune programs the demodulator before any DiseqC command.
	EarlyTune bool

	// LNBPowerOff switches the LNB supply off when tuning stops.
	LNBPowerOff bool
}

// Settings configures a SatConf.
type Settings struct {
	Policy Policy

	// Site is the antenna location used by USALS rotors.
	Site Site

	// MotorRate is the rotor speed in milliseconds per degree. 0 means
	// unknown, so every move assumes MaxRotorMove.
	MotorRate int

	// MaxRotorMove is the worst case move in seconds. 0 uses
	// DefaultMaxRotorMove.
	MaxRotorMove int

	// MinRotorMove is added to the shortest possible move, in seconds.
	MinRotorMove int
}

// Element is one antenna position: an LNB and the switch, rotor and
// Unicable stages in front of it.
type Element struct {
	ID       string
	Name     string
	Priority int
	Enabled  bool

	// Networks lists the networks received through this position.
	Networks []string

	LNB      lnb.Profile
	Switch   *SwitchConfig
	Rotor    *RotorConfig
	Unicable *UnicableConfig
}

// Covers reports whether the element receives network.
func (e *Element) Covers(network string) bool {
	return network != "" && slices.Contains(e.Networks, network)
}

func (e *Element) validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: element id is required", ErrConfigInvalid)
	}
	if e.Switch != nil {
		if err := e.Switch.validate(); err != nil {
			return fmt.Errorf("element %s: %w", e.ID, err)
		}
	}
	if e.Rotor != nil {
		if err := e.Rotor.validate(); err != nil {
			return fmt.Errorf("element %s: %w", e.ID, err)
		}
	}
	if e.Unicable != nil {
		if err := e.Unicable.validate(); err != nil {
			return fmt.Errorf("element %s: %w", e.ID, err)
		}
	}
	return nil
}

// SatConf is the antenna configuration of one frontend and the coordinator
// of its tuning attempts.
//
// All mutable state is guarded by the Manager's state lock.
type SatConf struct {
	name     string
	fe       *Frontend
	mgr      *Manager
	logger   Logger
	settings Settings

	elements []*Element
	session  session
	last     string // element of the last successful switch or unicable command

	attempt *Attempt
}

// NewSatConf registers a SatConf for fe.
func (m *Manager) NewSatConf(name string, fe *Frontend, settings Settings) (*SatConf, error) {
	if name == "" || fe == nil {
		return nil, fmt.Errorf("%w: satconf needs a name and a frontend", ErrConfigInvalid)
	}
	if settings.Policy.DiseqcRepeats < 0 {
		return nil, fmt.Errorf("%w: diseqc repeats %d", ErrConfigInvalid, settings.Policy.DiseqcRepeats)
	}

	m.regMu.Lock()
	defer m.regMu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if _, exists := m.satconfs[name]; exists {
		return nil, fmt.Errorf("%w: satconf %q already exists", ErrConfigInvalid, name)
	}
	sc := &SatConf{
		name:     name,
		fe:       fe,
		mgr:      m,
		logger:   m.logger,
		settings: settings,
	}
	m.satconfs[name] = sc
	return sc, nil
}

// Name returns the SatConf name.
func (sc *SatConf) Name() string { return sc.name }

// Frontend returns the frontend the SatConf drives.
func (sc *SatConf) Frontend() *Frontend { return sc.fe }

// Settings returns the SatConf settings.
func (sc *SatConf) Settings() Settings { return sc.settings }

// AddElement validates el and appends it. Element ids are unique per
// SatConf and a Unicable group has at most one master.
func (sc *SatConf) AddElement(el *Element) error {
	if err := el.validate(); err != nil {
		return err
	}

	m := sc.mgr
	m.lock.Lock()
	defer m.lock.Unlock()

	if sc.element(el.ID) != nil {
		return fmt.Errorf("%w: element %q already exists on %s", ErrConfigInvalid, el.ID, sc.name)
	}
	if u := el.Unicable; u != nil && u.Master {
		if ref, ok := m.findMaster(u.Group); ok {
			return fmt.Errorf("%w: unicable group %d already has master %s/%s",
				ErrConfigInvalid, u.Group, ref.satconf, ref.element)
		}
	}
	sc.elements = append(sc.elements, el)
	return nil
}

// RemoveElement deletes an element. An attempt running on it is cancelled
// and any group that resolved it as master forgets it.
func (sc *SatConf) RemoveElement(id string) error {
	m := sc.mgr
	m.lock.Lock()

	i := slices.IndexFunc(sc.elements, func(e *Element) bool { return e.ID == id })
	if i < 0 {
		m.lock.Unlock()
		return fmt.Errorf("%w: element %q on %s", ErrNotFound, id, sc.name)
	}
	sc.elements = slices.Delete(sc.elements, i, i+1)

	var out *Outcome
	if a := sc.attempt; a != nil && a.ElementID == id {
		sc.attempt = nil
		if !a.state.Final() {
			o := sc.finishLocked(a, StateCancelled, ErrAttemptCancelled)
			out = &o
		}
	}
	if sc.last == id {
		sc.last = ""
	}
	m.groups.invalidate(sc.name, id)
	m.lock.Unlock()

	if out != nil {
		sc.notify(*out)
	}
	return nil
}

// Elements returns a copy of the element list.
func (sc *SatConf) Elements() []*Element {
	sc.mgr.lock.Lock()
	defer sc.mgr.lock.Unlock()
	return slices.Clone(sc.elements)
}

func (sc *SatConf) element(id string) *Element {
	for _, el := range sc.elements {
		if el.ID == id {
			return el
		}
	}
	return nil
}

// selectElement picks the explicit element, or the highest priority
// enabled element receiving the tuning's network.
func (sc *SatConf) selectElement(elementID string, t dvb.Tuning) (*Element, error) {
	if elementID != "" {
		el := sc.element(elementID)
		if el == nil || !el.Enabled {
			return nil, fmt.Errorf("%w: element %q on %s", ErrNotConfigured, elementID, sc.name)
		}
		return el, nil
	}

	var best *Element
	for _, el := range sc.elements {
		if !el.Enabled || !el.Covers(t.Network) {
			continue
		}
		if best == nil || el.Priority > best.Priority {
			best = el
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: network %q on %s", ErrNotConfigured, t.Network, sc.name)
	}
	return best, nil
}

// Release cancels any attempt, closes the frontend and resets the session
// cache so the next tune re-asserts everything.
func (sc *SatConf) Release() error {
	m := sc.mgr
	m.lock.Lock()
	var out *Outcome
	if a := sc.attempt; a != nil {
		sc.attempt = nil
		if !a.state.Final() {
			o := sc.finishLocked(a, StateCancelled, ErrAttemptCancelled)
			out = &o
		}
	}
	closed, err := sc.fe.close()
	if closed {
		sc.session.invalidate()
		sc.last = ""
		sc.logger.Debug("frontend released", "satconf", sc.name, "device", sc.fe.path)
	}
	m.lock.Unlock()

	if out != nil {
		sc.notify(*out)
	}
	return err
}

// Status is a point-in-time view of a SatConf.
type Status struct {
	SatConf   string `json:"satconf"`
	Frontend  string `json:"frontend"`
	Device    string `json:"device"`
	Active    bool   `json:"active"`
	State     State  `json:"state"`
	AttemptID string `json:"attempt_id,omitempty"`
	MuxID     string `json:"mux_id,omitempty"`
	Element   string `json:"element,omitempty"`
	Voltage   string `json:"voltage"`
	Tone      string `json:"tone"`
	Rotor     string `json:"rotor,omitempty"`
}

// Status returns the current state and session cache.
func (sc *SatConf) Status() Status {
	sc.mgr.lock.Lock()
	defer sc.mgr.lock.Unlock()

	_, active := sc.fe.Active()
	st := Status{
		SatConf:  sc.name,
		Frontend: sc.fe.name,
		Device:   sc.fe.path,
		Active:   active,
		State:    StateIdle,
		Element:  sc.last,
		Voltage:  "unknown",
		Tone:     "unknown",
	}
	if a := sc.attempt; a != nil {
		st.State = a.state
		st.AttemptID = a.ID
		st.MuxID = a.MuxID
	}
	if v, ok := sc.session.voltage.get(); ok {
		st.Voltage = v.String()
	}
	if t, ok := sc.session.tone.get(); ok {
		st.Tone = t.String()
	}
	if pos, ok := sc.session.rotor.get(); ok {
		st.Rotor = formatPosition(pos)
	}
	return st
}
