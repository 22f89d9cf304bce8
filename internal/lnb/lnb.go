// Package lnb is the catalog of low-noise block converter profiles.
//
// A Profile is pure data plus pure functions: given a transponder it tells
// which band and polarisation line to select and which intermediate
// frequency the tuner will see. Frequencies are in kHz.
package lnb

import (
	"sort"
	"strings"

	"github.com/nerrad567/satlink-core/internal/dvb"
)

// Band indices returned by Profile.Band.
const (
	BandLow  = 0
	BandHigh = 1
)

// Polarity bits returned by Profile.PolarityBit. 1 selects 18V.
const (
	PolarityVerticalLike   = 0
	PolarityHorizontalLike = 1
)

// DefaultName is the profile used when a configured name is unknown.
const DefaultName = "Universal"

// Profile describes one LNB class.
type Profile struct {
	Name string

	// Low and High are the local oscillator frequencies of each band.
	Low  uint32
	High uint32

	// Switch is the band switch threshold. 0 means a single band LNB.
	Switch uint32

	// Bandstack LNBs put each polarisation on its own LO; polarisation
	// selects the band and the supply voltage carries no information.
	Bandstack bool

	// Inverted swaps the polarity line.
	Inverted bool
}

// Band returns BandHigh when t is served by the high LO.
func (p Profile) Band(t dvb.Tuning) int {
	if p.Bandstack {
		if t.Polarisation == dvb.Horizontal || t.Polarisation == dvb.CircularRight {
			return BandHigh
		}
		return BandLow
	}
	if p.Switch != 0 && t.Frequency > p.Switch {
		return BandHigh
	}
	return BandLow
}

// PolarityBit returns PolarityHorizontalLike for horizontal and
// circular-left transponders, honouring the inversion flag.
func (p Profile) PolarityBit(t dvb.Tuning) int {
	if p.Bandstack {
		return PolarityVerticalLike
	}
	bit := PolarityVerticalLike
	if t.Polarisation == dvb.Horizontal || t.Polarisation == dvb.CircularLeft {
		bit = PolarityHorizontalLike
	}
	if p.Inverted {
		bit ^= 1
	}
	return bit
}

// LocalOscillator returns the LO frequency of band.
func (p Profile) LocalOscillator(band int) uint32 {
	if band == BandHigh {
		return p.High
	}
	return p.Low
}

// IntermediateFrequency returns the frequency the tuner sees for t.
func (p Profile) IntermediateFrequency(t dvb.Tuning) uint32 {
	lo := p.LocalOscillator(p.Band(t))
	if t.Frequency >= lo {
		return t.Frequency - lo
	}
	return lo - t.Frequency
}

// Compatible reports whether a and b can be received at the same time
// without changing band or polarity lines.
func (p Profile) Compatible(a, b dvb.Tuning) bool {
	if p.Bandstack {
		return true
	}
	if p.Switch != 0 && p.Band(a) != p.Band(b) {
		return false
	}
	return p.PolarityBit(a) == p.PolarityBit(b)
}

// Voltage returns the LNB supply voltage selecting t's polarisation.
func (p Profile) Voltage(t dvb.Tuning) dvb.Voltage {
	if p.PolarityBit(t) == PolarityHorizontalLike {
		return dvb.Voltage18
	}
	return dvb.Voltage13
}

// Tone returns the 22 kHz tone state selecting t's band.
func (p Profile) Tone(t dvb.Tuning) dvb.Tone {
	if p.Band(t) == BandHigh {
		return dvb.ToneOn
	}
	return dvb.ToneOff
}

// Catalog is an immutable set of profiles addressed by name.
type Catalog struct {
	byName map[string]Profile
	names  []string
}

// NewCatalog builds a catalog. Later profiles replace earlier ones with the
// same name. The catalog must contain DefaultName.
func NewCatalog(profiles ...Profile) *Catalog {
	c := &Catalog{byName: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		key := strings.ToLower(p.Name)
		if _, dup := c.byName[key]; !dup {
			c.names = append(c.names, p.Name)
		}
		c.byName[key] = p
	}
	sort.Strings(c.names)
	return c
}

// Lookup returns the profile called name. Unknown names return the
// Universal profile and ok=false so the caller can log the substitution.
func (c *Catalog) Lookup(name string) (Profile, bool) {
	if p, ok := c.byName[strings.ToLower(name)]; ok {
		return p, true
	}
	return c.byName[strings.ToLower(DefaultName)], false
}

// Names lists the catalog in alphabetical order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Builtin returns the standard profiles.
func Builtin() []Profile {
	return []Profile{
		{Name: "Universal", Low: 9750000, High: 10600000, Switch: 11700000},
		{Name: "Standard", Low: 10000000, High: 10000000},
		{Name: "Enhanced", Low: 9750000, High: 9750000},
		{Name: "C-Band", Low: 5150000, High: 5150000},
		{Name: "C-Multi", Low: 5150000, High: 5750000, Bandstack: true},
		{Name: "Circular 10750", Low: 10750000, High: 10750000},
		{Name: "Ku 10700", Low: 10700000, High: 10700000},
		{Name: "Ku 10750", Low: 10750000, High: 10750000},
		{Name: "Ku 11300", Low: 11300000, High: 11300000},
		{Name: "DBS", Low: 11250000, High: 11250000},
		{Name: "DBS Bandstack", Low: 11250000, High: 14350000, Bandstack: true},
		{Name: "Ku 10750 Bandstack", Low: 10750000, High: 13850000, Bandstack: true},
		{Name: "C-Band Bandstack", Low: 5150000, High: 5750000, Bandstack: true},
	}
}
