package satconf

import (
	"fmt"
	"strings"

	"github.com/nerrad567/satlink-core/internal/dvb"
	"github.com/nerrad567/satlink-core/internal/dvb/linuxdvb"
	"github.com/nerrad567/satlink-core/internal/dvb/simdvb"
	"github.com/nerrad567/satlink-core/internal/infrastructure/config"
)

// OpenerFor returns the device opener for a configured driver.
func OpenerFor(driver string) (dvb.Opener, error) {
	switch driver {
	case "", config.DriverLinuxDVB:
		return linuxdvb.Opener{}, nil
	case config.DriverSimulated:
		return simdvb.NewOpener(), nil
	default:
		return nil, fmt.Errorf("%w: driver %q", ErrConfigInvalid, driver)
	}
}

// Build creates a SatConf for every configured frontend.
//
// Unknown LNB names are logged and replaced by the Universal profile.
// Typed satconfs (simple, 2port, 4port, unicable) get their elements
// generated from the element list; advanced ones take devices as given.
//
// Parameters:
//   - cfg: Loaded configuration
//   - openerFor: Driver lookup, normally OpenerFor
//
// Returns:
//   - error: The first frontend that could not be built
func (m *Manager) Build(cfg *config.Config, openerFor func(driver string) (dvb.Opener, error)) error {
	if openerFor == nil {
		openerFor = OpenerFor
	}
	for _, fc := range cfg.Frontends {
		opener, err := openerFor(fc.Driver)
		if err != nil {
			return fmt.Errorf("frontend %s: %w", fc.Name, err)
		}
		fe := NewFrontend(fc.Name, fc.Device, opener)

		site := cfg.Site.Antenna
		if fc.SatConf.Site != nil {
			site = *fc.SatConf.Site
		}
		settings := Settings{
			Policy: Policy{
				DiseqcRepeats: cfg.Tuning.DiseqcRepeats,
				DiseqcFull:    cfg.Tuning.DiseqcFull,
				SwitchRotor:   cfg.Tuning.SwitchRotor,
				EarlyTune:     cfg.Tuning.EarlyTune,
				LNBPowerOff:   cfg.Tuning.LNBPowerOff,
			},
			Site:         siteFromConfig(site),
			MotorRate:    fc.SatConf.MotorRate,
			MaxRotorMove: fc.SatConf.MaxRotorMove,
			MinRotorMove: fc.SatConf.MinRotorMove,
		}

		sc, err := m.NewSatConf(fc.Name, fe, settings)
		if err != nil {
			return fmt.Errorf("frontend %s: %w", fc.Name, err)
		}
		for i, ec := range fc.SatConf.Elements {
			el, err := m.element(fc.SatConf, i, ec)
			if err != nil {
				return fmt.Errorf("frontend %s: %w", fc.Name, err)
			}
			if err := sc.AddElement(el); err != nil {
				return fmt.Errorf("frontend %s: %w", fc.Name, err)
			}
		}
		m.logger.Info("satconf configured", "satconf", sc.name, "type", fc.SatConf.Type,
			"device", fc.Device, "elements", len(fc.SatConf.Elements))
	}
	return nil
}

// element builds element i of a satconf.
func (m *Manager) element(scc config.SatConfConfig, i int, ec config.ElementConfig) (*Element, error) {
	profile, ok := m.catalog.Lookup(ec.LNB)
	if !ok && ec.LNB != "" {
		m.logger.Warn("unknown lnb type, using default", "element", ec.ID, "lnb", ec.LNB, "default", profile.Name)
	}

	el := &Element{
		ID:       ec.ID,
		Name:     ec.Name,
		Priority: ec.Priority,
		Enabled:  !ec.Disabled,
		Networks: ec.Networks,
		LNB:      profile,
	}
	if el.ID == "" {
		el.ID = fmt.Sprintf("%d", i)
	}

	switch scc.Type {
	case config.SatConfSimple:
	case config.SatConf2Port:
		el.Switch = NewSwitchConfig(i)
		el.Switch.Toneburst = i
	case config.SatConf4Port:
		el.Switch = NewSwitchConfig(i)
	case config.SatConfUnicable:
		if scc.Unicable == nil {
			return nil, fmt.Errorf("%w: unicable satconf without unicable settings", ErrConfigInvalid)
		}
		u, err := unicableFromConfig(*scc.Unicable)
		if err != nil {
			return nil, err
		}
		u.Position = i
		u.Master = u.Master && i == 0
		el.Unicable = u
	case config.SatConfAdvanced:
		if ec.Switch != nil {
			el.Switch = &SwitchConfig{
				Committed:        ec.Switch.Committed,
				Uncommitted:      ec.Switch.Uncommitted,
				Toneburst:        ec.Switch.Toneburst,
				PowerUpTime:      ec.Switch.PowerUpTime,
				CommandTime:      ec.Switch.CommandTime,
				UncommittedFirst: ec.Switch.UncommittedFirst,
			}
		}
		if ec.Rotor != nil {
			el.Rotor = &RotorConfig{
				Kind:         RotorGOTOX,
				Position:     ec.Rotor.Position,
				SatLongitude: ec.Rotor.SatLongitude,
				PowerUpTime:  ec.Rotor.PowerUpTime,
				CommandTime:  ec.Rotor.CommandTime,
			}
			if strings.EqualFold(ec.Rotor.Type, "usals") {
				el.Rotor.Kind = RotorUSALS
			}
		}
		if ec.Unicable != nil {
			u, err := unicableFromConfig(*ec.Unicable)
			if err != nil {
				return nil, err
			}
			el.Unicable = u
		}
	default:
		return nil, fmt.Errorf("%w: satconf type %q", ErrConfigInvalid, scc.Type)
	}
	return el, nil
}

func unicableFromConfig(c config.UnicableConfig) (*UnicableConfig, error) {
	u := &UnicableConfig{
		SCR:         c.SCR,
		Frequency:   c.Frequency,
		Pin:         c.Pin,
		Position:    c.Position,
		Group:       c.Group,
		Master:      c.Master,
		PowerUpTime: c.PowerUpTime,
		CommandTime: c.CommandTime,
	}
	switch strings.ToLower(c.Standard) {
	case "", config.StandardEN50494:
		u.Standard = EN50494
	case config.StandardEN50607:
		u.Standard = EN50607
	default:
		return nil, fmt.Errorf("%w: unicable standard %q", ErrConfigInvalid, c.Standard)
	}
	return u, nil
}

func siteFromConfig(g config.GeoConfig) Site {
	return Site{
		Latitude:  g.Latitude,
		Longitude: g.Longitude,
		Altitude:  g.Altitude,
		South:     g.South,
		West:      g.West,
	}
}
