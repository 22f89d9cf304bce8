package main

import (
	"sync"
	"time"

	"github.com/nerrad567/satlink-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/satlink-core/internal/satconf"
)

// observerSet fans finished attempts out to the journal, metrics and the
// MQTT bridge. Observers can be added after the manager is created.
type observerSet struct {
	mu        sync.RWMutex
	observers []satconf.Observer
}

func (s *observerSet) add(o satconf.Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// TuningFinished implements satconf.Observer.
func (s *observerSet) TuningFinished(o satconf.Outcome) {
	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()
	for _, obs := range observers {
		obs.TuningFinished(o)
	}
}

// metricsWriter is the part of *influxdb.Client the metrics observer uses.
type metricsWriter interface {
	WriteTuningMetric(m influxdb.TuningMetric)
	WriteRotorMove(satconf, element string, delta float64, graceSeconds int, at time.Time)
}

// metricsObserver writes a tuning point per attempt, plus a rotor point
// when the dish moved.
type metricsObserver struct {
	client metricsWriter
}

func (m metricsObserver) TuningFinished(o satconf.Outcome) {
	m.client.WriteTuningMetric(tuningMetric(o))
	if o.RotorDelta != 0 {
		m.client.WriteRotorMove(o.SatConf, o.ElementID, o.RotorDelta, o.GraceSeconds, o.Finished)
	}
}

func tuningMetric(o satconf.Outcome) influxdb.TuningMetric {
	return influxdb.TuningMetric{
		SatConf:      o.SatConf,
		Element:      o.ElementID,
		Network:      o.Tuning.Network,
		State:        o.State.String(),
		ErrorCode:    satconf.ErrorCode(o.Err),
		Polarisation: o.Tuning.Polarisation.String(),
		Band:         o.Band,
		Frequency:    o.Tuning.Frequency,
		Duration:     o.Finished.Sub(o.Started),
		GraceSeconds: o.GraceSeconds,
		Commands:     o.Commands,
		Time:         o.Finished,
	}
}
