package journal

import (
	"context"
	"time"

	"github.com/nerrad567/satlink-core/internal/satconf"
)

// recordTimeout bounds one journal insert.
const recordTimeout = 2 * time.Second

// Recorder writes every finished tuning attempt to a Repository. It is
// a satconf.Observer.
type Recorder struct {
	repo   Repository
	logger satconf.Logger
}

// NewRecorder creates a Recorder. A nil logger discards write failures.
func NewRecorder(repo Repository, logger satconf.Logger) *Recorder {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Recorder{repo: repo, logger: logger}
}

// TuningFinished implements satconf.Observer.
func (r *Recorder) TuningFinished(o satconf.Outcome) {
	e := FromOutcome(o)
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.repo.Record(ctx, &e); err != nil {
		r.logger.Error("journal write failed", "attempt", o.AttemptID, "error", err)
	}
}

// FromOutcome converts an attempt outcome into a journal entry.
func FromOutcome(o satconf.Outcome) Entry {
	e := Entry{
		AttemptID:             o.AttemptID,
		SatConf:               o.SatConf,
		Frontend:              o.Frontend,
		MuxID:                 o.MuxID,
		ElementID:             o.ElementID,
		Network:               o.Tuning.Network,
		Frequency:             o.Tuning.Frequency,
		Polarisation:          o.Tuning.Polarisation.String(),
		Band:                  o.Band,
		IntermediateFrequency: o.IntermediateFrequency,
		State:                 o.State.String(),
		ErrorCode:             satconf.ErrorCode(o.Err),
		GraceSeconds:          o.GraceSeconds,
		RotorDelta:            o.RotorDelta,
		Commands:              o.Commands,
		StartedAt:             o.Started,
		FinishedAt:            o.Finished,
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
	}
	return e
}

// Pruner deletes entries older than a retention window once a day.
type Pruner struct {
	repo      Repository
	retention time.Duration
	interval  time.Duration
	logger    satconf.Logger
}

// NewPruner creates a Pruner keeping days of history.
func NewPruner(repo Repository, days int, logger satconf.Logger) *Pruner {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Pruner{
		repo:      repo,
		retention: time.Duration(days) * 24 * time.Hour,
		interval:  24 * time.Hour,
		logger:    logger,
	}
}

// Run prunes immediately and then on every interval until ctx is done.
func (p *Pruner) Run(ctx context.Context) {
	if p.retention <= 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		n, err := p.repo.Prune(ctx, time.Now().Add(-p.retention))
		switch {
		case err != nil && ctx.Err() == nil:
			p.logger.Warn("journal prune failed", "error", err)
		case n > 0:
			p.logger.Info("journal pruned", "deleted", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
