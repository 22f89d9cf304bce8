package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/satlink-core/internal/dvb"
	"github.com/nerrad567/satlink-core/internal/dvb/simdvb"
	"github.com/nerrad567/satlink-core/internal/infrastructure/config"
	"github.com/nerrad567/satlink-core/internal/infrastructure/logging"
	"github.com/nerrad567/satlink-core/internal/satconf"
)

type tuneOptions struct {
	element    string
	skipDiseqc bool
	simulate   bool
	hold       bool
	verbose    bool
	timeout    time.Duration
	symbolRate uint32

	// ready is called with the report before a --hold wait.
	ready func(tuneReport) error
}

// tuneReport is what satctl tune prints.
type tuneReport struct {
	Frontend string         `json:"frontend"`
	Result   satconf.Result `json:"result"`
	Error    string         `json:"error,omitempty"`
	Code     string         `json:"code,omitempty"`
	Status   satconf.Status `json:"status"`

	// Commands is the simulated command log.
	Commands []string `json:"commands,omitempty"`
}

func newTuneCmd(opts *rootOptions) *cobra.Command {
	to := &tuneOptions{}
	cmd := &cobra.Command{
		Use:   "tune FRONTEND NETWORK FREQ POL",
		Short: "Tune a configured frontend once and wait for lock",
		Long: `Build the configured satconfs, tune FRONTEND to the transponder and
wait for the frontend to lock, including any rotor move.

With --simulate every frontend uses the simulated driver and the DiSEqC
command log is printed; nothing touches the hardware. Run this while
satlinkd is stopped: both would drive the same frontends.`,
		Example: "  satctl tune adapter0 astra-19.2e 11727 V --simulate",
		Args:    cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			t, err := parseTuning(args[1], args[2], args[3], to.symbolRate)
			if err != nil {
				return err
			}

			level := "warn"
			if to.verbose {
				level = "debug"
			}
			log := logging.NewWithWriter(config.LoggingConfig{Level: level, Format: "text"}, version, cmd.ErrOrStderr())

			rendered := false
			to.ready = func(rep tuneReport) error {
				rendered = true
				return opts.render(cmd.OutOrStdout(), rep, func(tw *tabwriter.Writer) { printTuneReport(tw, rep) })
			}
			rep, err := tuneOnce(commandContext(cmd), cfg, args[0], t, to, log)
			if err != nil {
				return err
			}
			if !rendered {
				if rerr := to.ready(rep); rerr != nil {
					return rerr
				}
			}
			if rep.Error != "" {
				return fmt.Errorf("tuning failed: %s", rep.Code)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&to.element, "element", "", "Force an element instead of selecting by network")
	cmd.Flags().BoolVar(&to.skipDiseqc, "skip-diseqc", false, "Only tune the frontend, send no antenna commands")
	cmd.Flags().BoolVar(&to.simulate, "simulate", false, "Use the simulated driver for every frontend")
	cmd.Flags().BoolVar(&to.hold, "hold", false, "Keep the frontend tuned until interrupted")
	cmd.Flags().BoolVarP(&to.verbose, "verbose", "v", false, "Log every command to stderr")
	cmd.Flags().DurationVar(&to.timeout, "timeout", 30*time.Second, "Lock timeout, on top of any rotor grace period")
	cmd.Flags().Uint32Var(&to.symbolRate, "symbol-rate", 27500000, "Symbol rate in symbols per second")
	return cmd
}

// tuneOnce builds a manager from cfg and runs one attempt on frontend.
func tuneOnce(ctx context.Context, cfg *config.Config, frontend string, t dvb.Tuning, to *tuneOptions, log *logging.Logger) (tuneReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	openerFor := satconf.OpenerFor
	if to.simulate {
		openerFor = func(string) (dvb.Opener, error) { return simdvb.NewOpener(), nil }
	}

	m := satconf.NewManager(satconf.Options{Logger: log})
	defer m.Close()
	if err := m.Build(cfg, openerFor); err != nil {
		return tuneReport{}, err
	}
	sc, err := m.SatConf(frontend)
	if err != nil {
		return tuneReport{}, err
	}

	done := make(chan satconf.Outcome, 1)
	tctx, cancel := context.WithTimeout(ctx, to.timeout)
	defer cancel()
	res, err := sc.StartTuning(tctx, satconf.Request{
		MuxID:      "satctl",
		ElementID:  to.element,
		Tuning:     t,
		SkipDiseqc: to.skipDiseqc,
		Done:       func(o satconf.Outcome) { done <- o },
	})

	if err == nil && res.State == satconf.StateSuspended {
		log.Info("waiting for rotor", "grace_seconds", res.GraceSeconds)
		wait := time.Duration(res.GraceSeconds)*time.Second + to.timeout
		select {
		case o := <-done:
			res, err = resultOf(o), o.Err
		case <-time.After(wait):
			_ = sc.StopTuning("satctl")
			return tuneReport{}, fmt.Errorf("no lock within %v", wait)
		case <-ctx.Done():
			_ = sc.StopTuning("satctl")
			return tuneReport{}, ctx.Err()
		}
	}

	rep := tuneReport{Frontend: frontend, Result: res, Status: sc.Status()}
	if err != nil {
		rep.Error = err.Error()
		rep.Code = satconf.ErrorCode(err)
	}
	if dev, ok := sc.Frontend().Active(); ok {
		if sim, ok := dev.(*simdvb.Device); ok {
			for _, c := range sim.Calls() {
				rep.Commands = append(rep.Commands, c.String())
			}
		}
	}

	if to.hold && err == nil && to.ready != nil {
		if rerr := to.ready(rep); rerr != nil {
			return rep, rerr
		}
		log.Warn("holding tune, interrupt to release", "frontend", frontend)
		<-ctx.Done()
	}
	return rep, nil
}

func resultOf(o satconf.Outcome) satconf.Result {
	return satconf.Result{
		AttemptID:             o.AttemptID,
		State:                 o.State,
		ElementID:             o.ElementID,
		Band:                  o.Band,
		Polarity:              o.Polarity,
		IntermediateFrequency: o.IntermediateFrequency,
		Frequency:             o.Frequency,
		GraceSeconds:          o.GraceSeconds,
	}
}

func printTuneReport(tw *tabwriter.Writer, rep tuneReport) {
	r := rep.Result
	fmt.Fprintf(tw, "frontend\t%s\n", rep.Frontend)
	fmt.Fprintf(tw, "state\t%s\n", r.State)
	if rep.Error != "" {
		fmt.Fprintf(tw, "error\t%s (%s)\n", rep.Error, rep.Code)
	}
	if r.ElementID != "" {
		fmt.Fprintf(tw, "element\t%s\n", r.ElementID)
	}
	fmt.Fprintf(tw, "band\t%d\n", r.Band)
	fmt.Fprintf(tw, "tuner frequency\t%s MHz\n", formatMHz(r.Frequency))
	if r.GraceSeconds > 0 {
		fmt.Fprintf(tw, "rotor grace\t%ds\n", r.GraceSeconds)
	}
	fmt.Fprintf(tw, "voltage/tone\t%s/%s\n", rep.Status.Voltage, rep.Status.Tone)
	if rep.Status.Rotor != "" {
		fmt.Fprintf(tw, "rotor\t%s\n", rep.Status.Rotor)
	}
	for i, c := range rep.Commands {
		fmt.Fprintf(tw, "cmd %d\t%s\n", i+1, c)
	}
}
