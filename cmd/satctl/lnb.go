package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/satlink-core/internal/lnb"
)

func newLNBCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lnb",
		Short: "LNB profile catalog and frequency plan",
	}
	cmd.AddCommand(newLNBListCmd(opts), newLNBCalcCmd(opts))
	return cmd
}

type lnbRow struct {
	Name      string `json:"name"`
	LowMHz    string `json:"low_mhz"`
	HighMHz   string `json:"high_mhz"`
	SwitchMHz string `json:"switch_mhz,omitempty"`
	Bandstack bool   `json:"bandstack,omitempty"`
}

func newLNBListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in LNB profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog := lnb.NewCatalog(lnb.Builtin()...)
			var rows []lnbRow
			for _, name := range catalog.Names() {
				p, _ := catalog.Lookup(name)
				row := lnbRow{Name: p.Name, LowMHz: formatMHz(p.Low), HighMHz: formatMHz(p.High), Bandstack: p.Bandstack}
				if p.Switch != 0 {
					row.SwitchMHz = formatMHz(p.Switch)
				}
				rows = append(rows, row)
			}
			return opts.render(cmd.OutOrStdout(), rows, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "NAME\tLOW\tHIGH\tSWITCH\tBANDSTACK")
				for _, r := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\n", r.Name, r.LowMHz, r.HighMHz, r.SwitchMHz, r.Bandstack)
				}
			})
		},
	}
}

// lnbPlan is the frequency plan of one transponder through one LNB.
type lnbPlan struct {
	Profile               string `json:"profile"`
	Frequency             uint32 `json:"frequency"`
	Polarisation          string `json:"polarisation"`
	Band                  int    `json:"band"`
	Polarity              int    `json:"polarity"`
	LocalOscillator       uint32 `json:"local_oscillator"`
	IntermediateFrequency uint32 `json:"intermediate_frequency"`
	Voltage               string `json:"voltage"`
	Tone                  string `json:"tone"`
}

func planFor(p lnb.Profile, freq, pol string) (lnbPlan, error) {
	t, err := parseTuning("", freq, pol, 0)
	if err != nil {
		return lnbPlan{}, err
	}
	band := p.Band(t)
	return lnbPlan{
		Profile:               p.Name,
		Frequency:             t.Frequency,
		Polarisation:          t.Polarisation.String(),
		Band:                  band,
		Polarity:              p.PolarityBit(t),
		LocalOscillator:       p.LocalOscillator(band),
		IntermediateFrequency: p.IntermediateFrequency(t),
		Voltage:               p.Voltage(t).String(),
		Tone:                  p.Tone(t).String(),
	}, nil
}

func lookupProfile(name string) (lnb.Profile, error) {
	p, ok := lnb.NewCatalog(lnb.Builtin()...).Lookup(name)
	if !ok {
		return lnb.Profile{}, fmt.Errorf("unknown LNB profile %q (see 'satctl lnb list')", name)
	}
	return p, nil
}

func newLNBCalcCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "calc PROFILE FREQ POL",
		Short:   "Show band, IF, voltage and tone for a transponder",
		Example: "  satctl lnb calc Universal 11727 V",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := lookupProfile(args[0])
			if err != nil {
				return err
			}
			plan, err := planFor(p, args[1], args[2])
			if err != nil {
				return err
			}
			return opts.render(cmd.OutOrStdout(), plan, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "profile\t%s\n", plan.Profile)
				fmt.Fprintf(tw, "transponder\t%s MHz %s\n", formatMHz(plan.Frequency), plan.Polarisation)
				fmt.Fprintf(tw, "band\t%d\n", plan.Band)
				fmt.Fprintf(tw, "local oscillator\t%s MHz\n", formatMHz(plan.LocalOscillator))
				fmt.Fprintf(tw, "intermediate frequency\t%s MHz\n", formatMHz(plan.IntermediateFrequency))
				fmt.Fprintf(tw, "voltage\t%s\n", plan.Voltage)
				fmt.Fprintf(tw, "tone\t%s\n", plan.Tone)
			})
		},
	}
}
