package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/satlink-core/internal/satconf"
)

type unicableResult struct {
	Standard              string `json:"standard"`
	SCR                   int    `json:"scr"`
	Position              int    `json:"position"`
	IntermediateFrequency uint32 `json:"intermediate_frequency"`
	Index                 int    `json:"index"`
	TunerFrequency        uint32 `json:"tuner_frequency"`
	Frame                 string `json:"frame"`
}

func newUnicableCmd(opts *rootOptions) *cobra.Command {
	var (
		standard string
		profile  string
		u        = satconf.UnicableConfig{Pin: satconf.NoPin}
	)
	cmd := &cobra.Command{
		Use:     "unicable FREQ POL",
		Short:   "Compute the SCR channel change command and tuner frequency",
		Example: "  satctl unicable 11727 V --standard en50607 --scr 3 --ub 1420",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch strings.ToLower(standard) {
			case "en50494", "unicable", "1":
				u.Standard = satconf.EN50494
			case "en50607", "jess", "2":
				u.Standard = satconf.EN50607
			default:
				return fmt.Errorf("unknown unicable standard %q", standard)
			}
			p, err := lookupProfile(profile)
			if err != nil {
				return err
			}
			plan, err := planFor(p, args[0], args[1])
			if err != nil {
				return err
			}
			res, err := computeUnicable(&u, plan)
			if err != nil {
				return err
			}
			return opts.render(cmd.OutOrStdout(), res, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "standard\t%s\n", res.Standard)
				fmt.Fprintf(tw, "user band\t%d @ %d MHz\n", res.SCR, u.Frequency)
				fmt.Fprintf(tw, "position\t%d\n", res.Position)
				fmt.Fprintf(tw, "lnb if\t%s MHz\n", formatMHz(res.IntermediateFrequency))
				fmt.Fprintf(tw, "index\t%d\n", res.Index)
				fmt.Fprintf(tw, "tuner frequency\t%s MHz\n", formatMHz(res.TunerFrequency))
				fmt.Fprintf(tw, "frame\t%s\n", res.Frame)
			})
		},
	}
	cmd.Flags().StringVar(&standard, "standard", "en50494", "en50494 (Unicable I) or en50607 (Unicable II/JESS)")
	cmd.Flags().StringVar(&profile, "lnb", "Universal", "LNB profile behind the SCR")
	cmd.Flags().IntVar(&u.SCR, "scr", 0, "User band id")
	cmd.Flags().IntVar(&u.Frequency, "ub", 1210, "User band centre frequency in MHz")
	cmd.Flags().IntVar(&u.Pin, "pin", satconf.NoPin, "User band PIN, -1 for none")
	cmd.Flags().IntVar(&u.Position, "position", 0, "Satellite position")
	return cmd
}

func computeUnicable(u *satconf.UnicableConfig, plan lnbPlan) (unicableResult, error) {
	maxSCR, maxPos := 7, 1
	if u.Standard == satconf.EN50607 {
		maxSCR, maxPos = 31, 63
	}
	if u.SCR < 0 || u.SCR > maxSCR {
		return unicableResult{}, fmt.Errorf("%s user band must be 0-%d", u.Standard, maxSCR)
	}
	if u.Position < 0 || u.Position > maxPos {
		return unicableResult{}, fmt.Errorf("%s position must be 0-%d", u.Standard, maxPos)
	}
	if u.Pin != satconf.NoPin && (u.Pin < 0 || u.Pin > 255) {
		return unicableResult{}, errors.New("pin must be 0-255 or -1")
	}
	rf, index, err := u.TuningFrequency(plan.IntermediateFrequency)
	if err != nil {
		return unicableResult{}, err
	}
	frame, err := u.Frame(index, plan.Polarity, plan.Band)
	if err != nil {
		return unicableResult{}, err
	}
	return unicableResult{
		Standard:              u.Standard.String(),
		SCR:                   u.SCR,
		Position:              u.Position,
		IntermediateFrequency: plan.IntermediateFrequency,
		Index:                 index,
		TunerFrequency:        rf,
		Frame:                 frame.String(),
	}, nil
}
