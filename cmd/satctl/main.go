// satctl is the operator tool for SatLink Core: LNB, USALS and Unicable
// calculators, one-shot tuning and tuning journal queries.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/satlink-core/internal/dvb"
	"github.com/nerrad567/satlink-core/internal/infrastructure/config"
)

// Set at build time via ldflags.
var version = "dev"

const defaultConfigPath = "configs/satlink.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	json       bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "satctl",
		Short:        "Inspect and drive SatLink satellite frontends",
		Version:      version,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", configPathFromEnv(), "Path to the satlink configuration file")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Print JSON instead of a table")

	cmd.AddCommand(
		newLNBCmd(opts),
		newUSALSCmd(opts),
		newUnicableCmd(opts),
		newTuneCmd(opts),
		newJournalCmd(opts),
	)
	return cmd
}

func configPathFromEnv() string {
	if path := os.Getenv("SATLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", o.configPath, err)
	}
	return cfg, nil
}

// render prints v as JSON with --json, otherwise through table.
func (o *rootOptions) render(w io.Writer, v any, table func(tw *tabwriter.Writer)) error {
	if o.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

// parseFrequency accepts kHz ("11727000") or MHz ("11727", "11727.5") and
// returns kHz.
func parseFrequency(s string) (uint32, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid frequency %q", s)
	}
	if f < 100000 {
		f *= 1000
	}
	return uint32(f + 0.5), nil
}

// parseTuning builds a transponder from "FREQ POL" arguments.
func parseTuning(network, freq, pol string, symbolRate uint32) (dvb.Tuning, error) {
	f, err := parseFrequency(freq)
	if err != nil {
		return dvb.Tuning{}, err
	}
	p, err := dvb.ParsePolarisation(pol)
	if err != nil {
		return dvb.Tuning{}, err
	}
	return dvb.Tuning{
		Network:        network,
		Frequency:      f,
		Polarisation:   p,
		SymbolRate:     symbolRate,
		DeliverySystem: dvb.DVBS2,
	}, nil
}

// parseLongitude accepts "19.2E", "0.8W" or a signed number, negative
// west.
func parseLongitude(s string) (float64, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	sign := 1.0
	switch {
	case strings.HasSuffix(upper, "W"):
		sign, upper = -1, strings.TrimSuffix(upper, "W")
	case strings.HasSuffix(upper, "E"):
		upper = strings.TrimSuffix(upper, "E")
	}
	v, err := strconv.ParseFloat(upper, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid longitude %q", s)
	}
	v *= sign
	if v < -180 || v > 180 {
		return 0, fmt.Errorf("longitude %q out of range", s)
	}
	return v, nil
}

func formatMHz(khz uint32) string {
	return strconv.FormatFloat(float64(khz)/1000, 'f', -1, 64)
}
