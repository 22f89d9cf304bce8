package main

import (
	"fmt"
	"math"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/satlink-core/internal/satconf"
)

type usalsResult struct {
	SatLongitude float64 `json:"sat_longitude"`
	Azimuth      float64 `json:"azimuth"`
	Elevation    float64 `json:"elevation"`
	Visible      bool    `json:"visible"`
	MotorAngle   float64 `json:"motor_angle"`
	Frame        string  `json:"frame"`
}

func newUSALSCmd(opts *rootOptions) *cobra.Command {
	var site satconf.Site
	cmd := &cobra.Command{
		Use:   "usals SATLON",
		Short: "Compute look angles and the USALS motor command for a satellite",
		Long: `Compute the dish azimuth, elevation and USALS motor angle for the
satellite at SATLON ("19.2E", "0.8W" or degrees, negative west).

Without --lat and --lon the antenna location is read from site.antenna
in the configuration file.`,
		Example: "  satctl usals 28.2E --lat 51.5 --lon 0.1 --west",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			satLon, err := parseLongitude(args[0])
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("lat") && !flags.Changed("lon") {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				a := cfg.Site.Antenna
				site = satconf.Site{Latitude: a.Latitude, Longitude: a.Longitude, Altitude: a.Altitude, South: a.South, West: a.West}
			}

			res := computeUSALS(site, satLon)
			return opts.render(cmd.OutOrStdout(), res, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "satellite\t%.1f\n", res.SatLongitude)
				if !res.Visible {
					fmt.Fprintln(tw, "elevation\tbelow horizon")
					return
				}
				fmt.Fprintf(tw, "azimuth\t%.1f°\n", res.Azimuth)
				fmt.Fprintf(tw, "elevation\t%.1f°\n", res.Elevation)
				fmt.Fprintf(tw, "motor angle\t%.1f°\n", res.MotorAngle)
				fmt.Fprintf(tw, "frame\t%s\n", res.Frame)
			})
		},
	}
	cmd.Flags().Float64Var(&site.Latitude, "lat", 0, "Antenna latitude in degrees")
	cmd.Flags().Float64Var(&site.Longitude, "lon", 0, "Antenna longitude in degrees")
	cmd.Flags().Float64Var(&site.Altitude, "alt", 0, "Antenna altitude in km")
	cmd.Flags().BoolVar(&site.South, "south", false, "Latitude is south")
	cmd.Flags().BoolVar(&site.West, "west", false, "Longitude is west")
	return cmd
}

func computeUSALS(site satconf.Site, satLon float64) usalsResult {
	az, el := satconf.LookAngle(site, satLon)
	rc := &satconf.RotorConfig{Kind: satconf.RotorUSALS, SatLongitude: satLon}
	return usalsResult{
		SatLongitude: satLon,
		Azimuth:      math.Round(az*10) / 10,
		Elevation:    math.Round(el*10) / 10,
		Visible:      el > 0,
		MotorAngle:   float64(satconf.MotorAngle(site, satLon)) / 10,
		Frame:        rc.Frame(site, 0).String(),
	}
}
