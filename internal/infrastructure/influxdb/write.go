package influxdb

import (
	"maps"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementTuning = "satlink_tuning"
	MeasurementRotor  = "satlink_rotor"
)

// TuningMetric describes one finished tuning attempt.
type TuningMetric struct {
	SatConf      string
	Element      string
	Network      string
	State        string
	ErrorCode    string
	Polarisation string
	Band         int
	Frequency    uint32 // kHz
	Duration     time.Duration
	GraceSeconds int
	Commands     int
	Time         time.Time
}

// WriteTuningMetric records a tuning attempt. State, satconf, element and
// network are tags; everything else is a field.
func (c *Client) WriteTuningMetric(m TuningMetric) {
	tags := map[string]string{
		"satconf": m.SatConf,
		"state":   m.State,
	}
	if m.Element != "" {
		tags["element"] = m.Element
	}
	if m.Network != "" {
		tags["network"] = m.Network
	}
	fields := map[string]any{
		"frequency_khz": int64(m.Frequency),
		"band":          m.Band,
		"polarisation":  m.Polarisation,
		"duration_ms":   m.Duration.Milliseconds(),
		"grace_seconds": m.GraceSeconds,
		"commands":      m.Commands,
		"locked":        m.State == "locked",
	}
	if m.ErrorCode != "" {
		fields["error_code"] = m.ErrorCode
	}
	c.WritePointAt(MeasurementTuning, tags, fields, m.Time)
}

// WriteRotorMove records a rotor movement of delta degrees and the grace
// period granted for it.
func (c *Client) WriteRotorMove(satconf, element string, delta float64, graceSeconds int, at time.Time) {
	c.WritePointAt(MeasurementRotor,
		map[string]string{"satconf": satconf, "element": element},
		map[string]any{"delta_degrees": delta, "grace_seconds": graceSeconds},
		at)
}

// WritePoint writes an arbitrary point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointAt(measurement, tags, fields, time.Now())
}

// WritePointAt writes an arbitrary point. The site tag is always added; a
// zero timestamp means now.
func (c *Client) WritePointAt(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	all := make(map[string]string, len(tags)+1)
	maps.Copy(all, tags)
	if c.site != "" {
		all["site"] = c.site
	}
	c.writer.WritePoint(write.NewPoint(measurement, all, fields, at))
}
