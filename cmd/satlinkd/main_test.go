package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/satlink-core/internal/dvb"
	"github.com/nerrad567/satlink-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/satlink-core/internal/satconf"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "satlink.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("SATLINK_CONFIG", "/nonexistent/path/satlink.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_MissingDatabasePath(t *testing.T) {
	t.Setenv("SATLINK_CONFIG", writeConfig(t, `
site:
  id: test-site
database:
  path: ""
mqtt:
  enabled: false
logging:
  level: error
  format: text
`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_SimulatedFrontends starts the daemon without a broker or
// InfluxDB and shuts it down on context expiry.
func TestRun_SimulatedFrontends(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "satlink.db")
	t.Setenv("SATLINK_CONFIG", writeConfig(t, `
site:
  id: test-site
  antenna:
    latitude: 52.2
    longitude: 0.1
    west: true
database:
  path: "`+dbPath+`"
  journal_days: 7
mqtt:
  enabled: false
influxdb:
  enabled: false
logging:
  level: error
  format: text
frontends:
  - name: adapter0
    device: /dev/dvb/adapter0/frontend0
    driver: simulated
    satconf:
      type: 4port
      elements:
        - {id: astra1, networks: [astra-19.2e]}
        - {id: astra2, networks: [astra-28.2e]}
`))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database not created: %v", err)
	}
}

func TestRun_BadSatConf(t *testing.T) {
	t.Setenv("SATLINK_CONFIG", writeConfig(t, `
site:
  id: test-site
database:
  path: "`+filepath.Join(t.TempDir(), "satlink.db")+`"
mqtt:
  enabled: false
logging:
  level: error
  format: text
frontends:
  - name: adapter0
    device: /dev/dvb/adapter0/frontend0
    driver: simulated
    satconf:
      type: simple
      elements:
        - {id: a, networks: [astra]}
        - {id: b, networks: [hotbird]}
`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should reject two elements on a simple satconf")
	}
}

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("SATLINK_CONFIG", "")
	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/satlink.yaml"
	t.Setenv("SATLINK_CONFIG", expected)
	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

type countingObserver struct {
	mu   sync.Mutex
	seen []string
}

func (c *countingObserver) TuningFinished(o satconf.Outcome) {
	c.mu.Lock()
	c.seen = append(c.seen, o.AttemptID)
	c.mu.Unlock()
}

func TestObserverSet(t *testing.T) {
	var set observerSet
	a, b := &countingObserver{}, &countingObserver{}
	set.add(a)
	set.TuningFinished(satconf.Outcome{AttemptID: "1"})
	set.add(b)
	set.TuningFinished(satconf.Outcome{AttemptID: "2"})

	if len(a.seen) != 2 || len(b.seen) != 1 || b.seen[0] != "2" {
		t.Errorf("a = %v, b = %v", a.seen, b.seen)
	}
}

type fakeMetrics struct {
	tuning []influxdb.TuningMetric
	rotor  []float64
}

func (f *fakeMetrics) WriteTuningMetric(m influxdb.TuningMetric) { f.tuning = append(f.tuning, m) }

func (f *fakeMetrics) WriteRotorMove(_, _ string, delta float64, _ int, _ time.Time) {
	f.rotor = append(f.rotor, delta)
}

func TestMetricsObserver(t *testing.T) {
	started := time.Date(2026, 10, 1, 20, 0, 0, 0, time.UTC)
	locked := satconf.Outcome{
		SatConf:   "adapter0",
		ElementID: "astra1",
		Tuning:    dvb.Tuning{Network: "astra-19.2e", Frequency: 11727000, Polarisation: dvb.Vertical},
		Band:      1,
		State:     satconf.StateLocked,
		Commands:  3,
		Started:   started,
		Finished:  started.Add(1500 * time.Millisecond),
	}
	moved := locked
	moved.RotorDelta = -9.2
	moved.GraceSeconds = 4
	failed := locked
	failed.State = satconf.StateFailed
	failed.Err = errors.Join(satconf.ErrHardwareIO, errors.New("ioctl"))

	fake := &fakeMetrics{}
	obs := metricsObserver{client: fake}
	for _, o := range []satconf.Outcome{locked, moved, failed} {
		obs.TuningFinished(o)
	}

	if len(fake.tuning) != 3 || len(fake.rotor) != 1 || fake.rotor[0] != -9.2 {
		t.Fatalf("tuning = %d points, rotor = %v", len(fake.tuning), fake.rotor)
	}
	m := fake.tuning[0]
	if m.State != "locked" || m.Polarisation != "V" || m.Duration != 1500*time.Millisecond || m.Network != "astra-19.2e" {
		t.Errorf("metric = %+v", m)
	}
	if code := fake.tuning[2].ErrorCode; code != satconf.CodeHardwareIO {
		t.Errorf("failed ErrorCode = %q, want %q", code, satconf.CodeHardwareIO)
	}
}
