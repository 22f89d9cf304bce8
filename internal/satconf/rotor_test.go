package satconf

import (
	"context"
	"math"
	"testing"

	"github.com/nerrad567/satlink-core/internal/dvb"
	"github.com/nerrad567/satlink-core/internal/dvb/simdvb"
)

func TestMotorAngle(t *testing.T) {
	tests := []struct {
		name      string
		site      Site
		satLon    float64
		wantAngle int
		wantCmd   uint16
	}{
		{"central europe to 19.2E", Site{Latitude: 50, Longitude: 10}, 19.2, 102, 0xE0A3},
		{"central europe to 13E", Site{Latitude: 50, Longitude: 10}, 13.0, 33, 0xE035},
		{"central europe to 0.8W", Site{Latitude: 50, Longitude: 10}, -0.8, -120, 0xD0C0},
		{"london to 28.2E", Site{Latitude: 51.5, Longitude: 0.1, West: true}, 28.2, 311, 0xE1F2},
		{"cape town to 5W", Site{Latitude: 33.9, Longitude: 18.4, South: true}, -5.0, 266, 0xE1AA},
		{"due south", Site{Latitude: 50, Longitude: 10}, 10, 0, 0xE000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			angle := MotorAngle(tt.site, tt.satLon)
			if angle != tt.wantAngle {
				t.Errorf("MotorAngle() = %d, want %d", angle, tt.wantAngle)
			}
			if cmd := USALSCommand(angle); cmd != tt.wantCmd {
				t.Errorf("USALSCommand(%d) = %#04x, want %#04x", angle, cmd, tt.wantCmd)
			}
		})
	}
}

func TestLookAngle(t *testing.T) {
	az, el := LookAngle(Site{Latitude: 50, Longitude: 10}, 19.2)
	if math.Abs(az-168.054) > 0.01 || math.Abs(el-32.073) > 0.01 {
		t.Errorf("LookAngle() = %.3f/%.3f, want 168.054/32.073", az, el)
	}
}

func TestRotorConfig_Frame(t *testing.T) {
	site := Site{Latitude: 50, Longitude: 10}

	gotox := &RotorConfig{Kind: RotorGOTOX, Position: 12}
	if got := gotox.Frame(site, 0).String(); got != "e0 31 6b 0c" {
		t.Errorf("GOTOX Frame() = %q", got)
	}
	usals := &RotorConfig{Kind: RotorUSALS, SatLongitude: 19.2}
	if got := usals.Frame(site, 1).String(); got != "e1 31 6e e0 a3" {
		t.Errorf("USALS Frame() = %q", got)
	}
}

func TestOrbitalPosition(t *testing.T) {
	tests := map[float64]int{19.2: 192, -0.8: -8, 28.25: 283, -30: -300, 0: 0}
	for lon, want := range tests {
		if got := OrbitalPosition(lon); got != want {
			t.Errorf("OrbitalPosition(%v) = %d, want %d", lon, got, want)
		}
	}
}

func rotorSatConf(t *testing.T, env *testEnv, settings Settings, satLon float64) (*SatConf, *simdvb.Opener) {
	t.Helper()
	settings.Site = Site{Latitude: 50, Longitude: 10}
	return env.addSatConf(t, "adapter0", settings, &Element{
		ID: "motor", Enabled: true, Networks: []string{"sat"}, LNB: universal(t),
		Rotor: &RotorConfig{Kind: RotorUSALS, SatLongitude: satLon},
	})
}

func TestRotor_WithinToleranceDoesNotMove(t *testing.T) {
	env := newTestEnv(t)
	sc, opener := rotorSatConf(t, env, Settings{MotorRate: 300}, 19.3)
	sc.session.rotor.set(192)

	res, err := sc.StartTuning(context.Background(), Request{MuxID: "m", Tuning: tuning("sat", 11000000, dvb.Vertical)})
	if err != nil {
		t.Fatalf("StartTuning() error = %v", err)
	}
	if res.State != StateLocked || res.GraceSeconds != 0 {
		t.Errorf("Result = %+v, want locked without grace", res)
	}
	for _, c := range opener.Last().CallsOf(simdvb.OpFrame) {
		if c.Frame[1] == dvb.AddrPolarMotor {
			t.Errorf("rotor command sent within tolerance: %s", c)
		}
	}
}

func TestEstimatedGraceSeconds(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		cached   *int
		satLon   float64
		want     int
	}{
		{"no prior position", Settings{MotorRate: 300}, nil, 29.2, DefaultMaxRotorMove},
		{"no prior position configured max", Settings{MotorRate: 300, MaxRotorMove: 45}, nil, 29.2, 45},
		{"unknown motor rate", Settings{}, ptr(192), 29.2, DefaultMaxRotorMove},
		{"ten degrees", Settings{MotorRate: 300}, ptr(192), 29.2, 4},
		{"ten degrees westwards", Settings{MotorRate: 450}, ptr(192), 9.2, 6},
		{"within tolerance", Settings{MotorRate: 300}, ptr(192), 19.4, 0},
		{"minimum move", Settings{MotorRate: 10, MinRotorMove: 5}, ptr(192), 29.2, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			sc, _ := rotorSatConf(t, env, tt.settings, tt.satLon)
			if tt.cached != nil {
				sc.session.rotor.set(*tt.cached)
			}
			got := sc.EstimatedGraceSeconds(tuning("sat", 11000000, dvb.Vertical))
			if got != tt.want {
				t.Errorf("EstimatedGraceSeconds() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRotor_MoveReportsDelta(t *testing.T) {
	env := newTestEnv(t)
	sc, opener := rotorSatConf(t, env, Settings{MotorRate: 300}, 29.2)
	sc.session.rotor.set(192)

	res, err := sc.StartTuning(context.Background(), Request{MuxID: "m", Tuning: tuning("sat", 11000000, dvb.Vertical)})
	if err != nil {
		t.Fatalf("StartTuning() error = %v", err)
	}
	if res.State != StateSuspended || res.GraceSeconds != 4 {
		t.Fatalf("Result = %+v, want suspended 4s", res)
	}
	assertCalls(t, opener.Last(), "tone off", "voltage 18V", "frame e0 31 6e e1 53")

	env.sched.fireNext(t)
	outs := env.obs.all()
	if len(outs) != 1 || outs[0].RotorDelta != 10 || outs[0].State != StateLocked {
		t.Errorf("outcomes = %+v, want locked with 10 degree move", outs)
	}
	// The final voltage follows the polarisation again.
	calls := callStrings(opener.Last().Calls())
	if calls[len(calls)-2] != "voltage 13V" {
		t.Errorf("calls = %q, want 13V before lock", calls)
	}
}

func ptr[T any](v T) *T { return &v }
