package satconf

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/satlink-core/internal/dvb"
	"github.com/nerrad567/satlink-core/internal/dvb/linuxdvb"
	"github.com/nerrad567/satlink-core/internal/dvb/simdvb"
	"github.com/nerrad567/satlink-core/internal/infrastructure/config"
)

// captureLogger records warning messages.
type captureLogger struct {
	noopLogger
	mu    sync.Mutex
	warns []string
}

func (l *captureLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func buildConfig() *config.Config {
	return &config.Config{
		Site: config.SiteConfig{ID: "test", Antenna: config.GeoConfig{Latitude: 50, Longitude: 10}},
		Tuning: config.TuningConfig{
			DiseqcRepeats: 1,
			SwitchRotor:   true,
		},
		Frontends: []config.FrontendConfig{
			{
				Name: "adapter0", Device: "/dev/dvb/adapter0/frontend0", Driver: config.DriverSimulated,
				SatConf: config.SatConfConfig{
					Type: config.SatConf2Port,
					Elements: []config.ElementConfig{
						{ID: "astra", LNB: "Universal", Networks: []string{"astra"}},
						{ID: "hotbird", LNB: "Quantum 9000", Networks: []string{"hotbird"}},
					},
				},
			},
			{
				Name: "adapter1", Device: "/dev/dvb/adapter1/frontend0", Driver: config.DriverSimulated,
				SatConf: config.SatConfConfig{
					Type:     config.SatConfUnicable,
					Unicable: &config.UnicableConfig{Standard: "en50607", SCR: 4, Frequency: 1210, Pin: -1, Group: 2, Master: true},
					Elements: []config.ElementConfig{
						{ID: "a", Networks: []string{"astra"}},
						{ID: "b", Networks: []string{"hotbird"}},
					},
				},
			},
			{
				Name: "adapter2", Device: "/dev/dvb/adapter2/frontend0", Driver: config.DriverSimulated,
				SatConf: config.SatConfConfig{
					Type:      config.SatConfAdvanced,
					MotorRate: 250,
					Site:      &config.GeoConfig{Latitude: 51.5, Longitude: 0.1, West: true},
					Elements: []config.ElementConfig{{
						ID:       "motor",
						Priority: 3,
						Networks: []string{"thor"},
						Switch:   &config.SwitchConfig{Committed: 2, Uncommitted: -1, Toneburst: -1},
						Rotor:    &config.RotorConfig{Type: "USALS", SatLongitude: -0.8},
					}},
				},
			},
		},
	}
}

func TestBuild(t *testing.T) {
	log := &captureLogger{}
	m := NewManager(Options{Sleep: func(time.Duration) {}, Logger: log})
	defer m.Close()

	if err := m.Build(buildConfig(), nil); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if n := len(m.SatConfs()); n != 3 {
		t.Fatalf("SatConfs() = %d, want 3", n)
	}

	twoPort, _ := m.SatConf("adapter0")
	els := twoPort.Elements()
	if els[1].Switch.Committed != 1 || els[1].Switch.Toneburst != 1 {
		t.Errorf("2port element 1 switch = %+v, want committed 1 toneburst B", els[1].Switch)
	}
	if els[1].LNB.Name != "Universal" || len(log.warns) != 1 {
		t.Errorf("unknown lnb: profile %q warnings %v, want Universal fallback logged", els[1].LNB.Name, log.warns)
	}
	if got := twoPort.Settings().Policy; got.DiseqcRepeats != 1 || !got.SwitchRotor {
		t.Errorf("Policy = %+v", got)
	}

	uni, _ := m.SatConf("adapter1")
	els = uni.Elements()
	if !els[0].Unicable.Master || els[1].Unicable.Master {
		t.Error("only the first position of a unicable satconf is the group master")
	}
	if els[1].Unicable.Position != 1 || els[1].Unicable.Standard != EN50607 {
		t.Errorf("unicable element 1 = %+v", els[1].Unicable)
	}

	adv, _ := m.SatConf("adapter2")
	el := adv.Elements()[0]
	if el.Rotor.Kind != RotorUSALS || el.Switch.Committed != 2 || !el.Enabled {
		t.Errorf("advanced element = %+v", el)
	}
	if s := adv.Settings(); !s.Site.West || s.MotorRate != 250 {
		t.Errorf("advanced settings = %+v", s)
	}
}

func TestBuild_TunesSimulatedFrontend(t *testing.T) {
	m := NewManager(Options{Sleep: func(time.Duration) {}})
	defer m.Close()
	if err := m.Build(buildConfig(), nil); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	sc, err := m.SatConf("adapter0")
	if err != nil {
		t.Fatalf("SatConf() error = %v", err)
	}
	res, err := sc.StartTuning(context.Background(), Request{MuxID: "m", Tuning: tuning("hotbird", 11034000, dvb.Vertical)})
	if err != nil {
		t.Fatalf("StartTuning() error = %v", err)
	}
	if res.State != StateLocked || res.ElementID != "hotbird" {
		t.Errorf("Result = %+v", res)
	}
}

func TestBuild_Errors(t *testing.T) {
	cfg := buildConfig()
	cfg.Frontends[0].Driver = "dvbapi"
	m := NewManager(Options{})
	defer m.Close()
	if err := m.Build(cfg, nil); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("Build() unknown driver error = %v, want ErrConfigInvalid", err)
	}

	cfg = buildConfig()
	cfg.Frontends = append(cfg.Frontends, cfg.Frontends[1])
	cfg.Frontends[3].Name = "adapter3"
	m2 := NewManager(Options{})
	defer m2.Close()
	if err := m2.Build(cfg, nil); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("Build() second group master error = %v, want ErrConfigInvalid", err)
	}
}

func TestOpenerFor(t *testing.T) {
	if o, err := OpenerFor(""); err != nil {
		t.Errorf("OpenerFor(\"\") error = %v", err)
	} else if _, ok := o.(linuxdvb.Opener); !ok {
		t.Errorf("OpenerFor(\"\") = %T, want linuxdvb.Opener", o)
	}
	if o, _ := OpenerFor(config.DriverSimulated); o == nil {
		t.Error("OpenerFor(simulated) = nil")
	} else if _, ok := o.(*simdvb.Opener); !ok {
		t.Errorf("OpenerFor(simulated) = %T", o)
	}
}

func TestBuild_ExampleConfig(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "satlink.yaml"))
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	for i := range cfg.Frontends {
		cfg.Frontends[i].Driver = config.DriverSimulated
	}

	m := NewManager(Options{Sleep: func(time.Duration) {}})
	defer m.Close()
	if err := m.Build(cfg, nil); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if n := len(m.SatConfs()); n != 4 {
		t.Fatalf("SatConfs() = %d, want 4", n)
	}

	g := m.Groups().Group(1)
	unlock := lockGroup(m, g)
	sc, el, err := g.ResolveMaster()
	unlock()
	if err != nil {
		t.Fatalf("ResolveMaster() error = %v", err)
	}
	if sc.Name() != "adapter2" || el.ID != "uni-a" {
		t.Errorf("group 1 master = %s/%s, want adapter2/uni-a", sc.Name(), el.ID)
	}

	slave, _ := m.SatConf("adapter3")
	res, err := slave.StartTuning(context.Background(), Request{MuxID: "m", Tuning: tuning("astra-28.2e", 11727000, dvb.Vertical)})
	if err != nil {
		t.Fatalf("StartTuning() through the group master error = %v", err)
	}
	if res.State != StateLocked || res.ElementID != "uni-b" {
		t.Errorf("Result = %+v", res)
	}
}
