package satconf

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/satlink-core/internal/dvb"
	"github.com/nerrad567/satlink-core/internal/dvb/simdvb"
	"github.com/nerrad567/satlink-core/internal/lnb"
)

// fakeTimer is a timer that only fires when the test says so.
type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	wasPending := !t.stopped && !t.fired
	t.stopped = true
	return wasPending
}

// fakeScheduler records armed timers.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) pending() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fireNext runs the oldest pending timer.
func (s *fakeScheduler) fireNext(t *testing.T) time.Duration {
	t.Helper()
	p := s.pending()
	if len(p) == 0 {
		t.Fatal("no pending timer")
	}
	p[0].fired = true
	p[0].f()
	return p[0].d
}

// recordingObserver collects outcomes.
type recordingObserver struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (o *recordingObserver) TuningFinished(out Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, out)
}

func (o *recordingObserver) all() []Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.outcomes)
}

type testEnv struct {
	m      *Manager
	sched  *fakeScheduler
	obs    *recordingObserver
	sleeps *[]time.Duration
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	var mu sync.Mutex
	sleeps := []time.Duration{}
	env := &testEnv{
		sched:  &fakeScheduler{},
		obs:    &recordingObserver{},
		sleeps: &sleeps,
	}
	env.m = NewManager(Options{
		Scheduler: env.sched,
		Sleep: func(d time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			sleeps = append(sleeps, d)
		},
		Jitter:   func() time.Duration { return jitterMin },
		Observer: env.obs,
	})
	t.Cleanup(func() { _ = env.m.Close() })
	return env
}

// addSatConf registers a SatConf backed by a simulated frontend.
func (env *testEnv) addSatConf(t *testing.T, name string, settings Settings, els ...*Element) (*SatConf, *simdvb.Opener) {
	t.Helper()
	opener := simdvb.NewOpener()
	sc, err := env.m.NewSatConf(name, NewFrontend(name, "/dev/dvb/"+name+"/frontend0", opener), settings)
	if err != nil {
		t.Fatalf("NewSatConf(%s) error = %v", name, err)
	}
	for _, el := range els {
		if err := sc.AddElement(el); err != nil {
			t.Fatalf("AddElement(%s) error = %v", el.ID, err)
		}
	}
	return sc, opener
}

func universal(t *testing.T) lnb.Profile {
	t.Helper()
	p, ok := lnb.NewCatalog(lnb.Builtin()...).Lookup("Universal")
	if !ok {
		t.Fatal("Universal profile missing")
	}
	return p
}

func callStrings(calls []simdvb.Call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

func assertCalls(t *testing.T, dev *simdvb.Device, want ...string) {
	t.Helper()
	got := callStrings(dev.Calls())
	if !slices.Equal(got, want) {
		t.Errorf("calls = %q\nwant    %q", got, want)
	}
}

func tuning(network string, freq uint32, pol dvb.Polarisation) dvb.Tuning {
	return dvb.Tuning{
		Network:        network,
		Frequency:      freq,
		Polarisation:   pol,
		SymbolRate:     27500000,
		DeliverySystem: dvb.DVBS,
		Modulation:     "QPSK",
		FEC:            "3/4",
	}
}

// logEntry is one captured log call.
type logEntry struct {
	level string
	msg   string
	attrs map[string]any
}

// entryLogger captures debug and warning messages with their attributes.
type entryLogger struct {
	noopLogger
	mu      sync.Mutex
	entries []logEntry
}

func (l *entryLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	attrs := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if k, ok := args[i].(string); ok {
			attrs[k] = args[i+1]
		}
	}
	l.entries = append(l.entries, logEntry{level: level, msg: msg, attrs: attrs})
}

func (l *entryLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *entryLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }

// find returns the first entry with msg.
func (l *entryLogger) find(msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}
