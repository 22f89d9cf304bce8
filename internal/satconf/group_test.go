package satconf

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/nerrad567/satlink-core/internal/dvb"
	"github.com/nerrad567/satlink-core/internal/dvb/simdvb"
)

type groupFixture struct {
	env           *testEnv
	master, slave *SatConf
	masterOpener  *simdvb.Opener
	slaveOpener   *simdvb.Opener
}

func newGroupFixture(t *testing.T, group int) *groupFixture {
	t.Helper()
	env := newTestEnv(t)
	f := &groupFixture{env: env}
	f.master, f.masterOpener = env.addSatConf(t, "master", Settings{}, &Element{
		ID: "m", Enabled: true, Networks: []string{"astra"}, LNB: universal(t),
		Unicable: &UnicableConfig{Standard: EN50494, SCR: 0, Frequency: 1284, Pin: NoPin, Group: group, Master: true},
	})
	f.slave, f.slaveOpener = env.addSatConf(t, "slave", Settings{}, &Element{
		ID: "s", Enabled: true, Networks: []string{"astra"}, LNB: universal(t),
		Unicable: &UnicableConfig{Standard: EN50494, SCR: 1, Frequency: 1400, Pin: NoPin, Group: group},
	})
	return f
}

// lockGroup takes the state lock and then the group lock, the order the
// group's master lookups need.
func lockGroup(m *Manager, g *UnicableGroup) (unlock func()) {
	m.lock.Lock()
	g.Lock()
	return func() {
		g.Unlock()
		m.lock.Unlock()
	}
}

func TestGroup_SlaveBorrowsActiveMasterPort(t *testing.T) {
	f := newGroupFixture(t, 3)
	masterDev, err := f.master.fe.open()
	if err != nil {
		t.Fatalf("open() error = %v", err)
	}

	g := f.env.m.Groups().Group(3)
	unlock := lockGroup(f.env.m, g)
	port, sc, err := g.AcquireMasterPort()
	if err != nil {
		unlock()
		t.Fatalf("AcquireMasterPort() error = %v", err)
	}
	if port != masterDev || sc != f.master || g.Owned() {
		t.Errorf("acquired port = %v owned = %v, want the master's device borrowed", port, g.Owned())
	}
	if err := g.ReleaseMasterPort(); err != nil {
		t.Errorf("ReleaseMasterPort() error = %v", err)
	}
	unlock()

	if closed, _ := f.masterOpener.Last().Closed(); closed {
		t.Error("borrowed master port was closed by the group")
	}
	if dev, ok := f.master.fe.Active(); !ok || dev != masterDev {
		t.Error("master frontend lost its device")
	}
}

func TestGroup_SlaveTuneUsesMasterVoltagePath(t *testing.T) {
	f := newGroupFixture(t, 3)
	ctx := context.Background()

	if _, err := f.master.StartTuning(ctx, Request{MuxID: "m1", Tuning: tuning("astra", 11727000, dvb.Horizontal)}); err != nil {
		t.Fatalf("master StartTuning() error = %v", err)
	}
	masterDev := f.masterOpener.Last()
	masterDev.Reset()

	res, err := f.slave.StartTuning(ctx, Request{MuxID: "s1", Tuning: tuning("astra", 12515000, dvb.Horizontal)})
	if err != nil {
		t.Fatalf("slave StartTuning() error = %v", err)
	}
	if res.State != StateLocked {
		t.Errorf("State = %v, want locked", res.State)
	}

	// 1915 MHz IF on a 1400 MHz user band: index (1915+2+1400)/4 - 350 = 479.
	assertCalls(t, masterDev, "voltage 18V", "frame e0 10 5a 2d df", "voltage 13V")
	assertCalls(t, f.slaveOpener.Last(), "lock 1401000")
	if len(f.masterOpener.Opened()) != 1 {
		t.Errorf("master device opened %d times, want 1", len(f.masterOpener.Opened()))
	}
	if st := f.master.Status(); st.Voltage != "13V" {
		t.Errorf("master voltage cache = %q, want 13V", st.Voltage)
	}
}

func TestGroup_InactiveMasterPortIsOwned(t *testing.T) {
	f := newGroupFixture(t, 3)

	if _, err := f.slave.StartTuning(context.Background(), Request{MuxID: "s1", Tuning: tuning("astra", 12515000, dvb.Horizontal)}); err != nil {
		t.Fatalf("slave StartTuning() error = %v", err)
	}

	opened := f.masterOpener.Opened()
	if len(opened) != 1 {
		t.Fatalf("master device opened %d times, want 1", len(opened))
	}
	if closed, n := opened[0].Closed(); !closed || n != 1 {
		t.Errorf("owned port Closed() = %v, %d, want true, 1", closed, n)
	}
	if _, active := f.master.fe.Active(); active {
		t.Error("master frontend became active")
	}
	if len(opened[0].CallsOf(simdvb.OpFrame)) != 1 {
		t.Errorf("owned port calls = %q", callStrings(opened[0].Calls()))
	}
}

func TestGroup_NoMaster(t *testing.T) {
	env := newTestEnv(t)
	sc, _ := env.addSatConf(t, "slave", Settings{}, &Element{
		ID: "s", Enabled: true, Networks: []string{"astra"}, LNB: universal(t),
		Unicable: &UnicableConfig{Standard: EN50494, SCR: 1, Frequency: 1400, Pin: NoPin, Group: 9},
	})

	res, err := sc.StartTuning(context.Background(), Request{MuxID: "s1", Tuning: tuning("astra", 12515000, dvb.Horizontal)})
	if !errors.Is(err, ErrNoGroupMaster) {
		t.Fatalf("StartTuning() error = %v, want ErrNoGroupMaster", err)
	}
	if res.State != StateFailed {
		t.Errorf("State = %v, want failed", res.State)
	}

	// The failure is per attempt; the SatConf keeps working for other tunes.
	if _, err := sc.StartTuning(context.Background(), Request{MuxID: "s2", SkipDiseqc: true, Tuning: tuning("astra", 12515000, dvb.Horizontal)}); err != nil {
		t.Errorf("tune after failure error = %v", err)
	}
}

func TestGroup_OneMasterPerGroup(t *testing.T) {
	f := newGroupFixture(t, 3)
	err := f.slave.AddElement(&Element{
		ID: "m2", Enabled: true, LNB: universal(t),
		Unicable: &UnicableConfig{Standard: EN50494, SCR: 2, Frequency: 1516, Pin: NoPin, Group: 3, Master: true},
	})
	if !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("AddElement() error = %v, want ErrConfigInvalid", err)
	}
}

func TestGroup_RemovedMasterIsInvalidated(t *testing.T) {
	f := newGroupFixture(t, 3)
	g := f.env.m.Groups().Group(3)

	unlock := lockGroup(f.env.m, g)
	_, el, err := g.ResolveMaster()
	unlock()
	if err != nil || el.ID != "m" {
		t.Fatalf("ResolveMaster() = %v, %v", el, err)
	}

	if err := f.master.RemoveElement("m"); err != nil {
		t.Fatalf("RemoveElement() error = %v", err)
	}
	unlock = lockGroup(f.env.m, g)
	_, _, err = g.ResolveMaster()
	unlock()
	if !errors.Is(err, ErrNoGroupMaster) {
		t.Errorf("ResolveMaster() after removal error = %v, want ErrNoGroupMaster", err)
	}
}

func TestGroupRegistry_LazyAndStable(t *testing.T) {
	env := newTestEnv(t)
	reg := env.m.Groups()
	a := reg.Group(4)
	if reg.Group(4) != a {
		t.Error("Group() returned a different instance for the same id")
	}
	reg.Group(1)
	if ids := reg.IDs(); len(ids) != 2 || ids[0] != 1 || ids[1] != 4 {
		t.Errorf("IDs() = %v, want [1 4]", ids)
	}
}

// TestGroup_OwnershipFuzz interleaves acquire, release and master activity
// across two groups. A handle is closed exactly when the group opened it.
func TestGroup_OwnershipFuzz(t *testing.T) {
	env := newTestEnv(t)
	type cable struct {
		group  *UnicableGroup
		master *SatConf
		opener *simdvb.Opener
		held   dvb.Port
		owned  bool
	}
	var cables []*cable
	for i, id := range []int{1, 2} {
		name := []string{"m1", "m2"}[i]
		sc, opener := env.addSatConf(t, name, Settings{}, &Element{
			ID: "m", Enabled: true, Networks: []string{"astra"}, LNB: universal(t),
			Unicable: &UnicableConfig{Standard: EN50494, Frequency: 1284, Pin: NoPin, Group: id, Master: true},
		})
		cables = append(cables, &cable{group: env.m.Groups().Group(id), master: sc, opener: opener})
	}

	rng := rand.New(rand.NewPCG(7, 11))
	for step := range 2000 {
		c := cables[rng.IntN(len(cables))]
		switch op := rng.IntN(4); {
		case op == 0 && c.held == nil:
			unlock := lockGroup(env.m, c.group)
			port, _, err := c.group.AcquireMasterPort()
			c.owned = c.group.Owned()
			unlock()
			if err != nil {
				t.Fatalf("step %d: AcquireMasterPort() error = %v", step, err)
			}
			_, active := c.master.fe.Active()
			if c.owned == active {
				t.Fatalf("step %d: owned = %v with master active = %v", step, c.owned, active)
			}
			c.held = port
		case op == 1 && c.held != nil:
			c.group.Lock()
			err := c.group.ReleaseMasterPort()
			c.group.Unlock()
			if err != nil {
				t.Fatalf("step %d: ReleaseMasterPort() error = %v", step, err)
			}
			closed, n := c.held.(*simdvb.Device).Closed()
			if c.owned && (!closed || n != 1) {
				t.Fatalf("step %d: owned port closed = %v (%d times), want once", step, closed, n)
			}
			if !c.owned && closed {
				t.Fatalf("step %d: borrowed port closed by the group", step)
			}
			c.held = nil
		case op == 2 && c.held == nil:
			if _, err := c.master.fe.open(); err != nil {
				t.Fatalf("step %d: open() error = %v", step, err)
			}
		case op == 3 && c.held == nil:
			if err := c.master.Release(); err != nil {
				t.Fatalf("step %d: Release() error = %v", step, err)
			}
		}
	}

	for _, c := range cables {
		if c.held != nil {
			c.group.Lock()
			if err := c.group.ReleaseMasterPort(); err != nil {
				t.Errorf("final ReleaseMasterPort() error = %v", err)
			}
			c.group.Unlock()
		}
		if err := c.master.Release(); err != nil {
			t.Errorf("final Release() error = %v", err)
		}
		for i, dev := range c.opener.Opened() {
			if closed, n := dev.Closed(); !closed || n != 1 {
				t.Errorf("group %d device %d: Closed() = %v, %d, want closed exactly once", c.group.ID(), i, closed, n)
			}
		}
	}
}
