package satconf

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/satlink-core/internal/lnb"
)

// Standalone Unicable backoff bounds.
const (
	jitterMin = 68 * time.Millisecond
	jitterMax = 118 * time.Millisecond
)

// Timer is a pending one-shot callback.
type Timer interface {
	Stop() bool
}

// Scheduler arms one-shot callbacks. Rotor waits go through it so the
// state lock is never held across a move.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options configures a Manager. Zero values select real clocks, a private
// state lock and the built-in LNB catalog.
type Options struct {
	// Lock is the state lock. A host can pass its own to serialize tuning
	// with the rest of its state.
	Lock sync.Locker

	Scheduler Scheduler

	// Sleep is used for command timing.
	Sleep func(time.Duration)

	// Jitter returns the standalone Unicable backoff.
	Jitter func() time.Duration

	Catalog  *lnb.Catalog
	Observer Observer
	Logger   Logger
}

// Manager owns every SatConf, the Unicable group registry and the state
// lock they share.
type Manager struct {
	lock     sync.Locker
	sched    Scheduler
	sleep    func(time.Duration)
	jitter   func() time.Duration
	catalog  *lnb.Catalog
	observer Observer
	logger   Logger

	ctx    context.Context
	cancel context.CancelFunc

	regMu    sync.RWMutex
	satconfs map[string]*SatConf
	closed   bool

	groups *GroupRegistry

	// standalone desynchronizes uncoordinated Unicable controllers.
	standalone sync.Mutex
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	m := &Manager{
		lock:     opts.Lock,
		sched:    opts.Scheduler,
		sleep:    opts.Sleep,
		jitter:   opts.Jitter,
		catalog:  opts.Catalog,
		observer: opts.Observer,
		logger:   opts.Logger,
		satconfs: make(map[string]*SatConf),
	}
	if m.lock == nil {
		m.lock = &sync.Mutex{}
	}
	if m.sched == nil {
		m.sched = clockScheduler{}
	}
	if m.sleep == nil {
		m.sleep = time.Sleep
	}
	if m.jitter == nil {
		m.jitter = defaultJitter
	}
	if m.catalog == nil {
		m.catalog = lnb.NewCatalog(lnb.Builtin()...)
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.groups = newGroupRegistry(m, m.logger)
	return m
}

func defaultJitter() time.Duration {
	return jitterMin + rand.N(jitterMax-jitterMin+1)
}

// SetLogger replaces the logger of the manager, the group registry and
// every SatConf.
func (m *Manager) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.regMu.Lock()
	m.logger = l
	for _, sc := range m.satconfs {
		sc.logger = l
	}
	m.regMu.Unlock()

	m.groups.mu.Lock()
	m.groups.logger = l
	m.groups.mu.Unlock()
}

// Catalog returns the LNB catalog.
func (m *Manager) Catalog() *lnb.Catalog { return m.catalog }

// Groups returns the Unicable group registry.
func (m *Manager) Groups() *GroupRegistry { return m.groups }

// SatConf returns the SatConf named name.
func (m *Manager) SatConf(name string) (*SatConf, error) {
	m.regMu.RLock()
	defer m.regMu.RUnlock()
	sc, ok := m.satconfs[name]
	if !ok {
		return nil, fmt.Errorf("%w: satconf %q", ErrNotFound, name)
	}
	return sc, nil
}

// SatConfs returns every SatConf sorted by name.
func (m *Manager) SatConfs() []*SatConf {
	m.regMu.RLock()
	defer m.regMu.RUnlock()
	out := make([]*SatConf, 0, len(m.satconfs))
	for _, sc := range m.satconfs {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// RemoveSatConf stops any attempt on the SatConf, closes its frontend and
// forgets it.
func (m *Manager) RemoveSatConf(name string) error {
	sc, err := m.SatConf(name)
	if err != nil {
		return err
	}
	relErr := sc.Release()

	m.lock.Lock()
	for _, el := range sc.elements {
		m.groups.invalidate(sc.name, el.ID)
	}
	m.regMu.Lock()
	delete(m.satconfs, name)
	m.regMu.Unlock()
	m.lock.Unlock()
	return relErr
}

// Close stops every attempt, closes every frontend and the group registry.
func (m *Manager) Close() error {
	m.regMu.Lock()
	if m.closed {
		m.regMu.Unlock()
		return nil
	}
	m.closed = true
	m.regMu.Unlock()

	var firstErr error
	for _, sc := range m.SatConfs() {
		if err := sc.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := m.groups.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	m.cancel()
	return firstErr
}

func (m *Manager) isClosed() bool {
	m.regMu.RLock()
	defer m.regMu.RUnlock()
	return m.closed
}

// lockStandalone takes the standalone Unicable mutex, backing off once by
// a random interval when it is contended.
func (m *Manager) lockStandalone() {
	if m.standalone.TryLock() {
		return
	}
	m.sleep(m.jitter())
	m.standalone.Lock()
}

// findMaster scans every SatConf for the master of group.
func (m *Manager) findMaster(group int) (masterRef, bool) {
	for _, sc := range m.SatConfs() {
		for _, el := range sc.elements {
			if u := el.Unicable; u != nil && u.Master && u.Group == group {
				return masterRef{satconf: sc.name, element: el.ID}, true
			}
		}
	}
	return masterRef{}, false
}

func (m *Manager) lookupElement(ref masterRef) (*SatConf, *Element, bool) {
	m.regMu.RLock()
	sc, ok := m.satconfs[ref.satconf]
	m.regMu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	el := sc.element(ref.element)
	return sc, el, el != nil
}
