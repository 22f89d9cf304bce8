package satconf

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/satlink-core/internal/dvb"
)

// masterRef names a master element without holding it. It is resolved
// through the Manager on every use.
type masterRef struct {
	satconf string
	element string
}

// resolver finds elements for groups. The Manager implements it.
type resolver interface {
	findMaster(group int) (masterRef, bool)
	lookupElement(ref masterRef) (*SatConf, *Element, bool)
}

// GroupRegistry holds one UnicableGroup per group id.
//
// Groups are created on first lookup and live until Close. The registry
// lock covers only the map and is never held during hardware I/O.
type GroupRegistry struct {
	mu       sync.Mutex
	groups   map[int]*UnicableGroup
	resolver resolver
	logger   Logger
}

// newGroupRegistry creates an empty registry.
func newGroupRegistry(r resolver, logger Logger) *GroupRegistry {
	return &GroupRegistry{
		groups:   make(map[int]*UnicableGroup),
		resolver: r,
		logger:   logger,
	}
}

// Group returns the group for id, creating it if needed.
func (gr *GroupRegistry) Group(id int) *UnicableGroup {
	gr.mu.Lock()
	defer gr.mu.Unlock()
	g, ok := gr.groups[id]
	if !ok {
		g = &UnicableGroup{id: id, registry: gr}
		gr.groups[id] = g
		gr.logger.Debug("unicable group created", "group", id)
	}
	return g
}

// IDs lists the groups created so far.
func (gr *GroupRegistry) IDs() []int {
	gr.mu.Lock()
	defer gr.mu.Unlock()
	ids := make([]int, 0, len(gr.groups))
	for id := range gr.groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// invalidate drops any cached master reference to the element.
func (gr *GroupRegistry) invalidate(satconf, element string) {
	gr.mu.Lock()
	groups := make([]*UnicableGroup, 0, len(gr.groups))
	for _, g := range gr.groups {
		groups = append(groups, g)
	}
	gr.mu.Unlock()

	for _, g := range groups {
		g.InvalidateMaster(satconf, element)
	}
}

// Close releases every group's port and empties the registry.
func (gr *GroupRegistry) Close() error {
	gr.mu.Lock()
	groups := gr.groups
	gr.groups = make(map[int]*UnicableGroup)
	gr.mu.Unlock()

	var firstErr error
	for _, g := range groups {
		g.Lock()
		if err := g.ReleaseMasterPort(); err != nil && firstErr == nil {
			firstErr = err
		}
		g.Unlock()
	}
	return firstErr
}

// UnicableGroup serializes access to one shared SCR cable.
//
// The port and its ownership flag change only while the group lock is held.
// Callers Lock the group, AcquireMasterPort, send, ReleaseMasterPort, Unlock.
// Master lookups read every SatConf's elements, so ResolveMaster and
// AcquireMasterPort also need the Manager's state lock (Options.Lock),
// taken before the group lock.
type UnicableGroup struct {
	id       int
	registry *GroupRegistry

	mu        sync.Mutex
	master    masterRef
	hasMaster bool
	port      dvb.Port
	owned     bool
}

// ID returns the group id.
func (g *UnicableGroup) ID() int { return g.id }

// Lock takes the group lock.
func (g *UnicableGroup) Lock() { g.mu.Lock() }

// Unlock releases the group lock.
func (g *UnicableGroup) Unlock() { g.mu.Unlock() }

// Owned reports whether the current port was opened by the group.
// Group lock must be held.
func (g *UnicableGroup) Owned() bool { return g.owned }

// ResolveMaster returns the master element, revalidating the cached
// reference and rescanning when it no longer resolves.
// The state lock and then the group lock must be held.
func (g *UnicableGroup) ResolveMaster() (*SatConf, *Element, error) {
	r := g.registry.resolver
	if g.hasMaster {
		if sc, el, ok := r.lookupElement(g.master); ok && el.Unicable != nil &&
			el.Unicable.Master && el.Unicable.Group == g.id {
			return sc, el, nil
		}
		g.hasMaster = false
	}

	ref, ok := r.findMaster(g.id)
	if !ok {
		return nil, nil, fmt.Errorf("%w: group %d", ErrNoGroupMaster, g.id)
	}
	sc, el, ok := r.lookupElement(ref)
	if !ok {
		return nil, nil, fmt.Errorf("%w: group %d", ErrNoGroupMaster, g.id)
	}
	g.master, g.hasMaster = ref, true
	return sc, el, nil
}

// InvalidateMaster forgets the master reference if it names the element.
func (g *UnicableGroup) InvalidateMaster(satconf, element string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hasMaster && g.master == (masterRef{satconf: satconf, element: element}) {
		g.hasMaster = false
		g.registry.logger.Debug("unicable group master invalidated", "group", g.id, "element", element)
	}
}

// AcquireMasterPort returns a port on the master's cable. An active master
// frontend lends its open device; otherwise the group opens the master's
// device node itself and owns that handle.
// The state lock and then the group lock must be held.
func (g *UnicableGroup) AcquireMasterPort() (dvb.Port, *SatConf, error) {
	sc, _, err := g.ResolveMaster()
	if err != nil {
		return nil, nil, err
	}
	if g.port != nil {
		return g.port, sc, nil
	}

	if dev, ok := sc.fe.Active(); ok {
		g.port, g.owned = dev, false
		return dev, sc, nil
	}

	dev, err := sc.fe.opener.Open(sc.fe.path)
	if err != nil {
		return nil, nil, hardwareErr("opening unicable master "+sc.fe.path, err)
	}
	g.port, g.owned = dev, true
	g.registry.logger.Debug("unicable group opened master port", "group", g.id, "device", sc.fe.path)
	return dev, sc, nil
}

// ReleaseMasterPort drops the port, closing it only if the group opened it.
// Group lock must be held.
func (g *UnicableGroup) ReleaseMasterPort() error {
	port, owned := g.port, g.owned
	g.port, g.owned = nil, false
	if port == nil || !owned {
		return nil
	}
	if err := port.Close(); err != nil {
		return hardwareErr("closing unicable master port", err)
	}
	return nil
}
