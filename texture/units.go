package texture

import (
	"sync"

	"github.com/echoVic/sky-canvas-sub001/gpu"
)

// UnitManager is a free-list allocator for hardware texture-binding slots,
// bounded by the device's queried unit limit.
//
// When the free list is exhausted, Allocate reclaims the least-recently-used
// unit whose occupying texture is not currently acquired, unbinding that
// texture first. Units occupied by in-use textures are never stolen.
//
// UnitManager is safe for concurrent use.
type UnitManager struct {
	mu sync.Mutex

	device gpu.Device
	free   []int
	// occupants maps unit index -> the texture bound through it.
	occupants map[int]*PooledTexture
}

// NewUnitManager creates a unit manager covering the device's full unit
// range.
func NewUnitManager(device gpu.Device) *UnitManager {
	limit := device.MaxTextureUnits()
	free := make([]int, 0, limit)
	// Units are handed out lowest-first for stable, debuggable assignments.
	for i := limit - 1; i >= 0; i-- {
		free = append(free, i)
	}
	return &UnitManager{
		device:    device,
		free:      free,
		occupants: make(map[int]*PooledTexture),
	}
}

// Allocate assigns a unit to the texture and returns its index, or -1 when
// every unit is occupied by an in-use texture.
func (m *UnitManager) Allocate(t *PooledTexture) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocateLocked(t)
}

func (m *UnitManager) allocateLocked(t *PooledTexture) int {
	if n := len(m.free); n > 0 {
		unit := m.free[n-1]
		m.free = m.free[:n-1]
		m.occupants[unit] = t
		t.unit.Store(int32(unit))
		return unit
	}

	// Free list exhausted: reclaim the LRU unit among idle occupants.
	victim := -1
	var victimTime int64
	for unit, occ := range m.occupants {
		if occ.InUse() {
			continue
		}
		when := occ.lastUsed.Load()
		if victim == -1 || when < victimTime {
			victim = unit
			victimTime = when
		}
	}
	if victim == -1 {
		return -1
	}

	old := m.occupants[victim]
	old.unit.Store(-1)
	m.device.UnbindUnit(victim)

	m.occupants[victim] = t
	t.unit.Store(int32(victim))
	return victim
}

// Release returns the texture's unit to the free list, if it holds one.
func (m *UnitManager) Release(t *PooledTexture) {
	unit := int(t.unit.Load())
	if unit < 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.occupants[unit] != t {
		return
	}
	delete(m.occupants, unit)
	m.free = append(m.free, unit)
	t.unit.Store(-1)
	m.device.UnbindUnit(unit)
}

// Bind ensures the texture holds a unit and binds it through the device.
// Returns ErrNoUnitAvailable when every unit is held by an in-use texture.
func (m *UnitManager) Bind(t *PooledTexture) (int, error) {
	m.mu.Lock()
	unit := int(t.unit.Load())
	if unit < 0 || m.occupants[unit] != t {
		unit = m.allocateLocked(t)
	}
	m.mu.Unlock()

	if unit < 0 {
		return -1, ErrNoUnitAvailable
	}
	if err := m.device.BindTexture(t.handle, unit); err != nil {
		return -1, err
	}
	return unit, nil
}

// FreeCount returns the number of unassigned units.
func (m *UnitManager) FreeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.free)
}
