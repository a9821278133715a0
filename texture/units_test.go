package texture

import (
	"testing"
	"time"

	"github.com/echoVic/sky-canvas-sub001/gpu"
)

// newUnitTexture builds a pool-shaped texture without going through a pool,
// so unit tests can control in-use and recency directly.
func newUnitTexture(id uint64, handle gpu.TextureID, inUse bool, lastUsed time.Time) *PooledTexture {
	t := &PooledTexture{
		id:     id,
		handle: handle,
		config: Config{Width: 64, Height: 64}.normalize(),
	}
	t.unit.Store(-1)
	t.inUse.Store(inUse)
	t.lastUsed.Store(lastUsed.UnixNano())
	return t
}

func TestUnitAllocateLowestFirst(t *testing.T) {
	dev := newFakeDevice(4)
	m := NewUnitManager(dev)

	base := time.Now()
	for want := 0; want < 4; want++ {
		tex := newUnitTexture(uint64(want+1), gpu.TextureID(want+1), true, base)
		if got := m.Allocate(tex); got != want {
			t.Errorf("Allocate #%d = %d, want %d", want, got, want)
		}
		if tex.Unit() != want {
			t.Errorf("texture unit = %d, want %d", tex.Unit(), want)
		}
	}
	if m.FreeCount() != 0 {
		t.Errorf("FreeCount = %d, want 0", m.FreeCount())
	}
}

func TestUnitReclaimLRUIdle(t *testing.T) {
	dev := newFakeDevice(2)
	m := NewUnitManager(dev)

	base := time.Now()
	older := newUnitTexture(1, 1, false, base.Add(-time.Minute))
	newer := newUnitTexture(2, 2, false, base)
	m.Allocate(older)
	m.Allocate(newer)

	// Full manager, both idle: the least recently used loses its unit.
	incoming := newUnitTexture(3, 3, true, base)
	unit := m.Allocate(incoming)
	if unit != 0 {
		t.Fatalf("Allocate reclaimed unit %d, want 0 (held by LRU)", unit)
	}
	if older.Unit() != -1 {
		t.Errorf("evicted texture unit = %d, want -1", older.Unit())
	}
	if newer.Unit() != 1 {
		t.Errorf("recently used texture lost its unit")
	}
	if dev.unbinds != 1 {
		t.Errorf("device unbinds = %d, want 1", dev.unbinds)
	}
}

func TestUnitReclaimSkipsInUse(t *testing.T) {
	dev := newFakeDevice(2)
	m := NewUnitManager(dev)

	base := time.Now()
	busy := newUnitTexture(1, 1, true, base.Add(-time.Hour))
	idle := newUnitTexture(2, 2, false, base)
	m.Allocate(busy)
	m.Allocate(idle)

	// The in-use texture is older but must not be stolen from.
	incoming := newUnitTexture(3, 3, true, base)
	if unit := m.Allocate(incoming); unit != 1 {
		t.Errorf("Allocate = %d, want 1 (idle occupant)", unit)
	}
	if busy.Unit() != 0 {
		t.Errorf("in-use texture lost its unit")
	}
}

func TestUnitExhaustion(t *testing.T) {
	dev := newFakeDevice(2)
	m := NewUnitManager(dev)

	base := time.Now()
	m.Allocate(newUnitTexture(1, 1, true, base))
	m.Allocate(newUnitTexture(2, 2, true, base))

	if unit := m.Allocate(newUnitTexture(3, 3, true, base)); unit != -1 {
		t.Errorf("Allocate with all units in use = %d, want -1", unit)
	}
}

func TestUnitReleaseReturnsToFreeList(t *testing.T) {
	dev := newFakeDevice(2)
	m := NewUnitManager(dev)

	tex := newUnitTexture(1, 1, true, time.Now())
	m.Allocate(tex)
	if m.FreeCount() != 1 {
		t.Fatalf("FreeCount = %d, want 1", m.FreeCount())
	}

	m.Release(tex)
	if m.FreeCount() != 2 {
		t.Errorf("FreeCount after Release = %d, want 2", m.FreeCount())
	}
	if tex.Unit() != -1 {
		t.Errorf("released texture unit = %d, want -1", tex.Unit())
	}

	// Releasing again is a no-op.
	m.Release(tex)
	if m.FreeCount() != 2 {
		t.Errorf("double Release changed FreeCount to %d", m.FreeCount())
	}
}

func TestUnitBind(t *testing.T) {
	dev := newFakeDevice(2)
	m := NewUnitManager(dev)

	dev.mu.Lock()
	dev.live[1] = true
	dev.mu.Unlock()

	tex := newUnitTexture(1, 1, true, time.Now())
	unit, err := m.Bind(tex)
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if unit != 0 {
		t.Errorf("Bind unit = %d, want 0", unit)
	}

	// Binding again keeps the existing assignment.
	again, err := m.Bind(tex)
	if err != nil {
		t.Fatalf("second Bind failed: %v", err)
	}
	if again != unit {
		t.Errorf("rebind moved the texture from unit %d to %d", unit, again)
	}

	dev.mu.Lock()
	bound := dev.bound[unit]
	dev.mu.Unlock()
	if bound != tex.Handle() {
		t.Errorf("device unit %d bound to %d, want %d", unit, bound, tex.Handle())
	}
}

func TestUnitBindExhausted(t *testing.T) {
	dev := newFakeDevice(1)
	m := NewUnitManager(dev)

	dev.mu.Lock()
	dev.live[1] = true
	dev.live[2] = true
	dev.mu.Unlock()

	holder := newUnitTexture(1, 1, true, time.Now())
	if _, err := m.Bind(holder); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Bind(newUnitTexture(2, 2, true, time.Now())); err != ErrNoUnitAvailable {
		t.Errorf("Bind on exhausted manager = %v, want ErrNoUnitAvailable", err)
	}
}
