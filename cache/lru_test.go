package cache

import (
	"fmt"
	"testing"
	"time"
)

// testClock is a manually-advanced time source for deterministic TTL tests.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (tc *testClock) Now() time.Time            { return tc.now }
func (tc *testClock) Advance(d time.Duration)   { tc.now = tc.now.Add(d) }

func newTestCache(opts Options[string]) *LRUCache[string] {
	opts.GCInterval = -1 // no background goroutine in tests
	return New(opts)
}

func TestGetSet(t *testing.T) {
	c := newTestCache(Options[string]{})
	defer c.Close()

	c.Set("a", "alpha")

	got, ok := c.Get("a")
	if !ok || got != "alpha" {
		t.Errorf("Get(a) = %q, %v; want alpha, true", got, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestSetOverwriteAdjustsSize(t *testing.T) {
	c := newTestCache(Options[string]{})
	defer c.Close()

	c.Set("a", "v1", WithSize(100))
	c.Set("a", "v2", WithSize(250))

	if used := c.UsedBytes(); used != 250 {
		t.Errorf("UsedBytes = %d, want 250 after overwrite", used)
	}
	if n := c.Len(); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
}

func TestLRUEvictsLeastRecentlyAccessed(t *testing.T) {
	c := newTestCache(Options[string]{MaxItems: 3})
	defer c.Close()

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3")

	// Touch a so b becomes the least recently accessed.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be resident")
	}

	c.Set("d", "4")

	if c.Has("b") {
		t.Error("b should have been evicted (least recently accessed)")
	}
	for _, k := range []string{"a", "c", "d"} {
		if !c.Has(k) {
			t.Errorf("%s should be resident", k)
		}
	}
}

func TestMemoryLimitEviction(t *testing.T) {
	c := newTestCache(Options[string]{MaxMemory: 300})
	defer c.Close()

	var evicted []EvictEvent
	c.Events().On(EventEvict, func(p any) {
		evicted = append(evicted, p.(EvictEvent))
	})

	c.Set("a", "1", WithSize(100))
	c.Set("b", "2", WithSize(100))
	c.Set("c", "3", WithSize(100))
	c.Set("d", "4", WithSize(100)) // pushes over 300, evicts a

	if c.Has("a") {
		t.Error("a should have been evicted under memory pressure")
	}
	if used := c.UsedBytes(); used != 300 {
		t.Errorf("UsedBytes = %d, want 300", used)
	}
	if len(evicted) != 1 || evicted[0].Key != "a" || evicted[0].Reason != EvictMemory {
		t.Errorf("evict events = %+v, want one memory eviction of a", evicted)
	}
}

func TestSizeAccountingInvariant(t *testing.T) {
	c := newTestCache(Options[string]{MaxItems: 8, MaxMemory: 10_000})
	defer c.Close()

	// Arbitrary interleaving of set/get/delete; the invariant must hold
	// after every operation.
	sizes := map[string]int64{}
	check := func() {
		t.Helper()
		var sum int64
		for _, k := range c.Keys() {
			sum += sizes[k]
		}
		if used := c.UsedBytes(); used != sum {
			t.Fatalf("UsedBytes = %d, sum of resident sizes = %d", used, sum)
		}
	}

	for i := 0; i < 20; i++ {
		k := fmt.Sprintf("k%d", i%10)
		sz := int64(50 + i*10)
		c.Set(k, "v", WithSize(sz))
		sizes[k] = sz
		check()
		if i%3 == 0 {
			c.Delete(k)
			check()
		}
		if i%4 == 0 {
			c.Get(fmt.Sprintf("k%d", (i+1)%10))
			check()
		}
	}
}

func TestTTLExpiryIsMissAndRemoves(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(Options[string]{Clock: clock.Now})
	defer c.Close()

	c.Set("a", "1", WithTTL(time.Minute))

	clock.Advance(30 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should still be resident before TTL")
	}

	clock.Advance(31 * time.Second) // createTime unchanged by Get; now past TTL
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after TTL elapsed")
	}
	if c.Len() != 0 {
		t.Error("expired entry should have been removed as a side effect of the miss")
	}
	if c.UsedBytes() != 0 {
		t.Errorf("UsedBytes = %d, want 0 after expiry", c.UsedBytes())
	}
}

func TestUpdateTTLRestartsClock(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(Options[string]{Clock: clock.Now})
	defer c.Close()

	c.Set("a", "1", WithTTL(time.Minute))
	clock.Advance(50 * time.Second)

	if !c.UpdateTTL("a", time.Minute) {
		t.Fatal("UpdateTTL should succeed for resident key")
	}
	clock.Advance(50 * time.Second)
	if !c.Has("a") {
		t.Error("a should survive: UpdateTTL restarted the expiry clock")
	}
	if c.UpdateTTL("missing", time.Minute) {
		t.Error("UpdateTTL should fail for absent key")
	}
}

func TestForceGCSweepsExpiredIrrespectiveOfRecency(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(Options[string]{Clock: clock.Now})
	defer c.Close()

	c.Set("hot", "1", WithTTL(time.Minute), WithSize(100))
	c.Set("cold", "2", WithTTL(time.Minute), WithSize(200))
	c.Set("keeper", "3", WithSize(300)) // no TTL

	clock.Advance(59 * time.Second)
	c.Get("hot") // recently accessed but still expires by createTime
	clock.Advance(2 * time.Second)

	freed, removed := c.ForceGC()
	if removed != 2 || freed != 300 {
		t.Errorf("ForceGC = (%d, %d), want (300, 2)", freed, removed)
	}
	if !c.Has("keeper") {
		t.Error("keeper without TTL must survive GC")
	}
}

func TestOptimizeEvictsWorstScoring(t *testing.T) {
	clock := newTestClock()
	c := newTestCache(Options[string]{MaxMemory: 1000, Clock: clock.Now})
	defer c.Close()

	c.Set("stale", "1", WithSize(300))
	clock.Advance(time.Hour)
	c.Set("fresh", "2", WithSize(300))
	for i := 0; i < 5; i++ {
		c.Get("fresh")
	}

	// 600/1000 used; target 0.4 requires dropping one entry. The stale,
	// never-accessed entry scores far higher and must go first.
	freed, removed := c.Optimize(0.4)
	if removed != 1 || freed != 300 {
		t.Errorf("Optimize = (%d, %d), want (300, 1)", freed, removed)
	}
	if c.Has("stale") {
		t.Error("stale entry should have been evicted by Optimize")
	}
	if !c.Has("fresh") {
		t.Error("frequently-accessed entry should survive Optimize")
	}
}

func TestOptimizeNoopUnderTarget(t *testing.T) {
	c := newTestCache(Options[string]{MaxMemory: 1000})
	defer c.Close()

	c.Set("a", "1", WithSize(100))
	if freed, removed := c.Optimize(0.5); freed != 0 || removed != 0 {
		t.Errorf("Optimize under target = (%d, %d), want (0, 0)", freed, removed)
	}
}

func TestMemoryWarningFiresOncePerCrossing(t *testing.T) {
	c := newTestCache(Options[string]{MaxMemory: 1000, WarnThreshold: 0.8})
	defer c.Close()

	warnings := 0
	c.Events().On(EventMemoryWarning, func(any) { warnings++ })

	c.Set("a", "1", WithSize(850))
	c.Set("b", "2", WithSize(50)) // still above threshold, already warned
	if warnings != 1 {
		t.Fatalf("warnings = %d, want 1 after first crossing", warnings)
	}

	c.Delete("a") // drops utilization below threshold, re-arms
	c.Set("c", "3", WithSize(900))
	if warnings != 2 {
		t.Errorf("warnings = %d, want 2 after re-crossing", warnings)
	}
}

func TestHitRateAndStats(t *testing.T) {
	c := newTestCache(Options[string]{MaxMemory: 1000})
	defer c.Close()

	c.Set("a", "1", WithSize(200))
	c.Get("a")
	c.Get("a")
	c.Get("missing")
	c.Get("missing")

	stats := c.GetMemoryStats()
	if stats.Used != 200 || stats.Limit != 1000 {
		t.Errorf("stats.Used/Limit = %d/%d, want 200/1000", stats.Used, stats.Limit)
	}
	if stats.Utilization != 0.2 {
		t.Errorf("stats.Utilization = %v, want 0.2", stats.Utilization)
	}
	if stats.ItemCount != 1 {
		t.Errorf("stats.ItemCount = %d, want 1", stats.ItemCount)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("stats.HitRate = %v, want 0.5", stats.HitRate)
	}
}

func TestDefaultSizeCharged(t *testing.T) {
	c := newTestCache(Options[string]{})
	defer c.Close()

	c.Set("a", "1")
	if used := c.UsedBytes(); used != DefaultItemSize {
		t.Errorf("UsedBytes = %d, want DefaultItemSize %d", used, DefaultItemSize)
	}
}

func TestSizeOfPanicFallsBack(t *testing.T) {
	c := newTestCache(Options[string]{
		SizeOf: func(string) int64 { panic("broken estimator") },
	})
	defer c.Close()

	c.Set("a", "1") // must not propagate the panic
	if used := c.UsedBytes(); used != DefaultItemSize {
		t.Errorf("UsedBytes = %d, want DefaultItemSize fallback", used)
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(Options[string]{})
	defer c.Close()

	cleared := false
	c.Events().On(EventClear, func(any) { cleared = true })

	c.Set("a", "1")
	c.Set("b", "2")
	c.Clear()

	if c.Len() != 0 || c.UsedBytes() != 0 {
		t.Errorf("Len/UsedBytes = %d/%d after Clear, want 0/0", c.Len(), c.UsedBytes())
	}
	if !cleared {
		t.Error("clear event should have fired")
	}
}

func TestKeysValuesAreSnapshots(t *testing.T) {
	c := newTestCache(Options[string]{})
	defer c.Close()

	c.Set("a", "1")
	c.Set("b", "2")

	keys := c.Keys()
	c.Delete("a")
	if len(keys) != 2 {
		t.Errorf("snapshot mutated: len(keys) = %d, want 2", len(keys))
	}
	// Most-recently-used order: b was set last.
	if keys[0] != "b" || keys[1] != "a" {
		t.Errorf("keys = %v, want [b a]", keys)
	}
}

// countingMetrics records callbacks for assertions.
type countingMetrics struct {
	hits, misses int
	evicts       map[EvictReason]int
}

func (m *countingMetrics) Hit()                  { m.hits++ }
func (m *countingMetrics) Miss()                 { m.misses++ }
func (m *countingMetrics) Evict(r EvictReason)   { m.evicts[r]++ }
func (m *countingMetrics) Size(int, int64)       {}

func TestMetricsCallbacks(t *testing.T) {
	m := &countingMetrics{evicts: make(map[EvictReason]int)}
	c := newTestCache(Options[string]{MaxItems: 1, Metrics: m})
	defer c.Close()

	c.Set("a", "1")
	c.Get("a")
	c.Get("b")
	c.Set("b", "2") // evicts a (lru)

	if m.hits != 1 || m.misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", m.hits, m.misses)
	}
	if m.evicts[EvictLRU] != 1 {
		t.Errorf("lru evictions = %d, want 1", m.evicts[EvictLRU])
	}
}
