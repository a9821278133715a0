package event

import (
	"sync"
	"testing"
)

func TestEmitDispatchesInOrder(t *testing.T) {
	e := NewEmitter()

	var got []int
	e.On("tick", func(any) { got = append(got, 1) })
	e.On("tick", func(any) { got = append(got, 2) })

	e.Emit("tick", nil)

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("expected [1 2], got %v", got)
	}
}

func TestEmitPayload(t *testing.T) {
	e := NewEmitter()

	var got any
	e.On("load", func(p any) { got = p })

	e.Emit("load", "resource-1")

	if got != "resource-1" {
		t.Errorf("expected payload %q, got %v", "resource-1", got)
	}
}

func TestOnceFiresExactlyOnce(t *testing.T) {
	e := NewEmitter()

	count := 0
	e.Once("warn", func(any) { count++ })

	e.Emit("warn", nil)
	e.Emit("warn", nil)

	if count != 1 {
		t.Errorf("expected once-listener to fire once, fired %d times", count)
	}
	if n := e.ListenerCount("warn"); n != 0 {
		t.Errorf("expected 0 listeners after once fired, got %d", n)
	}
}

func TestDisposableRemovesListener(t *testing.T) {
	e := NewEmitter()

	count := 0
	off, ok := e.On("evict", func(any) { count++ })
	if !ok {
		t.Fatal("On failed")
	}

	e.Emit("evict", nil)
	off()
	off() // double-dispose is a no-op
	e.Emit("evict", nil)

	if count != 1 {
		t.Errorf("expected 1 dispatch after dispose, got %d", count)
	}
}

func TestOffAll(t *testing.T) {
	e := NewEmitter()

	e.On("x", func(any) { t.Error("listener fired after OffAll") })
	e.On("x", func(any) { t.Error("listener fired after OffAll") })
	e.OffAll("x")
	e.Emit("x", nil)
}

func TestListenerLimit(t *testing.T) {
	e := NewEmitter()

	for i := 0; i < DefaultMaxListeners; i++ {
		if _, ok := e.On("full", func(any) {}); !ok {
			t.Fatalf("registration %d unexpectedly rejected", i)
		}
	}
	if _, ok := e.On("full", func(any) {}); ok {
		t.Error("expected registration past the limit to be rejected")
	}
}

func TestConcurrentEmitAndSubscribe(t *testing.T) {
	e := NewEmitter()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			off, _ := e.On("c", func(any) {})
			if off != nil {
				off()
			}
		}()
		go func() {
			defer wg.Done()
			e.Emit("c", nil)
		}()
	}
	wg.Wait()
}
