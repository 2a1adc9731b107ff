package device

import (
	"sync"
	"testing"
	"time"

	"github.com/quiethouse/avrbridge/internal/protocol"
)

func event(p protocol.Property, value string) protocol.Event {
	return protocol.Event{
		Property:  p,
		Value:     value,
		Raw:       string(p) + value,
		Timestamp: time.Now(),
	}
}

// changeCollector records changes delivered to a subscriber.
type changeCollector struct {
	mu      sync.Mutex
	changes []Change
	signal  chan struct{}
}

func newChangeCollector() *changeCollector {
	return &changeCollector{signal: make(chan struct{}, changeQueueSize)}
}

func (c *changeCollector) collect(ch Change) {
	c.mu.Lock()
	c.changes = append(c.changes, ch)
	c.mu.Unlock()
	c.signal <- struct{}{}
}

// waitFor blocks until n changes have been delivered or the timeout hits.
func (c *changeCollector) waitFor(t *testing.T, n int) []Change {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		have := len(c.changes)
		c.mu.Unlock()
		if have >= n {
			break
		}
		select {
		case <-c.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for %d changes, have %d", n, have)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Change, len(c.changes))
	copy(out, c.changes)
	return out
}

func TestStoreApplyAndGet(t *testing.T) {
	s := NewStore()
	defer s.Close()

	// Unobserved property reads Unknown.
	if v := s.Get(protocol.PropPower); v.Known {
		t.Fatalf("expected Unknown before any event, got %v", v)
	}

	if changed := s.Apply(event(protocol.PropPower, "1")); !changed {
		t.Error("first apply should report a change")
	}

	v := s.Get(protocol.PropPower)
	if !v.Known || v.Raw != "1" {
		t.Errorf("Get(Power) = %+v, want known value 1", v)
	}

	// Unchanged re-apply reports no change.
	if changed := s.Apply(event(protocol.PropPower, "1")); changed {
		t.Error("re-applying same value should not report a change")
	}

	// Actual transition reports a change again.
	if changed := s.Apply(event(protocol.PropPower, "0")); !changed {
		t.Error("value transition should report a change")
	}
}

func TestStoreNotifiesOncePerTransition(t *testing.T) {
	s := NewStore()
	defer s.Close()

	col := newChangeCollector()
	unsubscribe := s.Subscribe(col.collect)
	defer unsubscribe()

	s.Apply(event(protocol.PropPower, "1"))
	s.Apply(event(protocol.PropPower, "1")) // no notification
	s.Apply(event(protocol.PropVolume, "-40"))
	s.Apply(event(protocol.PropPower, "0"))

	changes := col.waitFor(t, 3)
	if len(changes) != 3 {
		t.Fatalf("got %d notifications, want 3", len(changes))
	}

	// Delivered in apply order.
	want := []struct {
		p   protocol.Property
		raw string
	}{
		{protocol.PropPower, "1"},
		{protocol.PropVolume, "-40"},
		{protocol.PropPower, "0"},
	}
	for i, w := range want {
		if changes[i].Property != w.p || changes[i].Value.Raw != w.raw {
			t.Errorf("change[%d] = %s=%s, want %s=%s",
				i, changes[i].Property, changes[i].Value.Raw, w.p, w.raw)
		}
	}

	// unknown→known transition carries an Unknown previous value.
	if changes[0].Previous.Known {
		t.Error("first change should have Unknown previous value")
	}
	if !changes[2].Previous.Known || changes[2].Previous.Raw != "1" {
		t.Errorf("third change previous = %+v, want known 1", changes[2].Previous)
	}
}

func TestStoreReset(t *testing.T) {
	s := NewStore()
	defer s.Close()

	col := newChangeCollector()
	defer s.Subscribe(col.collect)()

	s.Apply(event(protocol.PropPower, "1"))
	s.Apply(event(protocol.PropMute, "0"))
	s.Reset()

	changes := col.waitFor(t, 3)
	last := changes[len(changes)-1]
	if !last.Invalidated {
		t.Error("reset should fire an invalidation notification")
	}

	for _, p := range protocol.Properties() {
		if v := s.Get(p); v.Known {
			t.Errorf("after Reset, %s = %v, want Unknown", p, v)
		}
	}
}

func TestStoreUnsubscribe(t *testing.T) {
	s := NewStore()
	defer s.Close()

	col := newChangeCollector()
	unsubscribe := s.Subscribe(col.collect)

	s.Apply(event(protocol.PropPower, "1"))
	col.waitFor(t, 1)

	unsubscribe()
	s.Apply(event(protocol.PropPower, "0"))

	// Give the dispatcher a moment; no second notification should arrive.
	time.Sleep(50 * time.Millisecond)
	col.mu.Lock()
	n := len(col.changes)
	col.mu.Unlock()
	if n != 1 {
		t.Errorf("got %d notifications after unsubscribe, want 1", n)
	}
}

func TestStorePanickingSubscriberDoesNotStopOthers(t *testing.T) {
	s := NewStore()
	defer s.Close()

	s.Subscribe(func(Change) { panic("boom") })
	col := newChangeCollector()
	defer s.Subscribe(col.collect)()

	s.Apply(event(protocol.PropPower, "1"))
	s.Apply(event(protocol.PropPower, "0"))

	changes := col.waitFor(t, 2)
	if len(changes) != 2 {
		t.Fatalf("got %d notifications, want 2", len(changes))
	}
}

func TestStoreSnapshot(t *testing.T) {
	s := NewStore()
	defer s.Close()

	s.Apply(event(protocol.PropVolume, "-33"))

	snap := s.Snapshot()
	if len(snap) != len(protocol.Properties()) {
		t.Fatalf("snapshot has %d entries, want %d", len(snap), len(protocol.Properties()))
	}
	if v := snap[protocol.PropVolume]; !v.Known || v.Raw != "-33" {
		t.Errorf("snapshot volume = %+v, want known -33", v)
	}
	if snap[protocol.PropInput].Known {
		t.Error("snapshot input should be Unknown")
	}
}

// The logger may be swapped while events are flowing; the swap must not
// race with the apply path.
func TestStoreSetLoggerDuringApply(t *testing.T) {
	s := NewStore()
	defer s.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.SetLogger(noopLogger{})
		}
	}()
	go func() {
		defer wg.Done()
		values := [2]string{"0", "1"}
		for i := 0; i < 200; i++ {
			s.Apply(event(protocol.PropPower, values[i%2]))
		}
	}()
	wg.Wait()

	if v := s.Get(protocol.PropPower); !v.Known {
		t.Errorf("power = %+v after concurrent applies, want known", v)
	}
}
