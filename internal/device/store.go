package device

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/quiethouse/avrbridge/internal/protocol"
)

// changeQueueSize bounds the notification queue. The receiver rarely emits
// more than a handful of datagrams per second, so this is generous.
const changeQueueSize = 256

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Change describes one state transition delivered to subscribers.
type Change struct {
	// Property is the property that changed. Empty when Invalidated.
	Property protocol.Property

	// Value is the new value.
	Value Value

	// Previous is the value before this change (possibly Unknown).
	Previous Value

	// Raw is the source datagram, kept for diagnostics.
	Raw string

	// Invalidated is true for the single notification fired by Reset:
	// every property has returned to Unknown and must be re-learned.
	Invalidated bool
}

// Store is the authoritative in-memory mirror of the receiver's state.
//
// Values are set only by decoded inbound events; callers read through
// Get/Snapshot and observe transitions through Subscribe.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Subscriber callbacks run on a single dispatch goroutine, in apply
//     order, and never while the store's lock is held.
type Store struct {
	mu     sync.RWMutex
	values map[protocol.Property]Value

	subMu     sync.RWMutex
	subs      map[int]func(Change)
	nextSubID int

	queue     chan Change
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	dropped atomic.Uint64

	logMu  sync.RWMutex
	logger Logger
}

// NewStore creates a store with every property Unknown and starts the
// notification dispatcher.
func NewStore() *Store {
	s := &Store{
		values: make(map[protocol.Property]Value),
		subs:   make(map[int]func(Change)),
		queue:  make(chan Change, changeQueueSize),
		done:   make(chan struct{}),
		logger: noopLogger{},
	}

	s.wg.Add(1)
	go s.dispatch()

	return s
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logMu.Lock()
	s.logger = logger
	s.logMu.Unlock()
}

// log returns the current logger. Reads race with SetLogger, so every
// log site goes through here.
func (s *Store) log() Logger {
	s.logMu.RLock()
	defer s.logMu.RUnlock()
	return s.logger
}

// Apply updates the mirror from a decoded event and reports whether the
// value actually changed (including unknown→known). Re-applying an
// unchanged value fires no notification.
func (s *Store) Apply(ev protocol.Event) bool {
	s.mu.Lock()
	prev := s.values[ev.Property]
	next := Value{Raw: ev.Value, Known: true, UpdatedAt: ev.Timestamp}
	changed := !prev.Known || prev.Raw != ev.Value
	if changed {
		s.values[ev.Property] = next
	}
	s.mu.Unlock()

	if !changed {
		s.log().Debug("unchanged", "property", string(ev.Property), "value", ev.Value)
		return false
	}

	s.log().Info("new value",
		"property", ev.Property.Description(),
		"token", string(ev.Property),
		"value", ev.Value,
	)

	s.enqueue(Change{
		Property: ev.Property,
		Value:    next,
		Previous: prev,
		Raw:      ev.Raw,
	})
	return true
}

// Get returns the current value for a property, or Unknown.
func (s *Store) Get(p protocol.Property) Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[p]
}

// Snapshot returns a copy of the whole mirror, including Unknown entries
// for every vocabulary property.
func (s *Store) Snapshot() map[protocol.Property]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(map[protocol.Property]Value, len(protocol.Properties()))
	for _, p := range protocol.Properties() {
		snap[p] = s.values[p]
	}
	return snap
}

// Subscribe registers a listener for state changes. The returned function
// removes the subscription.
//
// Listeners are invoked once per actual transition, in apply order.
// A panicking listener is recovered and logged; it does not affect other
// listeners or the store.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Reset marks every property Unknown and fires a single invalidation
// notification. Called by the connection manager on every disconnect and
// connect, since the device's state must be re-learned.
func (s *Store) Reset() {
	s.mu.Lock()
	s.values = make(map[protocol.Property]Value)
	s.mu.Unlock()

	s.log().Info("state invalidated, all properties unknown")
	s.enqueue(Change{Invalidated: true})
}

// DroppedChanges returns how many notifications were discarded because
// the dispatch queue was full.
func (s *Store) DroppedChanges() uint64 {
	return s.dropped.Load()
}

// Close stops the notification dispatcher. Pending notifications are
// discarded. Safe to call multiple times.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

// enqueue queues a change for dispatch without blocking the caller.
func (s *Store) enqueue(c Change) {
	select {
	case s.queue <- c:
	default:
		// Queue full: a stalled subscriber must not stall decoding.
		s.dropped.Add(1)
		s.log().Warn("change queue full, dropping notification",
			"property", string(c.Property))
	}
}

// dispatch delivers queued changes to subscribers in order.
func (s *Store) dispatch() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case c := <-s.queue:
			s.subMu.RLock()
			// Stable iteration: ids are assigned in subscribe order.
			fns := make([]func(Change), 0, len(s.subs))
			for id := 0; id < s.nextSubID; id++ {
				if fn, ok := s.subs[id]; ok {
					fns = append(fns, fn)
				}
			}
			s.subMu.RUnlock()

			for _, fn := range fns {
				s.invoke(fn, c)
			}
		}
	}
}

// invoke calls one subscriber with panic recovery.
func (s *Store) invoke(fn func(Change), c Change) {
	defer func() {
		if r := recover(); r != nil {
			s.log().Error("subscriber panic recovered", "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn(c)
}
