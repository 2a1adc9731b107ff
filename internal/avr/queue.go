package avr

import (
	"sync"
	"time"

	"github.com/quiethouse/avrbridge/internal/protocol"
)

// Outcome is the terminal result of a queued command. Exactly one of the
// fields is meaningful: Event for a successfully answered query, Err for
// any failure. A completed set command carries neither.
type Outcome struct {
	Event protocol.Event
	Err   error
}

// pendingCommand tracks one queued command until it completes.
type pendingCommand struct {
	cmd      protocol.Command
	wire     []byte
	deadline time.Time
	done     chan Outcome
	once     sync.Once
}

// complete delivers the outcome exactly once. Later calls are no-ops, so
// timeout, correlation, rejection and drain can race safely.
func (p *pendingCommand) complete(o Outcome) {
	p.once.Do(func() { p.done <- o })
}

// commandQueue serializes outbound commands.
//
// Commands leave the queue in FIFO order. A reply-expecting command holds
// the single inflight slot until its correlated status event arrives, the
// device rejects it, or it times out; no further command is released while
// the slot is held. Set commands never occupy the slot.
type commandQueue struct {
	mu       sync.Mutex
	waiting  []*pendingCommand
	inflight *pendingCommand
	closed   bool

	// wake has capacity 1: the write loop blocks on it and re-examines
	// the queue whenever something may have become releasable.
	wake chan struct{}

	timeout time.Duration
}

func newCommandQueue(timeout time.Duration) *commandQueue {
	return &commandQueue{
		wake:    make(chan struct{}, 1),
		timeout: timeout,
	}
}

// enqueue appends a command. The deadline starts now, not at write time,
// so a command stuck behind a slow query still expires.
func (q *commandQueue) enqueue(cmd protocol.Command, wire []byte) *pendingCommand {
	p := &pendingCommand{
		cmd:      cmd,
		wire:     wire,
		deadline: time.Now().Add(q.timeout),
		done:     make(chan Outcome, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		p.complete(Outcome{Err: ErrClosed})
		return p
	}
	q.waiting = append(q.waiting, p)
	q.mu.Unlock()

	q.signal()
	return p
}

// next releases the head of the queue, or nil when the queue is empty or
// a query is awaiting its reply. A released query takes the inflight slot.
func (q *commandQueue) next() *pendingCommand {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.inflight != nil || len(q.waiting) == 0 {
		return nil
	}

	p := q.waiting[0]
	q.waiting = q.waiting[1:]
	if p.cmd.ExpectsReply() {
		q.inflight = p
	}
	return p
}

// correlate completes the inflight query if the event answers it.
// Unsolicited events for other properties pass through untouched.
func (q *commandQueue) correlate(ev protocol.Event) bool {
	q.mu.Lock()
	p := q.inflight
	if p == nil || p.cmd.Property != ev.Property {
		q.mu.Unlock()
		return false
	}
	q.inflight = nil
	q.mu.Unlock()

	p.complete(Outcome{Event: ev})
	q.signal()
	return true
}

// failInflight fails the inflight command, if any. Used when the device
// answers with a notice instead of a status datagram.
func (q *commandQueue) failInflight(err error) bool {
	q.mu.Lock()
	p := q.inflight
	q.inflight = nil
	q.mu.Unlock()

	if p == nil {
		return false
	}
	p.complete(Outcome{Err: err})
	q.signal()
	return true
}

// expire fails every command whose deadline has passed and returns how
// many were failed.
func (q *commandQueue) expire(now time.Time) int {
	var expired []*pendingCommand

	q.mu.Lock()
	if q.inflight != nil && now.After(q.inflight.deadline) {
		expired = append(expired, q.inflight)
		q.inflight = nil
	}
	keep := q.waiting[:0]
	for _, p := range q.waiting {
		if now.After(p.deadline) {
			expired = append(expired, p)
		} else {
			keep = append(keep, p)
		}
	}
	q.waiting = keep
	q.mu.Unlock()

	for _, p := range expired {
		p.complete(Outcome{Err: ErrCommandTimeout})
	}
	if len(expired) > 0 {
		q.signal()
	}
	return len(expired)
}

// drain fails everything pending with err and returns the count. The
// queue stays open for the next session.
func (q *commandQueue) drain(err error) int {
	q.mu.Lock()
	pending := q.waiting
	q.waiting = nil
	if q.inflight != nil {
		pending = append([]*pendingCommand{q.inflight}, pending...)
	}
	q.inflight = nil
	q.mu.Unlock()

	for _, p := range pending {
		p.complete(Outcome{Err: err})
	}
	return len(pending)
}

// shutdown drains the queue and rejects all future enqueues.
func (q *commandQueue) shutdown(err error) int {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return q.drain(err)
}

// pending returns the number of incomplete commands.
func (q *commandQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.waiting)
	if q.inflight != nil {
		n++
	}
	return n
}

// signal nudges the write loop without blocking.
func (q *commandQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// wakeCh is the channel the write loop blocks on.
func (q *commandQueue) wakeCh() <-chan struct{} {
	return q.wake
}
