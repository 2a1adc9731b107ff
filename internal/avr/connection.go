package avr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quiethouse/avrbridge/internal/device"
	"github.com/quiethouse/avrbridge/internal/protocol"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for receiver communication.
const (
	// DefaultPort is the receiver's serial-over-IP control port.
	DefaultPort = 14999

	// defaultConnectTimeout is the maximum time for one dial attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultCommandTimeout is how long a command may remain pending
	// before it fails with ErrCommandTimeout.
	defaultCommandTimeout = 3 * time.Second

	// defaultReconnectInterval is the initial delay between reconnection
	// attempts.
	defaultReconnectInterval = time.Second

	// maxReconnectInterval is the maximum delay between reconnection
	// attempts.
	maxReconnectInterval = 5 * time.Minute

	// defaultWriteDelay is the settle time between consecutive writes.
	// The receiver silently drops datagrams that arrive back to back.
	defaultWriteDelay = 10 * time.Millisecond

	// defaultWriteTimeout bounds individual socket writes.
	defaultWriteTimeout = 5 * time.Second

	// sweepInterval is how often pending commands are checked for expiry.
	sweepInterval = 250 * time.Millisecond
)

// ConnState is the connection lifecycle state.
type ConnState int32

// Connection lifecycle states.
const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosing
)

// String implements fmt.Stringer.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Config holds receiver connection configuration.
type Config struct {
	// Host is the receiver's address. Required.
	Host string

	// Port is the control port. Default: 14999.
	Port int

	// ConnectTimeout is the maximum time for one dial attempt.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// CommandTimeout is how long a command may remain pending.
	// Default: 3 seconds.
	CommandTimeout time.Duration

	// ReconnectInterval is the initial delay between reconnection
	// attempts. Default: 1 second.
	ReconnectInterval time.Duration

	// WriteDelay is the settle time between consecutive writes.
	// Default: 10 milliseconds.
	WriteDelay time.Duration

	// AutoReconnect keeps the session alive across connection loss and
	// makes Connect retry until it succeeds or its context ends.
	AutoReconnect bool
}

// applyDefaults fills zero values in place.
func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = defaultCommandTimeout
	}
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = defaultReconnectInterval
	}
	if c.WriteDelay == 0 {
		c.WriteDelay = defaultWriteDelay
	}
}

// Logger interface for optional logging.
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

// DialFunc dials the receiver. Injectable for tests.
type DialFunc func(ctx context.Context, address string) (net.Conn, error)

// Stats holds operational statistics.
type Stats struct {
	EventsRx        uint64    `json:"events_rx"`
	CommandsTx      uint64    `json:"commands_tx"`
	NoticesRx       uint64    `json:"notices_rx"`
	ErrorsTotal     uint64    `json:"errors_total"`
	ReconnectsTotal uint64    `json:"reconnects_total"`
	PendingCommands int       `json:"pending_commands"`
	LastActivity    time.Time `json:"last_activity"`
	Connected       bool      `json:"connected"`
	Reconnecting    bool      `json:"reconnecting"`
}

// Manager owns the TCP session with the receiver.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Decoded events are applied to the state store on the read goroutine.
//
// Auto-Reconnection:
//   - With AutoReconnect, connection loss triggers reconnection with
//     exponential backoff from ReconnectInterval up to 5 minutes.
//   - Pending commands fail with ErrConnectionLost on every disconnect
//     and the state mirror is invalidated; nothing is retried silently.
type Manager struct {
	cfg   Config
	store *device.Store
	dial  DialFunc

	connMu sync.RWMutex
	conn   net.Conn

	state   atomic.Int32
	started atomic.Bool

	stateCbMu sync.RWMutex
	onState   func(ConnState)

	queue *commandQueue

	// Shutdown coordination (closeOnce prevents double-close panics)
	done *closeOnce
	wg   sync.WaitGroup

	reconnecting atomic.Bool

	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	eventsRx        atomic.Uint64
	commandsTx      atomic.Uint64
	noticesRx       atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64 // Unix timestamp
}

// NewManager creates a connection manager bound to a state store.
// The store is invalidated on every disconnect; the manager does not
// own it and never closes it.
func NewManager(cfg Config, store *device.Store) (*Manager, error) {
	cfg.applyDefaults()
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrConnectionFailed)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrConnectionFailed)
	}

	m := &Manager{
		cfg:    cfg,
		store:  store,
		queue:  newCommandQueue(cfg.CommandTimeout),
		done:   newCloseOnce(),
		logger: noopLogger{},
	}
	m.dial = func(ctx context.Context, address string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", address)
	}
	return m, nil
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()
}

// SetOnStateChange sets the callback invoked on every connection state
// transition. The callback must not block.
func (m *Manager) SetOnStateChange(fn func(ConnState)) {
	m.stateCbMu.Lock()
	m.onState = fn
	m.stateCbMu.Unlock()
}

// Connect establishes the session and starts the background loops.
//
// Without AutoReconnect a dial failure is returned immediately. With it,
// Connect keeps retrying with exponential backoff until the receiver
// answers, the context ends, or the manager is closed.
func (m *Manager) Connect(ctx context.Context) error {
	if m.isClosed() {
		return ErrClosed
	}
	if !m.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: already connected", ErrConnectionFailed)
	}

	m.setState(StateConnecting)
	backoff := m.cfg.ReconnectInterval

	for {
		conn, err := m.dialDevice(ctx)
		if err == nil {
			m.setConn(conn)
			m.lastActivity.Store(time.Now().Unix())
			m.setState(StateConnected)
			m.startLoops()
			m.logInfo("connected", "address", m.address())
			return nil
		}

		m.errorsTotal.Add(1)
		if !m.cfg.AutoReconnect {
			m.started.Store(false)
			m.setState(StateDisconnected)
			return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}

		m.logWarn("connect failed, retrying", "error", err, "backoff", backoff.String())
		select {
		case <-ctx.Done():
			m.started.Store(false)
			m.setState(StateDisconnected)
			return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
		case <-m.done.Done():
			return ErrClosed
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, maxReconnectInterval)
	}
}

// Send queues a command and waits for its outcome.
//
// Set commands complete once written to the socket. Queries complete when
// the correlated status event arrives, the device rejects the command, or
// the command timeout elapses. Commands issued while disconnected fail
// immediately with ErrNotConnected.
func (m *Manager) Send(ctx context.Context, cmd protocol.Command) (protocol.Event, error) {
	if m.isClosed() {
		return protocol.Event{}, ErrClosed
	}
	if m.State() != StateConnected {
		return protocol.Event{}, ErrNotConnected
	}

	wire, err := protocol.Encode(cmd)
	if err != nil {
		return protocol.Event{}, err
	}

	p := m.queue.enqueue(cmd, wire)
	select {
	case out := <-p.done:
		return out.Event, out.Err
	case <-ctx.Done():
		err := fmt.Errorf("%w: %w", ErrCommandCancelled, ctx.Err())
		p.complete(Outcome{Err: err})
		return protocol.Event{}, err
	case <-m.done.Done():
		p.complete(Outcome{Err: ErrClosed})
		return protocol.Event{}, ErrClosed
	}
}

// State returns the current connection state.
func (m *Manager) State() ConnState {
	return ConnState(m.state.Load())
}

// IsConnected returns true if the session is up.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Stats returns current operational statistics.
func (m *Manager) Stats() Stats {
	return Stats{
		EventsRx:        m.eventsRx.Load(),
		CommandsTx:      m.commandsTx.Load(),
		NoticesRx:       m.noticesRx.Load(),
		ErrorsTotal:     m.errorsTotal.Load(),
		ReconnectsTotal: m.reconnectsTotal.Load(),
		PendingCommands: m.queue.pending(),
		LastActivity:    time.Unix(m.lastActivity.Load(), 0),
		Connected:       m.IsConnected(),
		Reconnecting:    m.reconnecting.Load(),
	}
}

// Close tears down the session. Pending commands fail with ErrClosed.
// Safe to call multiple times.
func (m *Manager) Close() error {
	m.setState(StateClosing)
	m.done.Close()
	m.closeConn()

	if n := m.queue.shutdown(ErrClosed); n > 0 {
		m.logInfo("cancelled pending commands", "count", n)
	}

	m.wg.Wait()
	m.setState(StateDisconnected)
	m.logInfo("connection closed")
	return nil
}

// startLoops launches the session goroutines exactly once per manager.
func (m *Manager) startLoops() {
	m.wg.Add(3)
	go m.readLoop()
	go m.writeLoop()
	go m.sweepLoop()
}

// readLoop consumes datagrams until shutdown. On connection loss it fails
// pending commands, invalidates the mirror, and (with AutoReconnect)
// re-establishes the session before resuming.
func (m *Manager) readLoop() {
	defer m.wg.Done()

	for {
		conn := m.currentConn()
		if conn == nil {
			return
		}

		scanner := bufio.NewScanner(conn)
		scanner.Split(protocol.ScanDatagrams)
		for scanner.Scan() {
			m.handleLine(scanner.Text())
		}

		if m.isClosed() {
			return
		}

		if err := scanner.Err(); err != nil {
			m.errorsTotal.Add(1)
			m.logError("read failed", err)
		} else {
			m.logWarn("connection closed by device")
		}

		m.handleDisconnect()

		if !m.cfg.AutoReconnect {
			return
		}
		if !m.reconnect() {
			return
		}
	}
}

// handleLine decodes and routes one inbound datagram.
func (m *Manager) handleLine(line string) {
	ev, err := protocol.Decode(line)
	if err != nil {
		var notice *protocol.NoticeError
		switch {
		case errors.As(err, &notice):
			m.noticesRx.Add(1)
			m.logWarn("device notice", "notice", notice.Notice, "raw", notice.Raw)
			m.queue.failInflight(fmt.Errorf("%w: %s", ErrCommandRejected, notice.Notice))
		case errors.Is(err, protocol.ErrEmptyLine):
			// Keepalive noise between datagrams.
		default:
			// Unknown tokens are expected across firmware revisions.
			m.logDebug("ignoring unrecognised datagram", "raw", line)
		}
		return
	}

	m.eventsRx.Add(1)
	m.lastActivity.Store(time.Now().Unix())

	m.store.Apply(ev)
	m.queue.correlate(ev)
}

// writeLoop drains the command queue, one datagram per write, pausing
// between writes so the receiver keeps up.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.done.Done():
			return
		case <-m.queue.wakeCh():
		}

		for {
			if m.isClosed() {
				return
			}

			p := m.queue.next()
			if p == nil {
				break
			}

			if err := m.writeCommand(p); err != nil {
				m.errorsTotal.Add(1)
				m.logError("write failed", err)
				if p.cmd.ExpectsReply() {
					m.queue.failInflight(err)
				} else {
					p.complete(Outcome{Err: err})
				}
				// A failed write means the link is dead even if reads
				// still block (half-open TCP). Closing the socket wakes
				// the read loop, which owns the disconnect transition
				// and the reconnect.
				m.closeConn()
				break
			}

			if !p.cmd.ExpectsReply() {
				p.complete(Outcome{})
			}

			select {
			case <-m.done.Done():
				return
			case <-time.After(m.cfg.WriteDelay):
			}
		}
	}
}

// writeCommand writes one encoded datagram to the socket.
func (m *Manager) writeCommand(p *pendingCommand) error {
	conn := m.currentConn()
	if conn == nil {
		return ErrNotConnected
	}

	if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := conn.Write(p.wire); err != nil {
		return fmt.Errorf("write %s: %w", p.cmd, err)
	}

	m.commandsTx.Add(1)
	m.logDebug("sent", "command", p.cmd.String(), "wire", string(p.wire))
	return nil
}

// sweepLoop periodically expires overdue commands.
func (m *Manager) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done.Done():
			return
		case <-ticker.C:
			if n := m.queue.expire(time.Now()); n > 0 {
				m.errorsTotal.Add(1)
				m.logWarn("commands timed out", "count", n)
			}
		}
	}
}

// handleDisconnect fails pending commands and invalidates the mirror.
// The device may change state while unreachable, so nothing cached
// survives a disconnect.
func (m *Manager) handleDisconnect() {
	m.closeConn()
	m.setState(StateDisconnected)

	if n := m.queue.drain(ErrConnectionLost); n > 0 {
		m.logWarn("failed pending commands on disconnect", "count", n)
	}
	m.store.Reset()
}

// reconnect re-establishes the session with exponential backoff.
// Returns false if shutdown was signalled.
func (m *Manager) reconnect() bool {
	m.reconnecting.Store(true)
	defer m.reconnecting.Store(false)

	m.setState(StateConnecting)
	backoff := m.cfg.ReconnectInterval

	for attempt := 1; ; attempt++ {
		if m.isClosed() {
			return false
		}

		m.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		conn, err := m.dialDevice(context.Background())
		if err == nil {
			m.setConn(conn)
			m.reconnectsTotal.Add(1)
			m.lastActivity.Store(time.Now().Unix())
			m.setState(StateConnected)
			m.logInfo("reconnection successful", "total_reconnects", m.reconnectsTotal.Load())
			return true
		}

		m.errorsTotal.Add(1)
		m.logWarn("reconnect failed", "error", err)

		select {
		case <-m.done.Done():
			return false
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, maxReconnectInterval)
	}
}

// nextBackoff grows the delay by half again, capped at limit.
func nextBackoff(current, limit time.Duration) time.Duration {
	next := time.Duration(float64(current) * 1.5)
	if next > limit {
		next = limit
	}
	return next
}

// dialDevice performs one dial attempt with the connect timeout applied.
func (m *Manager) dialDevice(ctx context.Context) (net.Conn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	return m.dial(dialCtx, m.address())
}

// address returns the receiver's host:port.
func (m *Manager) address() string {
	return net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
}

// setState swaps the connection state and notifies the callback.
func (m *Manager) setState(s ConnState) {
	old := ConnState(m.state.Swap(int32(s)))
	if old == s {
		return
	}

	m.logDebug("connection state", "from", old.String(), "to", s.String())

	m.stateCbMu.RLock()
	cb := m.onState
	m.stateCbMu.RUnlock()
	if cb == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.logError("state callback panic", fmt.Errorf("%v", r))
		}
	}()
	cb(s)
}

func (m *Manager) currentConn() net.Conn {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.conn
}

func (m *Manager) setConn(conn net.Conn) {
	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()
}

func (m *Manager) closeConn() {
	m.connMu.Lock()
	if m.conn != nil {
		m.conn.Close()
	}
	m.connMu.Unlock()
}

// isClosed returns true once Close has been called.
func (m *Manager) isClosed() bool {
	select {
	case <-m.done.Done():
		return true
	default:
		return false
	}
}

func (m *Manager) logDebug(msg string, args ...any) {
	m.loggerMu.RLock()
	logger := m.logger
	m.loggerMu.RUnlock()
	logger.Debug(msg, args...)
}

func (m *Manager) logInfo(msg string, args ...any) {
	m.loggerMu.RLock()
	logger := m.logger
	m.loggerMu.RUnlock()
	logger.Info(msg, args...)
}

func (m *Manager) logWarn(msg string, args ...any) {
	m.loggerMu.RLock()
	logger := m.logger
	m.loggerMu.RUnlock()
	logger.Warn(msg, args...)
}

func (m *Manager) logError(msg string, err error) {
	m.loggerMu.RLock()
	logger := m.logger
	m.loggerMu.RUnlock()
	logger.Error(msg, "error", err)
}
