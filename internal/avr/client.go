package avr

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/quiethouse/avrbridge/internal/device"
	"github.com/quiethouse/avrbridge/internal/protocol"
)

// powerOnRefreshDelay is how long to wait after the main zone powers on
// before querying the remaining properties. The receiver needs a moment
// before it answers anything but power queries.
var powerOnRefreshDelay = time.Second

// refreshTimeout bounds the automatic refresh rounds issued on connect
// and power-on.
const refreshTimeout = 10 * time.Second

// Client is the public facade over the connection manager and the state
// mirror. Getters read the mirror and never touch the network; setters
// and Query go through the command queue.
type Client struct {
	mgr   *Manager
	store *device.Store

	stateMu     sync.RWMutex
	stateSubs   map[int]func(ConnState)
	nextStateID int

	refreshMu    sync.Mutex
	refreshTimer *time.Timer

	unsubscribe func()

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a client for one receiver. The client owns its state store
// and connection manager; Close releases both.
func New(cfg Config) (*Client, error) {
	store := device.NewStore()
	mgr, err := NewManager(cfg, store)
	if err != nil {
		store.Close()
		return nil, err
	}

	c := &Client{
		mgr:       mgr,
		store:     store,
		stateSubs: make(map[int]func(ConnState)),
		logger:    noopLogger{},
	}
	c.unsubscribe = store.Subscribe(c.handleChange)
	mgr.SetOnStateChange(c.handleState)

	return c, nil
}

// SetLogger sets the logger for the client and its internals.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
	c.mgr.SetLogger(logger)
	c.store.SetLogger(logger)
}

// Connect establishes the session. On success a core refresh runs in the
// background to learn the power state; the rest of the mirror fills in
// once the receiver reports the main zone on.
func (c *Client) Connect(ctx context.Context) error {
	return c.mgr.Connect(ctx)
}

// Close tears down the session and stops all notifications.
// Safe to call multiple times.
func (c *Client) Close() error {
	c.refreshMu.Lock()
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	c.refreshMu.Unlock()

	c.unsubscribe()
	err := c.mgr.Close()
	c.store.Close()
	return err
}

// State returns the connection state.
func (c *Client) State() ConnState {
	return c.mgr.State()
}

// IsConnected returns true if the session is up.
func (c *Client) IsConnected() bool {
	return c.mgr.IsConnected()
}

// Stats returns operational statistics for the session.
func (c *Client) Stats() Stats {
	return c.mgr.Stats()
}

// Snapshot returns a copy of the full state mirror.
func (c *Client) Snapshot() map[protocol.Property]device.Value {
	return c.store.Snapshot()
}

// OnChange registers a listener for state transitions. The returned
// function removes the subscription.
func (c *Client) OnChange(fn func(device.Change)) func() {
	return c.store.Subscribe(fn)
}

// OnStateChange registers a listener for connection state transitions.
// The returned function removes the subscription.
func (c *Client) OnStateChange(fn func(ConnState)) func() {
	c.stateMu.Lock()
	id := c.nextStateID
	c.nextStateID++
	c.stateSubs[id] = fn
	c.stateMu.Unlock()

	return func() {
		c.stateMu.Lock()
		delete(c.stateSubs, id)
		c.stateMu.Unlock()
	}
}

// Power returns the mirrored power state.
func (c *Client) Power() (bool, error) {
	return c.store.Get(protocol.PropPower).Bool()
}

// SetPower switches the main zone on or off.
func (c *Client) SetPower(ctx context.Context, on bool) error {
	return c.set(ctx, protocol.PropPower, boolValue(on))
}

// Attenuation returns the mirrored volume as attenuation in dB (-90..0).
func (c *Client) Attenuation() (int, error) {
	return c.store.Get(protocol.PropVolume).Int()
}

// SetAttenuation sets the volume as attenuation in dB (-90..0).
func (c *Client) SetAttenuation(ctx context.Context, db int) error {
	if db < protocol.MinAttenuation || db > protocol.MaxAttenuation {
		return fmt.Errorf("%w: attenuation %d outside %d..%d",
			ErrInvalidValue, db, protocol.MinAttenuation, protocol.MaxAttenuation)
	}
	return c.set(ctx, protocol.PropVolume, strconv.Itoa(db))
}

// Volume returns the mirrored volume on a 0..100 scale.
func (c *Client) Volume() (int, error) {
	att, err := c.Attenuation()
	if err != nil {
		return 0, err
	}
	return protocol.AttenuationToVolume(att), nil
}

// SetVolume sets the volume on a 0..100 scale.
func (c *Client) SetVolume(ctx context.Context, vol int) error {
	if vol < 0 || vol > 100 {
		return fmt.Errorf("%w: volume %d outside 0..100", ErrInvalidValue, vol)
	}
	return c.SetAttenuation(ctx, protocol.VolumeToAttenuation(vol))
}

// VolumeAsPercentage returns the mirrored volume as a 0..1 fraction.
func (c *Client) VolumeAsPercentage() (float64, error) {
	vol, err := c.Volume()
	if err != nil {
		return 0, err
	}
	return float64(vol) / 100.0, nil
}

// SetVolumeAsPercentage sets the volume as a 0..1 fraction.
func (c *Client) SetVolumeAsPercentage(ctx context.Context, pct float64) error {
	if pct < 0 || pct > 1 {
		return fmt.Errorf("%w: percentage %v outside 0..1", ErrInvalidValue, pct)
	}
	return c.SetVolume(ctx, int(pct*100))
}

// Muted returns the mirrored mute state.
func (c *Client) Muted() (bool, error) {
	return c.store.Get(protocol.PropMute).Bool()
}

// SetMute mutes or unmutes the main zone.
func (c *Client) SetMute(ctx context.Context, mute bool) error {
	return c.set(ctx, protocol.PropMute, boolValue(mute))
}

// Input returns the mirrored input selector as its raw wire value.
func (c *Client) Input() (string, error) {
	v := c.store.Get(protocol.PropInput)
	if !v.Known {
		return "", device.ErrUnknownValue
	}
	return v.Raw, nil
}

// InputName returns the mirrored input as a display name, falling back
// to the raw value for selectors without one.
func (c *Client) InputName() (string, error) {
	raw, err := c.Input()
	if err != nil {
		return "", err
	}
	if name, ok := protocol.PropInput.ValueName(raw); ok {
		return name, nil
	}
	return raw, nil
}

// SetInput selects an input by raw wire value ("1".."9", "d", "e").
func (c *Client) SetInput(ctx context.Context, raw string) error {
	if _, ok := protocol.PropInput.Values()[raw]; !ok {
		return fmt.Errorf("%w: unknown input %q", ErrInvalidValue, raw)
	}
	return c.set(ctx, protocol.PropInput, raw)
}

// SetInputByName selects an input by display name, case-insensitively.
func (c *Client) SetInputByName(ctx context.Context, name string) error {
	for raw, display := range protocol.PropInput.Values() {
		if strings.EqualFold(display, name) {
			return c.set(ctx, protocol.PropInput, raw)
		}
	}
	return fmt.Errorf("%w: unknown input name %q", ErrInvalidValue, name)
}

// Query forces a device round trip for one property and returns the
// fresh value. The mirror is updated as a side effect.
func (c *Client) Query(ctx context.Context, p protocol.Property) (device.Value, error) {
	ev, err := c.mgr.Send(ctx, protocol.NewQueryCommand(p))
	if err != nil {
		return device.Unknown, err
	}
	return device.Value{Raw: ev.Value, Known: true, UpdatedAt: ev.Timestamp}, nil
}

// RefreshCore queries the properties that answer regardless of power
// state (currently just power itself).
func (c *Client) RefreshCore(ctx context.Context) error {
	return c.refresh(ctx, protocol.CoreProperties())
}

// RefreshAll queries every property. With the main zone off most queries
// come back as device notices; those are skipped, not failed.
func (c *Client) RefreshAll(ctx context.Context) error {
	return c.refresh(ctx, protocol.Properties())
}

// refresh queries the given properties in order.
func (c *Client) refresh(ctx context.Context, props []protocol.Property) error {
	for _, p := range props {
		if _, err := c.mgr.Send(ctx, protocol.NewQueryCommand(p)); err != nil {
			// A powered-down main zone rejects most queries.
			if errors.Is(err, ErrCommandRejected) {
				c.logDebug("refresh query rejected", "property", string(p), "error", err.Error())
				continue
			}
			return fmt.Errorf("refreshing %s: %w", p, err)
		}
	}
	return nil
}

// set issues a fire-and-forget set command.
func (c *Client) set(ctx context.Context, p protocol.Property, value string) error {
	_, err := c.mgr.Send(ctx, protocol.NewSetCommand(p, value))
	return err
}

// handleState reacts to connection transitions and fans them out to
// subscribers.
func (c *Client) handleState(s ConnState) {
	if s == StateConnected {
		go c.refreshAfterConnect()
	}

	c.stateMu.RLock()
	fns := make([]func(ConnState), 0, len(c.stateSubs))
	for id := 0; id < c.nextStateID; id++ {
		if fn, ok := c.stateSubs[id]; ok {
			fns = append(fns, fn)
		}
	}
	c.stateMu.RUnlock()

	for _, fn := range fns {
		c.invokeStateSub(fn, s)
	}
}

// invokeStateSub calls one subscriber with panic recovery.
func (c *Client) invokeStateSub(fn func(ConnState), s ConnState) {
	defer func() {
		if r := recover(); r != nil {
			c.logError("state subscriber panic recovered", fmt.Errorf("%v", r))
		}
	}()
	fn(s)
}

// refreshAfterConnect learns the power state of a fresh session. If the
// main zone is on, the resulting power event triggers the full refresh
// via handleChange.
func (c *Client) refreshAfterConnect() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if err := c.RefreshCore(ctx); err != nil {
		c.logWarn("core refresh failed", "error", err.Error())
	}
}

// handleChange watches for the main zone powering on and schedules a
// refresh of the remaining properties.
func (c *Client) handleChange(ch device.Change) {
	if ch.Property != protocol.PropPower {
		return
	}
	if !ch.Value.Known || ch.Value.Raw != "1" {
		return
	}
	if ch.Previous.Known && ch.Previous.Raw == "1" {
		return
	}

	c.refreshMu.Lock()
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
	}
	c.refreshTimer = time.AfterFunc(powerOnRefreshDelay, c.refreshSecondary)
	c.refreshMu.Unlock()
}

// refreshSecondary queries everything except power.
func (c *Client) refreshSecondary() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	props := make([]protocol.Property, 0, len(protocol.Properties()))
	for _, p := range protocol.Properties() {
		if p == protocol.PropPower {
			continue
		}
		props = append(props, p)
	}

	if err := c.refresh(ctx, props); err != nil {
		c.logWarn("power-on refresh failed", "error", err.Error())
	}
}

// boolValue maps a bool onto the wire's "0"/"1".
func boolValue(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (c *Client) logDebug(msg string, args ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	logger.Debug(msg, args...)
}

func (c *Client) logWarn(msg string, args ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	logger.Warn(msg, args...)
}

func (c *Client) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	logger.Error(msg, "error", err)
}
