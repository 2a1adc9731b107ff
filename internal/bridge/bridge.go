package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quiethouse/avrbridge/internal/avr"
	"github.com/quiethouse/avrbridge/internal/device"
	"github.com/quiethouse/avrbridge/internal/protocol"
)

// Bridge operation constants.
const (
	// minTopicParts is the minimum number of parts in a valid command topic.
	minTopicParts = 3

	// commandTimeout bounds a single command issued from MQTT.
	commandTimeout = 5 * time.Second

	// refreshTimeout bounds a full refresh issued from MQTT.
	refreshTimeout = 30 * time.Second
)

// Controller is the receiver control surface the bridge drives.
// Satisfied by *avr.Client.
type Controller interface {
	SetPower(ctx context.Context, on bool) error
	SetVolume(ctx context.Context, vol int) error
	SetAttenuation(ctx context.Context, db int) error
	SetMute(ctx context.Context, mute bool) error
	SetInput(ctx context.Context, raw string) error
	SetInputByName(ctx context.Context, name string) error
	RefreshAll(ctx context.Context) error

	OnChange(fn func(device.Change)) func()
	OnStateChange(fn func(avr.ConnState)) func()
	State() avr.ConnState
	Stats() avr.Stats
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// MetricsWriter records numeric property transitions for telemetry.
// Satisfied by the influxdb infrastructure writer. Optional.
type MetricsWriter interface {
	WritePropertyMetric(property string, value float64)
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds configuration for creating a bridge.
type Options struct {
	// Controller is the receiver client. Required.
	Controller Controller

	// MQTT is the broker client. Required.
	MQTT MQTTClient

	// History is the optional transition repository. If nil, the bridge
	// operates without persistence.
	History device.HistoryRepository

	// Metrics is the optional telemetry writer. If nil, no points are
	// written.
	Metrics MetricsWriter

	// QoS is the quality of service for publishes and subscriptions.
	QoS byte

	// Logger is an optional structured logger.
	Logger Logger
}

// Bridge connects the receiver session to MQTT in both directions.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	ctrl    Controller
	mqtt    MQTTClient
	history device.HistoryRepository // may be nil
	metrics MetricsWriter            // may be nil
	qos     byte

	unsubChange func()
	unsubState  func()

	// Shutdown coordination
	done      chan struct{}
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup

	commandsRx atomic.Uint64
	publishes  atomic.Uint64
	errors     atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a bridge. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		ctrl:      opts.Controller,
		mqtt:      opts.MQTT,
		history:   opts.History,
		metrics:   opts.Metrics,
		qos:       opts.QoS,
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: cancel,
		logger:    logger,
	}, nil
}

// Start subscribes to command topics and begins mirroring state to MQTT.
func (b *Bridge) Start() error {
	if err := b.mqtt.Subscribe(CommandSubscribeTopic(), b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", CommandSubscribeTopic())

	b.unsubChange = b.ctrl.OnChange(b.handleChange)
	b.unsubState = b.ctrl.OnStateChange(b.handleConnState)

	// Late subscribers need the current condition without waiting for a
	// transition.
	b.publishStatus(b.ctrl.State())

	return nil
}

// Stop detaches from the controller and aborts in-flight commands.
// Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()

		if b.unsubChange != nil {
			b.unsubChange()
		}
		if b.unsubState != nil {
			b.unsubState()
		}

		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// Metrics snapshot for health reporting.
type BridgeMetrics struct {
	CommandsRx uint64 `json:"commands_rx"`
	Publishes  uint64 `json:"publishes"`
	Errors     uint64 `json:"errors"`
}

// GetMetrics returns operational counters.
func (b *Bridge) GetMetrics() BridgeMetrics {
	return BridgeMetrics{
		CommandsRx: b.commandsRx.Load(),
		Publishes:  b.publishes.Load(),
		Errors:     b.errors.Load(),
	}
}

// handleCommand routes one inbound command message.
func (b *Bridge) handleCommand(topic string, payload []byte) {
	select {
	case <-b.done:
		return
	default:
	}

	b.commandsRx.Add(1)

	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		b.logWarn("malformed command topic", "topic", topic)
		b.errors.Add(1)
		return
	}
	target := parts[len(parts)-1]

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.executeCommand(target, string(payload)); err != nil {
			b.errors.Add(1)
			b.logWarn("command failed",
				"target", target,
				"payload", string(payload),
				"error", err.Error(),
			)
		}
	}()
}

// executeCommand dispatches a command to the controller.
func (b *Bridge) executeCommand(target, payload string) error {
	timeout := commandTimeout
	if target == TargetRefresh {
		timeout = refreshTimeout
	}
	ctx, cancel := context.WithTimeout(b.ctx, timeout)
	defer cancel()

	switch target {
	case TargetPower:
		on, err := parseOnOff(payload)
		if err != nil {
			return err
		}
		return b.ctrl.SetPower(ctx, on)

	case TargetMute:
		mute, err := parseOnOff(payload)
		if err != nil {
			return err
		}
		return b.ctrl.SetMute(ctx, mute)

	case TargetVolume:
		vol, err := strconv.Atoi(strings.TrimSpace(payload))
		if err != nil {
			return fmt.Errorf("%w: %q is not a volume", ErrBadPayload, payload)
		}
		return b.ctrl.SetVolume(ctx, vol)

	case TargetAttenuation:
		db, err := strconv.Atoi(strings.TrimSpace(payload))
		if err != nil {
			return fmt.Errorf("%w: %q is not an attenuation", ErrBadPayload, payload)
		}
		return b.ctrl.SetAttenuation(ctx, db)

	case TargetInput:
		// Raw selector first, then display name ("GAME", "usb").
		raw := strings.TrimSpace(payload)
		if err := b.ctrl.SetInput(ctx, raw); err == nil {
			return nil
		}
		return b.ctrl.SetInputByName(ctx, raw)

	case TargetRefresh:
		return b.ctrl.RefreshAll(ctx)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
}

// handleChange mirrors one state transition to MQTT, history, and
// telemetry.
func (b *Bridge) handleChange(ch device.Change) {
	select {
	case <-b.done:
		return
	default:
	}

	if ch.Invalidated {
		b.publishInvalidation()
		b.recordHistory("", "", false, device.HistorySourceReset)
		return
	}

	b.publishState(ch.Property, ch.Value)
	b.recordHistory(string(ch.Property), ch.Value.Raw, true, device.HistorySourceDevice)
	b.writeMetric(ch.Property, ch.Value)
}

// handleConnState publishes connection transitions on the status topic.
func (b *Bridge) handleConnState(s avr.ConnState) {
	select {
	case <-b.done:
		return
	default:
	}
	b.publishStatus(s)
}

// publishState publishes one retained state message.
func (b *Bridge) publishState(p protocol.Property, v device.Value) {
	name, ok := propertyNames[p]
	if !ok {
		return
	}

	payload, err := json.Marshal(NewStateMessage(p, v))
	if err != nil {
		b.errors.Add(1)
		b.logError("failed to marshal state", err)
		return
	}

	if err := b.mqtt.Publish(StateTopic(name), payload, b.qos, true); err != nil {
		b.errors.Add(1)
		b.logError("failed to publish state", err)
		return
	}
	b.publishes.Add(1)
}

// publishInvalidation republishes every property as unknown so retained
// state never outlives the session that produced it.
func (b *Bridge) publishInvalidation() {
	for _, p := range protocol.Properties() {
		b.publishState(p, device.Unknown)
	}
}

// publishStatus publishes the retained connection status message.
func (b *Bridge) publishStatus(s avr.ConnState) {
	stats := b.ctrl.Stats()
	msg := StatusMessage{
		Status:     s.String(),
		Reconnects: stats.ReconnectsTotal,
		Pending:    stats.PendingCommands,
		Timestamp:  time.Now().UTC(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.errors.Add(1)
		b.logError("failed to marshal status", err)
		return
	}

	if err := b.mqtt.Publish(StatusTopic(), payload, b.qos, true); err != nil {
		b.errors.Add(1)
		b.logError("failed to publish status", err)
		return
	}
	b.publishes.Add(1)
	b.logInfo("published status", "status", s.String())
}

// recordHistory appends one transition to the repository, if configured.
func (b *Bridge) recordHistory(property, value string, known bool, source string) {
	if b.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := b.history.RecordChange(ctx, property, value, known, source); err != nil {
		b.logDebug("history record skipped",
			"property", property,
			"reason", err.Error(),
		)
	}
}

// writeMetric emits one telemetry point for numeric-valued properties.
func (b *Bridge) writeMetric(p protocol.Property, v device.Value) {
	if b.metrics == nil || !v.Known {
		return
	}

	name := propertyNames[p]
	switch p {
	case protocol.PropPower, protocol.PropMute:
		on, err := v.Bool()
		if err != nil {
			return
		}
		val := 0.0
		if on {
			val = 1.0
		}
		b.metrics.WritePropertyMetric(name, val)

	case protocol.PropVolume:
		att, err := v.Int()
		if err != nil {
			return
		}
		b.metrics.WritePropertyMetric(name, float64(protocol.AttenuationToVolume(att)))
		b.metrics.WritePropertyMetric(TargetAttenuation, float64(att))
	}
	// Input is enumerated, not numeric; nothing to write.
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()
	logger.Info(msg, keysAndValues...)
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()
	logger.Warn(msg, keysAndValues...)
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()
	logger.Debug(msg, keysAndValues...)
}

func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()
	logger.Error(msg, "error", err)
}
