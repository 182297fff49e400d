package govee

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/govee2mqtt/internal/entity"
	goveeapi "github.com/nerrad567/govee2mqtt/internal/govee"
	"github.com/nerrad567/govee2mqtt/internal/infrastructure/mqtt"
)

// Bridge defaults.
const (
	// defaultHeartbeat is the heartbeat period when none is configured.
	defaultHeartbeat = 60 * time.Second

	// defaultServiceName names the service device in Home Assistant.
	defaultServiceName = "Govee2MQTT"
)

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

// VendorAPI is the Govee cloud API as the bridge uses it.
// This interface is satisfied by *govee.Client.
type VendorAPI interface {
	GetDeviceList(ctx context.Context) ([]goveeapi.Device, error)
	GetDeviceState(ctx context.Context, rawID, sku string) goveeapi.StateReport
	SendCommand(ctx context.Context, rawID, sku string, cmd goveeapi.Command) goveeapi.StateReport
	Usage() goveeapi.Usage
}

// Logger is the structured logging interface used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds configuration for creating a bridge.
type Options struct {
	// MQTT is the broker connection.
	MQTT MQTTClient

	// API is the vendor cloud client.
	API VendorAPI

	// Store holds every entity. A new store is created when nil.
	Store *entity.Store

	// Topics is the topic layout shared with the MQTT client.
	Topics mqtt.Topics

	// QoS is used for every publish and subscription.
	QoS byte

	// ServiceName and Version describe the service device.
	ServiceName string
	Version     string

	// Intervals are the initial refresh periods.
	Intervals Intervals

	// DiscoveryGrace is the wait before the first full rediscovery.
	// Zero rediscovers immediately.
	DiscoveryGrace time.Duration

	// CommandDelay separates consecutive vendor commands of one batch.
	CommandDelay time.Duration

	// Location formats last_update and last_api_call. Defaults to UTC.
	Location *time.Location

	// ReadyFile is touched on every heartbeat. Empty disables it.
	ReadyFile string

	// Stats receives service statistics on every heartbeat. Optional.
	Stats StatsWriter

	// Logger is an optional structured logger.
	Logger Logger
}

// Bridge connects the Govee cloud API to Home Assistant over MQTT.
// It handles:
//   - Polling the vendor for the device list and device state
//   - Publishing discovery, availability and state for every entity
//   - Translating Home Assistant commands into vendor commands
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt      MQTTClient
	api       VendorAPI
	store     *entity.Store
	topics    mqtt.Topics
	qos       byte
	builder   *Builder
	publisher *Publisher
	boost     *BoostSet
	intervals *liveIntervals

	serviceName       string
	version           string
	location          *time.Location
	readyFile         string
	stats             StatsWriter
	discoveryGrace    time.Duration
	commandDelay      time.Duration
	heartbeatInterval time.Duration

	// Device commands are sent one batch at a time.
	commandMu sync.Mutex

	listNow       chan struct{}
	rediscover    atomic.Bool
	discoveryDone chan struct{}
	discoveryOnce sync.Once

	running atomic.Bool
	errCh   chan error

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx
	stopWatch func() bool

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.API == nil {
		return nil, fmt.Errorf("vendor API client is required")
	}
	if opts.Topics.Prefix == "" || opts.Topics.DiscoveryPrefix == "" {
		return nil, fmt.Errorf("topic prefixes are required")
	}
	iv := opts.Intervals
	if iv.DeviceList <= 0 || iv.Device <= 0 || iv.Boost <= 0 {
		return nil, fmt.Errorf("%w: device list, device and boost intervals must be positive", ErrInvalidInterval)
	}
	if iv.Heartbeat <= 0 {
		iv.Heartbeat = defaultHeartbeat
	}

	store := opts.Store
	if store == nil {
		store = entity.NewStore()
	}
	name := opts.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	return &Bridge{
		mqtt:              opts.MQTT,
		api:               opts.API,
		store:             store,
		topics:            opts.Topics,
		qos:               opts.QoS,
		builder:           NewBuilder(opts.Topics),
		publisher:         NewPublisher(opts.MQTT, store, opts.Topics, opts.QoS),
		boost:             NewBoostSet(),
		intervals:         newLiveIntervals(iv),
		serviceName:       name,
		version:           opts.Version,
		location:          loc,
		readyFile:         opts.ReadyFile,
		stats:             opts.Stats,
		discoveryGrace:    opts.DiscoveryGrace,
		commandDelay:      opts.CommandDelay,
		heartbeatInterval: iv.Heartbeat,
		listNow:           make(chan struct{}, 1),
		discoveryDone:     make(chan struct{}),
		errCh:             make(chan error, 1),
		done:              make(chan struct{}),
		ctx:               ctx,
		ctxCancel:         ctxCancel,
		logger:            opts.Logger,
	}, nil
}

// Start registers the service record, subscribes to command topics and
// starts the refresh loops. Cancelling ctx stops the loops as Stop does.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.registerService(); err != nil {
		return err
	}

	for _, topic := range b.topics.CommandSubscriptions() {
		if err := b.mqtt.Subscribe(topic, b.qos, b.handleMQTTMessage); err != nil {
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}
		b.logInfo("subscribed to commands", "topic", topic)
	}
	if err := b.mqtt.Subscribe(b.topics.HomeAssistantStatus(), b.qos, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to home assistant status: %w", err)
	}

	b.stopWatch = context.AfterFunc(ctx, b.ctxCancel)
	b.running.Store(true)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		err := b.runLoops(b.ctx)
		b.running.Store(false)
		if err != nil {
			b.logError("scheduler stopped", err)
			b.errCh <- err
		}
	}()

	b.logInfo("bridge started",
		"service", b.serviceName,
		"device_list_interval", b.intervals.DeviceList(),
		"device_interval", b.intervals.Device(),
		"boost_interval", b.intervals.Boost())

	return nil
}

// Stop cancels the refresh loops and waits for in-flight work, bounded
// by ctx. Safe to call multiple times.
func (b *Bridge) Stop(ctx context.Context) error {
	var err error
	b.stopOnce.Do(func() {
		close(b.done)
		b.running.Store(false)

		if b.stopWatch != nil {
			b.stopWatch()
		}
		b.ctxCancel()

		finished := make(chan struct{})
		go func() {
			b.wg.Wait()
			close(finished)
		}()

		select {
		case <-finished:
			b.logInfo("bridge stopped")
		case <-ctx.Done():
			err = fmt.Errorf("waiting for refresh loops: %w", ctx.Err())
		}
	})
	return err
}

// Err delivers the error that stopped the scheduler, if it fails.
func (b *Bridge) Err() <-chan error {
	return b.errCh
}

// Running reports whether the refresh loops are active.
func (b *Bridge) Running() bool {
	return b.running.Load()
}

// Store returns the entity store.
func (b *Bridge) Store() *entity.Store {
	return b.store
}

// Boosted reports whether id is waiting for an expedited refresh.
func (b *Bridge) Boosted(id string) bool {
	return b.boost.Contains(id)
}

// Usage returns the vendor API call counter.
func (b *Bridge) Usage() goveeapi.Usage {
	return b.api.Usage()
}

// CurrentIntervals returns the refresh periods in effect, including any
// changed from Home Assistant.
func (b *Bridge) CurrentIntervals() Intervals {
	return Intervals{
		DeviceList: b.intervals.DeviceList(),
		Device:     b.intervals.Device(),
		Boost:      b.intervals.Boost(),
		Heartbeat:  b.heartbeatInterval,
	}
}

// =============================================================================
// Inbound messages
// =============================================================================

// handleMQTTMessage routes incoming MQTT messages to appropriate handlers.
// Malformed messages are logged and dropped.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	select {
	case <-b.done:
		return
	default:
	}

	if topic == b.topics.HomeAssistantStatus() {
		b.handleHomeAssistantStatus(payload)
		return
	}

	cmd, err := b.topics.ParseCommand(topic)
	if err != nil {
		b.logError("ignoring message", err)
		return
	}

	switch cmd.Kind {
	case mqtt.CommandService:
		err = b.handleServiceCommand(cmd.Key, payload)
	case mqtt.CommandDevice, mqtt.CommandMode:
		err = b.handleDeviceCommand(cmd, payload)
	}
	if err != nil {
		b.logError("command failed", fmt.Errorf("%s: %w", topic, err))
	}
}

// handleHomeAssistantStatus republishes everything when Home Assistant
// comes back online, since it may have lost non-retained state.
func (b *Bridge) handleHomeAssistantStatus(payload []byte) {
	if string(payload) != entity.Online {
		b.logInfo("home assistant status", "status", string(payload))
		return
	}
	b.logInfo("home assistant online, republishing discovery")
	b.rediscoverAll()
}

// handleDeviceCommand translates a light or mode command and sends it.
func (b *Bridge) handleDeviceCommand(cmd mqtt.Command, payload []byte) error {
	rec, err := b.store.Get(cmd.EntityID)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownEntity, cmd.EntityID)
		}
		return err
	}

	var tr Translation
	if cmd.Kind == mqtt.CommandMode {
		tr, err = TranslateMode(rec, cmd.Mode, payload)
	} else {
		tr, err = TranslateDevice(rec, payload)
	}
	if err != nil {
		return err
	}

	if len(tr.Unknown) > 0 {
		b.logInfo("ignoring unknown command keys", "entity", rec.ID, "keys", tr.Unknown)
	}

	if tr.Local != nil {
		if _, err := b.store.Upsert(rec.ID, entity.Patch{Switch: tr.Local}); err != nil {
			return err
		}
		if err := b.publisher.State(rec.ID); err != nil {
			b.logError("failed to publish state", err)
		}
	}

	b.sendCommands(b.ctx, rec, tr.Commands)
	return nil
}

// sendCommands sends a batch to the vendor one command at a time. A
// response with state is applied at once; a response without state
// boosts the entity so its next refresh comes sooner.
func (b *Bridge) sendCommands(ctx context.Context, rec entity.Record, cmds []goveeapi.Command) {
	b.commandMu.Lock()
	defer b.commandMu.Unlock()

	for i, cmd := range cmds {
		if i > 0 && !sleep(ctx, b.commandDelay) {
			return
		}

		b.logDebug("sending command",
			"entity", rec.ID,
			"instance", cmd.Instance,
			"value", cmd.Value)

		report := b.api.SendCommand(ctx, rec.Internal.RawID, rec.Internal.SKU, cmd)
		if report.Empty() {
			b.boost.Add(rec.ID)
			continue
		}
		b.applyReport(rec.ID, report)
		b.boost.Remove(rec.ID)
	}
}

// =============================================================================
// Logging
// =============================================================================

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
