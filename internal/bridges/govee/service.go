package govee

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nerrad567/govee2mqtt/internal/entity"
	"github.com/nerrad567/govee2mqtt/internal/infrastructure/config"
)

// Interval limits accepted from Home Assistant, in seconds.
const (
	minInterval      = 1
	maxInterval      = config.MaxIntervalSeconds
	maxBoostInterval = config.MaxBoostIntervalSeconds
)

// payloadRefresh presses the refresh_device_list button.
const payloadRefresh = "refresh"

// lastCallLayout formats timestamps shown in Home Assistant.
const lastCallLayout = "2006-01-02 15:04:05"

// Intervals are the refresh periods of the scheduler loops.
type Intervals struct {
	DeviceList time.Duration
	Device     time.Duration
	Boost      time.Duration
	Heartbeat  time.Duration
}

// liveIntervals holds the intervals that Home Assistant can change at
// runtime. Loops read them once per iteration.
type liveIntervals struct {
	deviceList atomic.Int64
	device     atomic.Int64
	boost      atomic.Int64
}

func newLiveIntervals(iv Intervals) *liveIntervals {
	l := &liveIntervals{}
	l.deviceList.Store(int64(iv.DeviceList))
	l.device.Store(int64(iv.Device))
	l.boost.Store(int64(iv.Boost))
	return l
}

func (l *liveIntervals) DeviceList() time.Duration { return time.Duration(l.deviceList.Load()) }
func (l *liveIntervals) Device() time.Duration     { return time.Duration(l.device.Load()) }
func (l *liveIntervals) Boost() time.Duration      { return time.Duration(l.boost.Load()) }

// byKey returns the interval stored under a service key and its upper bound.
func (l *liveIntervals) byKey(key string) (*atomic.Int64, int, bool) {
	switch key {
	case ServiceKeyDeviceRefresh:
		return &l.device, maxInterval, true
	case ServiceKeyDeviceListRefresh:
		return &l.deviceList, maxInterval, true
	case ServiceKeySnapshotRefresh:
		return &l.boost, maxBoostInterval, true
	}
	return nil, 0, false
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}

// parseInterval reads an interval command payload. Home Assistant number
// entities may send "30" or "30.0".
func parseInterval(payload []byte, upper int) (int, error) {
	f, err := strconv.ParseFloat(string(bytes.TrimSpace(payload)), 64)
	if err != nil || math.IsNaN(f) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidInterval, payload)
	}
	n := int(math.Round(f))
	if n < minInterval || n > upper {
		return 0, fmt.Errorf("%w: %d outside %d..%d", ErrInvalidInterval, n, minInterval, upper)
	}
	return n, nil
}

// =============================================================================
// Service record
// =============================================================================

// serviceRecord builds the patch that registers the bridge itself: a
// connectivity sensor as the primary component plus one component per
// operational counter or setting.
func (b *Bridge) serviceRecord() entity.Patch {
	t := b.topics
	status := t.ServiceStatus()
	device := &entity.DeviceBlock{
		Name:         b.serviceName,
		Identifiers:  []string{t.DeviceSlug(entity.ServiceID)},
		Manufacturer: b.serviceName,
		Model:        "Govee cloud bridge",
		SWVersion:    b.version,
	}

	primary := &entity.Component{
		Type:           entity.ComponentBinarySensor,
		Name:           b.serviceName,
		UniqueID:       t.ModeSlug(entity.ServiceID, ServiceKeyStatus),
		Icon:           "mdi:server",
		DeviceClass:    "connectivity",
		EntityCategory: "diagnostic",
		StateTopic:     status,
		PayloadOn:      entity.Online,
		PayloadOff:     entity.Offline,
		Device:         device,
	}

	number := func(key, name, icon string, upper int) *entity.Component {
		return &entity.Component{
			Type:              entity.ComponentNumber,
			Name:              name,
			UniqueID:          t.ModeSlug(entity.ServiceID, key),
			Icon:              icon,
			EntityCategory:    "config",
			UnitOfMeasurement: "s",
			StateTopic:        t.ServiceState(key),
			CommandTopic:      t.ServiceCommand(key),
			AvailabilityTopic: status,
			Min:               entity.Ptr(float64(minInterval)),
			Max:               entity.Ptr(float64(upper)),
			Step:              entity.Ptr(1.0),
			Mode:              "box",
			Device:            device,
		}
	}

	modes := map[string]*entity.Component{
		ServiceKeyAPICalls: {
			Type:                entity.ComponentSensor,
			Name:                b.serviceName + " API Calls Today",
			UniqueID:            t.ModeSlug(entity.ServiceID, ServiceKeyAPICalls),
			Icon:                "mdi:api",
			StateClass:          "total_increasing",
			EntityCategory:      "diagnostic",
			UnitOfMeasurement:   "calls",
			StateTopic:          t.ServiceState(ServiceKeyAPICalls),
			JSONAttributesTopic: t.ServiceAttributes(ServiceKeyAPICalls),
			AvailabilityTopic:   status,
			Device:              device,
		},
		ServiceKeyRateLimited: {
			Type:              entity.ComponentBinarySensor,
			Name:              b.serviceName + " Rate Limited by Govee",
			UniqueID:          t.ModeSlug(entity.ServiceID, ServiceKeyRateLimited),
			Icon:              "mdi:speedometer-slow",
			DeviceClass:       "problem",
			EntityCategory:    "diagnostic",
			StateTopic:        t.ServiceState(ServiceKeyRateLimited),
			PayloadOn:         "yes",
			PayloadOff:        "no",
			AvailabilityTopic: status,
			Device:            device,
		},
		ServiceKeyDeviceRefresh: number(ServiceKeyDeviceRefresh,
			"Device Refresh Interval", "mdi:timer-refresh", maxInterval),
		ServiceKeyDeviceListRefresh: number(ServiceKeyDeviceListRefresh,
			"Device List Refresh Interval", "mdi:format-list-bulleted", maxInterval),
		ServiceKeySnapshotRefresh: number(ServiceKeySnapshotRefresh,
			"Device Boost Refresh Interval", "mdi:lightning-bolt", maxBoostInterval),
		ServiceKeyRefreshList: {
			Type:              entity.ComponentButton,
			Name:              "Refresh Device List",
			UniqueID:          t.ModeSlug(entity.ServiceID, ServiceKeyRefreshList),
			Icon:              "mdi:refresh",
			CommandTopic:      t.ServiceCommand(ServiceKeyRefreshList),
			PayloadPress:      payloadRefresh,
			AvailabilityTopic: status,
			Device:            device,
		},
	}

	return entity.Patch{
		Component: primary,
		Modes:     modes,
		Service:   b.serviceState(),
	}
}

// registerService stores the service record and publishes its discovery
// and state.
func (b *Bridge) registerService() error {
	if _, err := b.store.Upsert(entity.ServiceID, b.serviceRecord()); err != nil {
		return fmt.Errorf("register service record: %w", err)
	}
	if err := b.publisher.Discovery(entity.ServiceID, false); err != nil {
		b.logError("failed to publish service discovery", err)
	}
	if err := b.publisher.State(entity.ServiceID); err != nil {
		b.logError("failed to publish service state", err)
	}
	return nil
}

// serviceState snapshots the counters and intervals of the service record.
func (b *Bridge) serviceState() *entity.ServiceState {
	usage := b.api.Usage()
	s := &entity.ServiceState{
		APICalls:          entity.Ptr(usage.APICalls),
		RateLimited:       entity.Ptr(usage.RateLimited),
		DeviceRefresh:     entity.Ptr(seconds(b.intervals.Device())),
		DeviceListRefresh: entity.Ptr(seconds(b.intervals.DeviceList())),
		SnapshotRefresh:   entity.Ptr(seconds(b.intervals.Boost())),
	}
	if !usage.LastCall.IsZero() {
		s.LastAPICall = entity.Ptr(usage.LastCall.In(b.location).Format(lastCallLayout))
	}
	return s
}

// publishServiceState refreshes the service record and publishes it.
func (b *Bridge) publishServiceState() {
	if _, err := b.store.Upsert(entity.ServiceID, entity.Patch{Service: b.serviceState()}); err != nil {
		b.logError("failed to update service record", err)
		return
	}
	if err := b.publisher.State(entity.ServiceID); err != nil {
		b.logError("failed to publish service state", err)
	}
}

// handleServiceCommand applies a command sent to one of the service
// record's number or button entities.
func (b *Bridge) handleServiceCommand(key string, payload []byte) error {
	if key == ServiceKeyRefreshList {
		if string(bytes.TrimSpace(payload)) != payloadRefresh {
			return fmt.Errorf("%w: %s wants %q", ErrInvalidPayload, key, payloadRefresh)
		}
		b.RefreshDeviceList()
		return nil
	}

	field, upper, ok := b.intervals.byKey(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownServiceCommand, key)
	}
	n, err := parseInterval(payload, upper)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	field.Store(int64(time.Duration(n) * time.Second))
	b.logInfo("interval changed", "key", key, "seconds", n)
	b.publishServiceState()
	return nil
}

// RefreshDeviceList asks the list loop to run now and to republish every
// entity afterwards. Requests made while one is already pending are merged.
func (b *Bridge) RefreshDeviceList() {
	b.rediscover.Store(true)
	select {
	case b.listNow <- struct{}{}:
	default:
	}
}

