package govee

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nerrad567/govee2mqtt/internal/entity"
	goveeapi "github.com/nerrad567/govee2mqtt/internal/govee"
)

// refreshDeviceList fetches the vendor device list, builds every supported
// device and marks known devices missing from the list offline. It
// reports whether the list was fetched.
func (b *Bridge) refreshDeviceList(ctx context.Context) bool {
	devices, err := b.api.GetDeviceList(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			b.logWarn("device list refresh failed", "error", err)
		}
		b.publishServiceState()
		return false
	}

	seen := make(map[string]bool)
	for _, d := range devices {
		builds := b.builder.Build(d, b.lookup)
		if len(builds) == 0 {
			b.logInfo("skipping unsupported device", "sku", d.SKU, "name", d.Name)
			continue
		}

		for _, build := range builds {
			if len(build.Unknown) > 0 {
				b.logDebug("ignoring unhandled capabilities", "entity", build.ID, "instances", build.Unknown)
			}

			before, _ := b.store.Get(build.ID)
			build.Patch.Availability = entity.Online
			after, err := b.store.Upsert(build.ID, build.Patch)
			if err != nil {
				b.logError("failed to register entity", err)
				continue
			}
			seen[build.ID] = true

			// A discovered entity whose component or modes changed needs its
			// config republished.
			if before.Discovered() && b.publisher.DiscoveryChanged(before, after) {
				b.logInfo("device definition changed, republishing discovery", "entity", build.ID)
				if err := b.publisher.Discovery(build.ID, true); err != nil {
					b.logError("failed to republish discovery", err)
				}
			}
			if err := b.publisher.All(build.ID); err != nil {
				b.logError("failed to publish entity", err)
			}
		}
	}

	for _, id := range b.store.DeviceIDs() {
		if seen[id] {
			continue
		}
		rec, err := b.store.Get(id)
		if err != nil || rec.Availability == entity.Offline {
			continue
		}
		b.logInfo("device missing from list, marking offline", "entity", id)
		if _, err := b.store.Upsert(id, entity.Patch{Availability: entity.Offline}); err != nil {
			b.logError("failed to mark entity offline", err)
			continue
		}
		if err := b.publisher.Availability(id); err != nil {
			b.logError("failed to publish availability", err)
		}
	}

	b.logDebug("device list refreshed", "devices", len(devices), "entities", len(seen))
	b.publishServiceState()
	return true
}

func (b *Bridge) lookup(id string) (entity.Record, bool) {
	rec, err := b.store.Get(id)
	return rec, err == nil
}

// refreshTarget is one vendor device and the entities it backs. The
// temperature and humidity sub-entities of a sensor share one query.
type refreshTarget struct {
	rawID string
	sku   string
	ids   []string
}

// refreshEntities queries the vendor state of ids, one request per vendor
// device, and applies each report.
func (b *Bridge) refreshEntities(ctx context.Context, ids []string) {
	var targets []*refreshTarget
	byRaw := make(map[string]*refreshTarget)

	for _, id := range ids {
		rec, err := b.store.Get(id)
		if err != nil || rec.Internal.RawID == "" {
			continue
		}
		t, ok := byRaw[rec.Internal.RawID]
		if !ok {
			t = &refreshTarget{rawID: rec.Internal.RawID, sku: rec.Internal.SKU}
			byRaw[t.rawID] = t
			targets = append(targets, t)
		}
		t.ids = append(t.ids, id)
	}

	for _, t := range targets {
		if ctx.Err() != nil {
			return
		}
		report := b.api.GetDeviceState(ctx, t.rawID, t.sku)
		if report.Empty() {
			b.logDebug("no state returned", "device", t.rawID, "sku", t.sku)
			continue
		}
		for _, id := range t.ids {
			b.applyReport(id, report)
		}
	}
}

// applyReport merges a vendor state report into the entity and publishes
// the result. A sensor sub-entity only takes its own measurement.
func (b *Bridge) applyReport(id string, report goveeapi.StateReport) {
	rec, err := b.store.Get(id)
	if err != nil {
		b.logDebug("report for unknown entity", "entity", id)
		return
	}

	rgbMax := MaxRGB
	if rec.Light != nil && rec.Light.RGBMax != nil {
		rgbMax = *rec.Light.RGBMax
	}
	attrs, unknown := DecodeCapabilities(report.Values, rgbMax)
	if len(unknown) > 0 {
		b.logDebug("ignoring unhandled state", "entity", id, "instances", unknown)
	}

	updated := report.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	patch := entity.Patch{
		Meta: &entity.MetaState{LastUpdate: entity.Ptr(updated.In(b.location).Format(lastCallLayout))},
	}
	if attrs.Online != nil {
		patch.Availability = entity.Offline
		if *attrs.Online {
			patch.Availability = entity.Online
		}
	}

	switch rec.Type() {
	case entity.ComponentLight:
		light := &entity.LightState{
			State:      attrs.State,
			Brightness: attrs.Brightness,
			ColorTemp:  attrs.ColorTemp,
		}
		if attrs.RGB != nil {
			light.RGBColor = attrs.RGB.Slice()
		}
		patch.Light = light

		sw := &entity.SwitchState{}
		changed := false
		for _, name := range ModeNames {
			if v := *attrs.mode(name); v != nil && hasModeComponent(rec, name) {
				*modeField(sw, name) = v
				changed = true
			}
		}
		if changed {
			patch.Switch = sw
		}

	case entity.ComponentSensor:
		switch {
		case strings.HasSuffix(id, suffixTemperature) && attrs.Temperature != nil:
			patch.Sensor = &entity.SensorState{Temperature: attrs.Temperature}
		case strings.HasSuffix(id, suffixHumidity) && attrs.Humidity != nil:
			patch.Sensor = &entity.SensorState{Humidity: attrs.Humidity}
		}
	}

	if _, err := b.store.Upsert(id, patch); err != nil {
		b.logError("failed to apply state", err)
		return
	}
	if patch.Availability != "" {
		if err := b.publisher.Availability(id); err != nil {
			b.logError("failed to publish availability", err)
		}
	}
	if err := b.publisher.State(id); err != nil {
		b.logError("failed to publish state", err)
	}
}

// rediscoverAll republishes discovery, availability and state for every
// entity, the service record included.
func (b *Bridge) rediscoverAll() {
	ids := b.store.IDs()
	for _, id := range ids {
		if err := b.publisher.Discovery(id, true); err != nil {
			b.logError("failed to republish discovery", err)
			continue
		}
		if err := errors.Join(b.publisher.Availability(id), b.publisher.State(id)); err != nil {
			b.logError("failed to republish state", err)
		}
	}
	b.logInfo("rediscovery published", "entities", len(ids))
}
