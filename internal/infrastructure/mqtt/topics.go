package mqtt

import (
	"fmt"
	"strings"
)

// Topic segments shared by the bridge and Home Assistant.
const (
	// SegmentDevices holds per-entity state and availability.
	SegmentDevices = "devices"

	// SegmentService holds service state and service commands.
	SegmentService = "service"

	// SegmentStatus holds the bridge's own online/offline status.
	SegmentStatus = "status"

	// SuffixSet terminates every command topic.
	SuffixSet = "set"

	// PayloadOnline and PayloadOffline are the availability payloads.
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Topics builds govee2mqtt topic strings from the configured prefixes.
//
//	topics := mqtt.NewTopics("govee2mqtt", "homeassistant")
//	topics.DeviceState("AABBCCDDEEFF0011", "light")
//	// Returns: "govee2mqtt/devices/govee2mqtt_AABBCCDDEEFF0011/light"
type Topics struct {
	// Prefix is the service slug that roots every bridge topic.
	Prefix string

	// DiscoveryPrefix is the Home Assistant discovery root.
	DiscoveryPrefix string
}

// NewTopics creates a topic builder.
func NewTopics(prefix, discoveryPrefix string) Topics {
	return Topics{Prefix: prefix, DiscoveryPrefix: discoveryPrefix}
}

// =============================================================================
// Slugs
// =============================================================================

// DeviceSlug returns the unique slug of an entity.
//
// Example: govee2mqtt_AABBCCDDEEFF0011
func (t Topics) DeviceSlug(entityID string) string {
	return t.Prefix + "_" + entityID
}

// ModeSlug returns the unique slug of a secondary mode entity.
//
// Example: govee2mqtt_AABBCCDDEEFF0011_gradient
func (t Topics) ModeSlug(entityID, mode string) string {
	return t.DeviceSlug(entityID) + "_" + mode
}

// EntityIDFromSlug is the inverse of DeviceSlug.
func (t Topics) EntityIDFromSlug(slug string) (string, bool) {
	id, ok := strings.CutPrefix(slug, t.Prefix+"_")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// =============================================================================
// Service Topics
// =============================================================================

// ServiceStatus is the bridge status topic, also used as the LWT topic.
//
// Example: govee2mqtt/status/status
func (t Topics) ServiceStatus() string {
	return fmt.Sprintf("%s/%s/%s", t.Prefix, SegmentStatus, SegmentStatus)
}

// ServiceState returns the state topic of one service key.
//
// Example: govee2mqtt/service/api_calls
func (t Topics) ServiceState(key string) string {
	return fmt.Sprintf("%s/%s/%s", t.Prefix, SegmentService, key)
}

// ServiceAttributes returns the JSON attributes topic of one service key.
//
// Example: govee2mqtt/service/api_calls/attributes
func (t Topics) ServiceAttributes(key string) string {
	return t.ServiceState(key) + "/attributes"
}

// ServiceCommand returns the command topic of one service key.
//
// Example: govee2mqtt/service/device_refresh/set
func (t Topics) ServiceCommand(key string) string {
	return t.ServiceState(key) + "/" + SuffixSet
}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceState returns the JSON state topic of an entity for one category
// (light, switch or sensor).
//
// Example: govee2mqtt/devices/govee2mqtt_AABBCCDDEEFF0011/light
func (t Topics) DeviceState(entityID, category string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.Prefix, SegmentDevices, t.DeviceSlug(entityID), category)
}

// DeviceAvailability returns the availability topic of an entity.
//
// Example: govee2mqtt/devices/govee2mqtt_AABBCCDDEEFF0011/availability
func (t Topics) DeviceAvailability(entityID string) string {
	return t.DeviceState(entityID, "availability")
}

// DeviceCommand returns the command topic of an entity's main component.
//
// Example: govee2mqtt/light/govee2mqtt_AABBCCDDEEFF0011/set
func (t Topics) DeviceCommand(entityID, componentType string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.Prefix, componentType, t.DeviceSlug(entityID), SuffixSet)
}

// ModeCommand returns the command topic of a secondary mode switch.
//
// Example: govee2mqtt/switch/govee2mqtt_AABBCCDDEEFF0011/gradient/set
func (t Topics) ModeCommand(entityID, mode string) string {
	return fmt.Sprintf("%s/switch/%s/%s/%s", t.Prefix, t.DeviceSlug(entityID), mode, SuffixSet)
}

// =============================================================================
// Home Assistant Topics
// =============================================================================

// Discovery returns the retained discovery config topic.
//
// Example: homeassistant/light/govee2mqtt_AABBCCDDEEFF0011/config
func (t Topics) Discovery(component, slug string) string {
	return fmt.Sprintf("%s/%s/%s/config", t.DiscoveryPrefix, component, slug)
}

// HomeAssistantStatus is where Home Assistant announces its own restarts.
//
// Example: homeassistant/status
func (t Topics) HomeAssistantStatus() string {
	return t.DiscoveryPrefix + "/" + SegmentStatus
}

// =============================================================================
// Subscription Patterns
// =============================================================================

// CommandSubscriptions returns the wildcard patterns covering every
// command topic the bridge handles.
func (t Topics) CommandSubscriptions() []string {
	return []string{
		fmt.Sprintf("%s/light/+/%s", t.Prefix, SuffixSet),
		fmt.Sprintf("%s/switch/+/+/%s", t.Prefix, SuffixSet),
		fmt.Sprintf("%s/%s/+/%s", t.Prefix, SegmentService, SuffixSet),
	}
}

// =============================================================================
// Parsing
// =============================================================================

// CommandKind identifies which command tree a topic belongs to.
type CommandKind string

// Command kinds.
const (
	CommandDevice  CommandKind = "device"
	CommandMode    CommandKind = "mode"
	CommandService CommandKind = "service"
)

// Command is a parsed command topic.
type Command struct {
	Kind CommandKind

	// EntityID is set for device and mode commands.
	EntityID string

	// ComponentType is the component segment of a device command (light).
	ComponentType string

	// Mode is set for mode commands (gradient, nightlight, dreamview).
	Mode string

	// Key is set for service commands (device_refresh, refresh_device_list, ...).
	Key string
}

// ParseCommand splits an inbound command topic into its parts.
func (t Topics) ParseCommand(topic string) (Command, error) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/")
	if !ok {
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	parts := strings.Split(rest, "/")
	if len(parts) < 3 || parts[len(parts)-1] != SuffixSet {
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	switch {
	case parts[0] == SegmentService && len(parts) == 3:
		return Command{Kind: CommandService, Key: parts[1]}, nil

	case parts[0] == "switch" && len(parts) == 4:
		id, ok := t.EntityIDFromSlug(parts[1])
		if !ok {
			break
		}
		return Command{Kind: CommandMode, EntityID: id, ComponentType: "switch", Mode: parts[2]}, nil

	case len(parts) == 3 && parts[0] != SegmentDevices && parts[0] != SegmentStatus:
		id, ok := t.EntityIDFromSlug(parts[1])
		if !ok {
			break
		}
		return Command{Kind: CommandDevice, EntityID: id, ComponentType: parts[0]}, nil
	}

	return Command{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
}
