package entity

// ComponentType is the Home Assistant MQTT platform an entity is published as.
type ComponentType string

// Component types.
const (
	ComponentLight        ComponentType = "light"
	ComponentSensor       ComponentType = "sensor"
	ComponentSwitch       ComponentType = "switch"
	ComponentBinarySensor ComponentType = "binary_sensor"
	ComponentNumber       ComponentType = "number"
	ComponentButton       ComponentType = "button"
)

// ServiceID is the reserved id of the bridge's own service record.
const ServiceID = "service"

// Availability payloads.
const (
	Online  = "online"
	Offline = "offline"
)

// Switch and light state payloads.
const (
	StateOn  = "ON"
	StateOff = "OFF"
)

// Color modes reported in a light's supported_color_modes.
const (
	ColorModeOnOff      = "onoff"
	ColorModeBrightness = "brightness"
	ColorModeRGB        = "rgb"
	ColorModeColorTemp  = "color_temp"
)

// Record is everything the bridge knows about one entity.
type Record struct {
	ID       string
	Internal Internal

	// Component is the primary discovery definition. Nil until classified.
	Component *Component

	// Modes holds secondary discovery definitions keyed by mode name,
	// e.g. the gradient/nightlight/dreamview switches of a light.
	Modes map[string]*Component

	// Availability is Online, Offline or empty when never reported.
	Availability string

	Light   *LightState
	Switch  *SwitchState
	Sensor  *SensorState
	Meta    *MetaState
	Service *ServiceState
}

// Internal links an entity to its vendor device.
type Internal struct {
	RawID      string
	SKU        string
	Discovered bool
}

// Discovered reports whether the discovery payload has been published.
func (r Record) Discovered() bool {
	return r.Internal.Discovered
}

// Type returns the primary component type, or "" when unclassified.
func (r Record) Type() ComponentType {
	if r.Component == nil {
		return ""
	}
	return r.Component.Type
}

// LightState is the light state block. Nil fields are unknown.
type LightState struct {
	State      *string `json:"state,omitempty"`
	Brightness *int    `json:"brightness,omitempty"`
	RGBColor   []int   `json:"rgb_color,omitempty"`
	RGBMax     *int    `json:"rgb_max,omitempty"`
	ColorTemp  *int    `json:"color_temp,omitempty"`
}

// SwitchState holds the mode toggles of a light, each StateOn or StateOff.
type SwitchState struct {
	Gradient   *string `json:"gradient,omitempty"`
	Nightlight *string `json:"nightlight,omitempty"`
	Dreamview  *string `json:"dreamview,omitempty"`
}

// SensorState is the sensor state block. A sensor sub-entity fills one field.
type SensorState struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
}

// MetaState carries bookkeeping that is injected into published state.
type MetaState struct {
	LastUpdate *string `json:"last_update,omitempty"`
}

// ServiceState holds the operational counters of the service record.
type ServiceState struct {
	APICalls          *int    `json:"api_calls,omitempty"`
	LastAPICall       *string `json:"last_api_call,omitempty"`
	RateLimited       *bool   `json:"rate_limited,omitempty"`
	DeviceRefresh     *int    `json:"device_refresh,omitempty"`
	DeviceListRefresh *int    `json:"device_list_refresh,omitempty"`
	SnapshotRefresh   *int    `json:"snapshot_refresh,omitempty"`
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
