package govee

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/nerrad567/govee2mqtt/internal/entity"
	goveeapi "github.com/nerrad567/govee2mqtt/internal/govee"
)

// Vendor capability types.
const (
	TypeOnOff        = "devices.capabilities.on_off"
	TypeRange        = "devices.capabilities.range"
	TypeColorSetting = "devices.capabilities.color_setting"
	TypeToggle       = "devices.capabilities.toggle"
	TypeProperty     = "devices.capabilities.property"
	TypeOnline       = "devices.capabilities.online"
)

// Vendor capability instances the bridge understands.
const (
	InstanceOnline            = "online"
	InstancePowerSwitch       = "powerSwitch"
	InstanceBrightness        = "brightness"
	InstanceColorRGB          = "colorRgb"
	InstanceColorTemperatureK = "colorTemperatureK"
	InstanceGradientToggle    = "gradientToggle"
	InstanceNightlightToggle  = "nightlightToggle"
	InstanceDreamViewToggle   = "dreamViewToggle"
	InstanceSensorTemperature = "sensorTemperature"
	InstanceSensorHumidity    = "sensorHumidity"
)

// MQTT attribute keys.
const (
	AttrState       = "state"
	AttrBrightness  = "brightness"
	AttrRGB         = "rgb"
	AttrColorTemp   = "color_temp"
	AttrGradient    = "gradient"
	AttrNightlight  = "nightlight"
	AttrDreamview   = "dreamview"
	AttrTemperature = "temperature"
	AttrHumidity    = "humidity"
	AttrOnline      = "online"
)

// MaxRGB is the largest packed colour value, and the rgb_max a light gets
// when the vendor does not report one.
const MaxRGB = 0xFFFFFF

// mapping pairs an MQTT attribute with its vendor capability.
type mapping struct {
	attr     string
	instance string
	capType  string
	writable bool
}

// mappings is ordered; commands are built and sent in this order.
var mappings = []mapping{
	{AttrState, InstancePowerSwitch, TypeOnOff, true},
	{AttrBrightness, InstanceBrightness, TypeRange, true},
	{AttrRGB, InstanceColorRGB, TypeColorSetting, true},
	{AttrColorTemp, InstanceColorTemperatureK, TypeColorSetting, true},
	{AttrGradient, InstanceGradientToggle, TypeToggle, true},
	{AttrNightlight, InstanceNightlightToggle, TypeToggle, true},
	{AttrDreamview, InstanceDreamViewToggle, TypeToggle, true},
	{AttrTemperature, InstanceSensorTemperature, TypeProperty, false},
	{AttrHumidity, InstanceSensorHumidity, TypeProperty, false},
	{AttrOnline, InstanceOnline, TypeOnline, false},
}

// ModeNames lists the secondary toggle modes of a light, in command order.
var ModeNames = []string{AttrGradient, AttrNightlight, AttrDreamview}

// AttributeFor returns the MQTT attribute for a vendor capability instance.
func AttributeFor(instance string) (string, bool) {
	for _, m := range mappings {
		if m.instance == instance {
			return m.attr, true
		}
	}
	return "", false
}

// CapabilityFor returns the vendor instance and capability type that set
// an MQTT attribute. Read-only attributes are not returned.
func CapabilityFor(attr string) (instance, capType string, ok bool) {
	for _, m := range mappings {
		if m.attr == attr && m.writable {
			return m.instance, m.capType, true
		}
	}
	return "", "", false
}

// =============================================================================
// Colour packing
// =============================================================================

// RGB is an 8-bit per channel colour. It marshals as [r, g, b], the form
// Home Assistant's rgb templates use, and also unmarshals {"r","g","b"}.
type RGB struct {
	R, G, B int
}

// RGBToNumber packs a colour into 0xRRGGBB.
func RGBToNumber(c RGB) int {
	return (c.R&0xFF)<<16 | (c.G&0xFF)<<8 | c.B&0xFF
}

// NumberToRGB unpacks a vendor colour value. rangeMax is the capability's
// range maximum; values from a narrower range are scaled up to 24 bits.
func NumberToRGB(n, rangeMax int) RGB {
	if rangeMax <= 0 {
		rangeMax = MaxRGB
	}
	n = max(0, min(n, rangeMax))
	if rangeMax != MaxRGB {
		n = int(math.Round(float64(n) * MaxRGB / float64(rangeMax)))
	}
	return RGB{R: n >> 16 & 0xFF, G: n >> 8 & 0xFF, B: n & 0xFF}
}

// Valid reports whether every channel is within 0..255.
func (c RGB) Valid() bool {
	for _, v := range c.Slice() {
		if v < 0 || v > 0xFF {
			return false
		}
	}
	return true
}

// Slice returns the colour as [r, g, b].
func (c RGB) Slice() []int {
	return []int{c.R, c.G, c.B}
}

// MarshalJSON encodes the colour as [r, g, b].
func (c RGB) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Slice())
}

// UnmarshalJSON accepts [r, g, b] or {"r": .., "g": .., "b": ..}.
func (c *RGB) UnmarshalJSON(data []byte) error {
	var list []int
	if err := json.Unmarshal(data, &list); err == nil {
		if len(list) != 3 {
			return fmt.Errorf("rgb needs 3 components, got %d", len(list))
		}
		*c = RGB{R: list[0], G: list[1], B: list[2]}
		return nil
	}

	var obj struct {
		R int `json:"r"`
		G int `json:"g"`
		B int `json:"b"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("rgb must be [r,g,b] or {r,g,b}: %w", err)
	}
	*c = RGB{R: obj.R, G: obj.G, B: obj.B}
	return nil
}

// =============================================================================
// Attributes
// =============================================================================

// Attributes is the typed form of a light's MQTT attributes. Nil fields
// are absent.
type Attributes struct {
	State      *string `json:"state,omitempty"`
	Brightness *int    `json:"brightness,omitempty"`
	RGB        *RGB    `json:"rgb,omitempty"`
	ColorTemp  *int    `json:"color_temp,omitempty"`
	Gradient   *string `json:"gradient,omitempty"`
	Nightlight *string `json:"nightlight,omitempty"`
	Dreamview  *string `json:"dreamview,omitempty"`

	Temperature *float64 `json:"-"`
	Humidity    *float64 `json:"-"`
	Online      *bool    `json:"-"`
}

// mode returns the field of a toggle mode.
func (a *Attributes) mode(name string) **string {
	switch name {
	case AttrGradient:
		return &a.Gradient
	case AttrNightlight:
		return &a.Nightlight
	case AttrDreamview:
		return &a.Dreamview
	}
	return nil
}

// EncodeCommands converts writable attributes to vendor commands, in
// mapping order. No batching policy is applied.
func EncodeCommands(a Attributes) []goveeapi.Command {
	var cmds []goveeapi.Command
	add := func(attr string, value any) {
		instance, capType, _ := CapabilityFor(attr)
		cmds = append(cmds, goveeapi.Command{Type: capType, Instance: instance, Value: value})
	}

	if a.State != nil {
		add(AttrState, onOffValue(*a.State))
	}
	if a.Brightness != nil {
		add(AttrBrightness, *a.Brightness)
	}
	if a.RGB != nil {
		add(AttrRGB, RGBToNumber(*a.RGB))
	}
	if a.ColorTemp != nil {
		add(AttrColorTemp, *a.ColorTemp)
	}
	for _, name := range ModeNames {
		if v := *a.mode(name); v != nil {
			add(name, onOffValue(*v))
		}
	}
	return cmds
}

// DecodeCapabilities converts vendor capability values to attributes.
// rgbMax scales colorRgb; instances without a mapping are returned in
// unknown.
func DecodeCapabilities(values map[string]any, rgbMax int) (a Attributes, unknown []string) {
	for instance, raw := range values {
		attr, ok := AttributeFor(instance)
		if !ok {
			unknown = append(unknown, instance)
			continue
		}

		switch attr {
		case AttrState:
			if n, ok := toInt(raw); ok {
				a.State = entity.Ptr(onOffState(n))
			}
		case AttrBrightness:
			if n, ok := toInt(raw); ok {
				a.Brightness = entity.Ptr(n)
			}
		case AttrRGB:
			if n, ok := toInt(raw); ok {
				a.RGB = entity.Ptr(NumberToRGB(n, rgbMax))
			}
		case AttrColorTemp:
			if n, ok := toInt(raw); ok {
				a.ColorTemp = entity.Ptr(n)
			}
		case AttrGradient, AttrNightlight, AttrDreamview:
			if n, ok := toInt(raw); ok {
				*a.mode(attr) = entity.Ptr(onOffState(n))
			}
		case AttrTemperature:
			if f, ok := toFloat(raw); ok {
				a.Temperature = entity.Ptr(f)
			}
		case AttrHumidity:
			if f, ok := toFloat(raw); ok {
				a.Humidity = entity.Ptr(f)
			}
		case AttrOnline:
			if b, ok := toBool(raw); ok {
				a.Online = entity.Ptr(b)
			}
		}
	}
	return a, unknown
}

func onOffValue(state string) int {
	if strings.EqualFold(state, entity.StateOn) {
		return 1
	}
	return 0
}

func onOffState(n int) string {
	if n == 1 {
		return entity.StateOn
	}
	return entity.StateOff
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(math.Round(n)), true
	case json.Number:
		f, err := n.Float64()
		return int(math.Round(f)), err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		return strings.EqualFold(b, "true"), true
	case float64:
		return b != 0, true
	case int:
		return b != 0, true
	}
	return false, false
}
