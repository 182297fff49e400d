package govee

import (
	"fmt"
	"slices"

	"github.com/nerrad567/govee2mqtt/internal/entity"
	goveeapi "github.com/nerrad567/govee2mqtt/internal/govee"
	"github.com/nerrad567/govee2mqtt/internal/infrastructure/mqtt"
)

// Defaults applied when the vendor omits a capability range.
const (
	defaultBrightnessScale = 100
	defaultMinKelvin       = 2000
	defaultMaxKelvin       = 9000
)

const manufacturer = "Govee"

// Discovery templates.
const (
	tplLightState      = "{{ value_json.state }}"
	tplBrightnessValue = "{{ value_json.brightness }}"
	tplBrightnessCmd   = `{"brightness": {{ value }}}`
	tplRGBValue        = "{{ value_json.rgb_color | join(',') }}"
	tplRGBCmd          = `{"rgb": [{{ value }}]}`
	tplColorTempValue  = "{{ value_json.color_temp }}"
	tplColorTempCmd    = `{"color_temp": {{ value }}}`
	tplTemperature     = "{{ value_json.temperature | float }}"
	tplHumidity        = "{{ value_json.humidity | float }}"
)

// Build is one entity produced from a vendor device.
type Build struct {
	ID    string
	Patch entity.Patch

	// Unknown lists capability instances the builder ignored.
	Unknown []string
}

// Builder turns vendor device descriptors into entity patches carrying
// discovery definitions and initial state.
type Builder struct {
	topics mqtt.Topics
}

// NewBuilder creates a builder for the given topic layout.
func NewBuilder(topics mqtt.Topics) *Builder {
	return &Builder{topics: topics}
}

// Build classifies d and builds its entities. existing looks up current
// records so seeded state never overwrites values already known. It returns
// nil for unsupported devices.
func (b *Builder) Build(d goveeapi.Device, existing func(id string) (entity.Record, bool)) []Build {
	if existing == nil {
		existing = func(string) (entity.Record, bool) { return entity.Record{}, false }
	}

	switch Classify(d.SKU) {
	case ClassLight:
		id := EntityID(d.ID)
		rec, _ := existing(id)
		return []Build{b.BuildLight(d, rec)}
	case ClassSensor:
		return b.BuildSensors(d)
	}
	return nil
}

// BuildLight builds the light entity of d. rec is the current record, or
// the zero Record for a new entity.
func (b *Builder) BuildLight(d goveeapi.Device, rec entity.Record) Build {
	id := EntityID(d.ID)
	stateTopic := b.topics.DeviceState(id, string(entity.ComponentLight))
	commandTopic := b.topics.DeviceCommand(id, string(entity.ComponentLight))
	device := b.deviceBlock(id, d)

	c := &entity.Component{
		Type:               entity.ComponentLight,
		Name:               d.Name,
		UniqueID:           b.topics.DeviceSlug(id),
		StateTopic:         stateTopic,
		StateValueTemplate: tplLightState,
		AvailabilityTopic:  b.topics.DeviceAvailability(id),
		CommandTopic:       commandTopic,
		PayloadOn:          entity.StateOn,
		PayloadOff:         entity.StateOff,
		Device:             device,
	}

	light := &entity.LightState{}
	var sw *entity.SwitchState
	modes := make(map[string]*entity.Component)
	colorModes := []string{entity.ColorModeOnOff}
	var unknown []string

	for _, capability := range d.Capabilities {
		switch capability.Instance {
		case InstanceBrightness:
			colorModes = append(colorModes, entity.ColorModeBrightness)
			c.BrightnessScale = capability.RangeMax(defaultBrightnessScale)
			c.BrightnessStateTopic = stateTopic
			c.BrightnessValueTemplate = tplBrightnessValue
			c.BrightnessCommandTopic = commandTopic
			c.BrightnessCommandTemplate = tplBrightnessCmd
			if rec.Light == nil || rec.Light.Brightness == nil {
				light.Brightness = entity.Ptr(0)
			}

		case InstancePowerSwitch:
			colorModes = append(colorModes, entity.ColorModeOnOff)

		case InstanceColorRGB:
			colorModes = append(colorModes, entity.ColorModeRGB)
			c.RGBStateTopic = stateTopic
			c.RGBValueTemplate = tplRGBValue
			c.RGBCommandTopic = commandTopic
			c.RGBCommandTemplate = tplRGBCmd
			light.RGBMax = entity.Ptr(capability.RangeMax(MaxRGB))

		case InstanceColorTemperatureK:
			colorModes = append(colorModes, entity.ColorModeColorTemp)
			c.ColorTempKelvin = true
			c.ColorTempStateTopic = stateTopic
			c.ColorTempValueTemplate = tplColorTempValue
			c.ColorTempCommandTopic = commandTopic
			c.ColorTempCommandTemplate = tplColorTempCmd
			c.MinKelvin = capability.RangeMin(defaultMinKelvin)
			c.MaxKelvin = capability.RangeMax(defaultMaxKelvin)
			if rec.Light == nil || rec.Light.ColorTemp == nil {
				light.ColorTemp = entity.Ptr(0)
			}

		case InstanceGradientToggle, InstanceNightlightToggle, InstanceDreamViewToggle:
			mode, _ := AttributeFor(capability.Instance)
			modes[mode] = b.modeComponent(id, mode, d, device)
			if sw == nil {
				sw = &entity.SwitchState{}
			}
			if !hasMode(rec, mode) {
				seedMode(sw, mode)
			}

		default:
			unknown = append(unknown, capability.Instance)
		}
	}

	c.SupportedColorModes = exclusiveColorModes(colorModes)
	if !slices.Contains(c.SupportedColorModes, entity.ColorModeBrightness) {
		c.BrightnessScale = 0
		c.BrightnessStateTopic = ""
		c.BrightnessValueTemplate = ""
		c.BrightnessCommandTopic = ""
		c.BrightnessCommandTemplate = ""
	}

	patch := entity.Patch{
		RawID:     d.ID,
		SKU:       d.SKU,
		Component: c,
		Light:     light,
		Switch:    sw,
	}
	if len(modes) > 0 {
		patch.Modes = modes
	}
	return Build{ID: id, Patch: patch, Unknown: unknown}
}

// exclusiveColorModes deduplicates modes and applies Home Assistant's
// exclusivity: rgb or color_temp imply brightness and on/off, and
// brightness implies on/off.
func exclusiveColorModes(modes []string) []string {
	var out []string
	for _, m := range modes {
		if !slices.Contains(out, m) {
			out = append(out, m)
		}
	}

	if slices.Contains(out, entity.ColorModeRGB) || slices.Contains(out, entity.ColorModeColorTemp) {
		out = slices.DeleteFunc(out, func(m string) bool {
			return m == entity.ColorModeOnOff || m == entity.ColorModeBrightness
		})
	} else if slices.Contains(out, entity.ColorModeBrightness) {
		out = slices.DeleteFunc(out, func(m string) bool { return m == entity.ColorModeOnOff })
	}
	return out
}

var modeIcons = map[string]string{
	AttrGradient:   "mdi:gradient-vertical",
	AttrNightlight: "mdi:weather-night",
	AttrDreamview:  "mdi:creation",
}

// skuH6042 lays its gradient out horizontally.
const skuH6042 = "H6042"

func (b *Builder) modeComponent(id, mode string, d goveeapi.Device, device *entity.DeviceBlock) *entity.Component {
	icon := modeIcons[mode]
	if mode == AttrGradient && d.SKU == skuH6042 {
		icon = "mdi:gradient-horizontal"
	}

	return &entity.Component{
		Type:              entity.ComponentSwitch,
		Name:              fmt.Sprintf("%s %s", d.Name, modeTitle(mode)),
		UniqueID:          b.topics.ModeSlug(id, mode),
		Icon:              icon,
		StateTopic:        b.topics.DeviceState(id, string(entity.ComponentSwitch)),
		ValueTemplate:     fmt.Sprintf("{{ value_json.%s }}", mode),
		AvailabilityTopic: b.topics.DeviceAvailability(id),
		CommandTopic:      b.topics.ModeCommand(id, mode),
		PayloadOn:         entity.StateOn,
		PayloadOff:        entity.StateOff,
		StateOn:           entity.StateOn,
		StateOff:          entity.StateOff,
		Device:            device,
	}
}

func modeTitle(mode string) string {
	switch mode {
	case AttrGradient:
		return "Gradient"
	case AttrNightlight:
		return "Nightlight"
	case AttrDreamview:
		return "Dreamview"
	}
	return mode
}

func hasMode(rec entity.Record, mode string) bool {
	return rec.Switch != nil && *modeField(rec.Switch, mode) != nil
}

func seedMode(sw *entity.SwitchState, mode string) {
	*modeField(sw, mode) = entity.Ptr(entity.StateOff)
}

// BuildSensors builds one sub-entity per measured quantity of d. The
// sub-entities share d's device block.
func (b *Builder) BuildSensors(d goveeapi.Device) []Build {
	parent := EntityID(d.ID)
	device := b.deviceBlock(parent, d)

	var builds []Build
	var unknown []string
	for _, capability := range d.Capabilities {
		var id string
		var c *entity.Component

		switch capability.Instance {
		case InstanceSensorTemperature:
			id = TemperatureID(parent)
			c = &entity.Component{
				Name:              "Temperature",
				DeviceClass:       "temperature",
				ValueTemplate:     tplTemperature,
				UnitOfMeasurement: "°F",
				Icon:              "mdi:thermometer",
			}
		case InstanceSensorHumidity:
			id = HumidityID(parent)
			c = &entity.Component{
				Name:              "Humidity",
				DeviceClass:       "humidity",
				ValueTemplate:     tplHumidity,
				UnitOfMeasurement: "%",
				Icon:              "mdi:water-percent",
			}
		default:
			unknown = append(unknown, capability.Instance)
			continue
		}

		c.Type = entity.ComponentSensor
		c.UniqueID = b.topics.DeviceSlug(id)
		c.StateTopic = b.topics.DeviceState(id, string(entity.ComponentSensor))
		c.AvailabilityTopic = b.topics.DeviceAvailability(id)
		c.StateClass = "measurement"
		c.Device = device

		builds = append(builds, Build{
			ID: id,
			Patch: entity.Patch{
				RawID:     d.ID,
				SKU:       d.SKU,
				Component: c,
				Sensor:    &entity.SensorState{},
			},
		})
	}

	if len(builds) > 0 {
		builds[0].Unknown = unknown
	}
	return builds
}

func (b *Builder) deviceBlock(id string, d goveeapi.Device) *entity.DeviceBlock {
	return &entity.DeviceBlock{
		Name:         d.Name,
		Identifiers:  []string{b.topics.DeviceSlug(id)},
		Manufacturer: manufacturer,
		Model:        d.SKU,
		ViaDevice:    b.topics.DeviceSlug(entity.ServiceID),
	}
}
