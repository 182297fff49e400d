package entity

import "slices"

// Component is a Home Assistant MQTT discovery definition. JSON tags use
// the names Home Assistant expects in the config payload; Type is routing
// information and is not serialised.
type Component struct {
	Type ComponentType `json:"-"`

	Name              string `json:"name,omitempty"`
	UniqueID          string `json:"uniq_id,omitempty"`
	Icon              string `json:"icon,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`
	StateClass        string `json:"state_class,omitempty"`
	EntityCategory    string `json:"entity_category,omitempty"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`

	StateTopic          string `json:"stat_t,omitempty"`
	ValueTemplate       string `json:"value_template,omitempty"`
	StateValueTemplate  string `json:"state_value_template,omitempty"`
	AvailabilityTopic   string `json:"avty_t,omitempty"`
	CommandTopic        string `json:"cmd_t,omitempty"`
	JSONAttributesTopic string `json:"json_attr_t,omitempty"`

	PayloadOn    string `json:"payload_on,omitempty"`
	PayloadOff   string `json:"payload_off,omitempty"`
	StateOn      string `json:"state_on,omitempty"`
	StateOff     string `json:"state_off,omitempty"`
	PayloadPress string `json:"payload_press,omitempty"`

	SupportedColorModes []string `json:"supported_color_modes,omitempty"`

	BrightnessScale           int    `json:"brightness_scale,omitempty"`
	BrightnessStateTopic      string `json:"brightness_state_topic,omitempty"`
	BrightnessValueTemplate   string `json:"brightness_value_template,omitempty"`
	BrightnessCommandTopic    string `json:"brightness_command_topic,omitempty"`
	BrightnessCommandTemplate string `json:"brightness_command_template,omitempty"`

	RGBStateTopic      string `json:"rgb_state_topic,omitempty"`
	RGBValueTemplate   string `json:"rgb_value_template,omitempty"`
	RGBCommandTopic    string `json:"rgb_command_topic,omitempty"`
	RGBCommandTemplate string `json:"rgb_command_template,omitempty"`

	ColorTempKelvin          bool   `json:"color_temp_kelvin,omitempty"`
	ColorTempStateTopic      string `json:"color_temp_state_topic,omitempty"`
	ColorTempValueTemplate   string `json:"color_temp_value_template,omitempty"`
	ColorTempCommandTopic    string `json:"color_temp_command_topic,omitempty"`
	ColorTempCommandTemplate string `json:"color_temp_command_template,omitempty"`
	MinKelvin                int    `json:"min_kelvin,omitempty"`
	MaxKelvin                int    `json:"max_kelvin,omitempty"`

	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Step *float64 `json:"step,omitempty"`
	Mode string   `json:"mode,omitempty"`

	Device *DeviceBlock `json:"device,omitempty"`
}

// DeviceBlock groups entities under one device in Home Assistant.
type DeviceBlock struct {
	Name         string   `json:"name,omitempty"`
	Identifiers  []string `json:"identifiers,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

// HasColorMode reports whether mode is in SupportedColorModes.
func (c *Component) HasColorMode(mode string) bool {
	return c != nil && slices.Contains(c.SupportedColorModes, mode)
}

// Clone returns a deep copy.
func (c *Component) Clone() *Component {
	if c == nil {
		return nil
	}
	cpy := *c
	cpy.SupportedColorModes = slices.Clone(c.SupportedColorModes)
	cpy.Min = clonePtr(c.Min)
	cpy.Max = clonePtr(c.Max)
	cpy.Step = clonePtr(c.Step)
	if c.Device != nil {
		d := *c.Device
		d.Identifiers = slices.Clone(c.Device.Identifiers)
		cpy.Device = &d
	}
	return &cpy
}

// merge folds src into c. Set fields of src win; unset fields never clear
// anything, except SupportedColorModes which src replaces when non-nil.
// Brightness fields are dropped whenever the resulting mode set no longer
// lists brightness.
func (c *Component) merge(src *Component) {
	mergeString(&c.Name, src.Name)
	mergeString(&c.UniqueID, src.UniqueID)
	mergeString(&c.Icon, src.Icon)
	mergeString(&c.DeviceClass, src.DeviceClass)
	mergeString(&c.StateClass, src.StateClass)
	mergeString(&c.EntityCategory, src.EntityCategory)
	mergeString(&c.UnitOfMeasurement, src.UnitOfMeasurement)

	mergeString(&c.StateTopic, src.StateTopic)
	mergeString(&c.ValueTemplate, src.ValueTemplate)
	mergeString(&c.StateValueTemplate, src.StateValueTemplate)
	mergeString(&c.AvailabilityTopic, src.AvailabilityTopic)
	mergeString(&c.CommandTopic, src.CommandTopic)
	mergeString(&c.JSONAttributesTopic, src.JSONAttributesTopic)

	mergeString(&c.PayloadOn, src.PayloadOn)
	mergeString(&c.PayloadOff, src.PayloadOff)
	mergeString(&c.StateOn, src.StateOn)
	mergeString(&c.StateOff, src.StateOff)
	mergeString(&c.PayloadPress, src.PayloadPress)

	if src.SupportedColorModes != nil {
		c.SupportedColorModes = slices.Clone(src.SupportedColorModes)
	}

	mergeInt(&c.BrightnessScale, src.BrightnessScale)
	mergeString(&c.BrightnessStateTopic, src.BrightnessStateTopic)
	mergeString(&c.BrightnessValueTemplate, src.BrightnessValueTemplate)
	mergeString(&c.BrightnessCommandTopic, src.BrightnessCommandTopic)
	mergeString(&c.BrightnessCommandTemplate, src.BrightnessCommandTemplate)

	mergeString(&c.RGBStateTopic, src.RGBStateTopic)
	mergeString(&c.RGBValueTemplate, src.RGBValueTemplate)
	mergeString(&c.RGBCommandTopic, src.RGBCommandTopic)
	mergeString(&c.RGBCommandTemplate, src.RGBCommandTemplate)

	if src.ColorTempKelvin {
		c.ColorTempKelvin = true
	}
	mergeString(&c.ColorTempStateTopic, src.ColorTempStateTopic)
	mergeString(&c.ColorTempValueTemplate, src.ColorTempValueTemplate)
	mergeString(&c.ColorTempCommandTopic, src.ColorTempCommandTopic)
	mergeString(&c.ColorTempCommandTemplate, src.ColorTempCommandTemplate)
	mergeInt(&c.MinKelvin, src.MinKelvin)
	mergeInt(&c.MaxKelvin, src.MaxKelvin)

	mergePtr(&c.Min, src.Min)
	mergePtr(&c.Max, src.Max)
	mergePtr(&c.Step, src.Step)
	mergeString(&c.Mode, src.Mode)

	if src.Device != nil {
		if c.Device == nil {
			c.Device = &DeviceBlock{}
		}
		d := c.Device
		mergeString(&d.Name, src.Device.Name)
		mergeString(&d.Manufacturer, src.Device.Manufacturer)
		mergeString(&d.Model, src.Device.Model)
		mergeString(&d.SWVersion, src.Device.SWVersion)
		mergeString(&d.ViaDevice, src.Device.ViaDevice)
		if src.Device.Identifiers != nil {
			d.Identifiers = slices.Clone(src.Device.Identifiers)
		}
	}

	if c.Type == ComponentLight && !c.HasColorMode(ColorModeBrightness) {
		c.clearBrightness()
	}
}

func (c *Component) clearBrightness() {
	c.BrightnessScale = 0
	c.BrightnessStateTopic = ""
	c.BrightnessValueTemplate = ""
	c.BrightnessCommandTopic = ""
	c.BrightnessCommandTemplate = ""
}
