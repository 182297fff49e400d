package entity

import "slices"

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

// mergePtr replaces *dst with a fresh copy of *src. Stored pointers are
// never written through, so records can share them with their clones.
func mergePtr[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (l *LightState) merge(src *LightState) {
	mergePtr(&l.State, src.State)
	mergePtr(&l.Brightness, src.Brightness)
	if src.RGBColor != nil {
		l.RGBColor = slices.Clone(src.RGBColor)
	}
	mergePtr(&l.RGBMax, src.RGBMax)
	mergePtr(&l.ColorTemp, src.ColorTemp)
}

func (s *SwitchState) merge(src *SwitchState) {
	mergePtr(&s.Gradient, src.Gradient)
	mergePtr(&s.Nightlight, src.Nightlight)
	mergePtr(&s.Dreamview, src.Dreamview)
}

func (s *SensorState) merge(src *SensorState) {
	mergePtr(&s.Temperature, src.Temperature)
	mergePtr(&s.Humidity, src.Humidity)
}

func (m *MetaState) merge(src *MetaState) {
	mergePtr(&m.LastUpdate, src.LastUpdate)
}

func (s *ServiceState) merge(src *ServiceState) {
	mergePtr(&s.APICalls, src.APICalls)
	mergePtr(&s.LastAPICall, src.LastAPICall)
	mergePtr(&s.RateLimited, src.RateLimited)
	mergePtr(&s.DeviceRefresh, src.DeviceRefresh)
	mergePtr(&s.DeviceListRefresh, src.DeviceListRefresh)
	mergePtr(&s.SnapshotRefresh, src.SnapshotRefresh)
}

// clone returns a copy that shares no mutable memory with r.
func (r *Record) clone() Record {
	cpy := *r
	cpy.Component = r.Component.Clone()
	if r.Modes != nil {
		cpy.Modes = make(map[string]*Component, len(r.Modes))
		for name, m := range r.Modes {
			cpy.Modes[name] = m.Clone()
		}
	}
	if r.Light != nil {
		l := *r.Light
		l.RGBColor = slices.Clone(r.Light.RGBColor)
		cpy.Light = &l
	}
	if r.Switch != nil {
		s := *r.Switch
		cpy.Switch = &s
	}
	if r.Sensor != nil {
		s := *r.Sensor
		cpy.Sensor = &s
	}
	if r.Meta != nil {
		m := *r.Meta
		cpy.Meta = &m
	}
	if r.Service != nil {
		s := *r.Service
		cpy.Service = &s
	}
	return cpy
}
