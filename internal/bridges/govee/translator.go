package govee

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/nerrad567/govee2mqtt/internal/entity"
	goveeapi "github.com/nerrad567/govee2mqtt/internal/govee"
)

// Translation is the vendor side of one inbound MQTT command.
type Translation struct {
	// Commands are sent one at a time, in order.
	Commands []goveeapi.Command

	// Local is merged into the store before anything is sent. It carries
	// the implicit OFF of the other modes when a mode is switched on.
	Local *entity.SwitchState

	// Unknown lists payload keys that were ignored.
	Unknown []string
}

// TranslateDevice converts a command sent to an entity's main command
// topic. The payload is a JSON object of attributes or a bare ON/OFF.
func TranslateDevice(rec entity.Record, payload []byte) (Translation, error) {
	if rec.ID == entity.ServiceID || rec.Type() != entity.ComponentLight {
		return Translation{}, fmt.Errorf("%w: %s", ErrUnknownEntity, rec.ID)
	}

	attrs, unknown, err := parseAttributes(payload)
	if err != nil {
		return Translation{}, err
	}

	for _, name := range ModeNames {
		if *attrs.mode(name) != nil && !hasModeComponent(rec, name) {
			unknown = append(unknown, name)
			*attrs.mode(name) = nil
		}
	}

	return translate(rec, attrs, unknown), nil
}

// TranslateMode converts a command sent to one mode switch. The payload
// is a bare ON/OFF.
func TranslateMode(rec entity.Record, mode string, payload []byte) (Translation, error) {
	if rec.ID == entity.ServiceID {
		return Translation{}, fmt.Errorf("%w: %s", ErrUnknownEntity, rec.ID)
	}
	if !hasModeComponent(rec, mode) {
		return Translation{}, fmt.Errorf("%w: %s on %s", ErrUnknownMode, mode, rec.ID)
	}

	state, ok := bareOnOff(payload)
	if !ok {
		return Translation{}, fmt.Errorf("%w: mode %s wants ON or OFF", ErrInvalidPayload, mode)
	}

	var attrs Attributes
	*attrs.mode(mode) = entity.Ptr(state)
	return translate(rec, attrs, nil), nil
}

func translate(rec entity.Record, attrs Attributes, unknown []string) Translation {
	// Value-setting commands turn the light on by themselves and the
	// vendor rejects a power command alongside them.
	if attrs.Brightness != nil || attrs.RGB != nil || attrs.ColorTemp != nil {
		attrs.State = nil
	}

	t := Translation{Commands: EncodeCommands(attrs), Unknown: unknown}

	// The vendor allows one mode at a time, so switching one on turns the
	// others off.
	for _, name := range ModeNames {
		v := *attrs.mode(name)
		if v == nil {
			continue
		}
		local := &entity.SwitchState{}
		*modeField(local, name) = entity.Ptr(*v)
		if *v == entity.StateOn {
			for _, other := range ModeNames {
				if other != name && hasModeComponent(rec, other) {
					seedMode(local, other)
				}
			}
		}
		t.Local = local
		break
	}
	return t
}

// parseAttributes reads a command payload into typed attributes.
func parseAttributes(payload []byte) (Attributes, []string, error) {
	var attrs Attributes

	if state, ok := bareOnOff(payload); ok {
		attrs.State = entity.Ptr(state)
		return attrs, nil, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return attrs, nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	var unknown []string
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		value := raw[key]
		var err error
		switch key {
		case AttrState:
			attrs.State, err = decodeOnOff(value)
		case AttrBrightness:
			attrs.Brightness, err = decodeInt(value)
		case AttrRGB:
			var c RGB
			if err = json.Unmarshal(value, &c); err == nil {
				if !c.Valid() {
					err = fmt.Errorf("channels must be 0..255, got %v", c.Slice())
					break
				}
				attrs.RGB = &c
			}
		case AttrColorTemp:
			attrs.ColorTemp, err = decodeInt(value)
		case AttrGradient, AttrNightlight, AttrDreamview:
			*attrs.mode(key), err = decodeOnOff(value)
		default:
			unknown = append(unknown, key)
			continue
		}
		if err != nil {
			return Attributes{}, nil, fmt.Errorf("%w: %s: %w", ErrInvalidPayload, key, err)
		}
	}
	return attrs, unknown, nil
}

// bareOnOff accepts ON/OFF with or without JSON quotes, any case.
func bareOnOff(payload []byte) (string, bool) {
	s := strings.Trim(string(bytes.TrimSpace(payload)), `"`)
	switch {
	case strings.EqualFold(s, entity.StateOn):
		return entity.StateOn, true
	case strings.EqualFold(s, entity.StateOff):
		return entity.StateOff, true
	}
	return "", false
}

func decodeOnOff(value json.RawMessage) (*string, error) {
	if state, ok := bareOnOff(value); ok {
		return &state, nil
	}
	var n float64
	if err := json.Unmarshal(value, &n); err != nil {
		return nil, errors.New("want ON, OFF, 0 or 1")
	}
	return entity.Ptr(onOffState(int(n))), nil
}

func decodeInt(value json.RawMessage) (*int, error) {
	var n float64
	if err := json.Unmarshal(value, &n); err != nil {
		return nil, err
	}
	v, _ := toInt(n)
	return &v, nil
}

func hasModeComponent(rec entity.Record, mode string) bool {
	_, ok := rec.Modes[mode]
	return ok
}

func modeField(s *entity.SwitchState, mode string) **string {
	switch mode {
	case AttrGradient:
		return &s.Gradient
	case AttrNightlight:
		return &s.Nightlight
	case AttrDreamview:
		return &s.Dreamview
	}
	return nil
}
