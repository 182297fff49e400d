package govee

import "time"

// Device is one entry of the vendor device list.
type Device struct {
	ID           string       `json:"device"`
	SKU          string       `json:"sku"`
	Name         string       `json:"deviceName"`
	Type         string       `json:"type"`
	Capabilities []Capability `json:"capabilities"`
}

// Capability describes one controllable or observable feature of a device.
type Capability struct {
	Type       string     `json:"type"`
	Instance   string     `json:"instance"`
	Parameters Parameters `json:"parameters"`
}

// Parameters are the value constraints of a capability. Only the range is
// used; enum options and struct fields are ignored.
type Parameters struct {
	DataType string `json:"dataType"`
	Unit     string `json:"unit,omitempty"`
	Range    *Range `json:"range,omitempty"`
}

// Range bounds an integer capability.
type Range struct {
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Precision float64 `json:"precision"`
}

// RangeMax returns the range maximum, or def when the capability has none.
func (c Capability) RangeMax(def int) int {
	if c.Parameters.Range == nil || c.Parameters.Range.Max == 0 {
		return def
	}
	return int(c.Parameters.Range.Max)
}

// RangeMin returns the range minimum, or def when the capability has none.
func (c Capability) RangeMin(def int) int {
	if c.Parameters.Range == nil || c.Parameters.Range.Min == 0 {
		return def
	}
	return int(c.Parameters.Range.Min)
}

// Command is a single capability change sent to a device.
type Command struct {
	Type     string `json:"type"`
	Instance string `json:"instance"`
	Value    any    `json:"value"`
}

// StateReport is the capability state returned by a state query or a
// successful command, keyed by capability instance. Values keep their
// JSON-decoded form (float64, bool, string, map).
type StateReport struct {
	Values    map[string]any
	UpdatedAt time.Time
}

// Empty reports whether the vendor returned no capability state.
func (r StateReport) Empty() bool {
	return len(r.Values) == 0
}

type deviceListResponse struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Data    []Device `json:"data"`
}

type requestBody struct {
	RequestID string         `json:"requestId"`
	Payload   requestPayload `json:"payload"`
}

type requestPayload struct {
	SKU        string   `json:"sku"`
	Device     string   `json:"device"`
	Capability *Command `json:"capability,omitempty"`
}

type stateResponse struct {
	Code    int `json:"code"`
	Payload struct {
		Capabilities []struct {
			Instance string `json:"instance"`
			State    struct {
				Value any `json:"value"`
			} `json:"state"`
		} `json:"capabilities"`
	} `json:"payload"`
}

type controlResponse struct {
	Code       int `json:"code"`
	Capability *struct {
		Instance string `json:"instance"`
		Value    any    `json:"value"`
		State    struct {
			Status string `json:"status"`
		} `json:"state"`
	} `json:"capability"`
}
