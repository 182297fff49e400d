package govee

import (
	"regexp"
	"strings"
)

// DeviceClass is the kind of entity a vendor device becomes.
type DeviceClass string

// Device classes. ClassUnsupported devices are logged and skipped.
const (
	ClassUnsupported DeviceClass = ""
	ClassLight       DeviceClass = "light"
	ClassSensor      DeviceClass = "sensor"
)

var (
	lightSKU  = regexp.MustCompile(`^H[678]\d{3,}$`)
	sensorSKU = regexp.MustCompile(`^H5\d{3,}$`)
)

// Classify maps a sku to its device class. H6xxx, H7xxx and H8xxx are
// lights and H5xxx are sensors.
func Classify(sku string) DeviceClass {
	switch {
	case lightSKU.MatchString(sku):
		return ClassLight
	case sensorSKU.MatchString(sku):
		return ClassSensor
	}
	return ClassUnsupported
}

// EntityID derives the entity id of a vendor device id
// ("AB:CD:EF:..." becomes "ABCDEF...").
func EntityID(rawID string) string {
	return strings.ToUpper(strings.ReplaceAll(rawID, ":", ""))
}

// Sensor sub-entity suffixes.
const (
	suffixTemperature = "_t"
	suffixHumidity    = "_h"
)

// TemperatureID is the entity id of a sensor's temperature sub-entity.
func TemperatureID(parentID string) string {
	return parentID + suffixTemperature
}

// HumidityID is the entity id of a sensor's humidity sub-entity.
func HumidityID(parentID string) string {
	return parentID + suffixHumidity
}
