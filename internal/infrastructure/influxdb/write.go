package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement is the InfluxDB measurement that service statistics go to.
const Measurement = "govee2mqtt_service"

// ServiceStats is one heartbeat sample of the bridge's operational counters.
type ServiceStats struct {
	APICalls       int
	RateLimited    bool
	Entities       int
	BoostedDevices int
}

// WriteServiceStats queues one ServiceStats point tagged with the service
// name. Nil-safe; does nothing when the client is not connected.
func (c *Client) WriteServiceStats(service string, stats ServiceStats) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		Measurement,
		map[string]string{"service": service},
		map[string]interface{}{
			"api_calls":       stats.APICalls,
			"rate_limited":    stats.RateLimited,
			"entities":        stats.Entities,
			"boosted_devices": stats.BoostedDevices,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
