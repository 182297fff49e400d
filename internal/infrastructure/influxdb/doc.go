// Package influxdb exports govee2mqtt service statistics to InfluxDB v2.
//
// The export is optional. When enabled, the bridge heartbeat writes one
// point per interval to the govee2mqtt_service measurement carrying the
// daily vendor API call count, the rate-limited flag and the number of
// known and boosted entities. Device telemetry is not written here; it
// reaches Home Assistant over MQTT.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without export
//	}
//	defer client.Close()
//
//	client.WriteServiceStats("Govee2MQTT", influxdb.ServiceStats{APICalls: 42})
//
// Writes are non-blocking and batched (batch_size, flush_interval). Async
// write failures are delivered through SetOnError.
package influxdb
