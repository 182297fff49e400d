// Package config handles loading and validating govee2mqtt configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The Govee API key and MQTT password should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// The environment variable names (MQTT_HOST, GOVEE_API_KEY, TZ, ...) are the ones
// documented for the container image, so existing deployments keep working.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Govee.DeviceInterval)
package config
