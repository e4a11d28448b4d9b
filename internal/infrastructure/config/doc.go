// Package config handles loading and validating the sensor gateway configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (SENSORGW_*)
//   - Validation of required fields
//   - Default value handling
//
// Sensitive values (MQTT passwords, InfluxDB tokens) should be set via
// environment variables rather than committed to the YAML file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Gateway.Serial.Port)
package config
