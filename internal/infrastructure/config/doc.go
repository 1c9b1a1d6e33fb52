// Package config handles loading and validating the Things runner configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields and store references
//   - Default value handling
//
// Sensitive values (MQTT and Redis passwords, InfluxDB tokens) should be set
// via environment variables rather than committed to the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/things.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Runner.ID)
package config
