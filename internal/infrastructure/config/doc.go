// Package config handles loading and validating the W215 bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading an optional .env file into the process environment
//   - Overriding with environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Sensitive values (broker password, InfluxDB token, device pins) should be
//     set via environment variables or the registry, not committed YAML
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.W215.PollInterval)
package config
