// Package config handles loading and validating fancontrold configuration.
//
// This package manages:
//   - Loading configuration from YAML or TOML files
//   - Overriding with FANCONTROL_* environment variables
//   - Validation of every section, reporting all problems at once
//   - Default value handling (a missing file means defaults only)
//
// Security Considerations:
//   - The peer socket only binds loopback addresses; Validate rejects others
//   - Credentials (MQTT password, InfluxDB token) should come from the environment
//
// Usage:
//
//	cfg, err := config.Load(os.Getenv("FANCONTROL_CONFIG"))
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Server.Port)
package config
