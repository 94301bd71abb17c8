// Package config handles loading and validating logix-uplink configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with LOGIX_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Upstream credentials (token URL, static token, UID) and database
// passwords should come from the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Uplink.Target)
package config
