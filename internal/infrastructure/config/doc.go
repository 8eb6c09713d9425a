// Package config handles loading and validating Lemonade Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (token secret, broker passwords) should be set via
//     environment variables
//   - The config file should have restricted permissions (0600)
//   - The auth secret must be set before the service will start
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Auth.Issuer)
package config
