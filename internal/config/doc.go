// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// One file configures both binaries: cmd/chatlink reads api, channel, log and
// metrics; cmd/chatserver reads server, log and metrics.
package config
