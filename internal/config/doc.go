// Package config loads, validates, and normalizes the TOML configuration that
// drives the tend daemon and CLI. All thresholds used by the workflow live
// here so behavior is tunable without code changes.
package config
