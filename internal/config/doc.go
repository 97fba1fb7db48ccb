// Package config loads, validates, and normalizes podium's TOML
// configuration.
package config
