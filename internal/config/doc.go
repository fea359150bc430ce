// Package config loads node configuration from a TOML file and command-line
// overrides.
package config
