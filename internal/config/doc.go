// Package config loads and validates battery configuration from TOML.
//
// Configuration resolves from an explicit --config path, then
// ~/.config/battery/config.toml, then battery.toml in the working
// directory. Missing files fall back to defaults so the battery can run
// on a fresh machine without any setup.
package config
