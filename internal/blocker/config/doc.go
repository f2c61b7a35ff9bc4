// Package config loads blockd's settings from struct defaults, an optional
// YAML file and BLOCK_* environment variables, in that order.
package config
