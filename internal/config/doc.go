// Package config handles loading and validation of the YAML service
// configuration: TCP server endpoint, frame pacing, source selection,
// monitoring API, and logging.
package config
