// Package config loads the application configuration from a YAML file
// with environment variable overrides. A missing file is fine; defaults
// apply. The loaded Config maps onto the database driver configuration
// and builds the embedding provider.
package config
