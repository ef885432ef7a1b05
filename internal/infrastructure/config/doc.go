// Package config loads and validates FleetCore configuration.
//
// Configuration is read from a YAML file with three layers of precedence:
// hardcoded defaults, file values, then FLEETCORE_* environment variables.
// Secrets (JWT signing key, document store credentials, InfluxDB token)
// should always be supplied through the environment in production.
package config
