// Package database provides the SQLite relational store for FleetCore.
//
// The relational store is the source of truth for brokers, devices, and
// users. It is deliberately small: one writer, WAL journaling, embedded
// schema migrations applied at startup.
//
// Per-device latest-value telemetry lives in the document store
// (internal/docstore), not here.
package database
