// Package docstore provides the MongoDB-backed document store that holds
// one latest-value record per device.
//
// Each record is keyed by the device UUID and carries a messages map of
// metric name to the most recent reading for that metric. Ingested
// readings replace the per-metric entry in place, so a record never grows
// beyond the set of metrics a device reports.
package docstore
