// Package influxdb provides the optional telemetry history archive.
//
// The document store keeps only the latest reading per device metric;
// when InfluxDB is enabled, every successfully-ingested numeric reading
// is also written here asynchronously so history survives. The archive is
// strictly supplementary: write failures never reach the ingestion
// pipeline, and the system runs fine with the archive disabled.
package influxdb
