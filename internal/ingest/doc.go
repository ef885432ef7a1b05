// Package ingest turns raw broker messages into latest-value records.
//
// The pipeline decodes the message envelope, resolves the owning device
// and user from the topic, and replaces the per-metric reading in the
// device's document. Every failure - malformed envelope, undecodable
// topic, bad timestamp, unknown device - drops that one message with a
// log line and nothing else: ingestion problems must never disturb the
// broker session that delivered the message.
package ingest
