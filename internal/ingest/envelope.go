package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBadEnvelope indicates a payload that is not a usable envelope.
	ErrBadEnvelope = errors.New("ingest: bad message envelope")

	// ErrBadTimestamp indicates an envelope timestamp that is not RFC-3339.
	ErrBadTimestamp = errors.New("ingest: bad envelope timestamp")
)

// Envelope is the JSON payload devices publish on their telemetry topic.
//
// Example:
//
//	{"metric":"temp","value":"21.5","scale":"C","timestamp":"2024-01-01T00:00:00Z"}
//
// Value stays a string end to end; FleetCore stores readings verbatim and
// leaves unit interpretation to the scale and the consumer.
type Envelope struct {
	Metric    string `json:"metric"`
	Value     string `json:"value"`
	Scale     string `json:"scale"`
	Timestamp string `json:"timestamp"`
}

// Reading is a decoded envelope ready for the document store.
type Reading struct {
	Metric    string
	Value     string
	Scale     string
	Timestamp time.Time
}

// DecodeEnvelope parses and validates a raw payload.
//
// Returns:
//   - Reading: the decoded reading
//   - error: ErrBadEnvelope for unparsable JSON or a missing metric/value,
//     ErrBadTimestamp for a timestamp that is not RFC-3339
func DecodeEnvelope(payload []byte) (Reading, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Reading{}, fmt.Errorf("%w: %w", ErrBadEnvelope, err)
	}

	if env.Metric == "" {
		return Reading{}, fmt.Errorf("%w: missing metric", ErrBadEnvelope)
	}
	if env.Value == "" {
		return Reading{}, fmt.Errorf("%w: missing value", ErrBadEnvelope)
	}

	ts, err := time.Parse(time.RFC3339, env.Timestamp)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: %q", ErrBadTimestamp, env.Timestamp)
	}

	return Reading{
		Metric:    env.Metric,
		Value:     env.Value,
		Scale:     env.Scale,
		Timestamp: ts,
	}, nil
}
