package ingest

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/tessera-iot/fleetcore/internal/device"
	"github.com/tessera-iot/fleetcore/internal/docstore"
)

// Logger is the narrow logging surface the pipeline needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Archiver receives successfully-ingested numeric readings for history.
// Implementations must not block; archive failures are invisible here.
type Archiver interface {
	Archive(deviceID, metric string, value float64, timestamp time.Time)
}

// Pipeline ingests raw broker messages into the document store.
//
// It implements the orchestrator's MessageSink. Ingest never returns an
// error: every failure is terminal for that one message only.
type Pipeline struct {
	store   docstore.Store
	archive Archiver
	log     Logger
}

// New creates a pipeline. The archiver may be nil when history is
// disabled; a nil logger disables logging.
func New(store docstore.Store, archive Archiver, log Logger) *Pipeline {
	if log == nil {
		log = noopLogger{}
	}
	return &Pipeline{
		store:   store,
		archive: archive,
		log:     log,
	}
}

// Ingest processes one raw message.
//
// Steps: decode the envelope, decompose the topic into (user, device,
// name), then replace the device's reading for the envelope's metric.
// The document match binds on device id and owner id together; a miss
// means the device is unknown and is logged without creating anything.
func (p *Pipeline) Ingest(ctx context.Context, topic string, payload []byte) {
	reading, err := DecodeEnvelope(payload)
	if err != nil {
		p.log.Warn("dropping message with bad envelope",
			"topic", topic,
			"error", err,
		)
		return
	}

	decoded, err := device.DecomposeTopic(topic)
	if err != nil {
		p.log.Warn("dropping message with undecodable topic",
			"topic", topic,
			"error", err,
		)
		return
	}

	err = p.store.UpsertReading(ctx, decoded.DeviceID, decoded.UserID, reading.Metric,
		docstore.Reading{
			Value:     reading.Value,
			Scale:     reading.Scale,
			Timestamp: reading.Timestamp,
		})
	if errors.Is(err, docstore.ErrRecordNotFound) {
		p.log.Warn("dropping reading for unknown device",
			"device_id", decoded.DeviceID,
			"user_id", decoded.UserID,
			"metric", reading.Metric,
		)
		return
	}
	if err != nil {
		p.log.Error("writing reading failed",
			"device_id", decoded.DeviceID,
			"metric", reading.Metric,
			"error", err,
		)
		return
	}

	p.log.Debug("reading ingested",
		"device_id", decoded.DeviceID,
		"metric", reading.Metric,
	)

	p.archiveReading(decoded.DeviceID, reading)
}

// archiveReading forwards numeric readings to the history archiver.
// Non-numeric values have no home in a time series and are skipped.
func (p *Pipeline) archiveReading(deviceID string, reading Reading) {
	if p.archive == nil {
		return
	}
	value, err := strconv.ParseFloat(reading.Value, 64)
	if err != nil {
		p.log.Debug("skipping archive of non-numeric reading",
			"device_id", deviceID,
			"metric", reading.Metric,
		)
		return
	}
	p.archive.Archive(deviceID, reading.Metric, value, reading.Timestamp)
}
