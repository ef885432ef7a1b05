package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Archive records one ingested device reading in the history measurement.
//
// It satisfies the ingestion pipeline's Archiver interface. The write is
// non-blocking; the point is batched and sent asynchronously, stamped with
// the reading's own timestamp rather than the arrival time.
//
// Parameters:
//   - deviceID: the device the reading belongs to
//   - metric: the metric name (e.g. "temp")
//   - value: the numeric reading
//   - timestamp: the reading's envelope timestamp
func (c *Client) Archive(deviceID, metric string, value float64, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_metrics",
		map[string]string{
			"device_id": deviceID,
			"metric":    metric,
		},
		map[string]interface{}{
			"value": value,
		},
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}
