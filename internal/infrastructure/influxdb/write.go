package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by fancontrold.
const (
	MeasurementReading = "sensor_reading"
	MeasurementControl = "control_event"
)

// WriteReading records one sensor reading.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - entryID: Stable identifier of the entry (e.g., "/hwmon/nct6798/fan/1")
//   - kind: Entry kind ("Control", "Fan", "Temperature")
//   - name: Display name, stored as a tag for dashboards
//   - value: The integer value returned to the peer
//
// Example:
//
//	client.WriteReading("/hwmon/k10temp/temp/1", "Temperature", "Tctl", 52)
func (c *Client) WriteReading(entryID, kind, name string, value int32) {
	c.WritePoint(MeasurementReading,
		map[string]string{
			"entry_id": entryID,
			"kind":     kind,
			"name":     name,
		},
		map[string]any{
			"value": int64(value),
		})
}

// WriteControlEvent records a control changing mode.
//
// Parameters:
//   - entryID: Stable identifier of the control
//   - mode: "manual" after SetValue, "auto" after SetAuto
//   - value: Commanded value; ignored for "auto"
func (c *Client) WriteControlEvent(entryID, mode string, value int32) {
	fields := map[string]any{
		"mode": mode,
	}
	if mode == "manual" {
		fields["value"] = int64(value)
	}

	c.WritePoint(MeasurementControl,
		map[string]string{
			"entry_id": entryID,
		},
		fields)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
