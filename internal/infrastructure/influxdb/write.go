package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePropertyMetric writes a numeric receiver property sample to InfluxDB.
//
// This is the primary method for recording receiver telemetry. The write
// is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - property: The property name (e.g., "volume", "attenuation", "power")
//   - value: The numeric value to record
//
// Example:
//
//	client.WritePropertyMetric("volume", 50)
//	client.WritePropertyMetric("attenuation", -45)
func (c *Client) WritePropertyMetric(property string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"receiver_state",
		map[string]string{
			"property": property,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteLinkMetric writes a receiver connection health sample.
//
// Used for tracking link stability over time: whether the serial
// bridge is reachable and how often the connection has been rebuilt.
//
// Parameters:
//   - connected: Whether the receiver link is currently established
//   - reconnects: Cumulative reconnect count since process start
//   - pending: Commands currently awaiting a receiver response
func (c *Client) WriteLinkMetric(connected bool, reconnects uint64, pending int) {
	if !c.IsConnected() {
		return
	}

	up := 0.0
	if connected {
		up = 1.0
	}

	point := write.NewPoint(
		"receiver_link",
		nil,
		map[string]interface{}{
			"up":         up,
			"reconnects": float64(reconnects),
			"pending":    float64(pending),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("process_stats",
//	    map[string]string{"host": "bridge-01"},
//	    map[string]interface{}{"goroutines": 24.0})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., replayed history).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
