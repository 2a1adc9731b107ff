// Package influxdb provides time-series metric storage for avrbridge.
//
// Receiver state changes are written as they arrive from the serial
// bridge, giving a queryable history of volume, power, and input
// activity alongside link stability data.
//
// Writes are non-blocking: points are batched by the underlying client
// and flushed on an interval, so a slow or unreachable InfluxDB never
// stalls the receiver event path. Async write failures are surfaced
// through the SetOnError callback.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    // InfluxDB is optional; log and continue without metrics
//	}
//	defer client.Close()
//
//	client.WritePropertyMetric("volume", 50)
//	client.WriteLinkMetric(true, 0, 1)
//
// The integration is disabled by default; Connect returns ErrDisabled
// when cfg.Enabled is false.
package influxdb
