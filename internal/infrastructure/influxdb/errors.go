package influxdb

import "errors"

var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed covers the synchronous write paths; batched writes
	// report failures through the SetOnError callback instead.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDisabled is returned by Connect when the config has the
	// integration switched off.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
