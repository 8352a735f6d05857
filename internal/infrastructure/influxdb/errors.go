package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false, so
	// callers can skip the history sink without treating it as a failure.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps a failed ping or an unhealthy server.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")
)
