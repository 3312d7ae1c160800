package influxdb

import "errors"

var (
	// ErrDisabled: Connect was called with influxdb.enabled false.
	ErrDisabled = errors.New("influxdb: telemetry not enabled")

	// ErrConnectionFailed wraps an unreachable or unhealthy server at Connect.
	ErrConnectionFailed = errors.New("influxdb: cannot reach server")

	// ErrNotConnected is what HealthCheck reports once Close has run.
	ErrNotConnected = errors.New("influxdb: client closed")

	// ErrWriteFailed wraps asynchronous batch errors handed to SetOnError.
	ErrWriteFailed = errors.New("influxdb: batch write failed")
)
