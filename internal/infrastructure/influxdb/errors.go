package influxdb

import "errors"

var (
	// ErrDisabled is returned by Open when metrics are switched off.
	ErrDisabled = errors.New("influxdb: metrics disabled")

	// ErrNoTarget is returned by Open without a target tag. Every point is
	// tagged with the uplink target, so a recorder without one would mix
	// series from different uplinks.
	ErrNoTarget = errors.New("influxdb: target tag required")

	// ErrUnreachable means the server did not answer a ping.
	ErrUnreachable = errors.New("influxdb: server unreachable")

	// ErrClosed is reported by HealthCheck after Close.
	ErrClosed = errors.New("influxdb: recorder closed")
)
