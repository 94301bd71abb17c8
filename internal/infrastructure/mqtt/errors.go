package mqtt

import "errors"

// Errors returned by the uplink MQTT channel. Check with errors.Is.
var (
	// ErrNotConnected is returned when publishing or subscribing while the
	// broker connection is down.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a pass report or status cannot be published.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when the command topic cannot be subscribed.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidCommand is returned for malformed or unknown command payloads.
	ErrInvalidCommand = errors.New("mqtt: invalid command")

	// ErrNoTarget is returned by Connect when the identity names no target.
	ErrNoTarget = errors.New("mqtt: uplink target is required")
)
