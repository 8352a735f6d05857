package mqtt

import "errors"

// Telemetry publishing errors. Callers log them; none of them reaches the
// command loop.
var (
	ErrNotConnected     = errors.New("mqtt: client not connected")
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")

	// ErrInvalidQoS is returned for a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level")

	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
