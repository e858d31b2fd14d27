package mqtt

import "errors"

// Failures of the broker link that carries the driver's command and event
// topics. Operations wrap these; test with errors.Is.
var (
	// ErrNotConnected means the broker link is down, so no command can
	// reach the driver daemon.
	ErrNotConnected = errors.New("mqtt: broker link down")

	// ErrConnectionFailed means the first connect never completed.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrAckTimeout means the broker did not acknowledge a connect,
	// publish or subscription within its deadline. It is always wrapped
	// together with the failing operation's error.
	ErrAckTimeout = errors.New("mqtt: broker did not acknowledge")

	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidTopic rejects an empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrInvalidQoS rejects QoS levels above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level")
)
