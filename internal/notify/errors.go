package notify

import "appliancemon/internal/errors"

const (
	// Configuration Errors
	ErrMissingSetting = errors.ErrorCode("notify_missing_setting")

	// Delivery Errors
	ErrDeliveryFailed  = errors.ErrorCode("notify_delivery_failed")
	ErrUnexpectedState = errors.ErrorCode("notify_unexpected_status")

	// MQTT Errors
	ErrBrokerConnect  = errors.ErrorCode("notify_broker_connect_failed")
	ErrPublishTimeout = errors.ErrorCode("notify_publish_timeout")

	// Shutdown Errors
	ErrDrainTimeout = errors.ErrorCode("notify_drain_timeout")
)
