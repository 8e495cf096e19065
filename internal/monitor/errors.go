package monitor

import "appliancemon/internal/errors"

const (
	// Configuration Errors
	ErrInvalidInterval = errors.ErrorCode("monitor_invalid_interval")
	ErrNoAppliances    = errors.ErrorCode("monitor_no_appliances")

	// Shutdown Errors
	ErrDrainTimeout = errors.ErrorCode("monitor_drain_timeout")
)
