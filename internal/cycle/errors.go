package cycle

import "appliancemon/internal/errors"

const (
	// Configuration Errors
	ErrMissingName       = errors.ErrorCode("cycle_missing_appliance_name")
	ErrMissingDevice     = errors.ErrorCode("cycle_missing_device_id")
	ErrInvalidThresholds = errors.ErrorCode("cycle_invalid_thresholds")
	ErrInvalidTimeout    = errors.ErrorCode("cycle_invalid_idle_timeout")
)
