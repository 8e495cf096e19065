package device

import "appliancemon/internal/errors"

const (
	// Connectivity Errors
	ErrConnectFailed = errors.ErrorCode("device_connect_failed")
	ErrWriteFailed   = errors.ErrorCode("device_write_failed")
	ErrReadFailed    = errors.ErrorCode("device_read_failed")

	// Protocol Errors
	ErrBadResponse   = errors.ErrorCode("device_bad_response")
	ErrDeviceErrCode = errors.ErrorCode("device_reported_error")
	ErrNoEmeter      = errors.ErrorCode("device_no_energy_meter")
)
