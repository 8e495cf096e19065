package device

import "context"

// Client reads instantaneous power from a smart outlet. Implementations
// enforce no retry policy; that belongs to the monitor loop.
type Client interface {
	// Power returns the current draw in watts for the outlet at addr
	Power(ctx context.Context, addr string) (float64, error)

	// SysInfo returns device identity and capability information
	SysInfo(ctx context.Context, addr string) (SysInfo, error)
}

// SysInfo describes an outlet as reported by the device itself.
type SysInfo struct {
	Alias     string
	Model     string
	HasEmeter bool
}
