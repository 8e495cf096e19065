package monitor

import (
	"context"
	"time"

	"appliancemon/internal/cycle"
)

// Sampler produces one power sample per poll for a device.
type Sampler interface {
	Sample(ctx context.Context, deviceID string) cycle.Sample
}

// Dispatcher receives completion events. Dispatch must not block the caller.
type Dispatcher interface {
	Dispatch(event cycle.CompletedEvent)
}

// Config holds the loop-wide settings shared by all appliances.
type Config struct {
	// PollInterval is the single cadence shared by all appliances
	PollInterval time.Duration
	// ShutdownTimeout bounds the drain of in-flight polls on stop
	ShutdownTimeout time.Duration
}
