package telemetry

import (
	"context"
	"time"
)

// Collector defines the core domain interface
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// Snapshot is one per-tick observation of an appliance.
type Snapshot struct {
	Timestamp  time.Time
	Appliance  string
	Watts      float64
	Phase      string
	Failures   int
	ReadFailed bool
}
