// Package cycle infers appliance cycles from power draw. It is pure logic:
// no network, no clocks, no goroutines. Time is always passed in.
package cycle

import "time"

// Phase is the detection state of a single appliance.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseFinishing Phase = "finishing"
	PhaseDegraded  Phase = "degraded"
)

// Config holds the per-appliance detection parameters. Immutable after
// startup validation.
type Config struct {
	// Name identifies the appliance in events and logs
	Name string
	// DeviceID is the network address of the smart outlet (host[:port])
	DeviceID string
	// StartThreshold is the draw in watts above which an idle appliance
	// is considered started
	StartThreshold float64
	// RunningThreshold is the draw in watts below which a running
	// appliance begins the completion debounce
	RunningThreshold float64
	// IdleTimeout is how long draw must stay below RunningThreshold
	// before the cycle is considered complete
	IdleTimeout time.Duration
	// FailureStreakWarn is the number of consecutive read failures
	// before the condition is surfaced as a warning
	FailureStreakWarn int
}

// Sample is one power reading from a device. A non-nil Err marks a read
// failure; Watts is meaningless in that case and must not be treated as zero
// draw.
type Sample struct {
	DeviceID string
	Watts    float64
	Time     time.Time
	Err      error
}

// Failed reports whether the sample is a read failure.
func (s Sample) Failed() bool {
	return s.Err != nil
}

// State is the mutable detection state for one appliance. Owned exclusively
// by that appliance's evaluation sequence; never shared.
type State struct {
	Phase Phase
	// PhaseEntered anchors the FINISHING debounce
	PhaseEntered time.Time
	// CycleStart is set on entry to RUNNING, cleared on return to IDLE
	CycleStart time.Time
	// LastGood is the most recent successful sample
	LastGood Sample
	// Failures counts consecutive read failures
	Failures int
	// Resume is the phase to re-evaluate when leaving DEGRADED
	Resume Phase
}

// NewState returns the initial state for an appliance.
func NewState() State {
	return State{Phase: PhaseIdle}
}

// CompletedEvent is emitted exactly once per FINISHING-to-IDLE transition.
type CompletedEvent struct {
	Appliance  string
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	FinalWatts float64
}
