package cycle

import (
	"fmt"
	"time"

	"appliancemon/internal/errors"
)

// Validate checks the startup invariants: StartThreshold >= RunningThreshold
// > 0 and IdleTimeout > 0. A config that fails here must not be monitored.
func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Name == "" {
		return errFactory.New(ErrMissingName)
	}

	if c.DeviceID == "" {
		return errFactory.WithData(ErrMissingDevice, c.Name)
	}

	if c.RunningThreshold <= 0 || c.StartThreshold < c.RunningThreshold {
		return errFactory.WithData(ErrInvalidThresholds,
			fmt.Sprintf("%s: start=%.1fW running=%.1fW", c.Name, c.StartThreshold, c.RunningThreshold))
	}

	if c.IdleTimeout <= 0 {
		return errFactory.WithData(ErrInvalidTimeout, c.Name)
	}

	return nil
}

// Evaluate advances the state machine by one sample and returns the next
// state, plus a CompletedEvent when a cycle finished on this sample.
//
// A failed sample freezes the state: the prior phase and its timers are kept
// under DEGRADED so a transient outage can neither start the completion
// debounce nor finish a cycle. A successful sample after DEGRADED resumes the
// prior phase's evaluation with the debounce anchor untouched.
func Evaluate(cfg Config, st State, s Sample, now time.Time) (State, *CompletedEvent) {
	if s.Failed() {
		if st.Phase != PhaseDegraded {
			st.Resume = st.Phase
			st.Phase = PhaseDegraded
		}
		st.Failures++

		return st, nil
	}

	if st.Phase == PhaseDegraded {
		st.Phase = st.Resume
		st.Resume = ""
		st.Failures = 0
	}

	st.LastGood = s

	switch st.Phase {
	case PhaseIdle:
		if s.Watts >= cfg.StartThreshold {
			st.Phase = PhaseRunning
			st.CycleStart = now
			st.PhaseEntered = now
		}

	case PhaseRunning:
		if s.Watts < cfg.RunningThreshold {
			st.Phase = PhaseFinishing
			st.PhaseEntered = now
		}

	case PhaseFinishing:
		if s.Watts >= cfg.RunningThreshold {
			// Debounce cancelled: post-heat tumble or intermittent draw
			st.Phase = PhaseRunning
			st.PhaseEntered = now

			break
		}

		if now.Sub(st.PhaseEntered) >= cfg.IdleTimeout {
			event := &CompletedEvent{
				Appliance:  cfg.Name,
				StartedAt:  st.CycleStart,
				FinishedAt: now,
				Duration:   now.Sub(st.CycleStart),
				FinalWatts: s.Watts,
			}
			st.Phase = PhaseIdle
			st.CycleStart = time.Time{}
			st.PhaseEntered = now

			return st, event
		}
	}

	return st, nil
}
