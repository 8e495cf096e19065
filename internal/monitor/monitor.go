package monitor

import (
	"context"
	"sync"
	"time"

	"appliancemon/internal/cycle"
	"appliancemon/internal/errors"
	"appliancemon/internal/logger"
	"appliancemon/internal/telemetry"
)

const defaultShutdownTimeout = 10 * time.Second

// Monitor owns the polling cadence and drives one state machine per
// appliance. Appliances are polled concurrently; each appliance's state is
// mutated only by its own worker goroutine, and a tick that arrives while the
// prior poll for that appliance is still in flight is skipped rather than
// queued.
type Monitor struct {
	cfg        Config
	sampler    Sampler
	dispatcher Dispatcher
	collector  telemetry.Collector
	workers    []*worker
}

// worker serializes all evaluation for a single appliance.
type worker struct {
	cfg   cycle.Config
	state cycle.State
	ticks chan time.Time
}

// New validates the configuration and builds the monitor. An appliance whose
// thresholds violate the startup invariants is a construction error, never a
// runtime one. collector may be nil to disable telemetry.
func New(cfg Config, appliances []cycle.Config, sampler Sampler, dispatcher Dispatcher, collector telemetry.Collector) (*Monitor, error) {
	errFactory := errors.New()

	if cfg.PollInterval <= 0 {
		return nil, errFactory.WithData(ErrInvalidInterval, cfg.PollInterval)
	}
	if len(appliances) == 0 {
		return nil, errFactory.New(ErrNoAppliances)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	workers := make([]*worker, 0, len(appliances))
	for _, appliance := range appliances {
		if err := appliance.Validate(); err != nil {
			return nil, err
		}
		workers = append(workers, &worker{
			cfg:   appliance,
			state: cycle.NewState(),
			ticks: make(chan time.Time, 1),
		})
	}

	return &Monitor{
		cfg:        cfg,
		sampler:    sampler,
		dispatcher: dispatcher,
		collector:  collector,
		workers:    workers,
	}, nil
}

// Run polls until ctx is cancelled, then drains in-flight polls within the
// shutdown timeout.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	for _, w := range m.workers {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			w.run(ctx, m)
		}(w)
	}

	logger.Info().
		Int("appliances", len(m.workers)).
		Dur("interval", m.cfg.PollInterval).
		Msg("Monitor started")

	for {
		select {
		case <-ctx.Done():
			return m.drain(&wg)
		case t := <-ticker.C:
			for _, w := range m.workers {
				select {
				case w.ticks <- t:
				default:
					// Prior poll still in flight; preserve the
					// single-writer invariant by skipping this tick
					logger.Debug().
						Str("appliance", w.cfg.Name).
						Msg("Tick skipped, previous poll still running")
				}
			}
		}
	}
}

// drain waits for worker goroutines within the shutdown timeout.
func (m *Monitor) drain(wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("Monitor stopped")
		return nil
	case <-time.After(m.cfg.ShutdownTimeout):
		errFactory := errors.New()
		return errFactory.New(ErrDrainTimeout)
	}
}

func (w *worker) run(ctx context.Context, m *Monitor) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.ticks:
			w.poll(ctx, m)
		}
	}
}

// poll runs one sample-evaluate-dispatch step. This is the only code that
// touches w.state.
func (w *worker) poll(ctx context.Context, m *Monitor) {
	sample := m.sampler.Sample(ctx, w.cfg.DeviceID)

	prev := w.state.Phase
	next, event := cycle.Evaluate(w.cfg, w.state, sample, sample.Time)
	w.state = next

	w.logTransition(prev, next, sample)

	if event != nil {
		logger.Info().
			Str("appliance", event.Appliance).
			Dur("duration", event.Duration).
			Float64("final_watts", event.FinalWatts).
			Msg("Cycle complete")
		m.dispatcher.Dispatch(*event)
	}

	if m.collector != nil {
		snapshot := &telemetry.Snapshot{
			Timestamp:  sample.Time,
			Appliance:  w.cfg.Name,
			Watts:      sample.Watts,
			Phase:      string(next.Phase),
			Failures:   next.Failures,
			ReadFailed: sample.Failed(),
		}
		if err := m.collector.Record(ctx, snapshot); err != nil {
			logger.Warn().Err(err).Msg("Failed to record telemetry snapshot")
		}
	}
}

func (w *worker) logTransition(prev cycle.Phase, next cycle.State, sample cycle.Sample) {
	if sample.Failed() {
		logger.Debug().
			Str("appliance", w.cfg.Name).
			Int("failures", next.Failures).
			Err(sample.Err).
			Msg("Device read failed, state frozen")

		if w.cfg.FailureStreakWarn > 0 && next.Failures == w.cfg.FailureStreakWarn {
			logger.Warn().
				Str("appliance", w.cfg.Name).
				Int("failures", next.Failures).
				Msg("Device unreachable for consecutive polls")
		}

		return
	}

	if next.Phase != prev {
		logger.Info().
			Str("appliance", w.cfg.Name).
			Str("from", string(prev)).
			Str("to", string(next.Phase)).
			Float64("watts", sample.Watts).
			Msg("Phase transition")

		return
	}

	logger.Debug().
		Str("appliance", w.cfg.Name).
		Str("phase", string(next.Phase)).
		Float64("watts", sample.Watts).
		Msg("")
}
