package notify

import (
	"context"
	"sync"
	"time"

	"appliancemon/internal/cycle"
	"appliancemon/internal/errors"
	"appliancemon/internal/logger"
)

const (
	defaultMaxAttempts    = 3
	defaultRetryBackoff   = 5 * time.Second
	defaultAttemptTimeout = 10 * time.Second
)

// Options tunes the dispatcher's retry policy.
type Options struct {
	// MaxAttempts is the total number of delivery tries per backend
	MaxAttempts int
	// RetryBackoff is the initial wait between tries; it doubles per retry
	RetryBackoff time.Duration
	// AttemptTimeout bounds a single delivery attempt
	AttemptTimeout time.Duration
}

// Dispatcher fans completion events out to every configured backend. Each
// backend is attempted independently with bounded retry; one backend's
// failure never blocks or fails the others. An event whose retries are
// exhausted is logged and dropped, not re-queued.
type Dispatcher struct {
	backends []Backend
	opts     Options
	wg       sync.WaitGroup
	done     chan struct{}
	once     sync.Once
}

// NewDispatcher builds a dispatcher over backends. Zero option fields take
// defaults.
func NewDispatcher(backends []Backend, opts Options) *Dispatcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = defaultAttemptTimeout
	}

	return &Dispatcher{
		backends: backends,
		opts:     opts,
		done:     make(chan struct{}),
	}
}

// Dispatch hands event to all backends and returns immediately; delivery runs
// decoupled from the caller so a stalled backend cannot stall sampling.
func (d *Dispatcher) Dispatch(event cycle.CompletedEvent) {
	if len(d.backends) == 0 {
		logger.Warn().
			Str("appliance", event.Appliance).
			Msg("No notification backends configured, event logged only")

		return
	}

	msg := NewMessage(event)

	for _, backend := range d.backends {
		d.wg.Add(1)
		go func(b Backend) {
			defer d.wg.Done()
			d.deliver(b, msg)
		}(backend)
	}
}

// deliver runs the bounded retry loop for a single backend.
func (d *Dispatcher) deliver(b Backend, msg Message) {
	backoff := d.opts.RetryBackoff

	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		err := d.attempt(b, msg)
		if err == nil {
			logger.Info().
				Str("backend", b.Name()).
				Str("appliance", msg.Event.Appliance).
				Int("attempt", attempt).
				Msg("Notification delivered")

			return
		}

		if attempt == d.opts.MaxAttempts {
			errFactory := errors.New()
			logger.ErrorWithCode(errFactory.Wrap(ErrDeliveryFailed, err)).
				Str("backend", b.Name()).
				Str("appliance", msg.Event.Appliance).
				Int("attempts", attempt).
				Msg("Notification dropped after exhausting retries")

			return
		}

		logger.Warn().
			Str("backend", b.Name()).
			Int("attempt", attempt).
			Err(err).
			Msgf("Delivery failed, retrying in %s", backoff)

		select {
		case <-d.done:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (d *Dispatcher) attempt(b Backend, msg Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.AttemptTimeout)
	defer cancel()

	return b.Deliver(ctx, msg)
}

// Close stops retry waits and drains in-flight deliveries, giving up after
// deadline.
func (d *Dispatcher) Close(deadline time.Duration) error {
	d.once.Do(func() { close(d.done) })

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-time.After(deadline):
		errFactory := errors.New()
		return errFactory.New(ErrDrainTimeout)
	}
}
