package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appliancemon/internal/cycle"
)

// fakeBackend counts delivery attempts and fails the first failUntil of them.
type fakeBackend struct {
	name      string
	failUntil int

	mu       sync.Mutex
	attempts int
	got      []Message
}

func (f *fakeBackend) Name() string {
	return f.name
}

func (f *fakeBackend) Deliver(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++
	if f.attempts <= f.failUntil {
		return errors.New("boom")
	}
	f.got = append(f.got, msg)

	return nil
}

func (f *fakeBackend) delivered() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]Message(nil), f.got...)
}

func (f *fakeBackend) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.attempts
}

func testEvent() cycle.CompletedEvent {
	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	return cycle.CompletedEvent{
		Appliance:  "dryer",
		StartedAt:  start,
		FinishedAt: start.Add(45 * time.Minute),
		Duration:   45 * time.Minute,
		FinalWatts: 1.2,
	}
}

func testOptions() Options {
	return Options{
		MaxAttempts:    3,
		RetryBackoff:   time.Millisecond,
		AttemptTimeout: time.Second,
	}
}

func TestDispatchDeliversToAllBackends(t *testing.T) {
	first := &fakeBackend{name: "first"}
	second := &fakeBackend{name: "second"}
	d := NewDispatcher([]Backend{first, second}, testOptions())

	d.Dispatch(testEvent())
	require.NoError(t, d.Close(time.Second))

	require.Len(t, first.delivered(), 1)
	require.Len(t, second.delivered(), 1)
	assert.Equal(t, "dryer finished", first.delivered()[0].Title)
	assert.Contains(t, first.delivered()[0].Body, "45 minutes")
}

func TestFailingBackendDoesNotBlockOthers(t *testing.T) {
	// More failures than MaxAttempts: this backend never succeeds
	broken := &fakeBackend{name: "broken", failUntil: 100}
	healthy := &fakeBackend{name: "healthy"}
	d := NewDispatcher([]Backend{broken, healthy}, testOptions())

	d.Dispatch(testEvent())
	require.NoError(t, d.Close(time.Second))

	assert.Len(t, healthy.delivered(), 1)
	assert.Empty(t, broken.delivered())
	assert.Equal(t, 3, broken.attemptCount(), "retries must stop at MaxAttempts")
}

func TestRetrySucceedsWithinBudget(t *testing.T) {
	flaky := &fakeBackend{name: "flaky", failUntil: 2}
	d := NewDispatcher([]Backend{flaky}, testOptions())

	d.Dispatch(testEvent())
	require.NoError(t, d.Close(time.Second))

	assert.Len(t, flaky.delivered(), 1)
	assert.Equal(t, 3, flaky.attemptCount())
}

func TestEventIsNotRedelivered(t *testing.T) {
	backend := &fakeBackend{name: "once"}
	d := NewDispatcher([]Backend{backend}, testOptions())

	d.Dispatch(testEvent())
	d.Dispatch(testEvent())
	require.NoError(t, d.Close(time.Second))

	// Two dispatches, two deliveries: no duplication, no re-queue
	assert.Len(t, backend.delivered(), 2)
}

func TestCloseStopsPendingRetries(t *testing.T) {
	opts := Options{
		MaxAttempts:    5,
		RetryBackoff:   10 * time.Second,
		AttemptTimeout: time.Second,
	}
	broken := &fakeBackend{name: "broken", failUntil: 100}
	d := NewDispatcher([]Backend{broken}, opts)

	d.Dispatch(testEvent())

	// The first attempt fails immediately and the worker parks in its
	// 10s backoff; Close must cut that short
	start := time.Now()
	require.NoError(t, d.Close(2*time.Second))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, broken.attemptCount())
}

func TestDispatchWithoutBackendsIsNoop(t *testing.T) {
	d := NewDispatcher(nil, testOptions())

	d.Dispatch(testEvent())
	assert.NoError(t, d.Close(time.Second))
}

func TestDefaultsApplied(t *testing.T) {
	d := NewDispatcher(nil, Options{})

	assert.Equal(t, defaultMaxAttempts, d.opts.MaxAttempts)
	assert.Equal(t, defaultRetryBackoff, d.opts.RetryBackoff)
	assert.Equal(t, defaultAttemptTimeout, d.opts.AttemptTimeout)
}
