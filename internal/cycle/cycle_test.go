package cycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnreachable = errors.New("connection refused")

func washerConfig() Config {
	return Config{
		Name:              "washer",
		DeviceID:          "192.168.1.50",
		StartThreshold:    5,
		RunningThreshold:  3,
		IdleTimeout:       120 * time.Second,
		FailureStreakWarn: 6,
	}
}

func good(watts float64, at time.Time) Sample {
	return Sample{DeviceID: "192.168.1.50", Watts: watts, Time: at}
}

func failed(at time.Time) Sample {
	return Sample{DeviceID: "192.168.1.50", Time: at, Err: errUnreachable}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"equal thresholds valid", func(c *Config) { c.StartThreshold = 3 }, false},
		{"missing name", func(c *Config) { c.Name = "" }, true},
		{"missing device", func(c *Config) { c.DeviceID = "" }, true},
		{"running above start", func(c *Config) { c.RunningThreshold = 10 }, true},
		{"zero running threshold", func(c *Config) { c.RunningThreshold = 0; c.StartThreshold = 0 }, true},
		{"negative running threshold", func(c *Config) { c.RunningThreshold = -1 }, true},
		{"zero idle timeout", func(c *Config) { c.IdleTimeout = 0 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := washerConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIdleStaysIdleBelowStartThreshold(t *testing.T) {
	cfg := washerConfig()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	st, event := Evaluate(cfg, NewState(), good(4.9, now), now)

	assert.Nil(t, event)
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.True(t, st.CycleStart.IsZero())
}

func TestIdleToRunningSetsCycleStart(t *testing.T) {
	cfg := washerConfig()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	st, event := Evaluate(cfg, NewState(), good(6, now), now)

	assert.Nil(t, event)
	assert.Equal(t, PhaseRunning, st.Phase)
	assert.Equal(t, now, st.CycleStart)
}

func TestRunningHoldsAtRunningThreshold(t *testing.T) {
	cfg := washerConfig()
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	st, _ := Evaluate(cfg, NewState(), good(6, now), now)
	st, event := Evaluate(cfg, st, good(3, now.Add(10*time.Second)), now.Add(10*time.Second))

	assert.Nil(t, event)
	assert.Equal(t, PhaseRunning, st.Phase)
}

func TestFinishingDipReturnsToRunningWithoutEvent(t *testing.T) {
	cfg := washerConfig()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	st, _ := Evaluate(cfg, NewState(), good(6, base), base)

	// Dip below running threshold starts the debounce
	at := base.Add(10 * time.Second)
	st, event := Evaluate(cfg, st, good(2.5, at), at)
	require.Nil(t, event)
	require.Equal(t, PhaseFinishing, st.Phase)

	// Draw comes back before the timeout: debounce cancelled, no event
	at = base.Add(60 * time.Second)
	st, event = Evaluate(cfg, st, good(4, at), at)
	assert.Nil(t, event)
	assert.Equal(t, PhaseRunning, st.Phase)

	// A full debounce must now start over from the next dip
	at = base.Add(70 * time.Second)
	st, event = Evaluate(cfg, st, good(1, at), at)
	require.Equal(t, PhaseFinishing, st.Phase)
	assert.Equal(t, at, st.PhaseEntered)
	assert.Nil(t, event)
}

func TestCompletionEmitsExactlyOneEvent(t *testing.T) {
	cfg := washerConfig()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	st, _ := Evaluate(cfg, NewState(), good(6, base), base)

	dip := base.Add(30 * time.Minute)
	st, event := Evaluate(cfg, st, good(2, dip), dip)
	require.Nil(t, event)

	// Still below threshold but under the timeout
	at := dip.Add(119 * time.Second)
	st, event = Evaluate(cfg, st, good(2, at), at)
	require.Nil(t, event)
	require.Equal(t, PhaseFinishing, st.Phase)

	// Timeout satisfied
	done := dip.Add(121 * time.Second)
	st, event = Evaluate(cfg, st, good(1.5, done), done)
	require.NotNil(t, event)
	assert.Equal(t, "washer", event.Appliance)
	assert.Equal(t, base, event.StartedAt)
	assert.Equal(t, done, event.FinishedAt)
	assert.Equal(t, done.Sub(base), event.Duration)
	assert.InDelta(t, 1.5, event.FinalWatts, 0.001)
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.True(t, st.CycleStart.IsZero())

	// Staying quiet afterwards produces nothing further
	at = done.Add(10 * time.Second)
	_, event = Evaluate(cfg, st, good(0, at), at)
	assert.Nil(t, event)
}

// The worked example: samples 0,0,6,4,3.2 then 2.9 at t=0, 2.8 at t=119s,
// 2.7 at t=121s with a 120s idle timeout.
func TestWasherExampleSequence(t *testing.T) {
	cfg := washerConfig()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	st := NewState()
	var event *CompletedEvent

	at := base
	step := func(watts float64) {
		st, event = Evaluate(cfg, st, good(watts, at), at)
	}

	step(0)
	require.Equal(t, PhaseIdle, st.Phase)
	at = at.Add(10 * time.Second)
	step(0)
	require.Equal(t, PhaseIdle, st.Phase)

	at = at.Add(10 * time.Second)
	step(6)
	require.Equal(t, PhaseRunning, st.Phase)
	runningEntry := at

	at = at.Add(10 * time.Second)
	step(4)
	require.Equal(t, PhaseRunning, st.Phase)
	at = at.Add(10 * time.Second)
	step(3.2)
	require.Equal(t, PhaseRunning, st.Phase)

	at = at.Add(10 * time.Second)
	step(2.9)
	require.Equal(t, PhaseFinishing, st.Phase)
	require.Nil(t, event)
	dip := at

	at = dip.Add(119 * time.Second)
	step(2.8)
	require.Equal(t, PhaseFinishing, st.Phase)
	require.Nil(t, event)

	at = dip.Add(121 * time.Second)
	step(2.7)
	require.NotNil(t, event)
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Equal(t, at.Sub(runningEntry), event.Duration)
}

func TestReadFailureFreezesState(t *testing.T) {
	cfg := washerConfig()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	st, _ := Evaluate(cfg, NewState(), good(6, base), base)

	dip := base.Add(10 * time.Minute)
	st, _ = Evaluate(cfg, st, good(2, dip), dip)
	require.Equal(t, PhaseFinishing, st.Phase)

	// Failures during the debounce freeze the anchor
	at := dip.Add(30 * time.Second)
	st, event := Evaluate(cfg, st, failed(at), at)
	require.Nil(t, event)
	assert.Equal(t, PhaseDegraded, st.Phase)
	assert.Equal(t, PhaseFinishing, st.Resume)
	assert.Equal(t, 1, st.Failures)
	assert.Equal(t, dip, st.PhaseEntered)

	at = dip.Add(60 * time.Second)
	st, event = Evaluate(cfg, st, failed(at), at)
	require.Nil(t, event)
	assert.Equal(t, PhaseDegraded, st.Phase)
	assert.Equal(t, 2, st.Failures)

	// Recovery with a low sample continues counting from the original dip,
	// so completion lands 121s after the dip, not after recovery
	at = dip.Add(121 * time.Second)
	st, event = Evaluate(cfg, st, good(1, at), at)
	require.NotNil(t, event)
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Equal(t, 0, st.Failures)
	assert.Equal(t, at.Sub(base), event.Duration)
}

func TestReadFailureNeverCompletesACycle(t *testing.T) {
	cfg := washerConfig()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	st, _ := Evaluate(cfg, NewState(), good(6, base), base)
	require.Equal(t, PhaseRunning, st.Phase)

	// Hours of failures while RUNNING must not look like zero draw
	at := base
	for i := 0; i < 100; i++ {
		at = at.Add(time.Minute)
		var event *CompletedEvent
		st, event = Evaluate(cfg, st, failed(at), at)
		require.Nil(t, event)
	}
	assert.Equal(t, PhaseDegraded, st.Phase)
	assert.Equal(t, 100, st.Failures)

	// Recovery with strong draw resumes RUNNING with the cycle intact
	at = at.Add(time.Minute)
	st, event := Evaluate(cfg, st, good(500, at), at)
	require.Nil(t, event)
	assert.Equal(t, PhaseRunning, st.Phase)
	assert.Equal(t, base, st.CycleStart)
}

func TestDegradedResumeEvaluatesFreshSample(t *testing.T) {
	cfg := washerConfig()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	// Failure while IDLE, then a strong sample: the resume sample itself
	// starts the cycle
	st, _ := Evaluate(cfg, NewState(), failed(base), base)
	require.Equal(t, PhaseDegraded, st.Phase)

	at := base.Add(10 * time.Second)
	st, event := Evaluate(cfg, st, good(400, at), at)
	require.Nil(t, event)
	assert.Equal(t, PhaseRunning, st.Phase)
	assert.Equal(t, at, st.CycleStart)
}

func TestLastGoodIgnoresFailedSamples(t *testing.T) {
	cfg := washerConfig()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	st, _ := Evaluate(cfg, NewState(), good(6, base), base)
	at := base.Add(10 * time.Second)
	st, _ = Evaluate(cfg, st, failed(at), at)

	assert.Equal(t, base, st.LastGood.Time)
	assert.InDelta(t, 6, st.LastGood.Watts, 0.001)
}
