package device

import (
	"context"
	"time"

	"appliancemon/internal/cycle"
)

// Sampler turns raw device reads into uniform cycle samples. A transport
// failure becomes a failure-tagged sample, never zero watts: the state
// machine must be able to tell "unreachable" from "idle".
type Sampler struct {
	client  Client
	timeout time.Duration
}

// NewSampler wraps client with a per-read timeout.
func NewSampler(client Client, timeout time.Duration) *Sampler {
	return &Sampler{
		client:  client,
		timeout: timeout,
	}
}

// Sample reads the current draw for deviceID. It does not retry.
func (s *Sampler) Sample(ctx context.Context, deviceID string) cycle.Sample {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sample := cycle.Sample{
		DeviceID: deviceID,
		Time:     time.Now(),
	}

	watts, err := s.client.Power(ctx, deviceID)
	if err != nil {
		sample.Err = err

		return sample
	}

	sample.Watts = watts

	return sample
}
