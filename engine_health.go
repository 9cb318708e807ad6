package authcore

import (
	"context"
	"time"
)

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

// Health pings the security backend and reports availability and latency.
// When Redis is down the engine fails closed for every operation that touches
// attempt windows or the refresh blacklist, so callers typically surface this
// as a readiness probe.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.blacklist == nil {
		return HealthStatus{}
	}

	latency, err := e.blacklist.Ping(ctx)
	return HealthStatus{
		RedisAvailable: err == nil,
		RedisLatency:   latency,
	}
}
