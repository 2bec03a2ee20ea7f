package gimbal

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on key store events.
type MetricsProvider interface {
	// OnStateChange is called when the store transitions between states.
	OnStateChange(from, to State)

	// OnRefresh is called when an authoritative snapshot is adopted.
	// Duration is the fetch round-trip time.
	OnRefresh(duration time.Duration)

	// OnRefreshDiscarded is called when a stale refresh response is dropped
	// because a newer one was already applied.
	OnRefreshDiscarded()

	// OnUpdateSettled is called when an update cycle completes successfully:
	// optimistic merge, remote write, and trailing refresh.
	OnUpdateSettled(duration time.Duration)

	// OnRollback is called when an optimistic overlay is discarded.
	// Stage is "transport" or "rejected".
	OnRollback(stage string, duration time.Duration)
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnStateChange(_, _ State)             {}
func (NoOpMetricsProvider) OnRefresh(_ time.Duration)            {}
func (NoOpMetricsProvider) OnRefreshDiscarded()                  {}
func (NoOpMetricsProvider) OnUpdateSettled(_ time.Duration)      {}
func (NoOpMetricsProvider) OnRollback(_ string, _ time.Duration) {}
