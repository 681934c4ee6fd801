package ports

import "time"

// Metrics receives gateway and realtime observations. Implementations must
// be safe for concurrent use.
type Metrics interface {
	ObserveRequest(method, endpoint, outcome string)
	ObserveRetry(endpoint, reason string)
	ObserveCooldown(endpoint string, d time.Duration)
	ObserveRefresh(ok bool)
	ObserveReconnect(outcome string)
}

type NopMetrics struct{}

func (NopMetrics) ObserveRequest(string, string, string) {}
func (NopMetrics) ObserveRetry(string, string)           {}
func (NopMetrics) ObserveCooldown(string, time.Duration) {}
func (NopMetrics) ObserveRefresh(bool)                   {}
func (NopMetrics) ObserveReconnect(string)               {}
