package metrics

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/bnema/helper-gateway/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "hg"

// Recorder exports gateway and realtime observations on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	retries    *prometheus.CounterVec
	cooldowns  *prometheus.HistogramVec
	refreshes  *prometheus.CounterVec
	reconnects *prometheus.CounterVec
}

var _ ports.Metrics = (*Recorder)(nil)

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Gateway requests by endpoint and outcome.",
		}, []string{"method", "endpoint", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_retries_total",
			Help:      "Gateway retries by endpoint and reason.",
		}, []string{"endpoint", "reason"}),
		cooldowns: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_cooldown_seconds",
			Help:      "Client-side cooldowns imposed after rate limiting.",
			Buckets:   []float64{1, 5, 15, 30, 45, 60, 120, 300, 600},
		}, []string{"endpoint"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_refreshes_total",
			Help:      "Credential refresh attempts by result.",
		}, []string{"result"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_reconnects_total",
			Help:      "Realtime reconnect attempts by outcome.",
		}, []string{"outcome"}),
	}

	r.registry.MustRegister(r.requests, r.retries, r.cooldowns, r.refreshes, r.reconnects)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) ObserveRequest(method, endpoint, outcome string) {
	r.requests.WithLabelValues(method, NormalizeEndpoint(endpoint), outcome).Inc()
}

func (r *Recorder) ObserveRetry(endpoint, reason string) {
	r.retries.WithLabelValues(NormalizeEndpoint(endpoint), reason).Inc()
}

func (r *Recorder) ObserveCooldown(endpoint string, d time.Duration) {
	r.cooldowns.WithLabelValues(NormalizeEndpoint(endpoint)).Observe(d.Seconds())
}

func (r *Recorder) ObserveRefresh(ok bool) {
	result := "failed"
	if ok {
		result = "ok"
	}
	r.refreshes.WithLabelValues(result).Inc()
}

func (r *Recorder) ObserveReconnect(outcome string) {
	r.reconnects.WithLabelValues(outcome).Inc()
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// NormalizeEndpoint drops the query and replaces path segments carrying
// identifiers with ":id" so label cardinality stays bounded.
func NormalizeEndpoint(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}

	segments := strings.Split(endpoint, "/")
	for i, segment := range segments {
		if strings.IndexFunc(segment, unicode.IsDigit) >= 0 {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}
