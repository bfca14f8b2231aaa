package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/relief-ledger-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the ledger.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	claims          *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	credits         *prometheus.CounterVec
	txRetries       prometheus.Counter
	sweepReleased   prometheus.Counter
	rateLimited     prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	claims := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_claims_total",
		Help: "Claims by outcome",
	}, []string{"outcome"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transitions_total",
		Help: "Committed offer status transitions",
	}, []string{"from", "to"})

	credits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_reward_credits_total",
		Help: "Reward credit attempts by outcome",
	}, []string{"outcome"})

	txRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_tx_retries_total",
		Help: "Transactions replayed after a serialization failure, deadlock or lock timeout",
	})

	sweepReleased := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_sweep_released_total",
		Help: "Reservations returned to stock by the expiry sweep",
	})

	rateLimited := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_claims_rate_limited_total",
		Help: "Claim requests refused by the rate limiter",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, claims, transitions, credits, txRetries, sweepReleased, rateLimited, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		claims:          claims,
		transitions:     transitions,
		credits:         credits,
		txRetries:       txRetries,
		sweepReleased:   sweepReleased,
		rateLimited:     rateLimited,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordClaim counts a claim outcome.
func (m *MetricsService) RecordClaim(outcome string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(outcome).Inc()
}

// RecordTransition counts a committed status change.
func (m *MetricsService) RecordTransition(from, to models.OfferStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordCredit counts a reward credit outcome.
func (m *MetricsService) RecordCredit(outcome string) {
	if m == nil {
		return
	}
	m.credits.WithLabelValues(outcome).Inc()
}

// RecordSweep adds the releases of one sweep pass.
func (m *MetricsService) RecordSweep(released int) {
	if m == nil || released <= 0 {
		return
	}
	m.sweepReleased.Add(float64(released))
}

// RecordTxRetry matches the TxRunner retry hook signature.
func (m *MetricsService) RecordTxRetry(_ int, _ error) {
	if m == nil {
		return
	}
	m.txRetries.Inc()
}

// RecordRateLimited counts a refused claim request.
func (m *MetricsService) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
