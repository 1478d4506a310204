// Package metrics exposes Prometheus instrumentation for the registry.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once
	registerErr  error

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	certificatesIssuedTotal *prometheus.CounterVec
	transfersTotal          prometheus.Counter
	requestsSubmittedTotal  prometheus.Counter
	requestsResolvedTotal   *prometheus.CounterVec
	escrowMovedTotal        *prometheus.CounterVec
	verifyCacheTotal        *prometheus.CounterVec
	writeConflictsTotal     prometheus.Counter
)

// Register initializes the collectors and returns the /metrics handler.
// Safe to call more than once.
func Register(registry prometheus.Registerer) (http.Handler, error) {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route and status",
		}, []string{"method", "route", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

		certificatesIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "certificates_issued_total",
			Help: "Certificates issued by certification tier",
		}, []string{"tier"})

		transfersTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "certificate_transfers_total",
			Help: "Completed certificate ownership transfers",
		})

		requestsSubmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "certification_requests_submitted_total",
			Help: "Certification requests submitted",
		})

		requestsResolvedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "certification_requests_resolved_total",
			Help: "Certification requests resolved by outcome",
		}, []string{"outcome"}) // outcome: approved|rejected

		escrowMovedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_moved_units_total",
			Help: "Escrow units moved by direction",
		}, []string{"direction"}) // direction: held|released|refunded

		verifyCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verify_cache_total",
			Help: "Verification cache lookups by result",
		}, []string{"result"}) // result: hit|miss

		writeConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "write_conflicts_total",
			Help: "Optimistic-concurrency conflicts that triggered a resubmit",
		})

		for _, c := range []prometheus.Collector{
			httpRequestsTotal,
			httpRequestDuration,
			certificatesIssuedTotal,
			transfersTotal,
			requestsSubmittedTotal,
			requestsResolvedTotal,
			escrowMovedTotal,
			verifyCacheTotal,
			writeConflictsTotal,
		} {
			if err := registry.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					registerErr = err
					return
				}
			}
		}
	})
	if registerErr != nil {
		return nil, registerErr
	}

	return promhttp.Handler(), nil
}

// ObserveHTTPRequest records one served request
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// CertificateIssued records an issuance for a tier
func CertificateIssued(tier string) {
	if certificatesIssuedTotal != nil {
		certificatesIssuedTotal.WithLabelValues(tier).Inc()
	}
}

// CertificateTransferred records a completed transfer
func CertificateTransferred() {
	if transfersTotal != nil {
		transfersTotal.Inc()
	}
}

// RequestSubmitted records a submitted certification request
func RequestSubmitted() {
	if requestsSubmittedTotal != nil {
		requestsSubmittedTotal.Inc()
	}
}

// RequestResolved records a request outcome ("approved" or "rejected")
func RequestResolved(outcome string) {
	if requestsResolvedTotal != nil {
		requestsResolvedTotal.WithLabelValues(outcome).Inc()
	}
}

// EscrowMoved records escrow units moving ("held", "released", "refunded")
func EscrowMoved(direction string, amount uint64) {
	if escrowMovedTotal != nil {
		escrowMovedTotal.WithLabelValues(direction).Add(float64(amount))
	}
}

// VerifyCacheResult records a cache lookup ("hit" or "miss")
func VerifyCacheResult(result string) {
	if verifyCacheTotal != nil {
		verifyCacheTotal.WithLabelValues(result).Inc()
	}
}

// WriteConflict records a lost optimistic-concurrency race
func WriteConflict() {
	if writeConflictsTotal != nil {
		writeConflictsTotal.Inc()
	}
}
