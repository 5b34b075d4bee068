package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// ModuleMetrics returns the lazily-initialised registry recording JSON-RPC
// module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftylend",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftylend",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by method and status code.",
			}, []string{"method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nftylend",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code is the
// HTTP status ultimately written to the response.
func (m *moduleMetrics) Observe(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(method, statusLabel(status)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

// LedgerMetrics counts lending engine outcomes for dashboards and alerting.
type LedgerMetrics struct {
	DesksCreated prometheus.Counter
	Originations prometheus.Counter
	Payments     prometheus.Counter
	Liquidations prometheus.Counter
}

// Ledger returns the lazily-initialised engine outcome counters.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			DesksCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nftylend",
				Subsystem: "ledger",
				Name:      "desks_created_total",
				Help:      "Total lending desks created.",
			}),
			Originations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nftylend",
				Subsystem: "ledger",
				Name:      "loans_originated_total",
				Help:      "Total loans originated.",
			}),
			Payments: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nftylend",
				Subsystem: "ledger",
				Name:      "loan_payments_total",
				Help:      "Total loan payments accepted.",
			}),
			Liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nftylend",
				Subsystem: "ledger",
				Name:      "loans_liquidated_total",
				Help:      "Total defaulted loans liquidated.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.DesksCreated,
			ledgerRegistry.Originations,
			ledgerRegistry.Payments,
			ledgerRegistry.Liquidations,
		)
	})
	return ledgerRegistry
}
