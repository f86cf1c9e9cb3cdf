package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

var (
	// Registry holds the ledger collectors.
	Registry = prometheus.NewRegistry()

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bison",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Total number of scheduled job runs.",
		},
		[]string{"job", "status"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bison",
			Subsystem: "jobs",
			Name:      "run_duration_seconds",
			Help:      "Duration of scheduled job runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"job"},
	)

	jobUserErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bison",
			Subsystem: "jobs",
			Name:      "user_errors_total",
			Help:      "Per-user failures inside batch jobs.",
		},
		[]string{"job"},
	)

	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bison",
			Subsystem: "transfers",
			Name:      "attempts_total",
			Help:      "External transfer attempts by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	credited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bison",
			Subsystem: "ledger",
			Name:      "credited_total",
			Help:      "Amount credited to user balances, in asset units.",
		},
		[]string{"kind"},
	)
)

func init() {
	Registry.MustRegister(
		jobRuns,
		jobDuration,
		jobUserErrors,
		transfers,
		credited,
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordJob(job string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	jobRuns.WithLabelValues(job, status).Inc()
	jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func RecordJobUserError(job string) {
	jobUserErrors.WithLabelValues(job).Inc()
}

func RecordTransfer(kind, outcome string) {
	transfers.WithLabelValues(kind, outcome).Inc()
}

func RecordCredit(kind string, amount decimal.Decimal) {
	if amount.Sign() <= 0 {
		return
	}
	credited.WithLabelValues(kind).Add(amount.InexactFloat64())
}
