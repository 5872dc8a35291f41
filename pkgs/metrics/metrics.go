package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	// RelayRequests counts inbound relay requests by contract kind and outcome
	RelayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vote_relayer",
		Name:      "relay_requests_total",
		Help:      "Relay requests received, labeled by contract kind and outcome",
	}, []string{"contract", "outcome"})

	// Rejections counts rejected requests by stable rejection code
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vote_relayer",
		Name:      "rejections_total",
		Help:      "Rejected relay requests by rejection code",
	}, []string{"code"})

	// SubmissionAttempts counts broadcast attempts, including retries
	SubmissionAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vote_relayer",
		Name:      "submission_attempts_total",
		Help:      "Transaction broadcast attempts including retries",
	})

	// Confirmations counts terminal transaction outcomes
	Confirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vote_relayer",
		Name:      "confirmations_total",
		Help:      "Transaction outcomes after confirmation polling",
	}, []string{"status"}) // confirmed, reverted, timeout

	// ValidationDuration times the validation pipeline
	ValidationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vote_relayer",
		Name:      "validation_duration_seconds",
		Help:      "Time spent validating a relay request",
		Buckets:   prometheus.DefBuckets,
	})

	// SubmissionDuration times broadcast through propagation
	SubmissionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vote_relayer",
		Name:      "submission_duration_seconds",
		Help:      "Time from first broadcast attempt to mempool propagation",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
	})

	// ApprovalBackendDemotions counts fallback-only demotions of the approval store
	ApprovalBackendDemotions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vote_relayer",
		Name:      "approval_backend_demotions_total",
		Help:      "Times the remote approval backend was demoted after a permission error",
	})
)

// ObserveSince records the elapsed time since start on a histogram
func ObserveSince(h prometheus.Histogram, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Serve exposes /metrics on the given address. Blocks, so callers run it in a
// goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Infof("Metrics listener on %s", addr)
	return http.ListenAndServe(addr, mux)
}
