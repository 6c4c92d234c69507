package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsGenerator interface {
	IncRebuild(status string)
	IncEstimate(status string)
	IncSubmission(outcome string)
	IncRelayPoll(state string)
	ObserveSubmissionLatency(d time.Duration)
}

// BundlerMetrics contains instrumented metrics that should be incremented by
// the submission controller and relay client using the methods below
type BundlerMetrics struct {
	numRebuild        *prometheus.CounterVec
	numEstimate       *prometheus.CounterVec
	numSubmission     *prometheus.CounterVec
	numRelayPoll      *prometheus.CounterVec
	submissionLatency prometheus.Histogram
}

const apNamespace = "ap_bundler"

func NewBundlerMetrics(reg prometheus.Registerer) *BundlerMetrics {
	return &BundlerMetrics{
		numRebuild: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Name:      "num_rebuild_total",
				Help:      "The number of bundle rebuild cycles. If it isn't increasing, the periodic job is stuck",
			}, []string{"status"}),

		numEstimate: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Name:      "num_estimate_total",
				Help:      "The number of fee estimations by outcome",
			}, []string{"status"}),

		numSubmission: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Name:      "num_submission_total",
				Help:      "The number of user triggered submissions by outcome",
			}, []string{"outcome"}),

		numRelayPoll: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: apNamespace,
				Name:      "num_relay_poll_total",
				Help:      "The number of relay task status queries by reported state",
			}, []string{"state"}),

		submissionLatency: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: apNamespace,
				Name:      "submission_latency_seconds",
				Help:      "Time from submit until the relay task reached a terminal state",
				Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
			}),
	}
}

func (m *BundlerMetrics) IncRebuild(status string) {
	m.numRebuild.WithLabelValues(status).Inc()
}

func (m *BundlerMetrics) IncEstimate(status string) {
	m.numEstimate.WithLabelValues(status).Inc()
}

func (m *BundlerMetrics) IncSubmission(outcome string) {
	m.numSubmission.WithLabelValues(outcome).Inc()
}

func (m *BundlerMetrics) IncRelayPoll(state string) {
	m.numRelayPoll.WithLabelValues(state).Inc()
}

func (m *BundlerMetrics) ObserveSubmissionLatency(d time.Duration) {
	m.submissionLatency.Observe(d.Seconds())
}

type NoopMetrics struct{}

func (NoopMetrics) IncRebuild(string)                      {}
func (NoopMetrics) IncEstimate(string)                     {}
func (NoopMetrics) IncSubmission(string)                   {}
func (NoopMetrics) IncRelayPoll(string)                    {}
func (NoopMetrics) ObserveSubmissionLatency(time.Duration) {}

// EnsureMetrics returns a no-op generator when m is nil.
func EnsureMetrics(m MetricsGenerator) MetricsGenerator {
	if m == nil {
		return NoopMetrics{}
	}
	return m
}
