package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registrations *prometheus.CounterVec // result: ok|class_not_found|class_disabled|duplicate|error
	Issued        *prometheus.CounterVec // result: sent|skipped|mail_failed
	LinkOutcomes  *prometheus.CounterVec // result: delivered|invalid|already_taken|error
	Submissions   *prometheus.CounterVec // result: passed|failed|rejected|error
	Certificates  prometheus.Counter
	MailFailures  prometheus.Counter
	GradeDuration prometheus.Histogram
}

// New registers the service counters on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safetytest_registrations_total",
			Help: "Registration requests by result",
		}, []string{"result"}),
		Issued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safetytest_issued_total",
			Help: "Test links by issuance result",
		}, []string{"result"}),
		LinkOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safetytest_link_outcomes_total",
			Help: "Test link deliveries by outcome",
		}, []string{"result"}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safetytest_submissions_total",
			Help: "Quiz submissions by result",
		}, []string{"result"}),
		Certificates: f.NewCounter(prometheus.CounterOpts{
			Name: "safetytest_certificates_total",
			Help: "Certificates rendered",
		}),
		MailFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "safetytest_mail_failures_total",
			Help: "Outbound mails that failed to send",
		}),
		GradeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "safetytest_submit_duration_seconds",
			Help:    "Time spent handling a submission",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// NewUnregistered is for tests and tools that do not expose /metrics.
func NewUnregistered() *Metrics { return New(prometheus.NewRegistry()) }

// ObserveSince records the elapsed time since start.
func (m *Metrics) ObserveSince(start time.Time) {
	m.GradeDuration.Observe(time.Since(start).Seconds())
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
