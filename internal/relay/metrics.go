package relay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	Verifications *prometheus.CounterVec
	Submissions   *prometheus.CounterVec
	MailDuration  prometheus.Histogram
}

// NewMetrics registers on a registry of its own so several servers can live
// in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contact_relay_verifications_total",
			Help: "Captcha verifications by site and result",
		}, []string{"site", "result"}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contact_relay_submissions_total",
			Help: "Contact submissions by site and result",
		}, []string{"site", "result"}),
		MailDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "contact_relay_mail_duration_seconds",
			Help:    "Time spent handing a message to SMTP, pacing included",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) verification(site, result string) {
	m.Verifications.WithLabelValues(site, result).Inc()
}

func (m *Metrics) submission(site, result string) {
	m.Submissions.WithLabelValues(site, result).Inc()
}
