package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quackquery_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route pattern.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quackquery_webhook_events_total",
			Help: "Payment webhook deliveries by event type and reconciliation outcome.",
		},
		[]string{"type", "outcome"},
	)

	EntitlementChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quackquery_entitlement_checks_total",
			Help: "Entitlement resolutions by result (granted, denied, error).",
		},
		[]string{"result"},
	)

	DownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quackquery_downloads_total",
			Help: "Download requests by platform and result.",
		},
		[]string{"platform", "result"},
	)

	ReconciledPaymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quackquery_reconciled_payments_total",
			Help: "Payments activated for a user, by path (webhook, signup, sweep, grant).",
		},
		[]string{"path"},
	)
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestDurationSeconds,
		WebhookEventsTotal,
		EntitlementChecksTotal,
		DownloadsTotal,
		ReconciledPaymentsTotal,
	)
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
