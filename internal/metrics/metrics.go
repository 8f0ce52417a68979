package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sponsorship",
			Name:      "gateway_requests",
			Help:      "Time taken to process payment gateway requests",
			Buckets:   []float64{.005, .01, .025, .05, .075, .1, .15, .2, .25, .5, 1, 2.5, 5, 10, 15, 30},
		},
		[]string{"client", "method", "error"},
	)

	TransitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sponsorship",
			Name:      "state_transitions_total",
			Help:      "Number of applied state transitions",
		}, []string{"entity", "from", "to"},
	)

	ReconcileAffectedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sponsorship",
			Name:      "reconcile_affected_total",
			Help:      "Rows transitioned by reconciliation jobs",
		}, []string{"job"},
	)

	ReconcileSkippedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sponsorship",
			Name:      "reconcile_skipped_total",
			Help:      "Rows skipped by reconciliation jobs due to concurrent changes or errors",
		}, []string{"job"},
	)

	DonationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sponsorship",
			Name:      "donations_recorded_total",
			Help:      "Recorded charge attempts",
		}, []string{"provider", "status"},
	)

	WebhookRequestsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sponsorship",
			Name:      "webhook_requests_total",
			Help:      "Provider webhook requests by event type and response status",
		}, []string{"provider", "event_type", "status"},
	)

	WebhookDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sponsorship",
			Name:      "webhook_duration_seconds",
			Help:      "Time taken to process provider webhooks",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "event_type"},
	)
)

func CollectRequestsMetric(client, method string, err error, start time.Time) {
	RequestsHistogram.
		WithLabelValues(client, method, errLabelValue(err)).
		Observe(time.Since(start).Seconds())
}

func CollectTransition(entity, from, to string) {
	TransitionsCounter.
		WithLabelValues(entity, from, to).
		Inc()
}

func CollectReconcile(job string, affected, skipped int) {
	ReconcileAffectedCounter.WithLabelValues(job).Add(float64(affected))
	ReconcileSkippedCounter.WithLabelValues(job).Add(float64(skipped))
}

func CollectDonation(provider, status string) {
	DonationsCounter.
		WithLabelValues(provider, status).
		Inc()
}

func CollectWebhook(provider, eventType string, status int, start time.Time) {
	WebhookRequestsCounter.WithLabelValues(provider, eventType, strconv.Itoa(status)).Inc()
	WebhookDuration.WithLabelValues(provider, eventType).Observe(time.Since(start).Seconds())
}

// ErrLabelValue returns string representation of error label value
func errLabelValue(err error) string {
	if err != nil {
		return "true"
	}
	return "false"
}
