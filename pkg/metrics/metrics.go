package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// HTTP metrics
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec

	// Notification dispatch
	NotificationsDelivered *prometheus.CounterVec
	SubscriptionsRemoved   prometheus.Counter
	DispatchDuration       prometheus.Histogram

	// Transactional email
	EmailsSent *prometheus.CounterVec

	// Recurring rides
	OccurrencesCreated prometheus.Counter
	OccurrencesSkipped *prometheus.CounterVec
	SweepDuration      prometheus.Histogram

	// Background side effects
	TasksFailed *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics with the default registry.
func NewMetrics(namespace string) *Metrics {
	return newMetrics(namespace, promauto.With(prometheus.DefaultRegisterer))
}

// New creates metrics registered against reg. Tests pass a fresh registry.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	return newMetrics(namespace, promauto.With(reg))
}

func newMetrics(namespace string, f promauto.Factory) *Metrics {
	return &Metrics{
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		NotificationsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "deliveries_total",
			Help:      "Push deliveries by platform and result",
		}, []string{"platform", "result"}),
		SubscriptionsRemoved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "subscriptions_removed_total",
			Help:      "Subscriptions deleted after the transport reported them gone",
		}),
		DispatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent fanning a notification out to all subscriptions",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		EmailsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "email",
			Name:      "sent_total",
			Help:      "Transactional emails by category and result",
		}, []string{"category", "result"}),
		OccurrencesCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recurring",
			Name:      "occurrences_created_total",
			Help:      "Ride occurrences materialized from recurring rides",
		}),
		OccurrencesSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recurring",
			Name:      "occurrences_skipped_total",
			Help:      "Recurring rides not materialized, by reason",
		}, []string{"reason"}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "recurring",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of the daily recurring ride sweep",
		}),
		TasksFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "tasks_failed_total",
			Help:      "Detached background tasks that returned an error or panicked",
		}, []string{"task"}),
		DatabaseOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}
