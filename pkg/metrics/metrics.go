package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	// Scheduling
	AppointmentsBooked     prometheus.Counter
	SchedulingConflicts    prometheus.Counter
	AppointmentTransitions *prometheus.CounterVec
	LockWait               prometheus.Histogram

	// Audit trail
	AuditWrites        prometheus.Counter
	AuditWriteFailures prometheus.Counter
	AuditDropped       prometheus.Counter
	AuditQueueDepth    prometheus.Gauge

	// Privacy
	Erasures *prometheus.CounterVec

	// Database
	DatabaseOperations *prometheus.CounterVec
}

// New creates all application metrics and registers them with reg.
// A nil reg keeps them on a private registry, which is what tests want.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),

		AppointmentsBooked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "appointments_booked_total",
			Help:      "Total number of appointments created",
		}),
		SchedulingConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "conflicts_total",
			Help:      "Total number of proposals rejected for overlapping an existing booking",
		}),
		AppointmentTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "transitions_total",
			Help:      "Appointment status transitions",
		}, []string{"to"}),
		LockWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for a professional's schedule lock",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),

		AuditWrites: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "writes_total",
			Help:      "Total number of audit records persisted",
		}),
		AuditWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "write_failures_total",
			Help:      "Total number of audit records that could not be persisted",
		}),
		AuditDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "dropped_total",
			Help:      "Audit records dropped because the queue stayed full",
		}),
		AuditQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "queue_depth",
			Help:      "Audit records waiting to be written",
		}),

		Erasures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "privacy",
			Name:      "erasures_total",
			Help:      "Patient erasures by outcome",
		}, []string{"outcome"}),

		DatabaseOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}
