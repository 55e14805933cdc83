package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "helpr"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Committed booking transitions by target status.",
		},
		[]string{"to"},
	)

	transitionConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transition_conflicts_total",
			Help:      "Booking transitions lost to a concurrent writer.",
		},
	)

	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Persisted chat messages by type.",
		},
		[]string{"type"},
	)

	realtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_connections",
			Help:      "Currently open real-time connections.",
		},
	)

	realtimeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_total",
			Help:      "Inbound real-time events by name and outcome.",
		},
		[]string{"event", "outcome"},
	)

	realtimeDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_dropped_total",
			Help:      "Outbound frames dropped because a client could not keep up.",
		},
	)

	auditRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_records_total",
			Help:      "Admin audit records written by action type.",
		},
		[]string{"action"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			bookingTransitions,
			transitionConflicts,
			messagesSent,
			realtimeConnections,
			realtimeEvents,
			realtimeDropped,
			auditRecords,
		)
	})
}

func ObserveHTTP(route string, code int, dur time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(dur.Seconds())
}

func IncTransition(to string) {
	bookingTransitions.WithLabelValues(to).Inc()
}

func IncTransitionConflict() {
	transitionConflicts.Inc()
}

func IncMessage(msgType string) {
	messagesSent.WithLabelValues(msgType).Inc()
}

func ConnectionOpened() {
	realtimeConnections.Inc()
}

func ConnectionClosed() {
	realtimeConnections.Dec()
}

func IncRealtimeEvent(event string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	realtimeEvents.WithLabelValues(event, outcome).Inc()
}

func IncDropped() {
	realtimeDropped.Inc()
}

func IncAudit(action string) {
	auditRecords.WithLabelValues(action).Inc()
}
