package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ngwarden_event_duration_seconds",
	Help:    "Time spent deciding on one inbound event",
	Buckets: prometheus.DefBuckets,
}, []string{"kind"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ngwarden_events_processed_total",
	Help: "Number of inbound events processed",
}, []string{"kind"})

var eventDuplicateCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ngwarden_events_duplicate_total",
	Help: "Number of re-delivered events skipped",
})

var verdictCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ngwarden_verdicts_total",
	Help: "Number of verdicts dispatched",
}, []string{"kind", "reason"})

var gatewayFailureCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ngwarden_gateway_failures_total",
	Help: "Number of outbound actions that did not reach the gateway",
}, []string{"action"})

var captchaOutcomeCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ngwarden_captcha_outcomes_total",
	Help: "Number of captcha challenge outcomes",
}, []string{"outcome"})

var blacklistedAdminCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ngwarden_blacklisted_admin_events_total",
	Help: "Number of events from blacklisted members exempt as admins",
})

var laneQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "ngwarden_lane_queue_depth",
	Help: "Number of events waiting in a processing lane",
}, []string{"lane"})

func ObserveEvent(kind string, started time.Time) {
	eventProcessCount.WithLabelValues(kind).Inc()
	eventProcessDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

func RecordDuplicateEvent() {
	eventDuplicateCount.Inc()
}

func RecordVerdict(kind, reason string) {
	verdictCount.WithLabelValues(kind, reason).Inc()
}

func RecordGatewayFailure(action string) {
	gatewayFailureCount.WithLabelValues(action).Inc()
}

func RecordCaptchaOutcome(outcome string) {
	captchaOutcomeCount.WithLabelValues(outcome).Inc()
}

func RecordBlacklistedAdmin() {
	blacklistedAdminCount.Inc()
}

func SetLaneDepth(lane string, depth int) {
	laneQueueDepth.WithLabelValues(lane).Set(float64(depth))
}
