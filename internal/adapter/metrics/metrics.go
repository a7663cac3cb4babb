package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes used as the "status" label of RequestsTotal.
const (
	StatusAccepted      = "accepted"
	StatusPassthrough   = "passthrough"
	StatusRateLimited   = "rate_limited"
	StatusInvalidAction = "invalid_action"
	StatusInvalidParams = "invalid_params"
	StatusStoreError    = "store_error"
)

// IngestMetrics holds all Prometheus metrics for the ingest service.
type IngestMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	BytesTotal      prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsTotal   prometheus.Counter
	TrackedClients  prometheus.Gauge
	MirrorFailures  prometheus.Counter
	ArchivedRecords prometheus.Counter
}

// NewIngestMetrics creates the metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	factory := promauto.With(reg)
	return &IngestMetrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "log_relay",
			Subsystem: "ingest",
			Name:      "requests_total",
			Help:      "Total number of frames handled, by outcome.",
		}, []string{"status"}),
		BytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "log_relay",
			Subsystem: "ingest",
			Name:      "bytes_appended_total",
			Help:      "Total number of bytes appended to daily log files.",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "log_relay",
			Subsystem: "tcp",
			Name:      "sessions_active",
			Help:      "Number of open client sessions.",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "log_relay",
			Subsystem: "tcp",
			Name:      "sessions_total",
			Help:      "Total number of accepted client sessions.",
		}),
		TrackedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "log_relay",
			Subsystem: "ratelimit",
			Name:      "tracked_clients",
			Help:      "Number of client addresses with activity inside the rate window.",
		}),
		MirrorFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "log_relay",
			Subsystem: "mirror",
			Name:      "publish_failures_total",
			Help:      "Total number of records that could not be mirrored to the stream.",
		}),
		ArchivedRecords: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "log_relay",
			Subsystem: "archive",
			Name:      "records_total",
			Help:      "Total number of records written to the archive database.",
		}),
	}
}
