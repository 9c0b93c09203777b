// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	DanmuReceived      prometheus.Counter
	RequestsAdmitted   prometheus.Counter
	RequestsRejected   *prometheus.CounterVec
	ConnectAttempts    prometheus.Counter
	ConnectFailures    prometheus.Counter
	SnapshotsPublished *prometheus.CounterVec
	StreamErrors       prometheus.Counter

	// Gauges
	QueueDepthGauge prometheus.Gauge
	ConnectedGauge  prometheus.Gauge // 1=live stream attached, 0=not
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		DanmuReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "huntqueue_danmu_received_total", Help: "Chat messages received from the live stream"})
		RequestsAdmitted = promauto.NewCounter(prometheus.CounterOpts{Name: "huntqueue_requests_admitted_total", Help: "Requests admitted into the queue"})
		RequestsRejected = promauto.NewCounterVec(prometheus.CounterOpts{Name: "huntqueue_requests_rejected_total", Help: "Requests rejected, by reason"}, []string{"reason"})
		ConnectAttempts = promauto.NewCounter(prometheus.CounterOpts{Name: "huntqueue_connect_attempts_total", Help: "Supervisor connect invocations"})
		ConnectFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "huntqueue_connect_failures_total", Help: "Supervisor connect invocations that ended in error"})
		SnapshotsPublished = promauto.NewCounterVec(prometheus.CounterOpts{Name: "huntqueue_snapshots_published_total", Help: "State snapshots broadcast, by channel"}, []string{"channel"})
		StreamErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "huntqueue_stream_errors_total", Help: "Errors reported by the live stream after connect"})
		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "huntqueue_queue_depth", Help: "Current number of queued requests"})
		ConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "huntqueue_stream_connected", Help: "Live stream attached=1 detached=0"})
	})
}

// SetQueueDepth records the current queue length.
func SetQueueDepth(n int) {
	if QueueDepthGauge != nil {
		QueueDepthGauge.Set(float64(n))
	}
}

// SetConnected flips the stream-attached gauge.
func SetConnected(up bool) {
	if ConnectedGauge != nil {
		if up {
			ConnectedGauge.Set(1)
		} else {
			ConnectedGauge.Set(0)
		}
	}
}

// CountDanmu increments the received-message counter.
func CountDanmu() {
	if DanmuReceived != nil {
		DanmuReceived.Inc()
	}
}

// CountAdmitted increments the admitted-request counter.
func CountAdmitted() {
	if RequestsAdmitted != nil {
		RequestsAdmitted.Inc()
	}
}

// CountStreamError increments the post-connect stream error counter.
func CountStreamError() {
	if StreamErrors != nil {
		StreamErrors.Inc()
	}
}

// CountConnectAttempt increments the connect-invocation counter.
func CountConnectAttempt() {
	if ConnectAttempts != nil {
		ConnectAttempts.Inc()
	}
}

// CountConnectFailure increments the failed-connect counter.
func CountConnectFailure() {
	if ConnectFailures != nil {
		ConnectFailures.Inc()
	}
}

// CountRejection increments the rejection counter for a reason label.
func CountRejection(reason string) {
	if RequestsRejected != nil {
		RequestsRejected.WithLabelValues(reason).Inc()
	}
}

// CountSnapshot increments the publish counter for a channel label.
func CountSnapshot(channel string) {
	if SnapshotsPublished != nil {
		SnapshotsPublished.WithLabelValues(channel).Inc()
	}
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger carrying the corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
