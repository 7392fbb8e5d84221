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
	MergeCycles        prometheus.Counter
	PollErrors         *prometheus.CounterVec
	RealtimeBatches    prometheus.Counter
	RealtimeReconnects prometheus.Counter
	ChatIngested       *prometheus.CounterVec
	ChatEvicted        prometheus.Counter

	// Gauges
	CatalogSizeGauge  prometheus.Gauge
	GhostCountGauge   prometheus.Gauge
	ChatBufferGauge   prometheus.Gauge
	ChatAdaptersGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MergeCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "dock_merge_cycles_total", Help: "Number of registry merge cycles applied"})
		PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "dock_poll_errors_total", Help: "Number of failed liveness polls"}, []string{"platform"})
		RealtimeBatches = promauto.NewCounter(prometheus.CounterOpts{Name: "dock_realtime_batches_total", Help: "Number of realtime feed snapshots applied"})
		RealtimeReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "dock_realtime_reconnects_total", Help: "Number of realtime feed reconnect attempts"})
		ChatIngested = promauto.NewCounterVec(prometheus.CounterOpts{Name: "dock_chat_messages_total", Help: "Number of chat messages ingested"}, []string{"platform"})
		ChatEvicted = promauto.NewCounter(prometheus.CounterOpts{Name: "dock_chat_evicted_total", Help: "Number of chat messages evicted from the bounded buffer"})
		CatalogSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "dock_catalog_size", Help: "Current number of merged catalog entries"})
		GhostCountGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "dock_ghost_count", Help: "Current number of retained ghost records"})
		ChatBufferGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "dock_chat_buffer_size", Help: "Current number of retained chat messages"})
		ChatAdaptersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "dock_chat_adapters", Help: "Current number of running chat source adapters"})
	})
}

// CountMergeCycle increments the merge cycle counter if metrics are initialized.
func CountMergeCycle() {
	if MergeCycles != nil {
		MergeCycles.Inc()
	}
}

// CountPollError records a failed poll for a platform.
func CountPollError(platform string) {
	if PollErrors != nil {
		PollErrors.WithLabelValues(platform).Inc()
	}
}

// CountRealtimeBatch records an applied realtime snapshot.
func CountRealtimeBatch() {
	if RealtimeBatches != nil {
		RealtimeBatches.Inc()
	}
}

// CountRealtimeReconnect records a reconnect attempt on the realtime feed.
func CountRealtimeReconnect() {
	if RealtimeReconnects != nil {
		RealtimeReconnects.Inc()
	}
}

// CountChatIngested records one ingested chat message per source platform.
func CountChatIngested(platform string) {
	if ChatIngested != nil {
		ChatIngested.WithLabelValues(platform).Inc()
	}
}

// CountChatEvicted records messages dropped by buffer eviction.
func CountChatEvicted(n int) {
	if ChatEvicted != nil && n > 0 {
		ChatEvicted.Add(float64(n))
	}
}

// SetCatalogSize records the merged catalog size.
func SetCatalogSize(n int) {
	if CatalogSizeGauge != nil {
		CatalogSizeGauge.Set(float64(n))
	}
}

// SetGhostCount records the retained ghost count.
func SetGhostCount(n int) {
	if GhostCountGauge != nil {
		GhostCountGauge.Set(float64(n))
	}
}

// SetChatBufferSize records the retained chat message count.
func SetChatBufferSize(n int) {
	if ChatBufferGauge != nil {
		ChatBufferGauge.Set(float64(n))
	}
}

// SetChatAdapters records how many chat adapters are running.
func SetChatAdapters(n int) {
	if ChatAdaptersGauge != nil {
		ChatAdaptersGauge.Set(float64(n))
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
