// Package metrics provides Prometheus metrics for monitoring proxydl.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts control API requests by command and status.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxydl_requests_total",
			Help: "Total number of control API requests processed",
		},
		[]string{"command", "status"},
	)

	// RequestDuration tracks control API request duration by command.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proxydl_request_duration_seconds",
			Help:    "Control API request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"command"},
	)

	// ProxyExchanges counts exchanges seen by the intercepting proxy.
	ProxyExchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxydl_proxy_exchanges_total",
			Help: "Total HTTP exchanges dispatched to traffic filters by phase",
		},
		[]string{"phase"},
	)

	// DownloadsCaptured counts responses recorded as downloaded files.
	DownloadsCaptured = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proxydl_downloads_captured_total",
			Help: "Total responses captured as downloaded files",
		},
	)

	// DownloadsDiscarded counts captured responses that were dropped.
	DownloadsDiscarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxydl_downloads_discarded_total",
			Help: "Total captured responses dropped by reason",
		},
		[]string{"reason"},
	)

	// WaitDuration tracks polling waits by kind and outcome.
	WaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proxydl_wait_duration_seconds",
			Help:    "Duration of condition polling waits",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"kind", "outcome"},
	)

	// OperationsTotal counts reported operations by label and status.
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxydl_operations_total",
			Help: "Total browser operations by label and status",
		},
		[]string{"label", "status"},
	)

	// ActiveSessions shows current active sessions.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "proxydl_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// MemoryUsageBytes shows current memory usage.
	MemoryUsageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "proxydl_memory_usage_bytes",
			Help: "Current memory usage in bytes (alloc)",
		},
	)

	// GoroutineCount shows current goroutine count.
	GoroutineCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "proxydl_goroutines",
			Help: "Current number of goroutines",
		},
	)

	// BuildInfo provides build information as labels.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "proxydl_build_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ProxyExchanges,
		DownloadsCaptured,
		DownloadsDiscarded,
		WaitDuration,
		OperationsTotal,
		ActiveSessions,
		MemoryUsageBytes,
		GoroutineCount,
		BuildInfo,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// StartMemoryCollector periodically updates memory metrics until stopCh is closed.
func StartMemoryCollector(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			updateMemoryMetrics()
		case <-stopCh:
			return
		}
	}
}

func updateMemoryMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsageBytes.Set(float64(m.Alloc))
	GoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// RecordRequest records metrics for a completed control API request.
func RecordRequest(command, status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(command, status).Inc()
	RequestDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordExchange counts an exchange dispatched in the given phase.
func RecordExchange(phase string) {
	ProxyExchanges.WithLabelValues(phase).Inc()
}

// RecordDownloadCaptured counts a captured file.
func RecordDownloadCaptured() {
	DownloadsCaptured.Inc()
}

// RecordDownloadDiscarded counts a dropped capture.
func RecordDownloadDiscarded(reason string) {
	DownloadsDiscarded.WithLabelValues(reason).Inc()
}

// ObserveWait records the duration of a polling wait.
func ObserveWait(kind string, satisfied bool, d time.Duration) {
	outcome := "satisfied"
	if !satisfied {
		outcome = "timeout"
	}
	WaitDuration.WithLabelValues(kind, outcome).Observe(d.Seconds())
}

// RecordOperation counts a reported operation.
func RecordOperation(label, status string) {
	OperationsTotal.WithLabelValues(label, status).Inc()
}

// UpdateSessionMetrics updates session count metric.
func UpdateSessionMetrics(count int) {
	ActiveSessions.Set(float64(count))
}
