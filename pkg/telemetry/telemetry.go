// Package telemetry holds the service's Prometheus collectors and tracer.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every span the service starts.
const TracerName = "github.com/nicktill/carbondash"

var (
	rendersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carbondash_renders_total",
		Help: "Dashboard renders by dashboard and outcome",
	}, []string{"dashboard", "outcome"})

	renderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carbondash_render_duration_seconds",
		Help:    "Dashboard render latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"dashboard"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carbondash_query_duration_seconds",
		Help:    "Executor query latency by pipeline operation",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"op"})

	memoHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carbondash_memo_hits_total",
		Help: "Queries answered from the per-render memo",
	})

	importedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carbondash_imported_records_total",
		Help: "Records appended by the importer",
	})

	refreshBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carbondash_refresh_broadcasts_total",
		Help: "Source change notifications sent to websocket clients",
	})
)

// Tracer returns the service tracer. Spans are no-ops until a provider is installed.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// RecordRender counts one render and its latency.
func RecordRender(dashboard string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	rendersTotal.WithLabelValues(dashboard, outcome).Inc()
	renderDuration.WithLabelValues(dashboard).Observe(elapsed.Seconds())
}

// QueryTimer starts a latency timer for one pipeline operation.
func QueryTimer(op string) *prometheus.Timer {
	return prometheus.NewTimer(queryDuration.WithLabelValues(op))
}

// MemoHit counts a query served from the memo.
func MemoHit() { memoHits.Inc() }

// RecordImport counts appended records.
func RecordImport(n int) { importedRecords.Add(float64(n)) }

// RefreshBroadcast counts a change notification.
func RefreshBroadcast() { refreshBroadcasts.Inc() }

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
