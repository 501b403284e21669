package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for EcoLedger.
type Metrics struct {
	// --- Cache ---
	CacheEntries prometheus.Gauge
	CacheDirty   prometheus.Gauge
	CacheOps     *prometheus.CounterVec // op × outcome

	// --- Sessions ---
	SessionLoads   *prometheus.CounterVec // outcome: loaded|defaulted|failed
	SessionUnloads *prometheus.CounterVec // outcome: flushed|failed|absent

	// --- Flushes ---
	FlushDuration prometheus.Histogram
	FlushRows     prometheus.Histogram
	FlushErrors   prometheus.Counter
	FlushesTotal  *prometheus.CounterVec // kind: autosave|shutdown|session_end

	// --- Query API ---
	LeaderboardQueries prometheus.Counter
	HTTPRequests       *prometheus.CounterVec // route × method × status
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		CacheEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "econ_cache_entries",
			Help: "Accounts currently held in the balance cache",
		}),

		CacheDirty: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "econ_cache_dirty",
			Help: "1 if the cache has unsaved changes, 0 otherwise",
		}),

		CacheOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "econ_cache_operations_total",
			Help: "Balance operations by outcome",
		}, []string{"op", "outcome"}),

		SessionLoads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "econ_session_loads_total",
			Help: "Session-start loads by outcome",
		}, []string{"outcome"}),

		SessionUnloads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "econ_session_unloads_total",
			Help: "Session-end unloads by outcome",
		}, []string{"outcome"}),

		FlushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "econ_flush_duration_seconds",
			Help:    "Postgres batch upsert duration",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),

		FlushRows: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "econ_flush_rows",
			Help:    "Accounts written per batch flush",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),

		FlushErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "econ_flush_errors_total",
			Help: "Failed batch flushes",
		}),

		FlushesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "econ_flushes_total",
			Help: "Successful flushes by kind",
		}, []string{"kind"}),

		LeaderboardQueries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "econ_leaderboard_queries_total",
			Help: "Leaderboard queries served",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "econ_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
	}
}
