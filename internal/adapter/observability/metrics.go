package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fairyhunter13/db-degradation-demo/internal/domain"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	DBQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_queries_total",
			Help: "Total number of database queries by operation and outcome",
		},
		[]string{"operation", "status"},
	)
	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds, fault delays included",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"operation"},
	)

	PoolActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "db_pool_active_connections",
		Help: "Connections currently borrowed from the pool, fault holds included",
	})
	PoolMaxConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "db_pool_max_connections",
		Help: "Configured pool capacity",
	})
	PoolUtilizationPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "db_pool_utilization_percent",
		Help: "Pool utilization as a percentage of capacity",
	})

	FaultInjectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fault_injections_total",
			Help: "Administrative fault-injection state changes",
		},
		[]string{"mode"},
	)
)

// InitMetrics registers all collectors. Call exactly once per process.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(DBQueriesTotal)
	prometheus.MustRegister(DBQueryDuration)
	prometheus.MustRegister(PoolActiveConnections)
	prometheus.MustRegister(PoolMaxConnections)
	prometheus.MustRegister(PoolUtilizationPercent)
	prometheus.MustRegister(FaultInjectionsTotal)
}

// ObserveQuery records one query outcome.
func ObserveQuery(operation, status string, dur time.Duration) {
	DBQueriesTotal.WithLabelValues(operation, status).Inc()
	DBQueryDuration.WithLabelValues(operation).Observe(dur.Seconds())
}

// UpdatePoolGauges mirrors a PoolStats snapshot into Prometheus.
func UpdatePoolGauges(st domain.PoolStats) {
	PoolActiveConnections.Set(float64(st.Active))
	PoolMaxConnections.Set(float64(st.Max))
	PoolUtilizationPercent.Set(st.UtilizationPercent)
}

// RecordFaultInjection counts an administrative fault-state change.
func RecordFaultInjection(mode domain.FaultMode) {
	FaultInjectionsTotal.WithLabelValues(string(mode)).Inc()
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside the chi router; guard nil.
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}
