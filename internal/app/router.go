// Package app wires configuration, adapters, and routes into a running
// HTTP surface.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/db-degradation-demo/internal/adapter/httpserver"
	"github.com/fairyhunter13/db-degradation-demo/internal/adapter/observability"
	"github.com/fairyhunter13/db-degradation-demo/internal/config"
	"github.com/fairyhunter13/db-degradation-demo/internal/tracectx"
)

// ParseOrigins splits a comma-separated origin list into a slice,
// trimming spaces. An empty input means all origins.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middleware and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server, prop *tracectx.Propagator) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.TraceMiddleware(prop))
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(30 * time.Second))
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Administrative fault-injection endpoints; rate limited so a demo
	// audience poking at them cannot flood state changes.
	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		wr.Post("/demo/enable-slow-queries", srv.EnableSlowQueriesHandler())
		wr.Post("/demo/enable-pool-exhaustion", srv.EnablePoolExhaustionHandler())
		wr.Post("/demo/reset", srv.ResetHandler())
		wr.Post("/demo/scenarios/{name}", srv.ApplyScenarioHandler())
	})
	r.Get("/demo/scenarios", srv.ScenariosHandler())

	// Demo workload
	r.Get("/api/products", srv.ProductsHandler())
	r.Get("/api/products/{id}", srv.ProductHandler())
	r.Get("/api/recommendations", srv.RecommendationsHandler())

	// Health and metrics
	r.Get("/health", srv.HealthHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	return httpserver.SecurityHeaders(r)
}
