// Package observability provides logging, metrics, and tracing for the
// database degradation demo. Spans, metrics, and logs are pushed to an
// external collector; the schema and aggregation live in the backend.
package observability

import (
	"log/slog"
	"os"

	"github.com/fairyhunter13/db-degradation-demo/internal/config"
)

// SetupLogger configures a JSON slog logger with environment fields.
// Errors from this subsystem are always logged with structured fields
// so they can be joined with exported spans in the backend.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
}
