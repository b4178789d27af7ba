// Command server starts one demo service process: its own bounded
// connection pool against the shared database, the instrumented query
// surface, and the fault-injection admin endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairyhunter13/db-degradation-demo/internal/adapter/httpserver"
	"github.com/fairyhunter13/db-degradation-demo/internal/adapter/observability"
	"github.com/fairyhunter13/db-degradation-demo/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/db-degradation-demo/internal/app"
	"github.com/fairyhunter13/db-degradation-demo/internal/config"
	"github.com/fairyhunter13/db-degradation-demo/internal/dbquery"
	"github.com/fairyhunter13/db-degradation-demo/internal/pool"
	"github.com/fairyhunter13/db-degradation-demo/internal/tracectx"
)

// dbHost pulls the database hostname out of the DSN for the
// net.peer.name span attribute. Falls back to localhost so the
// attribute is never empty.
func dbHost(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return "localhost"
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	dialer, err := postgres.NewDialer(cfg.DBURL)
	if err != nil {
		slog.Error("invalid database url", slog.Any("error", err))
		os.Exit(1)
	}
	if err := postgres.WaitForDatabase(ctx, dialer, cfg.DBConnectBackoff); err != nil {
		slog.Error("database not reachable", slog.Any("error", err))
		os.Exit(1)
	}

	dbPool, err := pool.New(ctx, pool.Config{
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		AcquireTimeout: cfg.DBAcquireTimeout,
	}, dialer, logger)
	if err != nil {
		slog.Error("pool creation failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbPool.Close()
	observability.UpdatePoolGauges(dbPool.Stats())

	scenarios, err := config.LoadScenarios(cfg.ScenariosPath)
	if err != nil {
		slog.Error("failed to load scenarios", slog.Any("error", err))
		os.Exit(1)
	}
	if len(scenarios) > 0 {
		slog.Info("fault scenarios loaded", slog.Int("count", len(scenarios)))
	}

	exec := dbquery.New(dbPool, cfg.DBName, dbHost(cfg.DBURL), cfg.DBAcquireTimeout)
	products := postgres.NewProductRepo(exec)

	prop := tracectx.New()
	peer := tracectx.NewClient(prop, cfg.PeerRequestTimeout)

	srv := httpserver.NewServer(cfg, dbPool, products, peer, scenarios, app.BuildDBCheck(dbPool))
	handler := app.BuildRouter(cfg, srv, prop)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
