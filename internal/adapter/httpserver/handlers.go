package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/db-degradation-demo/internal/adapter/observability"
	"github.com/fairyhunter13/db-degradation-demo/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/db-degradation-demo/internal/config"
	"github.com/fairyhunter13/db-degradation-demo/internal/domain"
	"github.com/fairyhunter13/db-degradation-demo/internal/pool"
	"github.com/fairyhunter13/db-degradation-demo/internal/tracectx"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg       config.Config
	Pool      *pool.Pool
	Products  *postgres.ProductRepo
	Peer      *tracectx.Client
	Scenarios []config.Scenario
	DBCheck   func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers wired.
func NewServer(cfg config.Config, p *pool.Pool, products *postgres.ProductRepo, peer *tracectx.Client, scenarios []config.Scenario, dbCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Pool: p, Products: products, Peer: peer, Scenarios: scenarios, DBCheck: dbCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: empty body", domain.ErrInvalidArgument)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && err != io.EOF {
		// io.EOF means an empty body; fields are defaulted.
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if err := getValidator().Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

type slowQueriesRequest struct {
	DelayMS int64 `json:"delay_ms" validate:"gte=0,lte=600000"`
}

// EnableSlowQueriesHandler turns on deterministic per-query latency.
func (s *Server) EnableSlowQueriesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req slowQueriesRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		st := s.Pool.EnableLatency(time.Duration(req.DelayMS) * time.Millisecond)
		observability.RecordFaultInjection(domain.FaultModeSlow)
		LoggerFrom(r).Info("slow queries enabled", slog.Int64("delay_ms", req.DelayMS))
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "slow_queries_enabled",
			"delay_ms": st.DelayMS,
		})
	}
}

type exhaustionRequest struct {
	HeldCount *int `json:"held_count" validate:"omitempty,gte=0"`
}

// EnablePoolExhaustionHandler pre-acquires connections and holds them
// until reset. Default hold is capacity minus one, leaving a single
// usable connection for the demo narrative.
func (s *Server) EnablePoolExhaustionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req exhaustionRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		n := s.Pool.Max() - 1
		if req.HeldCount != nil {
			n = *req.HeldCount
		}
		held, err := s.Pool.EnableExhaustion(r.Context(), n)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		observability.RecordFaultInjection(domain.FaultModeExhausted)
		observability.UpdatePoolGauges(s.Pool.Stats())
		LoggerFrom(r).Info("pool exhaustion enabled", slog.Int("held", held))
		writeJSON(w, http.StatusOK, map[string]any{
			"status":           "pool_exhaustion_enabled",
			"held_connections": held,
			"pool_stats":       s.Pool.Stats(),
		})
	}
}

// ResetHandler releases all fault-injection holds and clears latency.
func (s *Server) ResetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		released := s.Pool.Reset()
		observability.RecordFaultInjection(domain.FaultModeNormal)
		observability.UpdatePoolGauges(s.Pool.Stats())
		LoggerFrom(r).Info("fault injection reset", slog.Int("released", released))
		writeJSON(w, http.StatusOK, map[string]any{
			"status":               "reset",
			"released_connections": released,
			"pool_stats":           s.Pool.Stats(),
		})
	}
}

// HealthHandler reports liveness plus a pool snapshot.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":          "ok",
			"connection_pool": s.Pool.Stats(),
			"fault":           s.Pool.FaultState(),
		})
	}
}

// ReadyzHandler verifies the database answers through the pool.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.DBCheck(ctx); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}
}

// ScenariosHandler lists the named degradation presets.
func (s *Server) ScenariosHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		scenarios := s.Scenarios
		if scenarios == nil {
			scenarios = []config.Scenario{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"scenarios": scenarios})
	}
}

// ApplyScenarioHandler resets fault state and applies one named preset.
func (s *Server) ApplyScenarioHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		var sc *config.Scenario
		for i := range s.Scenarios {
			if strings.EqualFold(s.Scenarios[i].Name, name) {
				sc = &s.Scenarios[i]
				break
			}
		}
		if sc == nil {
			writeError(w, r, fmt.Errorf("scenario %q: %w", name, domain.ErrNotFound), nil)
			return
		}
		s.Pool.Reset()
		held := 0
		if sc.DelayMS > 0 {
			s.Pool.EnableLatency(time.Duration(sc.DelayMS) * time.Millisecond)
			observability.RecordFaultInjection(domain.FaultModeSlow)
		}
		if sc.HeldCount > 0 {
			var err error
			held, err = s.Pool.EnableExhaustion(r.Context(), sc.HeldCount)
			if err != nil {
				writeError(w, r, err, nil)
				return
			}
			observability.RecordFaultInjection(domain.FaultModeExhausted)
		}
		observability.UpdatePoolGauges(s.Pool.Stats())
		LoggerFrom(r).Info("scenario applied", slog.String("scenario", sc.Name))
		writeJSON(w, http.StatusOK, map[string]any{
			"status":           "scenario_applied",
			"scenario":         sc.Name,
			"delay_ms":         sc.DelayMS,
			"held_connections": held,
			"pool_stats":       s.Pool.Stats(),
		})
	}
}

// ProductsHandler serves the demo read workload.
func (s *Server) ProductsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			limit, _ = strconv.Atoi(v)
		}
		products, err := s.Products.List(r.Context(), limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products, "count": len(products)})
	}
}

// ProductHandler loads one product by id.
func (s *Server) ProductHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid product id", domain.ErrInvalidArgument), nil)
			return
		}
		p, err := s.Products.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// RecommendationsHandler performs the single outbound call to the peer
// service with injected trace context, so the peer's spans attach as
// children of this request's trace.
func (s *Server) RecommendationsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Cfg.PeerServiceURL == "" {
			writeError(w, r, fmt.Errorf("%w: no peer service configured", domain.ErrNotFound), nil)
			return
		}
		url := strings.TrimRight(s.Cfg.PeerServiceURL, "/") + "/api/products"
		resp, err := s.Peer.Get(r.Context(), url)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		var payload any = json.RawMessage(body)
		if !json.Valid(body) {
			payload = string(body)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"peer":        s.Cfg.PeerServiceURL,
			"peer_status": resp.StatusCode,
			"payload":     payload,
		})
	}
}
