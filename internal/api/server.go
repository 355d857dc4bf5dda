// Package api exposes the read-only debug/status HTTP surface:
// tracked markets, the recent signal feed, per-market alert history,
// aggregate health, the active config snapshot, and Prometheus
// metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/marketsurveil/surveil/internal/alerting"
	"github.com/marketsurveil/surveil/internal/config"
	"github.com/marketsurveil/surveil/internal/metrics"
	"github.com/marketsurveil/surveil/internal/orchestrator"
)

// Server serves surveillance state over HTTP. It holds no state of
// its own; every handler reads a snapshot from the orchestrator or
// the config manager at request time.
type Server struct {
	cfg     config.ServerConfig
	orch    *orchestrator.Orchestrator
	cfgMgr  *config.Manager
	metrics *metrics.Collector
	log     *zap.Logger
	server  *http.Server
}

// NewServer wires a Server against the orchestrator and config
// manager. A nil logger is replaced with a no-op one.
func NewServer(cfg config.ServerConfig, orch *orchestrator.Orchestrator, cfgMgr *config.Manager, collector *metrics.Collector, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, orch: orch, cfgMgr: cfgMgr, metrics: collector, log: log}
}

// Handler builds the full route table with CORS applied, so tests can
// serve it from an httptest server without binding a port.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           3600,
	})

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/markets", s.getMarkets).Methods("GET")
	api.HandleFunc("/markets/{id}", s.getMarket).Methods("GET")
	api.HandleFunc("/markets/{id}/alerts", s.getMarketAlerts).Methods("GET")
	api.HandleFunc("/signals", s.getSignals).Methods("GET")
	api.HandleFunc("/config", s.getConfig).Methods("GET")
	api.HandleFunc("/health", s.getHealth).Methods("GET")
	api.HandleFunc("/testalert", s.getTestAlert).Methods("GET")
	router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	return c.Handler(router)
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails. An empty bind address disables the server; Run
// returns nil immediately.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.BindAddress == "" {
		return nil
	}

	s.server = &http.Server{
		Addr:    s.cfg.BindAddress,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.Info("debug HTTP surface listening", zap.String("addr", s.cfg.BindAddress))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) getMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.orch.Markets()
	writeJSON(w, http.StatusOK, map[string]any{
		"markets": markets,
		"count":   len(markets),
	})
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m := s.orch.Market(id)
	if m == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "market not found: " + id})
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) getMarketAlerts(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	records := s.orch.AlertHistory(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"alerts":    records,
		"count":     len(records),
	})
}

func (s *Server) getSignals(w http.ResponseWriter, r *http.Request) {
	signals := s.orch.RecentSignals()
	writeJSON(w, http.StatusOK, map[string]any{
		"signals": signals,
		"count":   len(signals),
	})
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfgMgr.Current())
}

// getTestAlert renders (but does not send) a synthetic alert so an
// operator can inspect the payload a given priority would produce.
func (s *Server) getTestAlert(w http.ResponseWriter, r *http.Request) {
	priority := alerting.Priority(r.URL.Query().Get("priority"))
	switch priority {
	case alerting.PriorityCritical, alerting.PriorityHigh, alerting.PriorityMedium, alerting.PriorityLow:
	case "":
		priority = alerting.PriorityHigh
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown priority " + string(priority)})
		return
	}
	writeJSON(w, http.StatusOK, alerting.FormatTestAlert(priority))
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	health := s.orch.Health(r.Context())
	status := http.StatusOK
	if health.Overall == metrics.LevelCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}
