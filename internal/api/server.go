// Package api exposes the targeting and reward engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/matrixise/survey-gate/internal/balance"
	"github.com/matrixise/survey-gate/internal/reward"
	"github.com/matrixise/survey-gate/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Snapshots computes wallet snapshots
type Snapshots interface {
	GetSnapshot(ctx context.Context, address string) (balance.Snapshot, error)
	Refresh(ctx context.Context, address string) (balance.Snapshot, error)
}

// Store holds user and survey records
type Store interface {
	UpsertUserBalance(ctx context.Context, address, country string, snap balance.Snapshot) error
	GetUser(ctx context.Context, address string) (storage.User, error)
	ListUsers(ctx context.Context) ([]storage.User, error)
	ListActiveSurveys(ctx context.Context) ([]storage.Survey, error)
	BatchInsertBalances(ctx context.Context, balances []storage.TokenBalance) error
}

// Server routes HTTP requests to the engine
type Server struct {
	snapshots Snapshots
	store     Store
	ledger    reward.Ledger
	health    http.Handler
	validate  *validator.Validate
}

// NewServer creates the HTTP API. health may be nil.
func NewServer(snapshots Snapshots, store Store, ledger reward.Ledger, health http.Handler) *Server {
	return &Server{
		snapshots: snapshots,
		store:     store,
		ledger:    ledger,
		health:    health,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes returns the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	if s.health != nil {
		r.Method(http.MethodGet, "/health", s.health)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Post("/sessions", s.createSession)
		r.Get("/wallets/{address}/snapshot", s.getSnapshot)
		r.Get("/surveys", s.listSurveys)
		r.Post("/reach", s.estimateReach)
		r.Post("/surveys/{id}/claims", s.claimReward)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
