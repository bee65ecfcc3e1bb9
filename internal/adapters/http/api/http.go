// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/blindfold/internal/domain/ledger"
	"github.com/okian/blindfold/internal/domain/model"
	"github.com/okian/blindfold/internal/domain/risk"
	"github.com/okian/blindfold/internal/domain/types"
	"github.com/okian/blindfold/pkg/logger"
	"github.com/okian/blindfold/pkg/metrics"
)

const (
	defaultMaxListLimit = 500
	defaultEventsLimit  = 100
	maxBodyBytes        = 1 << 20
)

// LedgerDependencies are the ledger operations exposed over HTTP.
type LedgerDependencies interface {
	Initialize(ctx context.Context, owner types.AccountID) error
	SubmitRequest(ctx context.Context, caller types.AccountID, in ledger.RequestInput, idempotencyKey string) (uint64, bool, error)
	MarkProcessing(ctx context.Context, caller types.AccountID, id uint64) error
	MarkFailed(ctx context.Context, caller types.AccountID, id uint64, reason string) error
	SubmitVerification(ctx context.Context, caller types.AccountID, in ledger.VerificationInput) (uint64, error)

	Request(ctx context.Context, id uint64) (model.AdvisorRequest, error)
	Verification(ctx context.Context, id uint64) (model.Verification, error)
	VerificationByRequest(ctx context.Context, requestID uint64) (model.Verification, error)
	PendingRequests(ctx context.Context) ([]model.AdvisorRequest, error)
	UserRequests(ctx context.Context, user types.AccountID) ([]model.AdvisorRequest, error)
	UserVerifications(ctx context.Context, user types.AccountID) ([]model.Verification, error)
	LedgerStats(ctx context.Context) (model.Stats, error)
}

// RiskDependencies scores portfolios.
type RiskDependencies interface {
	ScorePortfolio(ctx context.Context, payload string) risk.Score
}

// EventDependencies exposes the recent ledger events.
type EventDependencies interface {
	RecentEvents(n int) []model.Event
}

// Dependencies required by HTTP handlers.
type Dependencies interface {
	LedgerDependencies
	RiskDependencies
	EventDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	eventsHandler  *EventsHandler
	requestHandler *RequestHandler
	riskHandler    *RiskHandler

	logger logger.Logger
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	maxListLimit int
	credentials  []Credential
	logger       logger.Logger
}

// WithCredentials registers the bearer secrets accepted on privileged routes.
// Entries without a token are ignored.
func WithCredentials(creds ...Credential) Option {
	return func(c *serverConfig) {
		for _, cred := range creds {
			if cred.Token != "" {
				c.credentials = append(c.credentials, cred)
			}
		}
	}
}

// WithMaxListLimit caps the limit query parameter of list endpoints.
func WithMaxListLimit(limit int) Option {
	return func(c *serverConfig) {
		if limit > 0 {
			c.maxListLimit = limit
		}
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(log logger.Logger) Option {
	return func(c *serverConfig) {
		if log != nil {
			c.logger = log
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	cfg := serverConfig{maxListLimit: defaultMaxListLimit, logger: logger.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		eventsHandler:  NewEventsHandler(deps, cfg.maxListLimit),
		requestHandler: NewRequestHandler(deps, cfg.maxListLimit, cfg.credentials, cfg.logger),
		riskHandler:    NewRiskHandler(deps),
		logger:         cfg.logger,
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Use(RequestID, MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	r.Get("/stats", s.statsHandler.HandleStats)
	r.Get("/events", s.eventsHandler.HandleGetEvents)

	rh := s.requestHandler
	r.Post("/init", rh.HandleInitialize)
	r.Get("/ledger/stats", rh.HandleLedgerStats)
	r.Post("/risk", s.riskHandler.HandleScore)

	r.Route("/requests", func(r chi.Router) {
		r.Post("/", rh.HandleSubmitRequest)
		r.Get("/pending", rh.HandlePendingRequests)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", rh.HandleGetRequest)
			r.Post("/processing", rh.HandleMarkProcessing)
			r.Post("/failure", rh.HandleMarkFailed)
			r.Post("/verification", rh.HandleSubmitVerification)
			r.Get("/verification", rh.HandleVerificationByRequest)
		})
	})
	r.Get("/verifications/{id}", rh.HandleGetVerification)
	r.Route("/users/{user}", func(r chi.Router) {
		r.Get("/requests", rh.HandleUserRequests)
		r.Get("/verifications", rh.HandleUserVerifications)
	})
}

// Router returns a chi router with every route registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	s.Register(r)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
