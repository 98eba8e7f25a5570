// Package server exposes the analysis engine and account history over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/lifeline/internal/cost"
	"github.com/sells-group/lifeline/internal/engine"
	"github.com/sells-group/lifeline/internal/model"
	"github.com/sells-group/lifeline/internal/store"
	"github.com/sells-group/lifeline/internal/stream"
)

// DefaultHistoryLimit is the page size of GET /api/history.
const DefaultHistoryLimit = 20

// Analyzer runs one analysis and reports through ch.
type Analyzer interface {
	Run(ctx context.Context, r engine.Run, ch stream.Channel) (*model.CompletePayload, error)
}

// CallerResolver identifies the account behind a request. A nil caller
// with a nil error is a guest.
type CallerResolver interface {
	ResolveCaller(r *http.Request) (*model.Caller, error)
}

// HistoryStore is the subset of store.Store the handlers read from.
type HistoryStore interface {
	ListAnalyses(ctx context.Context, filter store.HistoryFilter) ([]model.AnalysisSummary, error)
	GetAnalysis(ctx context.Context, accountID, id string) (*model.AnalysisRecord, error)
	Ping(ctx context.Context) error
}

// Config holds the HTTP settings.
type Config struct {
	CORSOrigins  []string
	RateLimit    float64
	RateBurst    int
	MaxBodyBytes int64
	KeepAlive    time.Duration
}

// Deps are the collaborators the handlers call.
type Deps struct {
	// Stream serves /api/analyze-stream and Sync serves /api/analyze. They
	// differ only in per-attempt timeout.
	Stream   Analyzer
	Sync     Analyzer
	Resolver CallerResolver
	Store    HistoryStore
	Calc     *cost.Calculator
}

// Server routes HTTP requests to the handlers.
type Server struct {
	cfg     Config
	deps    Deps
	limiter *ipLimiter
	router  chi.Router
}

// New creates a Server and builds its router.
func New(cfg Config, deps Deps) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 2 << 20
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if deps.Sync == nil {
		deps.Sync = deps.Stream
	}
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		limiter: newIPLimiter(cfg.RateLimit, cfg.RateBurst),
		router:  chi.NewRouter(),
	}
	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/auth/me", s.handleMe)
		r.Get("/history", s.handleHistory)
		r.Get("/history/{id}", s.handleHistoryItem)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.middleware)
			r.Post("/analyze-stream", s.handleAnalyzeStream)
			r.Post("/analyze", s.handleAnalyze)
		})
	})
}
