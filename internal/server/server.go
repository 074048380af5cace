// Package server exposes the query pipeline over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ziadkadry99/auditq/internal/audit"
	"github.com/ziadkadry99/auditq/internal/classifier"
	"github.com/ziadkadry99/auditq/internal/extractor"
	"github.com/ziadkadry99/auditq/internal/findings"
	"github.com/ziadkadry99/auditq/internal/render"
	"github.com/ziadkadry99/auditq/internal/router"
	"github.com/ziadkadry99/auditq/internal/schema"
)

// Config holds server configuration.
type Config struct {
	Port           int
	AllowAll       bool // allow all CORS origins (dev mode)
	RequestTimeout time.Duration
}

// Pipeline answers queries.
type Pipeline interface {
	Handle(ctx context.Context, req router.Request) (*router.Result, error)
	Classify(query string) (string, classifier.Result, []extractor.Warning)
}

// FindingLookup fetches one finding.
type FindingLookup interface {
	Get(ctx context.Context, id string) (findings.Finding, error)
}

// SessionPurger drops a session's pseudonym mappings.
type SessionPurger interface {
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}

// Deps are the server's collaborators. Audit may be nil.
type Deps struct {
	Pipeline Pipeline
	Findings FindingLookup
	Sessions SessionPurger
	Registry *schema.Registry
	Audit    *audit.Store
	Logger   *zap.Logger
}

// Server serves the auditq API.
type Server struct {
	cfg        Config
	deps       Deps
	renderer   *render.Renderer
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a server and builds its routes.
func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		cfg:      cfg,
		deps:     deps,
		renderer: render.New(),
		logger:   deps.Logger.Named("server"),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// The WebSocket stays outside the request timeout.
	r.Get("/ws/chat", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))

		r.Post("/api/query", s.handleQuery)
		r.Post("/api/classify", s.handleClassify)
		r.Get("/api/schema", s.handleSchema)
		r.Get("/api/findings/{id}", s.handleFinding)
		r.Delete("/api/sessions/{id}/mappings", s.handleDeleteMappings)

		if s.deps.Audit != nil {
			audit.RegisterRoutes(r, s.deps.Audit)
		}
	})

	return r
}

// Router returns the chi router.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("auditq server listening", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
