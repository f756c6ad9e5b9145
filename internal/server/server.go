// Package server exposes the audit and project databases over a read-only
// JSON API.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/raysh454/sitescore/internal/app"
	"github.com/raysh454/sitescore/internal/logging"
	"github.com/raysh454/sitescore/internal/metrics"
	"github.com/raysh454/sitescore/internal/storage/auditdb"
	"github.com/raysh454/sitescore/internal/storage/projectdb"
)

// Config controls the HTTP listener.
type Config struct {
	ListenAddr string
	Logger     logging.Logger
}

// Server is the HTTP API surface over an Application.
type Server struct {
	cfg    Config
	app    *app.Application
	router chi.Router
	logger logging.Logger
}

// NewServer builds the router. The Application stays owned by the caller.
func NewServer(cfg Config, application *app.Application) (*Server, error) {
	if application == nil {
		return nil, errors.New("server: application is nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = application.Logger
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = application.Config.Server.ListenAddr
	}

	s := &Server{
		cfg:    cfg,
		app:    application,
		router: chi.NewRouter(),
		logger: logger.With(logging.F("component", "server")),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)
	r.Use(s.metricsMiddleware)

	r.Get("/audits", s.handleListAudits)
	r.Route("/audits/{auditID}", func(r chi.Router) {
		r.Get("/", s.handleGetAudit)
		r.Get("/categories", s.handleGetCategoryResults)
		r.Get("/results", s.handleGetRuleResults)
		r.Get("/issues", s.handleGetIssues)
		r.Get("/issues/counts", s.handleGetIssueCounts)
	})

	r.Get("/projects", s.handleListProjects)
	r.Route("/projects/{domain}", func(r chi.Router) {
		r.Get("/crawls", s.handleListCrawls)
		r.Get("/crawls/{crawlID}", s.handleGetCrawl)
		r.Get("/crawls/{crawlID}/links/stats", s.handleLinkStats)
		r.Get("/crawls/{crawlID}/links/broken", s.handleBrokenLinks)
		r.Get("/crawls/{crawlID}/images/stats", s.handleImageStats)
	})

	r.Get("/categories", s.handleListCategories)
	r.Get("/link-cache/stats", s.handleLinkCacheStats)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware counts requests by route pattern so ids stay out of labels.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		logging.F("method", r.Method),
		logging.F("path", r.URL.Path),
	}
	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.F("query", q.Encode()))
	}
	s.logger.Debug("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeStoreError maps store sentinels to HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, auditdb.ErrAuditNotFound),
		errors.Is(err, projectdb.ErrProjectNotFound),
		errors.Is(err, projectdb.ErrCrawlNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Warn(op, logging.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// queryInt reads a non-negative integer query parameter. Missing means def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + name + " query parameter")
	}
	return v, nil
}
