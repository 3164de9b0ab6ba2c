// Package api exposes the administrative HTTP interface: crawl triggers,
// image queue management and health/metrics endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/restomenu/menu-crawler/internal/config"
	"github.com/restomenu/menu-crawler/internal/menu"
	"github.com/restomenu/menu-crawler/internal/metrics"
)

// Service is the application surface the HTTP layer drives.
type Service interface {
	CrawlAndPersist(ctx context.Context, sectionURL, sectionName string) (menu.CrawlOutcome, error)
	ProcessImageQueue(ctx context.Context, limit int, cleanup bool) (menu.ProcessOutcome, error)
	QueueStats(ctx context.Context) (menu.QueueStats, error)
	ClearImageQueue(ctx context.Context) (int64, error)
	RefreshCategoryImages(ctx context.Context) (int, error)
}

const defaultProcessLimit = 50

// Server wires HTTP handlers to the application service.
type Server struct {
	router  chi.Router
	service Service
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(service Service, cfg config.Config, logger *zap.Logger) *Server {
	s := &Server{service: service, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(10 * time.Minute))

	// Health and metrics endpoints stay open; only /v1 requires a key.
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/crawl", s.crawl)
		r.Route("/images", func(r chi.Router) {
			r.Post("/process", s.processImages)
			r.Get("/stats", s.imageStats)
			r.Delete("/queue", s.clearQueue)
		})
		r.Post("/categories/refresh-images", s.refreshCategoryImages)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

type crawlRequest struct {
	SectionURL  string `json:"section_url"`
	SectionName string `json:"section_name"`
}

func (s *Server) crawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	out, err := s.service.CrawlAndPersist(r.Context(), req.SectionURL, req.SectionName)
	if err != nil {
		s.logger.Error("crawl failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "crawl failed")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, out)
}

type processRequest struct {
	Limit   int  `json:"limit"`
	Cleanup bool `json:"cleanup"`
}

func (s *Server) processImages(w http.ResponseWriter, r *http.Request) {
	req := processRequest{Limit: defaultProcessLimit}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Limit <= 0 {
		req.Limit = defaultProcessLimit
	}
	out, err := s.service.ProcessImageQueue(r.Context(), req.Limit, req.Cleanup)
	if err != nil {
		s.logger.Error("image queue processing failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "image queue processing failed")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, out)
}

func (s *Server) imageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.QueueStats(r.Context())
	if err != nil {
		s.logger.Error("queue stats failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "queue stats failed")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, stats)
}

func (s *Server) clearQueue(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.service.ClearImageQueue(r.Context())
	if err != nil {
		s.logger.Error("clear image queue failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "clear image queue failed")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *Server) refreshCategoryImages(w http.ResponseWriter, r *http.Request) {
	updated, err := s.service.RefreshCategoryImages(r.Context())
	if err != nil {
		s.logger.Error("refresh category images failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "refresh category images failed")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]int{"updated": updated})
}

// decodeBody tolerates an empty body so POST endpoints work with defaults.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(dst)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(s.logger, w, status, map[string]string{"error": msg})
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()))
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
