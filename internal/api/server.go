// Package api exposes the HTTP interface for the feed service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/linkhoard/feedwatch/internal/config"
	"github.com/linkhoard/feedwatch/internal/feed"
	"github.com/linkhoard/feedwatch/internal/metrics"
	"github.com/linkhoard/feedwatch/internal/share"
)

// ownerHeader carries the authenticated account identity. An upstream
// gateway is expected to validate it before the request reaches us.
const ownerHeader = "X-Owner-ID"

// Trigger starts a crawl for one source immediately.
type Trigger interface {
	TriggerNow(ctx context.Context, ownerID, sourceID string) error
}

// Server wires HTTP handlers to the store, dispatcher and share service.
type Server struct {
	router  chi.Router
	store   feed.Store
	trigger Trigger
	shares  *share.Service
	ids     feed.IDGenerator
	clock   feed.Clock
	cfg     config.APIConfig
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store feed.Store,
	trigger Trigger,
	shares *share.Service,
	ids feed.IDGenerator,
	clock feed.Clock,
	cfg config.APIConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:   store,
		trigger: trigger,
		shares:  shares,
		ids:     ids,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Use(ownerMiddleware)

		r.Route("/sources", func(r chi.Router) {
			r.Get("/", s.listSources)
			r.Post("/", s.createSource)
			r.Route("/{source_id}", func(r chi.Router) {
				r.Get("/", s.getSource)
				r.Put("/", s.updateSource)
				r.Delete("/", s.deleteSource)
				r.Post("/run", s.runSource)
			})
		})
		r.Get("/status", s.status)
		r.Get("/settings", s.getSettings)
		r.Put("/settings", s.putSettings)
		r.Route("/articles", func(r chi.Router) {
			r.Get("/", s.listArticles)
			r.Route("/{article_id}", func(r chi.Router) {
				r.Get("/", s.getArticle)
				r.Delete("/", s.deleteArticle)
				r.Post("/share", s.shareArticle)
				r.Delete("/share", s.unshareArticle)
			})
		})
		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", s.listSubscriptions)
			r.Post("/", s.createSubscription)
			r.Delete("/", s.deleteSubscription)
		})
	})

	// Public discovery reader, no identity required.
	r.Route("/public/articles", func(r chi.Router) {
		r.Get("/", s.discoverArticles)
		r.Get("/{share_id}", s.getSharedArticle)
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

func (s *Server) pageSize() int {
	size := s.cfg.PageSize
	if size <= 0 {
		size = 20
	}
	return size
}

type requestIDKey struct{}

type ownerKey struct{}

func ownerID(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

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
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(logger, w, http.StatusInternalServerError, "internal server error")
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
				writeError(zap.NewNop(), w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ownerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get(ownerHeader)
		if owner == "" {
			writeError(zap.NewNop(), w, http.StatusUnauthorized, "missing "+ownerHeader+" header")
			return
		}
		ctx := context.WithValue(r.Context(), ownerKey{}, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
