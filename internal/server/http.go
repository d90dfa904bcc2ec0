package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/campusconnect/campusqa/internal/auth"
	"github.com/campusconnect/campusqa/internal/service"
)

const maxRequestBody = 1 << 20

// Answerer answers campus questions
type Answerer interface {
	Answer(ctx context.Context, query string, topK int) (*service.AnswerResult, error)
}

// ReadinessChecker reports whether dependencies can serve queries
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// HTTPServer serves the question answering API over JSON
type HTTPServer struct {
	server *http.Server
	router *chi.Mux
	logger *slog.Logger
}

// HTTPServerConfig holds configuration for the HTTP server
type HTTPServerConfig struct {
	Port           int
	Logger         *slog.Logger
	AllowedOrigins []string // CORS allowed origins
	// Auth, when set, protects /ask
	Auth *auth.JWTManager
}

type askRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPServer creates the HTTP server and its routes
func NewHTTPServer(cfg HTTPServerConfig, answerer Answerer, ready ReadinessChecker) *HTTPServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLoggingMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	router.Get("/", statusHandler())
	router.Get("/healthz", healthCheckHandler())
	router.Get("/readyz", readinessCheckHandler(ready, logger))

	ask := askHandler(answerer, logger)
	if cfg.Auth != nil {
		router.With(cfg.Auth.Middleware).Post("/ask", ask)
	} else {
		router.Post("/ask", ask)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return &HTTPServer{
		server: server,
		router: router,
		logger: logger,
	}
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", "address", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Handler returns the routed handler
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func askHandler(answerer Answerer, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Query cannot be empty"})
			return
		}
		if req.TopK < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: service.ErrInvalidTopK.Error()})
			return
		}

		result, err := answerer.Answer(r.Context(), req.Query, req.TopK)
		switch {
		case errors.Is(err, service.ErrEmptyQuery):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Query cannot be empty"})
			return
		case errors.Is(err, service.ErrInvalidTopK):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		case err != nil:
			logger.Error("failed to answer question",
				"error", err,
				"request_id", middleware.GetReqID(r.Context()),
			)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to answer question"})
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLoggingMiddleware logs HTTP requests
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// corsMiddleware handles CORS headers
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Only explicitly listed origins may send the session cookie.
			// A wildcard match answers with "*" and never allows credentials.
			allowOrigin := ""
			credentials := false
			for _, o := range allowedOrigins {
				if origin != "" && o == origin {
					allowOrigin, credentials = origin, true
					break
				}
				if o == "*" {
					allowOrigin = "*"
				}
			}
			if len(allowedOrigins) == 0 {
				allowOrigin = "*"
			}

			if allowOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")
				if credentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
					w.Header().Add("Vary", "Origin")
				}
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// statusHandler describes the service at the root path
func statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "running",
			"message": "CampusConnect Chatbot API is running",
			"endpoints": map[string]string{
				"/ask":     "POST - Send a query to the chatbot",
				"/healthz": "GET - Liveness probe",
				"/readyz":  "GET - Readiness probe",
			},
		})
	}
}

// healthCheckHandler returns a handler for the /healthz endpoint
func healthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

// readinessCheckHandler reports 503 while the passage index is unreachable
func readinessCheckHandler(ready ReadinessChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready.Ready(r.Context()); err != nil {
				logger.Warn("readiness check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
