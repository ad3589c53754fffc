/**
 * HTTP surface for the OCR server
 *
 * Routes:
 * - POST /ocr-batch        multipart "files" -> {results}
 * - POST /ocr              multipart "image" -> {message}
 * - POST /semantic-search  {query, text} -> {substring, verified}
 * - GET  /                 liveness text
 * - GET  /health           provider health
 */

package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Aristo-Max/OCR-MVP/internal/logging"
	"github.com/Aristo-Max/OCR-MVP/internal/processor"
	"github.com/Aristo-Max/OCR-MVP/internal/storage"
)

const livenessMessage = "Hello from AristoMax OCR server!"

// BatchRunner runs the OCR pipeline for one batch
type BatchRunner interface {
	RunBatch(ctx context.Context, batchID string, files []processor.UploadedFile) (*processor.BatchResult, error)
}

// Matcher answers semantic search requests
type Matcher interface {
	Match(ctx context.Context, query string, text string) (*processor.MatchResult, error)
}

// HealthChecker is implemented by dependencies that can report their health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds server dependencies and limits
type Config struct {
	Pipeline BatchRunner
	Invoker  processor.PageInvoker
	Matcher  Matcher
	Store    *storage.TempStore

	Provider       string // OCR provider name reported by /health
	HealthChecks   map[string]HealthChecker
	AllowedOrigins string // comma separated, "*" for any
	MaxUploadSize  int64
	MaxFiles       int
}

// Server serves the OCR HTTP API
type Server struct {
	pipeline BatchRunner
	invoker  processor.PageInvoker
	matcher  Matcher
	store    *storage.TempStore

	provider       string
	healthChecks   map[string]HealthChecker
	allowedOrigins []string
	maxUploadSize  int64
	maxFiles       int

	logger *logging.Logger
}

// New creates a new server
func New(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server config is required")
	}
	if cfg.Pipeline == nil || cfg.Invoker == nil || cfg.Matcher == nil {
		return nil, fmt.Errorf("pipeline, invoker and matcher are required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("temp store is required")
	}

	maxUploadSize := cfg.MaxUploadSize
	if maxUploadSize <= 0 {
		maxUploadSize = 50 * 1024 * 1024
	}
	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = 20
	}

	return &Server{
		pipeline:       cfg.Pipeline,
		invoker:        cfg.Invoker,
		matcher:        cfg.Matcher,
		store:          cfg.Store,
		provider:       cfg.Provider,
		healthChecks:   cfg.HealthChecks,
		allowedOrigins: parseOrigins(cfg.AllowedOrigins),
		maxUploadSize:  maxUploadSize,
		maxFiles:       maxFiles,
		logger:         logging.NewLogger("HTTPServer"),
	}, nil
}

// Handler returns the routed handler wrapped in CORS and request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /ocr-batch", s.handleOCRBatch)
	mux.HandleFunc("POST /ocr", s.handleOCR)
	mux.HandleFunc("POST /semantic-search", s.handleSemanticSearch)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.withCORS(s.withRequestLog(mux))
}

// NewHTTPServer wraps the handler with the server timeouts used in production
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(startTime).String())
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Expose-Headers", "X-Batch-ID")
			if origin != "*" {
				h.Add("Vary", "Origin")
			}
		}

		if r.Method == http.MethodOptions {
			h := w.Header()
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			} else {
				h.Set("Access-Control-Allow-Headers", "Content-Type")
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allowOrigin returns the Access-Control-Allow-Origin value for a request origin, or ""
func (s *Server) allowOrigin(origin string) string {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(allowed, origin) {
			return origin
		}
	}
	return ""
}

func parseOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, strings.TrimRight(o, "/"))
		}
	}
	return origins
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
