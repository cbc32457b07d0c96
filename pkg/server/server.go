// Package server exposes the recommendation service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pario-ai/giftrouter/pkg/cache"
	"github.com/pario-ai/giftrouter/pkg/config"
	"github.com/pario-ai/giftrouter/pkg/metrics"
	"github.com/pario-ai/giftrouter/pkg/models"
	"github.com/pario-ai/giftrouter/pkg/recommend"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// StatusClientClosedRequest is reported when the caller went away before
// the answer was ready.
const StatusClientClosedRequest = 499

// Options configures a Server.
type Options struct {
	Logger  zerolog.Logger
	Metrics *metrics.Recorder
	// Gatherer backs /metrics. The endpoint is not mounted when nil.
	Gatherer prometheus.Gatherer
	Version  string
}

// Server is the giftrouter HTTP API.
type Server struct {
	cfg     *config.Config
	svc     *recommend.Service
	log     zerolog.Logger
	metrics *metrics.Recorder
	version string
	mux     *http.ServeMux
}

// New creates a Server wired to svc.
func New(cfg *config.Config, svc *recommend.Service, opts Options) *Server {
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		log:     opts.Logger,
		metrics: opts.Metrics,
		version: opts.Version,
		mux:     http.NewServeMux(),
	}
	if s.version == "" {
		s.version = "dev"
	}
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/recommendations", s.handleRecommendations)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("POST /api/stats/reset", s.handleStatsReset)
	s.mux.HandleFunc("POST /api/cache/clear", s.handleCacheClear)
	s.mux.HandleFunc("POST /api/cache/invalidate", s.handleCacheInvalidate)
	s.mux.HandleFunc("GET /api/config", s.handleConfig)
	if opts.Gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(sw, r)

	endpoint := r.Pattern
	if endpoint == "" {
		endpoint = "unmatched"
	}
	elapsed := time.Since(start)
	s.metrics.HTTPRequest(r.Method, endpoint, strconv.Itoa(sw.status), elapsed)
	s.log.Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", sw.status).
		Dur("duration", elapsed).
		Msg("http request")
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Listen).Str("environment", s.cfg.Environment).Msg("giftrouter listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "giftrouter",
		"version": s.version,
		"status":  "running",
	})
}

type healthResponse struct {
	Status       string          `json:"status"`
	Version      string          `json:"version"`
	Environment  string          `json:"environment"`
	CacheEnabled bool            `json:"cache_enabled"`
	Cache        cache.Health    `json:"cache"`
	Providers    map[string]bool `json:"llm_providers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.svc.Health(r.Context())
	writeJSON(w, http.StatusOK, healthResponse{
		Status:       h.Status,
		Version:      s.version,
		Environment:  s.cfg.Environment,
		CacheEnabled: h.Cache.Status != cache.StatusDisabled,
		Cache:        h.Cache,
		Providers:    h.Providers,
	})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	var req models.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, string(recommend.ReasonInvalidRequest), err.Error())
		return
	}

	rec, err := s.svc.Recommend(r.Context(), req)
	if err != nil {
		reason := recommend.ReasonOf(err)
		code := statusFor(reason)
		if code >= http.StatusInternalServerError {
			s.log.Warn().Err(err).Str("reason", string(reason)).Msg("recommendation failed")
		}
		if reason == "" {
			reason = "internal_error"
		}
		writeJSONError(w, code, string(reason), err.Error())
		return
	}

	cacheHeader := "miss"
	if rec.Cached {
		cacheHeader = "hit"
	}
	w.Header().Set("X-Giftrouter-Cache", cacheHeader)
	w.Header().Set("X-Request-ID", rec.RequestID)
	writeJSON(w, http.StatusOK, rec)
}

type statsResponse struct {
	Environment string `json:"environment"`
	models.UsageStats
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Environment: s.cfg.Environment,
		UsageStats:  s.svc.Stats(),
	})
}

func (s *Server) handleStatsReset(w http.ResponseWriter, r *http.Request) {
	s.svc.ResetStats()
	s.log.Info().Msg("usage statistics reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	err := s.svc.ClearCache(r.Context())
	switch {
	case errors.Is(err, cache.ErrCacheDisabled):
		writeJSON(w, http.StatusOK, map[string]string{"status": "cache_disabled"})
	case err != nil:
		s.log.Error().Err(err).Msg("cache clear failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	var req models.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, string(recommend.ReasonInvalidRequest), err.Error())
		return
	}
	err := s.svc.InvalidateCache(r.Context(), req)
	switch {
	case errors.Is(err, cache.ErrCacheDisabled):
		writeJSON(w, http.StatusOK, map[string]string{"status": "cache_disabled"})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Summary())
}

func statusFor(reason recommend.Reason) int {
	switch reason {
	case recommend.ReasonInvalidRequest, recommend.ReasonUnknownProvider:
		return http.StatusBadRequest
	case recommend.ReasonUpstreamUnavailable:
		return http.StatusBadGateway
	case recommend.ReasonCancelled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return errors.New("failed to read request body")
	}
	r.Body.Close()

	if err := json.Unmarshal(body, v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Reason  string `json:"reason"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func writeJSONError(w http.ResponseWriter, code int, reason, message string) {
	var body errorBody
	body.Error.Message = message
	body.Error.Type = "giftrouter_error"
	body.Error.Reason = reason
	body.Error.Code = code
	writeJSON(w, code, body)
}

// statusWriter captures the response status for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
