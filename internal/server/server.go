// Package server serves looping channel playlists over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agleyzer/hlsloop/internal/catalog"
	"github.com/agleyzer/hlsloop/internal/metrics"
	"github.com/agleyzer/hlsloop/internal/playlist"
)

const crossDomainPolicy = `<cross-domain-policy>
<site-control permitted-cross-domain-policies="all"/>
<allow-access-from domain="*" secure="false"/>
<allow-http-request-headers-from domain="*" headers="*" secure="false"/>
</cross-domain-policy>`

// StatusReporter contributes extra fields to the health response.
type StatusReporter interface {
	Status() map[string]any
}

// Config holds what the server needs besides the generator.
type Config struct {
	// Port is the TCP port to listen on
	Port int

	// ContentRoot is the directory served under /static/
	ContentRoot string

	// Master is the pre-rendered master playlist served at /variant.m3u8
	Master string

	// Cluster reports cluster state on /health; nil when running standalone
	Cluster StatusReporter
}

// Server serves channel playlists, the master playlist and segment files.
type Server struct {
	generator  *playlist.Generator
	config     Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	httpServer *http.Server
}

// New creates a new HTTP server. m may be nil.
func New(generator *playlist.Generator, config Config, logger *slog.Logger, m *metrics.Metrics) *Server {
	return &Server{
		generator: generator,
		config:    config,
		logger:    logger,
		metrics:   m,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)
	if s.metrics != nil {
		r.Use(metrics.RequestMiddleware(s.metrics))
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	live := s.playlistHandler(playlist.Live)
	static := s.playlistHandler(playlist.Static)

	r.Get("/variant.m3u8", s.handleMaster)
	r.Get("/radio.m3u8", live)
	r.Get("/program{id:[0-9]+}.m3u8", live)
	r.Get("/playlist{id:[0-9]+}.m3u8", live)
	r.Get("/vod{id:[0-9]+}.m3u8", s.playlistHandler(playlist.VOD))
	r.Get("/static_radio.m3u8", static)
	r.Get("/static{id:[0-9]+}.m3u8", static)
	r.Get("/crossdomain.xml", s.handleCrossDomain)
	r.Get("/health", s.handleHealth)

	if s.config.ContentRoot != "" {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.Dir(s.config.ContentRoot)))
		r.Handle("/static/*", fileServer)
	}

	return r
}

// Start starts the HTTP server and blocks until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "port", s.config.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	// Graceful shutdown
	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// playlistHandler serves a channel playlist of type t. Routes without an id
// parameter serve channel 0.
func (s *Server) playlistHandler(t playlist.Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channelID := 0
		if param := chi.URLParam(r, "id"); param != "" {
			id, err := strconv.Atoi(param)
			if err != nil {
				http.NotFound(w, r)
				return
			}
			channelID = id
		}

		content, err := s.generator.Generate(channelID, t)
		if err != nil {
			s.logger.Error("failed to generate playlist",
				"channel", channelID,
				"type", t,
				"reason", failureReason(err),
				"error", err,
			)
			http.Error(w, "playlist unavailable", http.StatusInternalServerError)
			return
		}

		writePlaylist(w, content)
	}
}

// handleMaster serves the fixed master playlist
func (s *Server) handleMaster(w http.ResponseWriter, r *http.Request) {
	writePlaylist(w, s.config.Master)
}

func (s *Server) handleCrossDomain(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(crossDomainPolicy))
}

// handleHealth serves health check information
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status": "ok",
		"stats":  s.generator.Stats(),
	}
	if s.config.Cluster != nil {
		health["cluster"] = s.config.Cluster.Status()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(health)
}

// failureReason classifies a generation error for logs. Every class is
// answered with 500.
func failureReason(err error) string {
	switch {
	case errors.Is(err, catalog.ErrCatalogNotFound):
		return "not_found"
	case errors.Is(err, catalog.ErrEmptyCatalog):
		return "empty"
	case errors.Is(err, catalog.ErrInvalidCatalog):
		return "invalid"
	default:
		return "internal"
	}
}

func writePlaylist(w http.ResponseWriter, content string) {
	// Set HLS-specific headers
	w.Header().Set("Content-Type", playlist.ContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(content))
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap the response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
