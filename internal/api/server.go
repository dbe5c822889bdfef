// Package api exposes video lookups over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tubegrab/internal/core/domain"
)

// Lookup is the part of the catalog the server needs.
type Lookup interface {
	Details(ctx context.Context, identifier string, fields ...domain.DetailField) (domain.Details, error)
	VideoMetadata(ctx context.Context, identifier string) (domain.VideoMetadata, error)
}

// Server serves GET /api/fetch and GET /api/info.
type Server struct {
	lookup Lookup
	logger zerolog.Logger
}

// NewServer creates a Server.
func NewServer(lookup Lookup, logger zerolog.Logger) *Server {
	return &Server{lookup: lookup, logger: logger.With().Str("component", "api").Logger()}
}

// Handler returns the routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/fetch", s.handleFetch)
	mux.HandleFunc("GET /api/info", s.handleInfo)
	return s.logRequests(mux)
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msgf("Server is running on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "URL is required"})
		return
	}

	requested := splitFields(r.URL.Query()["fields"])
	known, _ := domain.ParseDetailFields(requested)

	details, err := s.lookup.Details(r.Context(), url, known...)
	if err != nil {
		s.logger.Error().Err(err).Str("url", url).Msg("Error fetching video details")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Error fetching video details",
			"details": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, RenderDetails(details, requested))
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "URL is required"})
		return
	}
	meta, err := s.lookup.VideoMetadata(r.Context(), url)
	if err != nil {
		s.logger.Error().Err(err).Str("url", url).Msg("Error fetching video metadata")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Error fetching video metadata",
			"details": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// RenderDetails builds the response object for the requested field names.
// Unknown names map to a "not available" message. No names means every known field.
func RenderDetails(details domain.Details, requested []string) map[string]string {
	out := make(map[string]string)
	if len(requested) == 0 {
		for _, f := range domain.AllDetailFields {
			out[string(f)] = details[f]
		}
		return out
	}
	for _, name := range requested {
		if v, ok := details.Lookup(name); ok {
			out[name] = v
			continue
		}
		if _, known := domain.ParseDetailField(name); known {
			out[name] = ""
			continue
		}
		out[name] = fmt.Sprintf("Detail %q is not available.", name)
	}
	return out
}

// splitFields accepts both ?fields=a,b and ?fields=a&fields=b.
func splitFields(values []string) []string {
	var out []string
	for _, v := range values {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				out = append(out, f)
			}
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)

		next.ServeHTTP(rec, r)

		s.logger.Info().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("Handled request")
	})
}
