package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/parcel/internal/ledger"
	"github.com/mattjoyce/parcel/internal/weather"
)

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:           "ok",
		UptimeSeconds:    int64(time.Since(s.startedAt).Seconds()),
		EventSubscribers: s.events.Subscribers(),
		LedgerEnabled:    s.ledger != nil,
		WeatherEnabled:   s.weather != nil,
	})
}

// handleRecentDownloads handles GET /api/downloads/recent?limit=N.
func (s *Server) handleRecentDownloads(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.writeError(w, http.StatusServiceUnavailable, "download ledger is disabled")
		return
	}

	limit := ledger.DefaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.ledger.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list downloads", "error", err)
		s.writeErrorDetail(w, http.StatusInternalServerError, "internal_error", "failed to list downloads")
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	respondJSON(w, http.StatusOK, RecentDownloadsResponse{Downloads: entries})
}

// handleWeather handles GET /api/weather?q=.
func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	rep, err := s.weather.Lookup(r.Context(), r.URL.Query().Get("q"))
	if errors.Is(err, weather.ErrLocationNotFound) {
		s.writeError(w, http.StatusNotFound, "Location not found")
		return
	}
	if err != nil {
		s.logger.Error("weather lookup failed", "error", err)
		s.writeErrorDetail(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=60")
	respondJSON(w, http.StatusOK, rep)
}

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.weather != nil))
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// writeErrorDetail writes {"error","message"}.
func (s *Server) writeErrorDetail(w http.ResponseWriter, statusCode int, code, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: code, Message: message})
}
