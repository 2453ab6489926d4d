// Package handlers provides HTTP handlers for reading ingestion and retrieval.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/aqicast/internal/domain"
	"github.com/aristath/aqicast/internal/modules/readings"
)

const (
	defaultLimit = 168
	maxLimit     = 5000
)

// Handler handles readings HTTP requests
type Handler struct {
	service *readings.Service
	log     zerolog.Logger
}

// NewHandler creates a new readings handler
func NewHandler(service *readings.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "readings").Logger(),
	}
}

// IngestRequest is the body of POST /api/readings
type IngestRequest struct {
	Readings []domain.Reading `json:"readings"`
}

// HandleIngest handles POST /api/readings
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	n, err := h.service.Ingest(r.Context(), req.Readings)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidReading) || errors.Is(err, domain.ErrInvalidArgument) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error().Err(err).Msg("Failed to ingest readings")
		http.Error(w, "Failed to store readings", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, envelope(map[string]interface{}{
		"stored": n,
	}))
}

// HandleGetRecent handles GET /api/readings/{locationID}
func (h *Handler) HandleGetRecent(w http.ResponseWriter, r *http.Request) {
	locationID, err := strconv.ParseInt(chi.URLParam(r, "locationID"), 10, 64)
	if err != nil || locationID <= 0 {
		http.Error(w, "Invalid location ID", http.StatusBadRequest)
		return
	}

	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxLimit {
			http.Error(w, "limit must be between 1 and 5000", http.StatusBadRequest)
			return
		}
	}

	recent, err := h.service.Recent(r.Context(), locationID, limit)
	if err != nil {
		h.log.Error().Err(err).Int64("location_id", locationID).Msg("Failed to load readings")
		http.Error(w, "Failed to load readings", http.StatusInternalServerError)
		return
	}
	if recent == nil {
		recent = []domain.Reading{}
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"location_id": locationID,
		"readings":    recent,
		"count":       len(recent),
	}))
}

func envelope(data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
