// Package handlers provides HTTP handlers for training, forecasting and model
// inspection.
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
	"github.com/aristath/aqicast/internal/modules/prediction"
)

// Bounds on training request parameters
const (
	MinPopulationSize = 10
	MaxPopulationSize = 100
	MinGenerations    = 10
	MaxGenerations    = 200
)

const (
	defaultForecastHours = 24
	defaultModelsLimit   = 10
	maxModelsLimit       = 100
)

// Handler handles prediction HTTP requests
type Handler struct {
	service         *prediction.Service
	accuracy        *prediction.AccuracyEvaluator
	trainWindow     time.Duration
	defaultLocation int64
	log             zerolog.Logger
}

// NewHandler creates a new prediction handler. Training requests without a
// location_id use defaultLocation and train on the trailing trainWindow.
func NewHandler(
	service *prediction.Service,
	accuracy *prediction.AccuracyEvaluator,
	trainWindow time.Duration,
	defaultLocation int64,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service:         service,
		accuracy:        accuracy,
		trainWindow:     trainWindow,
		defaultLocation: defaultLocation,
		log:             log.With().Str("handler", "prediction").Logger(),
	}
}

// HandleTrain handles POST /api/predictions/train
func (h *Handler) HandleTrain(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	locationID := h.defaultLocation
	if raw := q.Get("location_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "Invalid location_id", http.StatusBadRequest)
			return
		}
		locationID = id
	}

	population, ok := intParam(q.Get("population_size"), 0, MinPopulationSize, MaxPopulationSize)
	if !ok {
		http.Error(w, "population_size must be between 10 and 100", http.StatusBadRequest)
		return
	}
	generations, ok := intParam(q.Get("generations"), 0, MinGenerations, MaxGenerations)
	if !ok {
		http.Error(w, "generations must be between 10 and 200", http.StatusBadRequest)
		return
	}

	result, err := h.service.TrainLocation(r.Context(), locationID, h.trainWindow, population, generations)
	if err != nil {
		h.writeError(w, err, "Training failed")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"location_id": locationID,
		"result":      result,
	}))
}

// HandleForecast handles GET /api/predictions/forecast/{locationID}
func (h *Handler) HandleForecast(w http.ResponseWriter, r *http.Request) {
	locationID, ok := locationParam(r)
	if !ok {
		http.Error(w, "Invalid location ID", http.StatusBadRequest)
		return
	}
	hours, ok := intParam(r.URL.Query().Get("hours"), defaultForecastHours, 1, h.service.MaxHorizon())
	if !ok {
		http.Error(w, "hours must be between 1 and "+strconv.Itoa(h.service.MaxHorizon()), http.StatusBadRequest)
		return
	}

	fc, err := h.service.ForecastLocation(r.Context(), locationID, hours, false)
	if err != nil {
		h.writeError(w, err, "Forecast failed")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(fc))
}

// HandleStored handles GET /api/predictions/{locationID}
func (h *Handler) HandleStored(w http.ResponseWriter, r *http.Request) {
	locationID, ok := locationParam(r)
	if !ok {
		http.Error(w, "Invalid location ID", http.StatusBadRequest)
		return
	}
	hours, ok := intParam(r.URL.Query().Get("hours"), defaultForecastHours, 1, h.service.MaxHorizon())
	if !ok {
		http.Error(w, "hours must be between 1 and "+strconv.Itoa(h.service.MaxHorizon()), http.StatusBadRequest)
		return
	}

	stored, err := h.service.StoredForecast(r.Context(), locationID, hours)
	if err != nil {
		h.writeError(w, err, "Failed to load predictions")
		return
	}
	if stored == nil {
		stored = []prediction.StoredPrediction{}
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"location_id": locationID,
		"predictions": stored,
		"count":       len(stored),
	}))
}

// HandleAccuracy handles GET /api/predictions/accuracy/{locationID}
func (h *Handler) HandleAccuracy(w http.ResponseWriter, r *http.Request) {
	locationID, ok := locationParam(r)
	if !ok {
		http.Error(w, "Invalid location ID", http.StatusBadRequest)
		return
	}
	hours, ok := intParam(r.URL.Query().Get("hours"), defaultForecastHours, 1, prediction.MaxAccuracyWindow)
	if !ok {
		http.Error(w, "hours must be between 1 and 168", http.StatusBadRequest)
		return
	}

	report, err := h.accuracy.Evaluate(r.Context(), locationID, hours)
	if err != nil {
		h.writeError(w, err, "Accuracy evaluation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(report))
}

// HandleGetModel handles GET /api/predictions/model
func (h *Handler) HandleGetModel(w http.ResponseWriter, r *http.Request) {
	model := h.service.Current()
	if model == nil {
		http.Error(w, "No model has been trained", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"model":         prediction.ModelInfoFor(model),
		"lags":          model.Lags(),
		"feature_names": model.FeatureNames(),
		"search":        model.Search(),
	}))
}

// HandleListModels handles GET /api/predictions/models
func (h *Handler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(r.URL.Query().Get("limit"), defaultModelsLimit, 1, maxModelsLimit)
	if !ok {
		http.Error(w, "limit must be between 1 and 100", http.StatusBadRequest)
		return
	}

	models, err := h.service.Models(r.Context(), limit)
	if err != nil {
		h.writeError(w, err, "Failed to list models")
		return
	}
	if models == nil {
		models = []prediction.ModelInfo{}
	}

	h.writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"models": models,
		"count":  len(models),
	}))
}

// writeError maps domain errors to status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrInsufficientData),
		errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrInvalidReading),
		errors.Is(err, domain.ErrInvalidConfig):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFitted):
		http.Error(w, "No model has been trained", http.StatusNotFound)
	default:
		h.log.Error().Err(err).Msg(msg)
		http.Error(w, msg+": "+err.Error(), http.StatusInternalServerError)
	}
}

func locationParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "locationID"), 10, 64)
	return id, err == nil && id > 0
}

// intParam parses an optional integer query value within [lo, hi].
func intParam(raw string, def, lo, hi int) (int, bool) {
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, false
	}
	return v, true
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
