package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// handleHealth reports database, model and event stream state. It returns
// 503 when the database is unreachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	response := map[string]interface{}{
		"status":         "healthy",
		"service":        "aqicast",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		dbInfo := map[string]interface{}{"name": s.db.Name()}
		if err := s.db.QuickCheck(ctx); err != nil {
			s.log.Error().Err(err).Msg("Database health check failed")
			dbInfo["error"] = err.Error()
			response["status"] = "unhealthy"
			status = http.StatusServiceUnavailable
		} else if stats, err := s.db.GetStats(); err == nil {
			dbInfo["stats"] = stats
		}
		response["database"] = dbInfo
	}

	var model interface{}
	if s.models != nil {
		if m := s.models.Current(); m != nil {
			model = map[string]interface{}{
				"version":       m.Version(),
				"version_label": m.VersionLabel(),
				"trained_at":    m.TrainedAt(),
			}
		}
	}
	response["model"] = model

	if s.bus != nil {
		response["event_subscribers"] = s.bus.SubscriberCount()
	}

	s.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
