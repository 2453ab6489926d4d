package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all prediction routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/predictions", func(r chi.Router) {
		r.Post("/train", h.HandleTrain)
		r.Get("/model", h.HandleGetModel)
		r.Get("/models", h.HandleListModels)
		r.Get("/forecast/{locationID}", h.HandleForecast)
		r.Get("/accuracy/{locationID}", h.HandleAccuracy)
		r.Get("/{locationID}", h.HandleStored)
	})
}
