package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all readings routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/readings", func(r chi.Router) {
		r.Post("/", h.HandleIngest)
		r.Get("/{locationID}", h.HandleGetRecent)
	})
}
