package accounts

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.Open)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/balance", h.Balance)
	r.Post("/{id}/deactivate", h.Deactivate)
}
