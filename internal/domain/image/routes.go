package image

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the catalog router. Listing and the event stream are public,
// everything else goes through requireIdentity.
func (h *Handler) Routes(requireIdentity func(http.Handler) http.Handler, events http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	if events != nil {
		r.Method(http.MethodGet, "/events", events)
	}

	r.Group(func(r chi.Router) {
		r.Use(requireIdentity)

		r.Post("/", h.Upload)
		r.Get("/usage", h.Usage)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Delete)
	})

	return r
}
