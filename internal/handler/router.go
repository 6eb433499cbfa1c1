package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	custommiddleware "github.com/mmeshcher/staffpoints/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware служебного API.
func (h *Handler) SetupRouter(auth *custommiddleware.AuthMiddleware) *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Logger(h.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/healthz", h.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Get("/users", h.GetUsers)
		r.Get("/requests/pending", h.GetPending)
		r.Get("/requests/approved", h.GetApproved)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
