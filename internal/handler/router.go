package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/newage31/Ampulse-sub004/internal/middleware"
)

// SetupRouter configures the HTTP routes and middleware of the
// reservation service.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/reservations", h.CreateReservation)
			r.Get("/reservations/{id}", h.GetReservation)
			r.Get("/reservations/{id}/transitions", h.GetTransitions)
			r.Post("/reservations/{id}/check-in", h.CheckIn)
			r.Post("/reservations/{id}/check-out", h.CheckOut)
			r.Post("/reservations/{id}/cancel", h.Cancel)

			r.Get("/availability", h.GetAvailability)
			r.Get("/conventions/resolve", h.ResolveConvention)

			r.Post("/rooms", h.CreateRoom)
			r.Get("/rooms", h.ListRooms)
			r.Get("/rooms/{id}", h.GetRoom)
			r.Patch("/rooms/{id}/base-rate", h.UpdateBaseRate)
			r.Post("/rooms/{id}/retire", h.RetireRoom)

			r.Post("/operators", h.CreateOperator)
			r.Post("/clients", h.CreateClient)
			r.Post("/conventions", h.CreateConvention)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
