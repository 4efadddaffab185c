package http

import (
	"github.com/areuok/server/internal/http/handlers"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(
	deviceHandler *handlers.DeviceHandler,
	signinHandler *handlers.SigninHandler,
	supervisionHandler *handlers.SupervisionHandler,
	eventsHandler *handlers.EventsHandler,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/devices", func(r chi.Router) {
		r.Post("/register", deviceHandler.HandleRegister)
		r.Get("/{id}", deviceHandler.HandleGet)
		r.Patch("/{id}/name", deviceHandler.HandleUpdateName)
		r.Post("/{id}/signin", signinHandler.HandleSignin)
		r.Get("/{id}/status", signinHandler.HandleStatus)
		r.Get("/{id}/events", eventsHandler.HandleStream)
	})

	r.Get("/search/devices", deviceHandler.HandleSearch)

	r.Route("/supervision", func(r chi.Router) {
		r.Post("/request", supervisionHandler.HandleRequest)
		r.Get("/pending/{id}", supervisionHandler.HandlePending)
		r.Post("/accept", supervisionHandler.HandleAccept)
		r.Post("/reject", supervisionHandler.HandleReject)
		r.Get("/list/{id}", supervisionHandler.HandleList)
		r.Delete("/{relation_id}", supervisionHandler.HandleRemove)
	})

	return r
}
