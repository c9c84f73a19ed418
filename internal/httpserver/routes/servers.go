package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/fleet/internal/httpserver/deps"
	"github.com/MrSnakeDoc/fleet/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/fleet/internal/httpserver/mw"
)

func init() { Register(registerServers) }

func registerServers(r chi.Router, d deps.Deps) {
	r.Route("/servers", func(r chi.Router) {
		r.With(mw.RateLimit(mw.RateLimitConfig{
			Burst:             d.RegisterBurst,
			RefillPerIPPerMin: d.RegisterRefillPerMin,
			MaxEntries:        d.RegisterLimiterMaxIPs,
			TrustProxy:        d.TrustProxy,
			Logger:            d.Logger,
		})).Post("/", handlers.RegisterServer(d))
		r.Get("/", handlers.ListServers(d))
		r.Get("/{id}", handlers.GetServer(d))
		r.Patch("/{id}", handlers.Heartbeat(d))
	})
}
