package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/fleet/internal/httpserver/deps"
	"github.com/MrSnakeDoc/fleet/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/fleet/internal/httpserver/mw"
)

func init() { Register(registerReconcile) }

func registerReconcile(r chi.Router, d deps.Deps) {
	r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger), mw.EnforceHost(d.AllowedHosts, d.Logger)).Post("/reconcile", handlers.Reconcile(d))
}
