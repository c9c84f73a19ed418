package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/fleet/internal/httpserver/deps"
	"github.com/MrSnakeDoc/fleet/internal/httpserver/handlers"
)

func init() { Register(registerPlayers) }

func registerPlayers(r chi.Router, d deps.Deps) {
	r.Get("/players/count", handlers.PlayerCount(d))
}
