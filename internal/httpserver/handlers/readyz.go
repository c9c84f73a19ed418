package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/fleet/internal/httpserver/deps"
	"github.com/MrSnakeDoc/fleet/internal/logger"
)

type readyzResponse struct {
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

var errNotInitialized = errors.New("not initialized")

type pinger interface {
	Ping(ctx context.Context) error
}

func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := []struct {
			name string
			p    pinger
		}{
			{"identity_store", d.Identities},
			{"liveness_cache", d.Liveness},
		}
		for _, c := range checks {
			if err := ping(r.Context(), c.p, d.PingTimeout); err != nil {
				d.Logger.Warn("readiness check failed",
					logger.String("component", c.name),
					logger.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, readyzResponse{Ready: false, Error: c.name + " unavailable"}, d.Logger)
				return
			}
		}

		writeJSON(w, http.StatusOK, readyzResponse{Ready: true}, d.Logger)
	}
}

func ping(ctx context.Context, p pinger, timeout time.Duration) error {
	if p == nil {
		return errNotInitialized
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Ping(ctx)
}
