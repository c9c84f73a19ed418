package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/fleet/internal/httpserver/deps"
	"github.com/MrSnakeDoc/fleet/internal/logger"
)

type playerCountResponse struct {
	Success bool `json:"success"`
	Visible int  `json:"visible"`
	Actual  int  `json:"actual"`
}

// PlayerCount serves the last counters stored by the aggregator.
func PlayerCount(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counters, err := d.Liveness.GetCounters(r.Context())
		if err != nil {
			d.Logger.Warn("failed to read player counters", logger.Error(err))
			writeError(w, statusFor(err), "failed to read player counters", d.Logger)
			return
		}

		writeJSON(w, http.StatusOK, playerCountResponse{
			Success: true,
			Visible: counters.Visible,
			Actual:  counters.Actual,
		}, d.Logger)
	}
}
