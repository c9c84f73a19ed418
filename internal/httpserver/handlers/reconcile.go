package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/fleet/internal/httpserver/deps"
	"github.com/MrSnakeDoc/fleet/internal/logger"
)

// Reconcile queues an immediate reconciliation sweep.
func Reconcile(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case d.ReconcileTrigger <- struct{}{}:
			d.Logger.Info("manual reconciliation triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			writeMessage(w, http.StatusAccepted, "Reconciliation triggered", d.Logger)
		default:
			d.Logger.Warn("reconciliation already queued",
				logger.String("remote_ip", r.RemoteAddr))
			writeError(w, http.StatusTooManyRequests, "reconciliation already queued, please wait", d.Logger)
		}
	}
}
