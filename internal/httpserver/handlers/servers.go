package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/fleet/internal/domain"
	"github.com/MrSnakeDoc/fleet/internal/httpserver/deps"
	"github.com/MrSnakeDoc/fleet/internal/logger"
)

type serverResponse struct {
	Success bool               `json:"success"`
	Server  *domain.ServerView `json:"server"`
}

type serversResponse struct {
	Success bool                 `json:"success"`
	Servers []*domain.ServerView `json:"servers"`
}

// RegisterServer handles POST /servers.
func RegisterServer(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reg domain.Registration
		if err := decodeBody(w, r, &reg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid registration payload", d.Logger)
			return
		}
		reg.ServerID = strings.TrimSpace(reg.ServerID)

		if err := d.Registry.Register(r.Context(), reg); err != nil {
			status := statusFor(err)
			if status == http.StatusBadRequest {
				writeError(w, status, err.Error(), d.Logger)
				return
			}
			writeError(w, status, "failed to register server", d.Logger)
			return
		}

		writeMessage(w, http.StatusOK, "Server registered successfully", d.Logger)
	}
}

// Heartbeat handles PATCH /servers/{id}.
func Heartbeat(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serverID := chi.URLParam(r, "id")

		var update domain.HeartbeatUpdate
		if err := decodeBody(w, r, &update); err != nil {
			writeError(w, http.StatusBadRequest, "invalid heartbeat payload", d.Logger)
			return
		}

		err := d.Registry.Heartbeat(r.Context(), serverID, update)
		switch {
		case err == nil:
			writeMessage(w, http.StatusOK, fmt.Sprintf("Heartbeat received from %s", serverID), d.Logger)
		case errors.Is(err, domain.ErrStaleHeartbeatIgnored):
			writeError(w, http.StatusConflict, "server is not online, register first", d.Logger)
		case errors.Is(err, domain.ErrOutOfOrderHeartbeat):
			writeMessage(w, http.StatusAccepted, "Heartbeat older than stored state, ignored", d.Logger)
		default:
			writeError(w, statusFor(err), "failed to record heartbeat", d.Logger)
		}
	}
}

// GetServer handles GET /servers/{id}.
func GetServer(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serverID := chi.URLParam(r, "id")

		view, err := d.Registry.Get(r.Context(), serverID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, messageResponse{Message: "Server not found"}, d.Logger)
				return
			}
			d.Logger.Warn("failed to get server",
				logger.String("server_id", serverID),
				logger.Error(err))
			writeError(w, statusFor(err), "failed to get server", d.Logger)
			return
		}

		writeJSON(w, http.StatusOK, serverResponse{Success: true, Server: view}, d.Logger)
	}
}

// ListServers handles GET /servers.
func ListServers(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := d.Registry.GetAll(r.Context())
		if err != nil {
			d.Logger.Warn("failed to list servers", logger.Error(err))
			writeError(w, statusFor(err), "failed to list servers", d.Logger)
			return
		}
		if views == nil {
			views = []*domain.ServerView{}
		}

		writeJSON(w, http.StatusOK, serversResponse{Success: true, Servers: views}, d.Logger)
	}
}
