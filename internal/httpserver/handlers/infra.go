package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/fleet/internal/httpserver/deps"
)

type componentStatus struct {
	OK      bool   `json:"ok"`
	Driver  string `json:"driver,omitempty"`
	Servers *int   `json:"servers,omitempty"`
	Impact  string `json:"impact,omitempty"`
	Error   string `json:"error,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]componentStatus{
			"identity_store": checkIdentities(r, d),
			"liveness_cache": checkLiveness(r, d),
			"broadcast": {
				OK:     true,
				Driver: d.BroadcastDriver,
			},
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Mode:       determineMode(components),
			Components: components,
		}, d.Logger)
	}
}

func determineMode(components map[string]componentStatus) string {
	// Without identities nothing can be registered or listed
	if ids, exists := components["identity_store"]; exists && !ids.OK {
		return "critical"
	}

	// Cache down: every server reads as offline, heartbeats are rejected
	if cache, exists := components["liveness_cache"]; exists && !cache.OK {
		return "degraded"
	}

	return "operational"
}

func checkIdentities(r *http.Request, d deps.Deps) componentStatus {
	if d.Identities == nil {
		return componentStatus{OK: false, Driver: d.StoreDriver, Error: "store not initialized"}
	}
	if err := ping(r.Context(), d.Identities, d.PingTimeout); err != nil {
		return componentStatus{
			OK:     false,
			Driver: d.StoreDriver,
			Impact: "registration-disabled",
			Error:  err.Error(),
		}
	}

	status := componentStatus{OK: true, Driver: d.StoreDriver}
	if list, err := d.Identities.List(r.Context()); err == nil {
		n := len(list)
		status.Servers = &n
	}
	return status
}

func checkLiveness(r *http.Request, d deps.Deps) componentStatus {
	if d.Liveness == nil {
		return componentStatus{OK: false, Error: "cache not initialized"}
	}
	if err := ping(r.Context(), d.Liveness, d.PingTimeout); err != nil {
		return componentStatus{
			OK:     false,
			Impact: "all-servers-offline",
			Error:  err.Error(),
		}
	}
	return componentStatus{OK: true}
}
