package deps

import (
	"time"

	"github.com/MrSnakeDoc/fleet/internal/logger"
	"github.com/MrSnakeDoc/fleet/internal/registry"
	"github.com/MrSnakeDoc/fleet/internal/store"
)

type Deps struct {
	Logger           logger.Logger
	StartTime        time.Time
	Version          string
	Commit           string
	BuildDate        string
	GoVersion        string
	TimeNow          func() time.Time    // for testing, defaults to time.Now
	AllowedHosts     []string            // Host headers allowed to reach admin endpoints
	AllowedCIDRS     []string            // IPs allowed to reach readyz/infra/reconcile
	TrustProxy       bool                // true if running behind a trusted reverse proxy (e.g., cloudflared)
	Registry         *registry.Engine    // Register / Heartbeat / Get / GetAll
	Identities       store.IdentityStore // pinged by readyz and infra
	Liveness         store.LivenessCache // pinged by readyz and infra, serves the player counters
	StoreDriver      string              // "mysql" | "memory"
	BroadcastDriver  string              // publisher name reported by infra
	ReconcileTrigger chan struct{}       // Channel to trigger a manual reconciliation
	PingTimeout      time.Duration       // bound for readiness pings (default: 2s)

	// Rate limit applied to POST /servers, per client IP
	RegisterBurst         int
	RegisterRefillPerMin  int
	RegisterLimiterMaxIPs int
}

// Now returns TimeNow() or time.Now().
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
