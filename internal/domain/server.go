package domain

// Status is the derived liveness state of a server.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// ServerIdentity is the durable record of a game-server process.
//
// It is the source of truth for existence. It is never deleted: going
// offline only stamps LastSeenOffline.
type ServerIdentity struct {
	// ─────────────────────────────
	// Identity (immutable key)
	// ─────────────────────────────

	// ServerID uniquely identifies one logical server process.
	ServerID string `json:"serverId"`

	// ─────────────────────────────
	// Static metadata
	// (overwritten on every Register)
	// ─────────────────────────────

	ServerName  string `json:"serverName"`
	Type        string `json:"type"`
	Environment string `json:"environment"`
	Version     string `json:"version"`
	Port        int    `json:"port"`

	// ─────────────────────────────
	// Lifecycle (unix seconds)
	// ─────────────────────────────

	// LastStarted is set on every Register.
	LastStarted int64 `json:"lastStarted"`

	// LastHeartbeat is the durable fallback value. It is written on Register
	// and on the offline transition, never on a plain heartbeat.
	LastHeartbeat int64 `json:"lastHeartbeat"`

	// LastSeenOffline is set once per offline transition and cleared
	// on re-registration.
	LastSeenOffline *int64 `json:"lastSeenOffline"`
}

// PlayerSession is one connected player as reported by a server.
type PlayerSession struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	JoinedAt int64  `json:"joinedAt"`
	Vanished bool   `json:"vanished"`
}

// ServerLiveness is the volatile, TTL-bound runtime state of a server.
// Its presence in the cache is the only signal that a server is online.
type ServerLiveness struct {
	PlayerCount   int             `json:"playerCount"`
	LastHeartbeat int64           `json:"lastHeartbeat"`
	PlayerList    []PlayerSession `json:"playerList"`
}

// ServerView is the read model: identity composed with liveness.
type ServerView struct {
	ServerIdentity
	PlayerCount int             `json:"playerCount"`
	PlayerList  []PlayerSession `json:"playerList"`
	Status      Status          `json:"status"`
}

// Registration carries the identity fields a server reports on startup.
// Timestamps are assigned by the registry.
type Registration struct {
	ServerID    string `json:"serverId"`
	ServerName  string `json:"serverName"`
	Type        string `json:"type"`
	Environment string `json:"environment"`
	Version     string `json:"version"`
	Port        int    `json:"port"`
}

// HeartbeatUpdate is the volatile state a server reports periodically.
// PlayerCount is accepted on the wire but recomputed from PlayerList.
type HeartbeatUpdate struct {
	PlayerCount   int             `json:"playerCount"`
	LastHeartbeat int64           `json:"lastHeartbeat"`
	PlayerList    []PlayerSession `json:"playerList"`
}

// GlobalCounters is the fleet-wide player snapshot.
// Actual counts every session, Visible only the non-vanished ones.
type GlobalCounters struct {
	Visible int `json:"visible"`
	Actual  int `json:"actual"`
}
