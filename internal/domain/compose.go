package domain

import "fmt"

// Compose merges a durable identity with an optional liveness record.
//
// A nil liveness means the server is offline: volatile fields are zeroed and
// the identity's durable LastHeartbeat is shown. Otherwise the cache is
// authoritative for every volatile field, including LastHeartbeat.
func Compose(identity ServerIdentity, liveness *ServerLiveness) ServerView {
	view := ServerView{
		ServerIdentity: identity,
		PlayerList:     []PlayerSession{},
		Status:         StatusOffline,
	}
	if liveness == nil {
		return view
	}

	view.Status = StatusOnline
	view.PlayerCount = liveness.PlayerCount
	if liveness.LastHeartbeat != 0 {
		view.LastHeartbeat = liveness.LastHeartbeat
	}
	if liveness.PlayerList != nil {
		view.PlayerList = liveness.PlayerList
	}
	return view
}

// CountPlayers returns the number of visible (non-vanished) and actual sessions.
func CountPlayers(players []PlayerSession) (visible, actual int) {
	for _, p := range players {
		if !p.Vanished {
			visible++
		}
	}
	return visible, len(players)
}

// Add folds one server's sessions into the counters.
func (c *GlobalCounters) Add(players []PlayerSession) {
	visible, actual := CountPlayers(players)
	c.Visible += visible
	c.Actual += actual
}

// NewLiveness builds the cache record for a heartbeat. PlayerCount is
// derived from the list. A zero timestamp, or one ahead of now, is
// replaced by now so a stored heartbeat never lies in the future.
func NewLiveness(update HeartbeatUpdate, now int64) ServerLiveness {
	players := update.PlayerList
	if players == nil {
		players = []PlayerSession{}
	}
	visible, _ := CountPlayers(players)

	lastHeartbeat := update.LastHeartbeat
	if lastHeartbeat == 0 || lastHeartbeat > now {
		lastHeartbeat = now
	}

	return ServerLiveness{
		PlayerCount:   visible,
		LastHeartbeat: lastHeartbeat,
		PlayerList:    players,
	}
}

// Validate checks the registration constraints.
func (r Registration) Validate() error {
	if r.ServerID == "" {
		return fmt.Errorf("%w: serverId is required", ErrInvalidRegistration)
	}
	if r.Port < 0 || r.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidRegistration, r.Port)
	}
	return nil
}

// Identity stamps a registration with its start time.
// LastSeenOffline is always reset: a fresh start supersedes a prior offline mark.
func (r Registration) Identity(now int64) ServerIdentity {
	return ServerIdentity{
		ServerID:        r.ServerID,
		ServerName:      r.ServerName,
		Type:            r.Type,
		Environment:     r.Environment,
		Version:         r.Version,
		Port:            r.Port,
		LastStarted:     now,
		LastHeartbeat:   now,
		LastSeenOffline: nil,
	}
}
