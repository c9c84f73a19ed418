package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/fleet/internal/domain"
)

type entry struct {
	liveness  domain.ServerLiveness
	reported  int64 // last accepted reported heartbeat, 0 after a reset
	expiresAt time.Time
}

// LivenessCache keeps liveness entries in process memory. Entries expire
// lazily: an entry past its deadline is treated as absent and dropped on
// the next access.
type LivenessCache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	counters *domain.GlobalCounters
	now      func() time.Time
}

// NewLivenessCache creates an empty cache. now defaults to time.Now.
func NewLivenessCache(now func() time.Time) *LivenessCache {
	if now == nil {
		now = time.Now
	}
	return &LivenessCache{
		entries: make(map[string]*entry),
		now:     now,
	}
}

// lookupLocked returns the live entry for id, dropping it when expired.
func (c *LivenessCache) lookupLocked(serverID string) *entry {
	e, ok := c.entries[serverID]
	if !ok {
		return nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, serverID)
		return nil
	}
	return e
}

func (c *LivenessCache) Reset(_ context.Context, serverID string, now int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[serverID] = &entry{
		liveness: domain.ServerLiveness{
			PlayerCount:   0,
			LastHeartbeat: now,
			PlayerList:    []domain.PlayerSession{},
		},
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

func (c *LivenessCache) Refresh(_ context.Context, serverID string, liveness domain.ServerLiveness, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookupLocked(serverID)
	if e == nil {
		return domain.ErrStaleHeartbeatIgnored
	}
	if e.reported != 0 && liveness.LastHeartbeat < e.reported {
		return domain.ErrOutOfOrderHeartbeat
	}

	e.liveness = cloneLiveness(liveness)
	e.reported = liveness.LastHeartbeat
	e.expiresAt = c.now().Add(ttl)
	return nil
}

func (c *LivenessCache) Get(_ context.Context, serverID string) (*domain.ServerLiveness, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookupLocked(serverID)
	if e == nil {
		return nil, nil
	}
	cp := cloneLiveness(e.liveness)
	return &cp, nil
}

func (c *LivenessCache) GetMany(_ context.Context, serverIDs []string) (map[string]*domain.ServerLiveness, map[string]error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	found := make(map[string]*domain.ServerLiveness, len(serverIDs))
	for _, id := range serverIDs {
		if e := c.lookupLocked(id); e != nil {
			cp := cloneLiveness(e.liveness)
			found[id] = &cp
		}
	}
	return found, nil, nil
}

func (c *LivenessCache) Evict(_ context.Context, serverID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, serverID)
	return nil
}

func (c *LivenessCache) SetCounters(_ context.Context, counters domain.GlobalCounters) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counters = &counters
	return nil
}

func (c *LivenessCache) GetCounters(context.Context) (domain.GlobalCounters, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counters == nil {
		return domain.GlobalCounters{}, nil
	}
	return *c.counters, nil
}

// Len returns the number of unexpired entries.
func (c *LivenessCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for id := range c.entries {
		if c.lookupLocked(id) != nil {
			n++
		}
	}
	return n
}

func (c *LivenessCache) Ping(context.Context) error { return nil }

func cloneLiveness(l domain.ServerLiveness) domain.ServerLiveness {
	players := make([]domain.PlayerSession, len(l.PlayerList))
	copy(players, l.PlayerList)
	l.PlayerList = players
	return l
}
