// Package store defines the contracts of the two registry stores.
//
// The identity store is durable and authoritative for existence. The
// liveness cache is volatile: an entry is present only while its TTL runs,
// and presence alone means "online".
package store

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/fleet/internal/domain"
)

// IdentityStore persists ServerIdentity records. Records are never deleted.
type IdentityStore interface {
	// Upsert creates or fully overwrites the identity keyed by ServerID.
	Upsert(ctx context.Context, identity domain.ServerIdentity) error

	// Get returns domain.ErrNotFound when no identity exists.
	Get(ctx context.Context, serverID string) (*domain.ServerIdentity, error)

	// List returns every identity ordered by ServerID.
	List(ctx context.Context) ([]domain.ServerIdentity, error)

	// MarkOffline stamps LastHeartbeat and LastSeenOffline, but only when
	// LastSeenOffline is currently unset. It reports whether a row changed.
	MarkOffline(ctx context.Context, serverID string, lastHeartbeat, offlineAt int64) (bool, error)

	Ping(ctx context.Context) error
}

// LivenessCache holds the TTL-bound ServerLiveness entries and the
// latest GlobalCounters snapshot.
type LivenessCache interface {
	// Reset replaces any entry for serverID with a fresh one (no players,
	// LastHeartbeat = now) in a single atomic step, then applies ttl.
	Reset(ctx context.Context, serverID string, now int64, ttl time.Duration) error

	// Refresh overwrites the entry and renews its ttl only if it exists.
	// Returns domain.ErrStaleHeartbeatIgnored when it does not and
	// domain.ErrOutOfOrderHeartbeat when liveness.LastHeartbeat is older
	// than the last accepted one.
	Refresh(ctx context.Context, serverID string, liveness domain.ServerLiveness, ttl time.Duration) error

	// Get returns (nil, nil) when no entry exists. When the stored state
	// cannot be decoded it returns the entry without players together with
	// an error wrapping domain.ErrMalformedState.
	Get(ctx context.Context, serverID string) (*domain.ServerLiveness, error)

	// GetMany reads several entries in one round trip. Absent ids are
	// missing from the result; malformed ones are present without players
	// and their decode error is reported in the second map.
	GetMany(ctx context.Context, serverIDs []string) (map[string]*domain.ServerLiveness, map[string]error, error)

	// Evict removes the entry. Evicting an absent entry is not an error.
	Evict(ctx context.Context, serverID string) error

	SetCounters(ctx context.Context, counters domain.GlobalCounters) error

	// GetCounters returns a zero snapshot when none was ever written.
	GetCounters(ctx context.Context) (domain.GlobalCounters, error)

	Ping(ctx context.Context) error
}
