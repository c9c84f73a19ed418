package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/MrSnakeDoc/fleet/internal/domain"
)

// IdentityStore keeps identities in process memory.
// It backs FLEET_STORE_DRIVER=memory and the engine tests.
type IdentityStore struct {
	mu         sync.RWMutex
	identities map[string]domain.ServerIdentity // ServerID -> identity
}

// NewIdentityStore creates an empty identity store
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		identities: make(map[string]domain.ServerIdentity),
	}
}

// Upsert adds or overwrites a single identity
func (s *IdentityStore) Upsert(_ context.Context, identity domain.ServerIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identities[identity.ServerID] = cloneIdentity(identity)
	return nil
}

// Get retrieves an identity by ID
func (s *IdentityStore) Get(_ context.Context, serverID string) (*domain.ServerIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[serverID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := cloneIdentity(identity)
	return &cp, nil
}

// List returns all identities sorted by ServerID
func (s *IdentityStore) List(_ context.Context) ([]domain.ServerIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identities := make([]domain.ServerIdentity, 0, len(s.identities))
	for _, identity := range s.identities {
		identities = append(identities, cloneIdentity(identity))
	}
	sort.Slice(identities, func(i, j int) bool {
		return identities[i].ServerID < identities[j].ServerID
	})
	return identities, nil
}

// MarkOffline records the offline transition once
func (s *IdentityStore) MarkOffline(_ context.Context, serverID string, lastHeartbeat, offlineAt int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[serverID]
	if !ok || identity.LastSeenOffline != nil {
		return false, nil
	}

	identity.LastHeartbeat = lastHeartbeat
	at := offlineAt
	identity.LastSeenOffline = &at
	s.identities[serverID] = identity
	return true, nil
}

// Count returns the number of identities
func (s *IdentityStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.identities)
}

func (s *IdentityStore) Ping(context.Context) error { return nil }

func cloneIdentity(identity domain.ServerIdentity) domain.ServerIdentity {
	if identity.LastSeenOffline != nil {
		at := *identity.LastSeenOffline
		identity.LastSeenOffline = &at
	}
	return identity
}
