package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/fleet/internal/domain"
	"github.com/MrSnakeDoc/fleet/internal/logger"
	"github.com/MrSnakeDoc/fleet/internal/store/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingIdentities wraps the memory store and fails writes on demand.
type failingIdentities struct {
	*memory.IdentityStore
	failUpsert bool
	failList   bool
}

func (f *failingIdentities) Upsert(ctx context.Context, identity domain.ServerIdentity) error {
	if f.failUpsert {
		return fmt.Errorf("mysql upsert identity: %w: connection refused", domain.ErrStoreUnavailable)
	}
	return f.IdentityStore.Upsert(ctx, identity)
}

func (f *failingIdentities) List(ctx context.Context) ([]domain.ServerIdentity, error) {
	if f.failList {
		return nil, errors.New("connection reset")
	}
	return f.IdentityStore.List(ctx)
}

// failingLiveness wraps the memory cache and fails chosen calls.
type failingLiveness struct {
	*memory.LivenessCache
	failReset   bool
	failRefresh bool
	malformed   map[string]bool
}

func (f *failingLiveness) Reset(ctx context.Context, serverID string, now int64, ttl time.Duration) error {
	if f.failReset {
		return fmt.Errorf("redis reset liveness: %w: i/o timeout", domain.ErrStoreUnavailable)
	}
	return f.LivenessCache.Reset(ctx, serverID, now, ttl)
}

func (f *failingLiveness) Refresh(ctx context.Context, serverID string, l domain.ServerLiveness, ttl time.Duration) error {
	if f.failRefresh {
		return errors.New("i/o timeout")
	}
	return f.LivenessCache.Refresh(ctx, serverID, l, ttl)
}

func (f *failingLiveness) Get(ctx context.Context, serverID string) (*domain.ServerLiveness, error) {
	l, err := f.LivenessCache.Get(ctx, serverID)
	if l != nil && f.malformed[serverID] {
		l.PlayerList = []domain.PlayerSession{}
		return l, fmt.Errorf("%w: %s playerList", domain.ErrMalformedState, serverID)
	}
	return l, err
}

type fixture struct {
	engine     *Engine
	identities *failingIdentities
	liveness   *failingLiveness
	clock      *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := &clock{now: time.Unix(1700000000, 0)}
	identities := &failingIdentities{IdentityStore: memory.NewIdentityStore()}
	liveness := &failingLiveness{LivenessCache: memory.NewLivenessCache(c.Now), malformed: map[string]bool{}}
	engine := NewEngine(identities, liveness, logger.Nop(), Options{
		LivenessTTL: 60 * time.Second,
		Now:         c.Now,
	})
	return &fixture{engine: engine, identities: identities, liveness: liveness, clock: c}
}

func registration(id string) domain.Registration {
	return domain.Registration{
		ServerID:    id,
		ServerName:  "Lobby " + id,
		Type:        "lobby",
		Environment: "prod",
		Version:     "1.0.0",
		Port:        25565,
	}
}

func TestRegisterThenGetIsOnline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.Register(ctx, registration("s1")))

	view, err := f.engine.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOnline, view.Status)
	assert.Equal(t, 0, view.PlayerCount)
	assert.NotNil(t, view.PlayerList)
	assert.Empty(t, view.PlayerList)
	assert.Equal(t, int64(1700000000), view.LastStarted)
	assert.Equal(t, int64(1700000000), view.LastHeartbeat)
	assert.Nil(t, view.LastSeenOffline)
	assert.Equal(t, "Lobby s1", view.ServerName)
}

func TestGetUnknownIsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Get(context.Background(), "never")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)

	err := f.engine.Register(context.Background(), domain.Registration{Port: 25565})
	assert.ErrorIs(t, err, domain.ErrInvalidRegistration)
	assert.Equal(t, 0, f.identities.Count())
}

func TestRegisterIdentityFailureLeavesCacheUntouched(t *testing.T) {
	f := newFixture(t)
	f.identities.failUpsert = true

	err := f.engine.Register(context.Background(), registration("s1"))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, 0, f.liveness.Len())
}

func TestRegisterCacheFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.liveness.failReset = true
	ctx := context.Background()

	require.NoError(t, f.engine.Register(ctx, registration("s1")))

	view, err := f.engine.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOffline, view.Status)
}

func TestHeartbeatUpdatesVolatileState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Register(ctx, registration("s1")))

	f.clock.Advance(3 * time.Second)
	err := f.engine.Heartbeat(ctx, "s1", domain.HeartbeatUpdate{
		PlayerCount:   2,
		LastHeartbeat: 1700000003,
		PlayerList: []domain.PlayerSession{
			{UUID: "a", Username: "alice", Vanished: false},
			{UUID: "b", Username: "bob", Vanished: true},
		},
	})
	require.NoError(t, err)

	view, err := f.engine.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOnline, view.Status)
	assert.Equal(t, 1, view.PlayerCount, "playerCount counts visible players only")
	assert.Len(t, view.PlayerList, 2)
	assert.Equal(t, int64(1700000003), view.LastHeartbeat)

	identity, err := f.identities.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), identity.LastHeartbeat, "heartbeat must not write the identity")
}

func TestHeartbeatZeroTimestampUsesNow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Register(ctx, registration("s1")))

	f.clock.Advance(4 * time.Second)
	require.NoError(t, f.engine.Heartbeat(ctx, "s1", domain.HeartbeatUpdate{}))

	view, err := f.engine.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000004), view.LastHeartbeat)
}

func TestHeartbeatWithoutRegistrationIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.engine.Heartbeat(ctx, "s1", domain.HeartbeatUpdate{LastHeartbeat: 1})
	assert.ErrorIs(t, err, domain.ErrStaleHeartbeatIgnored)
	assert.Equal(t, 0, f.liveness.Len())
}

func TestHeartbeatAfterEvictionIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Register(ctx, registration("s1")))
	require.NoError(t, f.liveness.Evict(ctx, "s1"))

	err := f.engine.Heartbeat(ctx, "s1", domain.HeartbeatUpdate{})
	assert.ErrorIs(t, err, domain.ErrStaleHeartbeatIgnored)

	view, err := f.engine.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOffline, view.Status)
}

func TestHeartbeatOutOfOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Register(ctx, registration("s1")))

	f.clock.Advance(10 * time.Second)
	require.NoError(t, f.engine.Heartbeat(ctx, "s1", domain.HeartbeatUpdate{LastHeartbeat: 1700000010}))
	err := f.engine.Heartbeat(ctx, "s1", domain.HeartbeatUpdate{LastHeartbeat: 1700000005})
	assert.ErrorIs(t, err, domain.ErrOutOfOrderHeartbeat)
}

func TestHeartbeatStoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Register(ctx, registration("s1")))
	f.liveness.failRefresh = true

	err := f.engine.Heartbeat(ctx, "s1", domain.HeartbeatUpdate{})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestGetMalformedShowsOnlineWithoutPlayers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Register(ctx, registration("s1")))
	f.liveness.malformed["s1"] = true

	view, err := f.engine.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOnline, view.Status)
	assert.Empty(t, view.PlayerList)
}

func TestGetAllComposesInIdentityOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, f.engine.Register(ctx, registration(id)))
	}
	require.NoError(t, f.liveness.Evict(ctx, "b"))

	views, err := f.engine.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, views, 3)

	assert.Equal(t, "a", views[0].ServerID)
	assert.Equal(t, domain.StatusOnline, views[0].Status)
	assert.Equal(t, "b", views[1].ServerID)
	assert.Equal(t, domain.StatusOffline, views[1].Status)
	assert.Equal(t, "c", views[2].ServerID)
}

func TestGetAllStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.identities.failList = true

	_, err := f.engine.GetAll(context.Background())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestLivenessExpiresAfterTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Register(ctx, registration("s1")))

	f.clock.Advance(61 * time.Second)

	view, err := f.engine.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOffline, view.Status)
}

func TestConcurrentRegisterLastWriteWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := domain.Registration{ServerID: "s1", ServerName: "alpha", Type: "lobby", Environment: "prod", Version: "1", Port: 1000}
	second := domain.Registration{ServerID: "s1", ServerName: "beta", Type: "game", Environment: "staging", Version: "2", Port: 2000}

	for i := 0; i < 50; i++ {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); _ = f.engine.Register(ctx, first) }()
		go func() { defer wg.Done(); _ = f.engine.Register(ctx, second) }()
		wg.Wait()

		got, err := f.identities.Get(ctx, "s1")
		require.NoError(t, err)

		matches := func(r domain.Registration) bool {
			return got.ServerName == r.ServerName && got.Type == r.Type &&
				got.Environment == r.Environment && got.Version == r.Version && got.Port == r.Port
		}
		require.True(t, matches(first) || matches(second), "identity mixes fields from both registrations: %+v", got)
	}
}
