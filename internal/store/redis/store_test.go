package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/fleet/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client), mr
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "environment:lobby-1", LivenessKey("lobby-1"))
	assert.NotEqual(t, KeyGlobalCounters, LivenessKey("playerCount"), "counters key must not collide with a liveness key")
}

func TestResetWritesFreshHashWithTTL(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	mr.HSet(LivenessKey("s1"), fieldReportedHeartbeat, "999", "stale", "x")

	require.NoError(t, s.Reset(ctx, "s1", 1700000000, 60*time.Second))

	key := LivenessKey("s1")
	assert.Equal(t, "0", mr.HGet(key, fieldPlayerCount))
	assert.Equal(t, "1700000000", mr.HGet(key, fieldLastHeartbeat))
	assert.Equal(t, "[]", mr.HGet(key, fieldPlayerList))
	assert.Empty(t, mr.HGet(key, fieldReportedHeartbeat), "reset must clear the reported heartbeat")
	assert.Empty(t, mr.HGet(key, "stale"))
	assert.Equal(t, 60*time.Second, mr.TTL(key))
}

func TestRefreshRequiresExistingEntry(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	err := s.Refresh(ctx, "ghost", domain.ServerLiveness{LastHeartbeat: 1}, time.Minute)
	assert.ErrorIs(t, err, domain.ErrStaleHeartbeatIgnored)
	assert.False(t, mr.Exists(LivenessKey("ghost")), "refresh must not resurrect an absent entry")
}

func TestRefreshOverwritesAndRenewsTTL(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Reset(ctx, "s1", 100, 60*time.Second))
	mr.FastForward(50 * time.Second)

	players := []domain.PlayerSession{
		{UUID: "u1", Username: "alice", JoinedAt: 90},
		{UUID: "u2", Username: "bob", JoinedAt: 95, Vanished: true},
	}
	require.NoError(t, s.Refresh(ctx, "s1", domain.ServerLiveness{PlayerCount: 1, LastHeartbeat: 150, PlayerList: players}, 60*time.Second))
	assert.Equal(t, 60*time.Second, mr.TTL(LivenessKey("s1")))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.PlayerCount)
	assert.Equal(t, int64(150), got.LastHeartbeat)
	assert.Equal(t, players, got.PlayerList)
}

func TestRefreshRejectsOlderHeartbeat(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Reset(ctx, "s1", 100, time.Minute))
	require.NoError(t, s.Refresh(ctx, "s1", domain.ServerLiveness{LastHeartbeat: 200}, time.Minute))

	err := s.Refresh(ctx, "s1", domain.ServerLiveness{LastHeartbeat: 150, PlayerList: []domain.PlayerSession{{UUID: "late"}}}, time.Minute)
	assert.ErrorIs(t, err, domain.ErrOutOfOrderHeartbeat)

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.LastHeartbeat)
	assert.Empty(t, got.PlayerList)

	// equal timestamps are accepted
	assert.NoError(t, s.Refresh(ctx, "s1", domain.ServerLiveness{LastHeartbeat: 200}, time.Minute))
}

func TestGetMissingIsCacheMiss(t *testing.T) {
	s, _ := newTestStore(t)

	got, err := s.Get(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetMalformedPlayerList(t *testing.T) {
	s, mr := newTestStore(t)
	mr.HSet(LivenessKey("s1"), fieldPlayerCount, "3", fieldLastHeartbeat, "42", fieldPlayerList, "{not json")

	got, err := s.Get(context.Background(), "s1")
	assert.ErrorIs(t, err, domain.ErrMalformedState)
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.LastHeartbeat)
	assert.Equal(t, 0, got.PlayerCount)
	assert.Empty(t, got.PlayerList)
}

func TestGetMany(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Reset(ctx, "a", 1, time.Minute))
	require.NoError(t, s.Reset(ctx, "b", 2, time.Minute))
	mr.HSet(LivenessKey("c"), fieldLastHeartbeat, "3", fieldPlayerList, "oops")

	found, malformed, err := s.GetMany(ctx, []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	assert.Len(t, found, 3)
	assert.Equal(t, int64(2), found["b"].LastHeartbeat)
	assert.NotContains(t, found, "d")
	require.Contains(t, malformed, "c")
	assert.True(t, errors.Is(malformed["c"], domain.ErrMalformedState))

	empty, _, err := s.GetMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEvict(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Reset(ctx, "s1", 1, time.Minute))
	require.NoError(t, s.Evict(ctx, "s1"))
	assert.False(t, mr.Exists(LivenessKey("s1")))
	assert.NoError(t, s.Evict(ctx, "s1"))
}

func TestCounters(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	zero, err := s.GetCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.GlobalCounters{}, zero)

	require.NoError(t, s.SetCounters(ctx, domain.GlobalCounters{Visible: 4, Actual: 6}))
	assert.Equal(t, "4", mr.HGet(KeyGlobalCounters, fieldVisible))
	assert.Equal(t, "6", mr.HGet(KeyGlobalCounters, fieldActual))

	got, err := s.GetCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.GlobalCounters{Visible: 4, Actual: 6}, got)
}

func TestStoreUnavailable(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()
	ctx := context.Background()

	assert.ErrorIs(t, s.Ping(ctx), domain.ErrStoreUnavailable)
	assert.ErrorIs(t, s.Reset(ctx, "s1", 1, time.Minute), domain.ErrStoreUnavailable)
	_, err := s.Get(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
