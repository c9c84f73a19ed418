package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/fleet/internal/domain"
)

// refreshScript updates a liveness hash only when it still exists.
//
// KEYS[1] liveness key
// ARGV[1] playerCount, ARGV[2] lastHeartbeat, ARGV[3] playerList JSON, ARGV[4] ttl in ms
//
// Returns 1 on write, 0 when the key is absent, -1 when ARGV[2] is older
// than the last accepted reported heartbeat.
var refreshScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
local reported = redis.call('HGET', KEYS[1], 'reportedHeartbeat')
if reported and tonumber(ARGV[2]) < tonumber(reported) then
	return -1
end
redis.call('HSET', KEYS[1],
	'playerCount', ARGV[1],
	'lastHeartbeat', ARGV[2],
	'playerList', ARGV[3],
	'reportedHeartbeat', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// Reset replaces the liveness hash in one MULTI/EXEC block.
func (s *Store) Reset(ctx context.Context, serverID string, now int64, ttl time.Duration) error {
	key := LivenessKey(serverID)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]interface{}{
			fieldPlayerCount:   0,
			fieldLastHeartbeat: now,
			fieldPlayerList:    "[]",
		})
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return unavailable("reset liveness", err)
	}
	return nil
}

// Refresh overwrites an existing liveness hash and renews its TTL.
func (s *Store) Refresh(ctx context.Context, serverID string, liveness domain.ServerLiveness, ttl time.Duration) error {
	players := liveness.PlayerList
	if players == nil {
		players = []domain.PlayerSession{}
	}
	data, err := json.Marshal(players)
	if err != nil {
		return fmt.Errorf("failed to marshal player list: %w", err)
	}

	res, err := refreshScript.Run(ctx, s.client,
		[]string{LivenessKey(serverID)},
		liveness.PlayerCount,
		liveness.LastHeartbeat,
		string(data),
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return unavailable("refresh liveness", err)
	}

	switch res {
	case 1:
		return nil
	case 0:
		return domain.ErrStaleHeartbeatIgnored
	default:
		return domain.ErrOutOfOrderHeartbeat
	}
}

// Get reads one liveness hash. A missing key is a cache miss (nil, nil).
// A malformed player list yields the entry without players and an error
// wrapping domain.ErrMalformedState.
func (s *Store) Get(ctx context.Context, serverID string) (*domain.ServerLiveness, error) {
	fields, err := s.client.HGetAll(ctx, LivenessKey(serverID)).Result()
	if err != nil {
		return nil, unavailable("get liveness", err)
	}
	if len(fields) == 0 {
		return nil, nil // Cache miss
	}
	return decodeLiveness(serverID, fields)
}

// GetMany pipelines one HGETALL per id.
func (s *Store) GetMany(ctx context.Context, serverIDs []string) (map[string]*domain.ServerLiveness, map[string]error, error) {
	found := make(map[string]*domain.ServerLiveness, len(serverIDs))
	if len(serverIDs) == 0 {
		return found, nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(serverIDs))
	for i, id := range serverIDs {
		cmds[i] = pipe.HGetAll(ctx, LivenessKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, unavailable("get liveness batch", err)
	}

	var malformed map[string]error
	for i, id := range serverIDs {
		fields, err := cmds[i].Result()
		if err != nil {
			return nil, nil, unavailable("get liveness batch", err)
		}
		if len(fields) == 0 {
			continue
		}
		liveness, err := decodeLiveness(id, fields)
		if err != nil {
			if malformed == nil {
				malformed = make(map[string]error)
			}
			malformed[id] = err
		}
		found[id] = liveness
	}
	return found, malformed, nil
}

// Evict deletes the liveness hash.
func (s *Store) Evict(ctx context.Context, serverID string) error {
	if err := s.client.Del(ctx, LivenessKey(serverID)).Err(); err != nil {
		return unavailable("evict liveness", err)
	}
	return nil
}

func decodeLiveness(serverID string, fields map[string]string) (*domain.ServerLiveness, error) {
	liveness := &domain.ServerLiveness{PlayerList: []domain.PlayerSession{}}

	if v := fields[fieldLastHeartbeat]; v != "" {
		hb, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return liveness, fmt.Errorf("%w: %s lastHeartbeat %q", domain.ErrMalformedState, serverID, v)
		}
		liveness.LastHeartbeat = hb
	}

	if v := fields[fieldPlayerCount]; v != "" {
		count, err := strconv.Atoi(v)
		if err != nil {
			return liveness, fmt.Errorf("%w: %s playerCount %q", domain.ErrMalformedState, serverID, v)
		}
		liveness.PlayerCount = count
	}

	if v := fields[fieldPlayerList]; v != "" {
		var players []domain.PlayerSession
		if err := json.Unmarshal([]byte(v), &players); err != nil {
			liveness.PlayerCount = 0
			return liveness, fmt.Errorf("%w: %s playerList: %v", domain.ErrMalformedState, serverID, err)
		}
		if players != nil {
			liveness.PlayerList = players
		}
	}

	return liveness, nil
}
