package broadcast

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// RedisPublisher uses Redis PUBLISH. The client is borrowed, Close leaves it open.
type RedisPublisher struct {
	client *goredis.Client
}

func newRedisPublisher(client *goredis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, data []byte) error {
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis channel %s: %w", channel, err)
	}
	return nil
}

func (p *RedisPublisher) Name() string { return DriverRedis }

func (p *RedisPublisher) Close() error { return nil }
