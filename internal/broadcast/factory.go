package broadcast

import (
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
)

// Config selects and configures a publisher.
type Config struct {
	Driver       string
	RedisClient  *goredis.Client // shared with the liveness cache
	NatsURL      string
	KafkaBrokers []string
}

// New creates a Publisher based on configuration.
// Default is redis if the driver is not specified.
func New(cfg Config) (Publisher, error) {
	driver := strings.ToLower(cfg.Driver)
	if driver == "" {
		driver = DriverRedis
	}

	switch driver {
	case DriverRedis:
		if cfg.RedisClient == nil {
			return nil, fmt.Errorf("redis publisher requires a redis client")
		}
		return newRedisPublisher(cfg.RedisClient), nil

	case DriverNATS:
		return newNATSPublisher(cfg.NatsURL)

	case DriverKafka:
		return newKafkaPublisher(cfg.KafkaBrokers)

	case DriverMemory:
		return NewMemoryPublisher(), nil

	case DriverNone:
		return nopPublisher{}, nil

	default:
		return nil, fmt.Errorf("unsupported broadcast driver: %s (supported: redis, nats, kafka, memory, none)", driver)
	}
}
