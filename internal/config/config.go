package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverMySQL  = "mysql"
	StoreDriverMemory = "memory"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s
	RequestTimeout  time.Duration // per-request deadline (ex: 5s)

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	ConfigFile string // optional YAML file providing defaults for the keys below

	// Registry
	StoreDriver        string        // "mysql" (identity in MySQL, liveness in Redis) | "memory"
	StalenessThreshold time.Duration // max heartbeat age before a server is demoted (default: 6s)
	LivenessTTL        time.Duration // expiry of a liveness entry (default: 60s)
	ReconcileInterval  time.Duration // reconciler tick (default: 5s)
	AggregateInterval  time.Duration // aggregator tick (default: 5s)
	StoreTimeout       time.Duration // bound for each store call made by background tasks (default: 2s)

	// Broadcast
	BroadcastDriver  string   // "redis" | "nats" | "kafka" | "memory" | "none"
	BroadcastChannel string   // ex: "global.playercount"
	SenderID         string   // senderId stamped on every event
	NatsURL          string   // ex: "nats://127.0.0.1:4222"
	KafkaBrokers     []string // ex: "kafka-1:9092,kafka-2:9092"

	// MySQL
	MySQLDSN             string        // ex: "fleet:secret@tcp(127.0.0.1:3306)/fleet?parseTime=true"
	MySQLMaxOpenConns    int           // connection pool size
	MySQLMaxIdleConns    int           // idle connections kept in the pool
	MySQLConnMaxLifetime time.Duration // recycle connections after this long
	MySQLAutoMigrate     bool          // create/upgrade the servers table on startup

	// Redis
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	// Access restrictions
	AllowedHosts          []string // optional, restrict admin endpoints to specific Host headers
	AllowedCIDRS          []string // optional, restrict admin endpoints to specific IPs (e.g. "1.2.3.4, 10.0.0.0/8")
	TrustProxy            bool     // true => trust X-Forwarded-For headers
	RegisterBurst         int      // register calls allowed in a burst per client IP
	RegisterRefillPerMin  int      // register tokens refilled per minute per client IP
	RegisterLimiterMaxIPs int      // cap on tracked client IPs
}

// Load reads the configuration from the environment. When path (or
// FLEET_CONFIG_FILE) names a YAML file, its keys act as defaults that
// real environment variables override.
func Load(path string) *Config {
	if path == "" {
		path = os.Getenv("FLEET_CONFIG_FILE")
	}
	if path != "" {
		values, err := loadFile(path)
		if err != nil {
			panic(fmt.Sprintf("❌ FATAL: %v", err))
		}
		fileValues = values
	}

	storeDriver := strings.ToLower(getenv("FLEET_STORE_DRIVER", StoreDriverMySQL))

	// In memory mode without Redis, events stay in-process unless told otherwise
	defaultBroadcast := "redis"
	if storeDriver == StoreDriverMemory && lookup("FLEET_REDIS_ADDR") == "" {
		defaultBroadcast = "memory"
	}

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("FLEET_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("FLEET_SHUTDOWN_TIMEOUT", 5*time.Second),
		RequestTimeout:  mustDuration("FLEET_REQUEST_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("FLEET_LOG_LEVEL", "info"),
		PrettyLog: mustBool("FLEET_PRETTY_LOG", true),

		ConfigFile: path,

		// Registry
		StoreDriver:        storeDriver,
		StalenessThreshold: mustDuration("FLEET_STALENESS_THRESHOLD", 6*time.Second),
		LivenessTTL:        mustDuration("FLEET_LIVENESS_TTL", 60*time.Second),
		ReconcileInterval:  mustDuration("FLEET_RECONCILE_INTERVAL", 5*time.Second),
		AggregateInterval:  mustDuration("FLEET_AGGREGATE_INTERVAL", 5*time.Second),
		StoreTimeout:       mustDuration("FLEET_STORE_TIMEOUT", 2*time.Second),

		// Broadcast
		BroadcastDriver:  strings.ToLower(getenv("FLEET_BROADCAST_DRIVER", defaultBroadcast)),
		BroadcastChannel: getenv("FLEET_BROADCAST_CHANNEL", "global.playercount"),
		SenderID:         getenv("FLEET_SENDER_ID", "api"),
		NatsURL:          getenv("FLEET_NATS_URL", "nats://127.0.0.1:4222"),
		KafkaBrokers:     splitAndTrim(getenv("FLEET_KAFKA_BROKERS", "")),

		// MySQL settings
		MySQLMaxOpenConns:    getenvInt("FLEET_MYSQL_MAX_OPEN_CONNS", 20),
		MySQLMaxIdleConns:    getenvInt("FLEET_MYSQL_MAX_IDLE_CONNS", 5),
		MySQLConnMaxLifetime: mustDuration("FLEET_MYSQL_CONN_MAX_LIFETIME", 30*time.Minute),
		MySQLAutoMigrate:     mustBool("FLEET_MYSQL_AUTO_MIGRATE", true),

		// Redis settings
		RedisUser:             getenv("FLEET_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("FLEET_REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         getenv("FLEET_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("FLEET_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts:          splitAndTrim(getenv("FLEET_ALLOWED_HOSTS", "")),
		AllowedCIDRS:          parseAllowedIPs(getenv("FLEET_ALLOWED_CIDRS", "")),
		TrustProxy:            mustBool("FLEET_TRUST_PROXY", true),
		RegisterBurst:         getenvInt("FLEET_REGISTER_BURST", 20),
		RegisterRefillPerMin:  getenvInt("FLEET_REGISTER_REFILL_PER_MIN", 60),
		RegisterLimiterMaxIPs: getenvInt("FLEET_REGISTER_LIMITER_MAX_IPS", 10000),
	}

	// Backing services are only mandatory when the real stores are used
	if cfg.StoreDriver == StoreDriverMySQL {
		cfg.MySQLDSN = requireEnv("FLEET_MYSQL_DSN")
		cfg.RedisAddr = requireEnv("FLEET_REDIS_ADDR")
	} else {
		cfg.RedisAddr = getenv("FLEET_REDIS_ADDR", "")
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("❌ FATAL: %v", err))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		cfgCopy.MySQLDSN = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverMySQL, StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported FLEET_STORE_DRIVER %q (supported: mysql, memory)", c.StoreDriver)
	}

	switch c.BroadcastDriver {
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("FLEET_BROADCAST_DRIVER=redis requires FLEET_REDIS_ADDR")
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("FLEET_BROADCAST_DRIVER=kafka requires FLEET_KAFKA_BROKERS")
		}
	case "nats", "memory", "none":
	default:
		return fmt.Errorf("unsupported FLEET_BROADCAST_DRIVER %q (supported: redis, nats, kafka, memory, none)", c.BroadcastDriver)
	}

	if c.RedisPasswordRequired && c.RedisPassword == "" {
		return fmt.Errorf("FLEET_REDIS_PASSWORD is required when FLEET_REDIS_PASSWORD_REQUIRED=true")
	}

	if c.StalenessThreshold <= 0 || c.ReconcileInterval <= 0 || c.AggregateInterval <= 0 || c.StoreTimeout <= 0 {
		return fmt.Errorf("threshold, intervals and store timeout must be > 0")
	}

	// A liveness entry must outlive at least one full reconcile pass after it
	// went stale, otherwise expiry removes it before the offline mark is written.
	if c.LivenessTTL <= c.StalenessThreshold+c.ReconcileInterval {
		return fmt.Errorf("FLEET_LIVENESS_TTL (%v) must exceed FLEET_STALENESS_THRESHOLD + FLEET_RECONCILE_INTERVAL (%v)",
			c.LivenessTTL, c.StalenessThreshold+c.ReconcileInterval)
	}

	return nil
}

// helpers
func getenv(key, def string) string {
	if v := lookup(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := lookup(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := lookup(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := lookup(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := lookup(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
