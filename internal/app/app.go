package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/MrSnakeDoc/fleet/internal/broadcast"
	"github.com/MrSnakeDoc/fleet/internal/config"
	"github.com/MrSnakeDoc/fleet/internal/connect"
	"github.com/MrSnakeDoc/fleet/internal/httpserver"
	"github.com/MrSnakeDoc/fleet/internal/httpserver/deps"
	"github.com/MrSnakeDoc/fleet/internal/logger"
	"github.com/MrSnakeDoc/fleet/internal/mysql"
	"github.com/MrSnakeDoc/fleet/internal/redis"
	"github.com/MrSnakeDoc/fleet/internal/registry"
	"github.com/MrSnakeDoc/fleet/internal/scheduler"
	"github.com/MrSnakeDoc/fleet/internal/store"
	"github.com/MrSnakeDoc/fleet/internal/store/memory"
	mysqlstore "github.com/MrSnakeDoc/fleet/internal/store/mysql"
	redisstore "github.com/MrSnakeDoc/fleet/internal/store/redis"
	"github.com/MrSnakeDoc/fleet/internal/utils"
	"github.com/MrSnakeDoc/fleet/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	db          *gorm.DB
	publisher   broadcast.Publisher
	reconciler  *scheduler.Reconciler
	aggregator  *scheduler.Aggregator
}

// New connects the backing services and wires every component once.
func New(cfg *config.Config) (*App, error) {
	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	a := &App{cfg: cfg, logger: loggerClient}

	retry := connect.RetryOptions{
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}

	// Redis backs the liveness cache in mysql mode and may carry the
	// broadcast channel in memory mode.
	if cfg.RedisAddr != "" {
		client, err := redis.New(redis.ConnectOptions{
			Addr:         cfg.RedisAddr,
			User:         cfg.RedisUser,
			Password:     cfg.RedisPassword,
			RedisDB:      cfg.RedisDB,
			DialTimeout:  cfg.RedisDT,
			ReadTimeout:  cfg.RedisRT,
			WriteTimeout: cfg.RedisWT,
			PoolSize:     cfg.RedisPoolSize,
			Retry:        retry,
		}, loggerClient)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redisClient = client
		loggerClient.Info("Redis initialized successfully")
	}

	var (
		identities store.IdentityStore
		liveness   store.LivenessCache
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMySQL:
		db, err := mysql.New(mysql.ConnectOptions{
			DSN:             cfg.MySQLDSN,
			MaxOpenConns:    cfg.MySQLMaxOpenConns,
			MaxIdleConns:    cfg.MySQLMaxIdleConns,
			ConnMaxLifetime: cfg.MySQLConnMaxLifetime,
			Retry:           retry,
		}, loggerClient)
		if err != nil {
			a.closeConnections()
			return nil, fmt.Errorf("failed to connect to mysql: %w", err)
		}
		a.db = db

		if cfg.MySQLAutoMigrate {
			if err := mysqlstore.AutoMigrate(db); err != nil {
				a.closeConnections()
				return nil, fmt.Errorf("failed to migrate servers table: %w", err)
			}
			loggerClient.Info("servers table migrated")
		}

		identities = mysqlstore.NewStore(db)
		liveness = redisstore.NewStore(a.redisClient)

	case config.StoreDriverMemory:
		loggerClient.Warn("memory store driver selected, registry state is lost on restart")
		identities = memory.NewIdentityStore()
		liveness = memory.NewLivenessCache(time.Now)
	}

	publisher, err := broadcast.New(broadcast.Config{
		Driver:       cfg.BroadcastDriver,
		RedisClient:  a.redisClient,
		NatsURL:      cfg.NatsURL,
		KafkaBrokers: cfg.KafkaBrokers,
	})
	if err != nil {
		a.closeConnections()
		return nil, fmt.Errorf("failed to create %s publisher: %w", cfg.BroadcastDriver, err)
	}
	a.publisher = publisher

	engine := registry.NewEngine(identities, liveness, loggerClient, registry.Options{
		LivenessTTL: cfg.LivenessTTL,
	})

	reconcileTrigger := make(chan struct{}, 1)

	a.reconciler = scheduler.NewReconciler(identities, liveness, loggerClient, scheduler.ReconcilerOptions{
		Interval:      cfg.ReconcileInterval,
		Threshold:     cfg.StalenessThreshold,
		StoreTimeout:  cfg.StoreTimeout,
		ManualTrigger: reconcileTrigger,
	})

	a.aggregator = scheduler.NewAggregator(identities, liveness, publisher, loggerClient, scheduler.AggregatorOptions{
		Interval:     cfg.AggregateInterval,
		StoreTimeout: cfg.StoreTimeout,
		Channel:      cfg.BroadcastChannel,
		SenderID:     cfg.SenderID,
	})

	d := deps.Deps{
		Logger:                loggerClient,
		StartTime:             time.Now(),
		Version:               version.Version,
		Commit:                version.Commit,
		BuildDate:             version.BuildDate,
		GoVersion:             version.GoVersion,
		TimeNow:               time.Now,
		AllowedHosts:          cfg.AllowedHosts,
		AllowedCIDRS:          cfg.AllowedCIDRS,
		TrustProxy:            cfg.TrustProxy,
		Registry:              engine,
		Identities:            identities,
		Liveness:              liveness,
		StoreDriver:           cfg.StoreDriver,
		BroadcastDriver:       publisher.Name(),
		ReconcileTrigger:      reconcileTrigger,
		PingTimeout:           cfg.StoreTimeout,
		RegisterBurst:         cfg.RegisterBurst,
		RegisterRefillPerMin:  cfg.RegisterRefillPerMin,
		RegisterLimiterMaxIPs: cfg.RegisterLimiterMaxIPs,
	}

	a.server = httpserver.New(cfg, loggerClient, d)
	return a, nil
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting fleetd %s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.reconciler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reconciler: %w", err)
	}
	a.logger.Info("reconciler started",
		logger.Duration("interval", a.cfg.ReconcileInterval),
		logger.Duration("threshold", a.cfg.StalenessThreshold))

	if err := a.aggregator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start aggregator: %w", err)
	}
	a.logger.Info("aggregator started",
		logger.Duration("interval", a.cfg.AggregateInterval),
		logger.String("driver", a.publisher.Name()),
		logger.String("channel", a.cfg.BroadcastChannel))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
		a.logger.Error("http server stopped", logger.Error(runErr))
	}

	a.reconciler.Stop()
	a.aggregator.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	utils.MustClose(a.publisher, "publisher", a.logger)
	a.closeConnections()

	if runErr == nil {
		a.logger.Info("✅ fleetd stopped cleanly")
	}
	_ = a.logger.Sync()
	return runErr
}

func (a *App) closeConnections() {
	if a.redisClient != nil {
		utils.MustClose(a.redisClient, "redis", a.logger)
	}
	if a.db != nil {
		db := a.db
		utils.MustClose(utils.CloseFunc(func() error { return mysql.Close(db) }), "mysql", a.logger)
	}
}
