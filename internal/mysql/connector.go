package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/MrSnakeDoc/fleet/internal/connect"
	"github.com/MrSnakeDoc/fleet/internal/logger"
)

// ConnectOptions defines the MySQL pool and its connection retry behavior.
type ConnectOptions struct {
	DSN             string        // ex: "fleet:secret@tcp(127.0.0.1:3306)/fleet?parseTime=true"
	MaxOpenConns    int           // pool size
	MaxIdleConns    int           // idle connections kept in the pool
	ConnMaxLifetime time.Duration // recycle connections after this long
	SlowThreshold   time.Duration // queries slower than this are logged as warnings
	Retry           connect.RetryOptions
}

// New opens a gorm handle on MySQL and blocks until the server answers
// a ping or Retry.ConnectTimeout is reached.
func New(opts ConnectOptions, log logger.Logger) (*gorm.DB, error) {
	return Open(mysql.Open(opts.DSN), redactDSN(opts.DSN), opts, log)
}

// Open is New with an explicit dialector. addr is only used for logging.
func Open(dialector gorm.Dialector, addr string, opts ConnectOptions, log logger.Logger) (*gorm.DB, error) {
	if err := opts.Retry.Validate(); err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:               NewGormLogger(log, opts.SlowThreshold),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	ping := func(ctx context.Context) error { return sqlDB.PingContext(ctx) }
	if err := connect.Do("mysql", addr, opts.Retry, ping, log); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// redactDSN keeps only the address part of a DSN ("user:pass@tcp(host)/db" -> "tcp(host)/db").
func redactDSN(dsn string) string {
	for i := len(dsn) - 1; i >= 0; i-- {
		if dsn[i] == '@' {
			return dsn[i+1:]
		}
	}
	return dsn
}
