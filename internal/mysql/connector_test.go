package mysql

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	gormlogger "gorm.io/gorm/logger"

	"github.com/MrSnakeDoc/fleet/internal/connect"
	"github.com/MrSnakeDoc/fleet/internal/logger"
)

func retry() connect.RetryOptions {
	return connect.RetryOptions{
		ConnectTimeout: 500 * time.Millisecond,
		RetryInterval:  10 * time.Millisecond,
		MaxWait:        50 * time.Millisecond,
		PingTimeout:    100 * time.Millisecond,
		WarnThreshold:  1,
	}
}

func TestOpenAppliesPoolSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.db")

	db, err := Open(sqlite.Open(path), path, ConnectOptions{
		MaxOpenConns:    3,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
		Retry:           retry(),
	}, logger.Nop())
	if err != nil {
		t.Fatalf("Open() = %v, want nil", err)
	}
	defer func() { _ = Close(db) }()

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("DB() = %v", err)
	}
	if got := sqlDB.Stats().MaxOpenConnections; got != 3 {
		t.Errorf("MaxOpenConnections = %d, want 3", got)
	}
}

func TestOpenRejectsInvalidRetry(t *testing.T) {
	opts := ConnectOptions{Retry: retry()}
	opts.Retry.ConnectTimeout = 0

	if _, err := Open(sqlite.Open(":memory:"), "memory", opts, logger.Nop()); err == nil {
		t.Error("Open() should reject a zero connect timeout")
	}
}

func TestRedactDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{dsn: "fleet:secret@tcp(127.0.0.1:3306)/fleet?parseTime=true", want: "tcp(127.0.0.1:3306)/fleet?parseTime=true"},
		{dsn: "tcp(db:3306)/fleet", want: "tcp(db:3306)/fleet"},
		{dsn: "", want: ""},
	}

	for _, tt := range tests {
		if got := redactDSN(tt.dsn); got != tt.want {
			t.Errorf("redactDSN(%q) = %v, want %v", tt.dsn, got, tt.want)
		}
	}
}

func TestGormLoggerLogMode(t *testing.T) {
	g := NewGormLogger(logger.Nop(), 0)
	if g.slowThreshold != defaultSlowThreshold {
		t.Errorf("slowThreshold = %v, want %v", g.slowThreshold, defaultSlowThreshold)
	}

	silent, ok := g.LogMode(gormlogger.Silent).(*GormLogger)
	if !ok {
		t.Fatal("LogMode() should return *GormLogger")
	}
	if silent.level != gormlogger.Silent {
		t.Errorf("LogMode() level = %v, want Silent", silent.level)
	}
	if g.level != gormlogger.Warn {
		t.Errorf("LogMode() must not mutate the receiver, level = %v", g.level)
	}
}
