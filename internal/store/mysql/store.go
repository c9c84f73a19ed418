package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MrSnakeDoc/fleet/internal/domain"
)

// serverRow is the persisted form of domain.ServerIdentity.
type serverRow struct {
	ServerID        string `gorm:"column:server_id;primaryKey;size:191"`
	ServerName      string `gorm:"column:server_name;size:255"`
	Type            string `gorm:"column:type;size:64"`
	Environment     string `gorm:"column:environment;size:64"`
	Version         string `gorm:"column:version;size:64"`
	Port            int    `gorm:"column:port"`
	LastStarted     int64  `gorm:"column:last_started"`
	LastHeartbeat   int64  `gorm:"column:last_heartbeat"`
	LastSeenOffline *int64 `gorm:"column:last_seen_offline"`
}

func (serverRow) TableName() string { return "servers" }

func toRow(identity domain.ServerIdentity) serverRow {
	return serverRow{
		ServerID:        identity.ServerID,
		ServerName:      identity.ServerName,
		Type:            identity.Type,
		Environment:     identity.Environment,
		Version:         identity.Version,
		Port:            identity.Port,
		LastStarted:     identity.LastStarted,
		LastHeartbeat:   identity.LastHeartbeat,
		LastSeenOffline: identity.LastSeenOffline,
	}
}

func (r serverRow) identity() domain.ServerIdentity {
	return domain.ServerIdentity{
		ServerID:        r.ServerID,
		ServerName:      r.ServerName,
		Type:            r.Type,
		Environment:     r.Environment,
		Version:         r.Version,
		Port:            r.Port,
		LastStarted:     r.LastStarted,
		LastHeartbeat:   r.LastHeartbeat,
		LastSeenOffline: r.LastSeenOffline,
	}
}

// Store is the gorm-backed identity store.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new identity store on db
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or upgrades the servers table.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&serverRow{}); err != nil {
		return fmt.Errorf("failed to migrate servers table: %w", err)
	}
	return nil
}

// Upsert inserts the identity or overwrites every column of an existing row,
// including a NULL last_seen_offline.
func (s *Store) Upsert(ctx context.Context, identity domain.ServerIdentity) error {
	row := toRow(identity)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "server_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return unavailable("upsert identity", err)
	}
	return nil
}

// Get retrieves an identity by ID
func (s *Store) Get(ctx context.Context, serverID string) (*domain.ServerIdentity, error) {
	var row serverRow
	err := s.db.WithContext(ctx).Where("server_id = ?", serverID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, unavailable("get identity", err)
	}
	identity := row.identity()
	return &identity, nil
}

// List returns every identity ordered by server_id
func (s *Store) List(ctx context.Context) ([]domain.ServerIdentity, error) {
	var rows []serverRow
	if err := s.db.WithContext(ctx).Order("server_id").Find(&rows).Error; err != nil {
		return nil, unavailable("list identities", err)
	}

	identities := make([]domain.ServerIdentity, 0, len(rows))
	for _, row := range rows {
		identities = append(identities, row.identity())
	}
	return identities, nil
}

// MarkOffline writes the offline transition once: the update is guarded by
// last_seen_offline IS NULL so a repeated sweep leaves the first stamp intact.
func (s *Store) MarkOffline(ctx context.Context, serverID string, lastHeartbeat, offlineAt int64) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&serverRow{}).
		Where("server_id = ? AND last_seen_offline IS NULL", serverID).
		Updates(map[string]interface{}{
			"last_heartbeat":    lastHeartbeat,
			"last_seen_offline": offlineAt,
		})
	if res.Error != nil {
		return false, unavailable("mark offline", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return unavailable("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("mysql %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
