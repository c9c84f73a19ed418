// Package registry implements the operations reporting servers and readers
// call: Register, Heartbeat, Get and GetAll.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/MrSnakeDoc/fleet/internal/domain"
	"github.com/MrSnakeDoc/fleet/internal/logger"
	"github.com/MrSnakeDoc/fleet/internal/store"
)

// Options configures an Engine.
type Options struct {
	LivenessTTL time.Duration
	Now         func() time.Time // defaults to time.Now
}

// Engine composes the identity store and the liveness cache.
// One Engine is built at startup and shared by every request.
type Engine struct {
	identities store.IdentityStore
	liveness   store.LivenessCache
	logger     logger.Logger
	ttl        time.Duration
	now        func() time.Time
}

// NewEngine creates a new registry engine
func NewEngine(identities store.IdentityStore, liveness store.LivenessCache, log logger.Logger, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		identities: identities,
		liveness:   liveness,
		logger:     log.With(logger.String("component", "registry")),
		ttl:        opts.LivenessTTL,
		now:        opts.Now,
	}
}

// Register records a server start. If the identity write fails nothing
// else happens. The liveness reset that follows is best effort: its
// failure is logged, not returned.
func (e *Engine) Register(ctx context.Context, reg domain.Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}

	now := e.now().Unix()
	if err := e.identities.Upsert(ctx, reg.Identity(now)); err != nil {
		e.logger.Error("failed to persist identity",
			logger.String("server_id", reg.ServerID),
			logger.Error(err))
		return storeError(err)
	}

	if err := e.liveness.Reset(ctx, reg.ServerID, now, e.ttl); err != nil {
		e.logger.Warn("failed to reset liveness entry",
			logger.String("server_id", reg.ServerID),
			logger.Error(err))
		return nil
	}

	e.logger.Info("server registered",
		logger.String("server_id", reg.ServerID),
		logger.String("type", reg.Type),
		logger.Int("port", reg.Port))
	return nil
}

// Heartbeat refreshes the liveness entry of an online server.
// The identity store is not touched.
func (e *Engine) Heartbeat(ctx context.Context, serverID string, update domain.HeartbeatUpdate) error {
	liveness := domain.NewLiveness(update, e.now().Unix())

	err := e.liveness.Refresh(ctx, serverID, liveness, e.ttl)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrStaleHeartbeatIgnored):
		e.logger.Debug("heartbeat ignored, server not online",
			logger.String("server_id", serverID))
		return err
	case errors.Is(err, domain.ErrOutOfOrderHeartbeat):
		e.logger.Debug("heartbeat ignored, out of order",
			logger.String("server_id", serverID),
			logger.Int64("last_heartbeat", liveness.LastHeartbeat))
		return err
	default:
		e.logger.Error("failed to refresh liveness entry",
			logger.String("server_id", serverID),
			logger.Error(err))
		return storeError(err)
	}
}

// Get composes the view of one server.
func (e *Engine) Get(ctx context.Context, serverID string) (*domain.ServerView, error) {
	identity, err := e.identities.Get(ctx, serverID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, storeError(err)
	}

	liveness, err := e.liveness.Get(ctx, serverID)
	if err != nil {
		if !errors.Is(err, domain.ErrMalformedState) {
			return nil, storeError(err)
		}
		e.logger.Warn("malformed liveness entry",
			logger.String("server_id", serverID),
			logger.Error(err))
	}

	view := domain.Compose(*identity, liveness)
	return &view, nil
}

// GetAll composes every known server in identity order. Liveness entries
// are read in a single batch.
func (e *Engine) GetAll(ctx context.Context) ([]*domain.ServerView, error) {
	identities, err := e.identities.List(ctx)
	if err != nil {
		return nil, storeError(err)
	}

	ids := make([]string, len(identities))
	for i, identity := range identities {
		ids[i] = identity.ServerID
	}

	found, malformed, err := e.liveness.GetMany(ctx, ids)
	if err != nil {
		return nil, storeError(err)
	}
	for id, merr := range malformed {
		e.logger.Warn("malformed liveness entry",
			logger.String("server_id", id),
			logger.Error(merr))
	}

	views := make([]*domain.ServerView, 0, len(identities))
	for _, identity := range identities {
		view := domain.Compose(identity, found[identity.ServerID])
		views = append(views, &view)
	}
	return views, nil
}

// storeError makes sure every I/O failure surfaces as ErrStoreUnavailable.
func storeError(err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return errors.Join(domain.ErrStoreUnavailable, err)
}
