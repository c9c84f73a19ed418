package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/fleet/internal/logger"
	"github.com/MrSnakeDoc/fleet/internal/store"
)

const (
	// DefaultStalenessThreshold is the heartbeat age after which a server is demoted
	DefaultStalenessThreshold = 6 * time.Second
	// DefaultStoreTimeout bounds each store call of a cycle
	DefaultStoreTimeout = 2 * time.Second
)

// ReconcileResult summarizes one sweep.
type ReconcileResult struct {
	Scanned int // identities examined
	Online  int // servers with a fresh liveness entry
	Demoted int // servers transitioned to offline by this sweep
	Failed  int // servers skipped because of a store error
}

// Reconciler turns heartbeat staleness into a durable offline transition.
type Reconciler struct {
	identities    store.IdentityStore
	liveness      store.LivenessCache
	logger        logger.Logger
	interval      time.Duration
	threshold     time.Duration
	storeTimeout  time.Duration
	now           func() time.Time
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// ReconcilerOptions configures a Reconciler. Zero values take the defaults.
type ReconcilerOptions struct {
	Interval      time.Duration
	Threshold     time.Duration
	StoreTimeout  time.Duration
	Now           func() time.Time
	ManualTrigger chan struct{} // optional, a send forces an immediate cycle
}

// NewReconciler creates a new reconciler
func NewReconciler(
	identities store.IdentityStore,
	liveness store.LivenessCache,
	log logger.Logger,
	opts ReconcilerOptions,
) *Reconciler {
	if opts.Threshold == 0 {
		opts.Threshold = DefaultStalenessThreshold
	}
	if opts.StoreTimeout == 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Interval == 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Reconciler{
		identities:    identities,
		liveness:      liveness,
		logger:        log.With(logger.String("component", "reconciler")),
		interval:      opts.Interval,
		threshold:     opts.Threshold,
		storeTimeout:  opts.StoreTimeout,
		now:           opts.Now,
		stopCh:        make(chan struct{}),
		manualTrigger: opts.ManualTrigger,
	}
}

// Start runs one sweep immediately, then one per interval until Stop or
// ctx cancellation. Sweeps never overlap.
func (r *Reconciler) Start(ctx context.Context) error {
	if _, err := r.Reconcile(ctx); err != nil {
		r.logger.Warn("initial reconciliation failed",
			logger.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := r.Reconcile(ctx); err != nil {
					r.logger.Error("reconciliation failed",
						logger.Error(err))
				}
			case <-r.manualTrigger:
				r.logger.Info("manual reconciliation triggered")
				if _, err := r.Reconcile(ctx); err != nil {
					r.logger.Error("reconciliation failed",
						logger.Error(err))
				}
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reconciler
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

// Reconcile runs one sweep synchronously. The returned error only reports
// a failure to enumerate identities; per-server failures are counted and
// logged.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult

	listCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	identities, err := r.identities.List(listCtx)
	cancel()
	if err != nil {
		return result, err
	}

	now := r.now()
	for _, identity := range identities {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Scanned++

		switch r.reconcileOne(ctx, identity.ServerID, now) {
		case outcomeOnline:
			result.Online++
		case outcomeDemoted:
			result.Demoted++
		case outcomeFailed:
			result.Failed++
		}
	}

	if result.Demoted > 0 || result.Failed > 0 {
		r.logger.Info("reconciliation completed",
			logger.Int("scanned", result.Scanned),
			logger.Int("online", result.Online),
			logger.Int("demoted", result.Demoted),
			logger.Int("failed", result.Failed))
	} else {
		r.logger.Debug("reconciliation completed",
			logger.Int("scanned", result.Scanned),
			logger.Int("online", result.Online))
	}

	return result, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeOnline
	outcomeDemoted
	outcomeFailed
)

func (r *Reconciler) reconcileOne(ctx context.Context, serverID string, now time.Time) outcome {
	getCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	liveness, err := r.liveness.Get(getCtx, serverID)
	cancel()
	if liveness == nil {
		if err != nil {
			r.logger.Warn("failed to read liveness entry",
				logger.String("server_id", serverID),
				logger.Error(err))
			return outcomeFailed
		}
		return outcomeSkipped
	}

	// Ages are whole unix seconds, like the heartbeat timestamps.
	age := now.Unix() - liveness.LastHeartbeat
	if age <= int64(r.threshold/time.Second) {
		return outcomeOnline
	}

	markCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	changed, err := r.identities.MarkOffline(markCtx, serverID, liveness.LastHeartbeat, now.Unix())
	cancel()
	if err != nil {
		r.logger.Warn("failed to mark server offline",
			logger.String("server_id", serverID),
			logger.Error(err))
		return outcomeFailed
	}

	evictCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	err = r.liveness.Evict(evictCtx, serverID)
	cancel()
	if err != nil {
		r.logger.Warn("failed to evict liveness entry",
			logger.String("server_id", serverID),
			logger.Error(err))
		return outcomeFailed
	}

	r.logger.Info("server marked offline",
		logger.String("server_id", serverID),
		logger.Int64("last_heartbeat", liveness.LastHeartbeat),
		logger.Int64("age_seconds", age),
		logger.Bool("first_transition", changed))
	return outcomeDemoted
}
