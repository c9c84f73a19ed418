package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/MrSnakeDoc/fleet/internal/broadcast"
	"github.com/MrSnakeDoc/fleet/internal/domain"
	"github.com/MrSnakeDoc/fleet/internal/logger"
	"github.com/MrSnakeDoc/fleet/internal/store"
)

// Aggregator sums the players of every online server, stores the snapshot
// and broadcasts it.
type Aggregator struct {
	identities   store.IdentityStore
	liveness     store.LivenessCache
	publisher    broadcast.Publisher
	logger       logger.Logger
	interval     time.Duration
	storeTimeout time.Duration
	channel      string
	senderID     string
	stopCh       chan struct{}
}

// AggregatorOptions configures an Aggregator. Zero values take the defaults.
type AggregatorOptions struct {
	Interval     time.Duration
	StoreTimeout time.Duration
	Channel      string // default "global.playercount"
	SenderID     string // default "api"
}

// NewAggregator creates a new aggregator
func NewAggregator(
	identities store.IdentityStore,
	liveness store.LivenessCache,
	publisher broadcast.Publisher,
	log logger.Logger,
	opts AggregatorOptions,
) *Aggregator {
	if opts.Interval == 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.StoreTimeout == 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Channel == "" {
		opts.Channel = "global.playercount"
	}
	if opts.SenderID == "" {
		opts.SenderID = "api"
	}

	return &Aggregator{
		identities:   identities,
		liveness:     liveness,
		publisher:    publisher,
		logger:       log.With(logger.String("component", "aggregator")),
		interval:     opts.Interval,
		storeTimeout: opts.StoreTimeout,
		channel:      opts.Channel,
		senderID:     opts.SenderID,
		stopCh:       make(chan struct{}),
	}
}

// Start runs one cycle immediately, then one per interval until Stop or
// ctx cancellation.
func (a *Aggregator) Start(ctx context.Context) error {
	if _, err := a.Aggregate(ctx); err != nil {
		a.logger.Warn("initial aggregation failed",
			logger.Error(err))
	}

	ticker := time.NewTicker(a.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := a.Aggregate(ctx); err != nil {
					a.logger.Error("aggregation failed",
						logger.Error(err))
				}
			case <-a.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the aggregator
func (a *Aggregator) Stop() {
	close(a.stopCh)
}

// Aggregate runs one cycle synchronously and returns the counters it
// computed. A publish failure is logged and does not fail the cycle.
func (a *Aggregator) Aggregate(ctx context.Context) (domain.GlobalCounters, error) {
	var counters domain.GlobalCounters

	listCtx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	identities, err := a.identities.List(listCtx)
	cancel()
	if err != nil {
		return counters, err
	}

	for _, identity := range identities {
		if ctx.Err() != nil {
			return counters, ctx.Err()
		}

		getCtx, cancel := context.WithTimeout(ctx, a.storeTimeout)
		liveness, err := a.liveness.Get(getCtx, identity.ServerID)
		cancel()
		if err != nil {
			if errors.Is(err, domain.ErrMalformedState) {
				a.logger.Warn("malformed liveness entry, counting no players",
					logger.String("server_id", identity.ServerID),
					logger.Error(err))
			} else {
				a.logger.Warn("failed to read liveness entry",
					logger.String("server_id", identity.ServerID),
					logger.Error(err))
			}
			continue
		}
		if liveness == nil {
			continue
		}
		counters.Add(liveness.PlayerList)
	}

	setCtx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	err = a.liveness.SetCounters(setCtx, counters)
	cancel()
	if err != nil {
		a.logger.Warn("failed to store global counters",
			logger.Error(err))
	}

	a.publish(ctx, counters)

	a.logger.Debug("aggregation completed",
		logger.Int("servers", len(identities)),
		logger.Int("visible", counters.Visible),
		logger.Int("actual", counters.Actual))

	return counters, nil
}

func (a *Aggregator) publish(ctx context.Context, counters domain.GlobalCounters) {
	event := broadcast.NewPlayerCountEvent(a.senderID, counters)
	data, err := event.Encode()
	if err != nil {
		a.logger.Error("failed to encode player count event", logger.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, a.storeTimeout)
	defer cancel()
	if err := a.publisher.Publish(pubCtx, a.channel, data); err != nil {
		a.logger.Warn("failed to publish player count",
			logger.String("driver", a.publisher.Name()),
			logger.String("channel", a.channel),
			logger.Error(err))
	}
}
