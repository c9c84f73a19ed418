package redis

import (
	"context"
	"strconv"

	"github.com/MrSnakeDoc/fleet/internal/domain"
)

// SetCounters overwrites the global counters hash. It carries no TTL.
func (s *Store) SetCounters(ctx context.Context, counters domain.GlobalCounters) error {
	err := s.client.HSet(ctx, KeyGlobalCounters,
		fieldVisible, counters.Visible,
		fieldActual, counters.Actual,
	).Err()
	if err != nil {
		return unavailable("set counters", err)
	}
	return nil
}

// GetCounters returns the last written snapshot, or zeros.
func (s *Store) GetCounters(ctx context.Context) (domain.GlobalCounters, error) {
	fields, err := s.client.HGetAll(ctx, KeyGlobalCounters).Result()
	if err != nil {
		return domain.GlobalCounters{}, unavailable("get counters", err)
	}

	var counters domain.GlobalCounters
	counters.Visible, _ = strconv.Atoi(fields[fieldVisible])
	counters.Actual, _ = strconv.Atoi(fields[fieldActual])
	return counters, nil
}
