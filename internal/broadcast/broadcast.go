// Package broadcast publishes player-count events to the rest of the network.
package broadcast

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/fleet/internal/domain"
)

// Driver names accepted by New.
const (
	DriverRedis  = "redis"
	DriverNATS   = "nats"
	DriverKafka  = "kafka"
	DriverMemory = "memory"
	DriverNone   = "none"
)

// Event is the payload published after each aggregation cycle.
type Event struct {
	SenderID string `json:"senderId"`
	EventID  string `json:"eventId"`
	Visible  int    `json:"visible"`
	Actual   int    `json:"actual"`
}

// NewPlayerCountEvent stamps counters with a fresh event id.
func NewPlayerCountEvent(senderID string, counters domain.GlobalCounters) Event {
	return Event{
		SenderID: senderID,
		EventID:  uuid.NewString(),
		Visible:  counters.Visible,
		Actual:   counters.Actual,
	}
}

// Encode returns the JSON wire form.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers encoded events on a channel (subject, topic).
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte) error
	Name() string
	Close() error
}

// nopPublisher drops every event.
type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, []byte) error { return nil }
func (nopPublisher) Name() string                                  { return DriverNone }
func (nopPublisher) Close() error                                  { return nil }
