package broadcast

import (
	"context"
	"fmt"
	"sync"
)

// Message is one event recorded by MemoryPublisher.
type Message struct {
	Channel string
	Data    []byte
}

// DefaultMemoryCapacity is how many events NewMemoryPublisher retains.
const DefaultMemoryCapacity = 256

// MemoryPublisher keeps the most recent published events in process. It
// serves local runs without a broker and lets tests inspect what was sent.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
	capacity int
	fail     error
}

func NewMemoryPublisher() *MemoryPublisher {
	return NewMemoryPublisherWithCapacity(DefaultMemoryCapacity)
}

// NewMemoryPublisherWithCapacity retains at most capacity events, dropping
// the oldest first. A capacity below 1 is treated as 1.
func NewMemoryPublisherWithCapacity(capacity int) *MemoryPublisher {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryPublisher{capacity: capacity}
}

func (p *MemoryPublisher) Publish(ctx context.Context, channel string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fail != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, p.fail)
	}

	// Make a copy of data to avoid aliasing the caller's buffer
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	if len(p.messages) >= p.capacity {
		n := copy(p.messages, p.messages[len(p.messages)-p.capacity+1:])
		p.messages = p.messages[:n]
	}
	p.messages = append(p.messages, Message{Channel: channel, Data: dataCopy})
	return nil
}

// Messages returns a snapshot of the retained events, oldest first.
func (p *MemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// FailWith makes subsequent publishes return err (nil restores success).
func (p *MemoryPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

func (p *MemoryPublisher) Name() string { return DriverMemory }

func (p *MemoryPublisher) Close() error { return nil }
