package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/fleet/internal/domain"
)

func TestNewPlayerCountEvent(t *testing.T) {
	event := NewPlayerCountEvent("api", domain.GlobalCounters{Visible: 1, Actual: 2})

	_, err := uuid.Parse(event.EventID)
	require.NoError(t, err, "eventId must be a uuid")

	data, err := event.Encode()
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "api", wire["senderId"])
	assert.Equal(t, event.EventID, wire["eventId"])
	assert.Equal(t, float64(1), wire["visible"])
	assert.Equal(t, float64(2), wire["actual"])

	other := NewPlayerCountEvent("api", domain.GlobalCounters{})
	assert.NotEqual(t, event.EventID, other.EventID)
}

func TestNewSelectsDriver(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	tests := []struct {
		name     string
		cfg      Config
		wantName string
		wantErr  bool
	}{
		{name: "default is redis", cfg: Config{RedisClient: client}, wantName: DriverRedis},
		{name: "redis without client", cfg: Config{Driver: "redis"}, wantErr: true},
		{name: "memory", cfg: Config{Driver: "MEMORY"}, wantName: DriverMemory},
		{name: "none", cfg: Config{Driver: "none"}, wantName: DriverNone},
		{name: "kafka without brokers", cfg: Config{Driver: "kafka"}, wantErr: true},
		{name: "kafka", cfg: Config{Driver: "kafka", KafkaBrokers: []string{"127.0.0.1:9092"}}, wantName: DriverKafka},
		{name: "unknown", cfg: Config{Driver: "smoke-signals"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer func() { _ = p.Close() }()
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestMemoryPublisher(t *testing.T) {
	p := NewMemoryPublisher()
	ctx := context.Background()

	buf := []byte(`{"actual":1}`)
	require.NoError(t, p.Publish(ctx, "global.playercount", buf))
	buf[0] = 'X'

	msgs := p.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "global.playercount", msgs[0].Channel)
	assert.Equal(t, `{"actual":1}`, string(msgs[0].Data))

	p.FailWith(errors.New("broker down"))
	assert.Error(t, p.Publish(ctx, "global.playercount", buf))
	p.FailWith(nil)
	assert.NoError(t, p.Publish(ctx, "global.playercount", buf))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, p.Publish(cancelled, "global.playercount", buf), context.Canceled)
}

func TestMemoryPublisherKeepsLatestEvents(t *testing.T) {
	p := NewMemoryPublisherWithCapacity(3)
	ctx := context.Background()

	for _, v := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, p.Publish(ctx, "global.playercount", []byte(v)))
	}

	msgs := p.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "3", string(msgs[0].Data))
	assert.Equal(t, "5", string(msgs[2].Data), "newest event must be retained")

	def := NewMemoryPublisher()
	for i := 0; i < DefaultMemoryCapacity+10; i++ {
		require.NoError(t, def.Publish(ctx, "global.playercount", []byte("x")))
	}
	assert.Len(t, def.Messages(), DefaultMemoryCapacity)
}

func TestKafkaPublisherRequiresBrokers(t *testing.T) {
	_, err := newKafkaPublisher(nil)
	assert.Error(t, err)

	_, err = New(Config{Driver: DriverKafka, KafkaBrokers: []string{}})
	assert.Error(t, err)
}

func TestKafkaPublisherUnreachableBroker(t *testing.T) {
	p, err := newKafkaPublisher([]string{"127.0.0.1:1"})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()
	assert.Equal(t, DriverKafka, p.Name())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = p.Publish(ctx, "global.playercount", []byte(`{"visible":1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "global.playercount")
	assert.Less(t, time.Since(start), 5*time.Second, "publish must stay bounded by the context")

	assert.NoError(t, p.Close(), "closing twice must be safe")
}

func TestNopPublisher(t *testing.T) {
	p, err := New(Config{Driver: DriverNone})
	require.NoError(t, err)
	assert.NoError(t, p.Publish(context.Background(), "x", []byte("y")))
}

func TestRedisPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	ctx := context.Background()

	sub := client.Subscribe(ctx, "global.playercount")
	defer func() { _ = sub.Close() }()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	p, err := New(Config{Driver: DriverRedis, RedisClient: client})
	require.NoError(t, err)
	require.NoError(t, p.Publish(ctx, "global.playercount", []byte(`{"visible":3}`)))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, `{"visible":3}`, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received on redis channel")
	}

	require.NoError(t, p.Close())
	assert.NoError(t, client.Ping(ctx).Err(), "closing the publisher must not close the shared client")
}

func TestRedisPublisherFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	mr.Close()

	p := newRedisPublisher(client)
	assert.Error(t, p.Publish(context.Background(), "global.playercount", []byte("{}")))
}

// setupTestNATS creates an embedded NATS server for testing
func setupTestNATS(t *testing.T) string {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host: "127.0.0.1",
		Port: -1, // Random port
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

func TestNATSPublisher(t *testing.T) {
	url := setupTestNATS(t)

	subConn, err := nats.Connect(url)
	require.NoError(t, err)
	defer subConn.Close()

	received := make(chan *nats.Msg, 1)
	_, err = subConn.ChanSubscribe("global.playercount", received)
	require.NoError(t, err)
	require.NoError(t, subConn.Flush())

	p, err := New(Config{Driver: DriverNATS, NatsURL: url})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Publish(ctx, "global.playercount", []byte(`{"actual":5}`)))

	select {
	case msg := <-received:
		assert.Equal(t, `{"actual":5}`, string(msg.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received on NATS subject")
	}
}

func TestNATSPublisherInvalidURL(t *testing.T) {
	_, err := New(Config{Driver: DriverNATS, NatsURL: "nats://127.0.0.1:1"})
	assert.Error(t, err)
}
