package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/trogers1052/paper-trader/internal/models"
)

type fakeClient struct {
	sets       map[string][]byte
	ttls       map[string]time.Duration
	published  []string
	setErr     error
	publishErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{sets: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (f *fakeClient) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.sets[key] = value.([]byte)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	if f.publishErr != nil {
		return redis.NewIntResult(0, f.publishErr)
	}
	f.published = append(f.published, channel)
	return redis.NewIntResult(1, nil)
}

func (f *fakeClient) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeClient) Close() error { return nil }

func testSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Balance: decimal.RequireFromString("9.895000000000000001"),
		Positions: []*models.Position{
			{TokenID: "mint-a", Amount: decimal.NewFromInt(100), BuyPrice: decimal.RequireFromString("0.001")},
		},
		ReferencePrice: decimal.NewNullDecimal(decimal.NewFromInt(150)),
		TakenAt:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRedisPublisher_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("stores with ttl and announces", func(t *testing.T) {
		client := newFakeClient()
		p := &RedisPublisher{client: client, key: "paper-trader:snapshot", ttl: time.Minute}

		require.NoError(t, p.Publish(ctx, testSnapshot()))

		assert.Equal(t, time.Minute, client.ttls["paper-trader:snapshot"])
		assert.Equal(t, []string{"paper-trader:snapshot"}, client.published)

		var got models.Snapshot
		require.NoError(t, json.Unmarshal(client.sets["paper-trader:snapshot"], &got))
		assert.True(t, got.Balance.Equal(decimal.RequireFromString("9.895000000000000001")))
		require.Len(t, got.Positions, 1)
		assert.Equal(t, "mint-a", got.Positions[0].TokenID)
	})

	t.Run("store failure is returned and nothing is announced", func(t *testing.T) {
		client := newFakeClient()
		client.setErr = errors.New("READONLY")
		p := &RedisPublisher{client: client, key: "k", ttl: time.Minute}

		err := p.Publish(ctx, testSnapshot())
		assert.ErrorContains(t, err, "failed to store snapshot")
		assert.Empty(t, client.published)
	})

	t.Run("publish failure is returned", func(t *testing.T) {
		client := newFakeClient()
		client.publishErr = errors.New("connection reset")
		p := &RedisPublisher{client: client, key: "k", ttl: time.Minute}

		err := p.Publish(ctx, testSnapshot())
		assert.ErrorContains(t, err, "failed to publish snapshot")
	})
}

func TestRedisPublisher_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	p, err := NewRedisPublisher(ctx, addr, "", 0, "paper-trader:snapshot", time.Minute)
	require.NoError(t, err)
	defer p.Close()

	reader := redis.NewClient(&redis.Options{Addr: addr})
	defer reader.Close()

	sub := reader.Subscribe(ctx, "paper-trader:snapshot")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, testSnapshot()))

	select {
	case msg := <-sub.Channel():
		var got models.Snapshot
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.True(t, got.ReferencePrice.Valid)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for snapshot announcement")
	}

	stored, err := reader.Get(ctx, "paper-trader:snapshot").Bytes()
	require.NoError(t, err)
	assert.NotEmpty(t, stored)

	ttl, err := reader.TTL(ctx, "paper-trader:snapshot").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
