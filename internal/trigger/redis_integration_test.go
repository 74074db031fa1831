//go:build integration

package trigger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/emperorhan/collection-scanner/internal/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) string {
	t.Helper()
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

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestRedisPubSub_ForwardsIntoBus(t *testing.T) {
	url := startRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	bus := NewBus()
	defer bus.Close()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sub := NewRedisSubscriber(client, "test:changed", bus, logger)

	runCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- sub.Run(runCtx) }()

	pub := NewRedisPublisher(client, "test:changed")
	// Publish until the subscription is live.
	var got event.CollectionsChanged
	require.Eventually(t, func() bool {
		_ = pub.Publish(ctx, event.CollectionsChanged{Owner: "0xowner", Reason: "transfer"})
		select {
		case got = <-events:
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 50*time.Millisecond)

	assert.Equal(t, "0xowner", got.Owner)
	assert.Equal(t, "transfer", got.Reason)
	assert.False(t, got.At.IsZero())

	stop()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}
