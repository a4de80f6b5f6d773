package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/ticketdesk/orderbot/config"
	"github.com/ticketdesk/orderbot/services"
)

func setupRedis(ctx context.Context, t *testing.T) *redis.Client {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(config.ConfigureRedisOptions(&config.RedisConfig{
		Address: fmt.Sprintf("%s:%s", host, port.Port()),
	}))
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, config.WaitForRedis(ctx, client, 5, time.Second))
	return client
}

func TestDedupAndThrottle(t *testing.T) {
	requireDocker(t)
	ctx := context.Background()
	client := setupRedis(ctx, t)

	dedup := services.NewDedupService(client, time.Hour)
	first, err := dedup.Claim(ctx, "1190")
	require.NoError(t, err)
	assert.True(t, first)
	again, err := dedup.Claim(ctx, "1190")
	require.NoError(t, err)
	assert.False(t, again)

	throttle := services.NewSubmissionThrottle(services.NewRateLimitService(client), 2)
	for i := 0; i < 2; i++ {
		ok, _ := throttle.Allow(ctx, "tiyu321")
		assert.True(t, ok)
	}
	ok, retry := throttle.Allow(ctx, "tiyu321")
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))

	ok, _ = throttle.Allow(ctx, "sammylby")
	assert.True(t, ok, "limits are per submitter")
}
