//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"contactdir/internal/platform/config"
	"contactdir/internal/platform/redis"
	"contactdir/pkg/testutil/containers"
)

func TestNewConnectsAndReportsHealth(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)

	client, err := redis.New(context.Background(), config.RedisConfig{
		URL:         rc.URL,
		PoolSize:    4,
		DialTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Close()

	require.NoError(t, client.Health(context.Background()))
}
