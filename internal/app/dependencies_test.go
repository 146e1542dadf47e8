package app

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/config"
)

func TestBuildMemoryWithoutRedis(t *testing.T) {
	cfg := &config.Config{StoreDriver: config.StoreDriverMemory, SaleMaxAttempts: 3, PriceHistoryLimit: 10}
	deps, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, deps.Close()) })

	require.NotNil(t, deps.Store)
	require.Nil(t, deps.Pool)
	require.Nil(t, deps.Redis)
	require.Nil(t, deps.TaskClient)
	require.NotNil(t, deps.Catalog)
	require.NotNil(t, deps.Promo)
	require.NotNil(t, deps.Sales)
	require.NoError(t, deps.Store.Ping(context.Background()))
}

func TestBuildWithRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := &config.Config{
		StoreDriver: config.StoreDriverMemory,
		RedisURL:    "redis://" + mr.Addr() + "/0",
		WorkerQueue: "default",
	}
	deps, err := Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, deps.Redis)
	require.NotNil(t, deps.TaskClient)
	require.NoError(t, deps.Close())
}

func TestOpenRedisRejectsBadURL(t *testing.T) {
	_, err := OpenRedis(context.Background(), &config.Config{RedisURL: "::nope"}, zerolog.Nop())
	require.Error(t, err)
}
