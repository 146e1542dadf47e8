package promo_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/lock"
	"github.com/noah-isme/backend-kasir/internal/promo"
)

func TestRefreshImpactTaskPayload(t *testing.T) {
	task, err := promo.NewRefreshImpactTask(42)
	require.NoError(t, err)
	require.Equal(t, promo.TypeRefreshImpact, task.Type())

	var payload map[string]int64
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.EqualValues(t, 42, payload["promoId"])
}

func TestTaskHandlerRefreshesUnderLock(t *testing.T) {
	f := newFixture(t)
	created := f.insertPromo(t, promo.BranchScope(f.branch.ID), nil)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	handler := promo.TaskHandler{
		Service: f.svc,
		Locker:  lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond},
		LockTTL: time.Second,
		Logger:  zerolog.Nop(),
	}
	task, err := promo.NewRefreshImpactTask(created.ID)
	require.NoError(t, err)
	require.NoError(t, handler.ProcessTask(context.Background(), task))

	got, err := f.store.Queries().GetPromo(context.Background(), created.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, got.ImpactedProducts)
	require.False(t, mr.Exists(lock.Key("promo-impact", created.ID)))
}

func TestTaskHandlerSkipsRetryOnBadInput(t *testing.T) {
	f := newFixture(t)
	handler := promo.TaskHandler{Service: f.svc, Logger: zerolog.Nop()}

	err := handler.ProcessTask(context.Background(), asynq.NewTask(promo.TypeRefreshImpact, []byte("not json")))
	require.True(t, errors.Is(err, asynq.SkipRetry))

	task, err := promo.NewRefreshImpactTask(999)
	require.NoError(t, err)
	err = handler.ProcessTask(context.Background(), task)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}
