package promo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/lock"
	"github.com/noah-isme/backend-kasir/internal/obs"
)

// TypeRefreshImpact is the asynq task type served by cmd/worker.
const TypeRefreshImpact = "promo:refresh_impact"

type refreshImpactPayload struct {
	PromoID int64 `json:"promoId"`
}

func NewRefreshImpactTask(promoID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(refreshImpactPayload{PromoID: promoID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRefreshImpact, payload), nil
}

// TaskScheduler enqueues impact refreshes on asynq.
type TaskScheduler struct {
	Client   *asynq.Client
	Queue    string
	MaxRetry int
	// Dedup collapses repeated edits of the same promo inside this window.
	Dedup time.Duration
}

var _ ImpactScheduler = TaskScheduler{}

func (s TaskScheduler) ScheduleImpactRefresh(ctx context.Context, promoID int64) error {
	if s.Client == nil {
		return errors.New("promo: task client not configured")
	}
	task, err := NewRefreshImpactTask(promoID)
	if err != nil {
		return err
	}
	opts := []asynq.Option{}
	if s.Queue != "" {
		opts = append(opts, asynq.Queue(s.Queue))
	}
	if s.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(s.MaxRetry))
	}
	if s.Dedup > 0 {
		opts = append(opts, asynq.Unique(s.Dedup))
	}
	if _, err := s.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", TypeRefreshImpact, err)
	}
	return nil
}

// Locker serializes work per key across worker processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// TaskHandler serves TypeRefreshImpact tasks.
type TaskHandler struct {
	Service *Service
	Locker  Locker
	LockTTL time.Duration
	Logger  zerolog.Logger
}

func (h TaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload refreshImpactPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.PromoID <= 0 {
		obs.ObserveImpactRefresh("async", "invalid")
		return fmt.Errorf("decode %s payload: %w", TypeRefreshImpact, asynq.SkipRetry)
	}
	run := func(ctx context.Context) error {
		impacted, err := h.Service.RefreshImpact(ctx, payload.PromoID)
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		if err != nil {
			return err
		}
		h.Logger.Info().Int64("promo_id", payload.PromoID).Int32("impacted_products", impacted).Msg("impact refresh task done")
		return nil
	}
	if h.Locker == nil {
		return run(ctx)
	}
	return h.Locker.WithLock(ctx, lock.Key("promo-impact", payload.PromoID), h.LockTTL, run)
}

// RegisterTasks mounts the promo task handlers on mux.
func RegisterTasks(mux *asynq.ServeMux, h TaskHandler) {
	mux.Handle(TypeRefreshImpact, h)
}
