// Package pricehistory keeps the append-only log of realized promo prices.
package pricehistory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/db"
)

// DefaultLimit bounds RecentForOwner when the caller passes no limit.
const DefaultLimit = 20

// Entry is one (base price, promo price) observation.
type Entry struct {
	PromoID    int64
	ProductID  int64
	BasePrice  decimal.Decimal
	PromoPrice decimal.Decimal
}

// Recorder writes history rows through the querier it is handed, so the rows
// land in whatever transaction the caller is running.
type Recorder struct {
	now func() time.Time
}

func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

// Record appends entries and then refreshes the impacted product counter of
// every promo touched.
func (r *Recorder) Record(ctx context.Context, q db.Querier, entries ...Entry) error {
	touched, err := r.Append(ctx, q, entries...)
	if err != nil {
		return err
	}
	for _, promoID := range touched {
		if _, err := q.RefreshPromoImpactedProducts(ctx, promoID); err != nil {
			return fmt.Errorf("refresh impacted products of promo %d: %w", promoID, err)
		}
	}
	return nil
}

// Append inserts entries without touching the promo counters and returns the
// distinct promo ids written, in first-seen order.
func (r *Recorder) Append(ctx context.Context, q db.Querier, entries ...Entry) ([]int64, error) {
	recordedAt := r.now().UTC()
	touched := make([]int64, 0, len(entries))
	seen := map[int64]struct{}{}
	for _, e := range entries {
		if _, err := q.InsertPromoPriceHistory(ctx, db.InsertPromoPriceHistoryParams{
			PromoID:    e.PromoID,
			ProductID:  e.ProductID,
			BasePrice:  e.BasePrice,
			PromoPrice: e.PromoPrice,
			RecordedAt: recordedAt,
		}); err != nil {
			return nil, fmt.Errorf("record price history for promo %d: %w", e.PromoID, err)
		}
		if _, ok := seen[e.PromoID]; !ok {
			seen[e.PromoID] = struct{}{}
			touched = append(touched, e.PromoID)
		}
	}
	return touched, nil
}

// Reader answers the reporting queries over the history log.
type Reader struct {
	queries      db.Querier
	defaultLimit int32
}

func NewReader(queries db.Querier, defaultLimit int) *Reader {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &Reader{queries: queries, defaultLimit: int32(defaultLimit)}
}

// DistinctProducts counts the distinct products ever recorded against promoIDs.
func (r *Reader) DistinctProducts(ctx context.Context, promoIDs []int64) (int64, error) {
	if len(promoIDs) == 0 {
		return 0, nil
	}
	count, err := r.queries.CountDistinctProductsByPromoIDs(ctx, promoIDs)
	if err != nil {
		return 0, fmt.Errorf("count distinct products: %w", err)
	}
	return count, nil
}

// RecentForOwner returns the newest history rows of promos whose scope is in idx.
func (r *Reader) RecentForOwner(ctx context.Context, idx catalog.ScopeIndex, limit int) ([]db.PromoPriceHistory, error) {
	if limit <= 0 {
		limit = int(r.defaultLimit)
	}
	if idx.Empty() {
		return []db.PromoPriceHistory{}, nil
	}
	promos, err := r.queries.ListPromosByScopes(ctx, idx.Filter(0))
	if err != nil {
		return nil, fmt.Errorf("list owner promos: %w", err)
	}
	if len(promos) == 0 {
		return []db.PromoPriceHistory{}, nil
	}
	ids := make([]int64, 0, len(promos))
	for _, p := range promos {
		ids = append(ids, p.ID)
	}
	rows, err := r.queries.ListRecentPriceHistory(ctx, db.ListRecentPriceHistoryParams{PromoIDs: ids, Limit: int32(limit)})
	if err != nil {
		return nil, fmt.Errorf("list recent price history: %w", err)
	}
	if rows == nil {
		rows = []db.PromoPriceHistory{}
	}
	return rows, nil
}
