package sale

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/backend-kasir/internal/db"
)

// DefaultNumberPrefix starts every transaction number.
const DefaultNumberPrefix = "TRX"

// Numberer generates PREFIXyyyymmdd-NNNN numbers, sequenced per day. Two
// concurrent sales may draw the same number; the unique constraint turns that
// into a conflict and the retried unit counts again.
type Numberer struct {
	Prefix string
}

func (n Numberer) dayPrefix(at time.Time) string {
	prefix := n.Prefix
	if prefix == "" {
		prefix = DefaultNumberPrefix
	}
	return prefix + at.Format("20060102") + "-"
}

func (n Numberer) Next(ctx context.Context, q db.Querier, at time.Time) (string, error) {
	day := n.dayPrefix(at)
	count, err := q.CountTransactionsByNumberPrefix(ctx, day)
	if err != nil {
		return "", fmt.Errorf("count transactions for %s: %w", day, err)
	}
	return fmt.Sprintf("%s%04d", day, count+1), nil
}
