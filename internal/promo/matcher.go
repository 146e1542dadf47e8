package promo

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/noah-isme/backend-kasir/internal/db"
)

// Finder is the read used by Match. db.Querier satisfies it, inside or outside
// a transaction.
type Finder interface {
	ListEligiblePromosByScope(ctx context.Context, arg db.ListEligiblePromosByScopeParams) ([]db.Promo, error)
}

// Eligible reports whether p is inside its window at `at` and still has usage left.
// Both window bounds are inclusive.
func Eligible(p db.Promo, at time.Time) bool {
	if at.Before(p.StartDate) || at.After(p.EndDate) {
		return false
	}
	if p.UsageLimit != nil && p.UsedCount >= *p.UsageLimit {
		return false
	}
	return true
}

// Newer orders promos newest first: created_at desc, then id desc.
func Newer(a, b db.Promo) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	}
	return 0
}

// Match selects the single promo that applies across scopes at `at`. Scope
// levels are searched product, branch, business. The first level with any
// eligible promo wins and the newest promo of that level is returned.
// A nil promo means nothing applies.
func Match(ctx context.Context, q Finder, scopes []Scope, at time.Time) (*db.Promo, error) {
	ordered := slices.Clone(scopes)
	slices.SortStableFunc(ordered, func(a, b Scope) int { return level(a.Type) - level(b.Type) })

	for i := 0; i < len(ordered); {
		j := i
		var found []db.Promo
		for ; j < len(ordered) && ordered[j].Type == ordered[i].Type; j++ {
			rows, err := q.ListEligiblePromosByScope(ctx, db.ListEligiblePromosByScopeParams{
				ScopeType: ordered[j].Type,
				ScopeID:   ordered[j].ID,
				At:        at,
			})
			if err != nil {
				return nil, fmt.Errorf("list promos for %s: %w", ordered[j], err)
			}
			for _, p := range rows {
				if Eligible(p, at) {
					found = append(found, p)
				}
			}
		}
		if len(found) > 0 {
			slices.SortFunc(found, Newer)
			picked := found[0]
			return &picked, nil
		}
		i = j
	}
	return nil, nil
}

// Covers reports whether p targets one of scopes.
func Covers(p db.Promo, scopes []Scope) bool {
	return slices.Contains(scopes, ScopeOf(p))
}
