package promo

import (
	"context"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/db"
)

// IndexSource loads the scopes an owner controls.
type IndexSource interface {
	ScopeIndex(ctx context.Context, ownerID uuid.UUID) (catalog.ScopeIndex, error)
}

// Visible reports whether the promo's scope resolves into idx.
func Visible(p db.Promo, idx catalog.ScopeIndex) bool {
	return idx.Contains(p.ScopeType, p.ScopeID)
}

// Authorizer answers (promo, user) -> allowed from the user's scope index.
type Authorizer struct {
	index IndexSource
}

func NewAuthorizer(index IndexSource) Authorizer {
	return Authorizer{index: index}
}

func (a Authorizer) CanAccess(ctx context.Context, p db.Promo, userID uuid.UUID) (bool, error) {
	idx, err := a.index.ScopeIndex(ctx, userID)
	if err != nil {
		return false, err
	}
	return Visible(p, idx), nil
}
