package catalog

import (
	"slices"

	"github.com/noah-isme/backend-kasir/internal/db"
)

// ScopeIndex is the pre-loaded set of scopes one owner controls.
type ScopeIndex struct {
	Businesses map[int64]struct{}
	Branches   map[int64]struct{}
	Products   map[int64]struct{}
}

func NewScopeIndex() ScopeIndex {
	return ScopeIndex{
		Businesses: map[int64]struct{}{},
		Branches:   map[int64]struct{}{},
		Products:   map[int64]struct{}{},
	}
}

// Contains reports whether the scope (scopeType, scopeID) belongs to the owner.
func (ix ScopeIndex) Contains(scopeType db.ScopeType, scopeID int64) bool {
	var set map[int64]struct{}
	switch scopeType {
	case db.ScopeTypeBusiness:
		set = ix.Businesses
	case db.ScopeTypeBranch:
		set = ix.Branches
	case db.ScopeTypeProduct:
		set = ix.Products
	default:
		return false
	}
	_, ok := set[scopeID]
	return ok
}

// Filter returns the promo list query parameters covering every owned scope.
func (ix ScopeIndex) Filter(limit int32) db.ListPromosByScopesParams {
	return db.ListPromosByScopesParams{
		BusinessIDs: sortedKeys(ix.Businesses),
		BranchIDs:   sortedKeys(ix.Branches),
		ProductIDs:  sortedKeys(ix.Products),
		Limit:       limit,
	}
}

func (ix ScopeIndex) Empty() bool {
	return len(ix.Businesses) == 0 && len(ix.Branches) == 0 && len(ix.Products) == 0
}

func sortedKeys(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
