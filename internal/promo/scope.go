package promo

import (
	"context"
	"fmt"
	"slices"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/db"
)

// Scope is one granularity a promo can target: Product(id), Branch(id) or Business(id).
type Scope struct {
	Type db.ScopeType
	ID   int64
}

func ProductScope(id int64) Scope  { return Scope{Type: db.ScopeTypeProduct, ID: id} }
func BranchScope(id int64) Scope   { return Scope{Type: db.ScopeTypeBranch, ID: id} }
func BusinessScope(id int64) Scope { return Scope{Type: db.ScopeTypeBusiness, ID: id} }

// ScopeOf returns the scope a promo row targets.
func ScopeOf(p db.Promo) Scope { return Scope{Type: p.ScopeType, ID: p.ScopeID} }

func (s Scope) String() string { return fmt.Sprintf("%s:%d", s.Type, s.ID) }

// level orders scope types by precedence, lower wins.
func level(t db.ScopeType) int {
	switch t {
	case db.ScopeTypeProduct:
		return 0
	case db.ScopeTypeBranch:
		return 1
	case db.ScopeTypeBusiness:
		return 2
	default:
		return 3
	}
}

// Resolver enumerates the scopes a product participates in.
type Resolver struct {
	catalog catalog.Lookup
}

func NewResolver(lookup catalog.Lookup) Resolver {
	return Resolver{catalog: lookup}
}

// Candidates returns the product scope first, then every branch the product is
// assigned to, then the businesses owning those branches.
func (r Resolver) Candidates(ctx context.Context, productID int64) ([]Scope, error) {
	product, err := r.catalog.Product(ctx, productID)
	if err != nil {
		return nil, err
	}
	branches := make([]catalog.Branch, 0, len(product.BranchIDs))
	for _, id := range product.BranchIDs {
		branch, err := r.catalog.Branch(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve branch %d of product %d: %w", id, productID, err)
		}
		branches = append(branches, branch)
	}
	return CandidatesFor(product, branches), nil
}

// CandidatesFor builds the candidate list from already loaded catalog rows.
// The product's own business is included even when it has no branch assignment.
func CandidatesFor(product catalog.Product, branches []catalog.Branch) []Scope {
	scopes := make([]Scope, 0, 2+2*len(branches))
	scopes = append(scopes, ProductScope(product.ID))

	businessIDs := make([]int64, 0, len(branches)+1)
	for _, b := range branches {
		scopes = append(scopes, BranchScope(b.ID))
		if !slices.Contains(businessIDs, b.BusinessID) {
			businessIDs = append(businessIDs, b.BusinessID)
		}
	}
	if product.BusinessID != 0 && !slices.Contains(businessIDs, product.BusinessID) {
		businessIDs = append(businessIDs, product.BusinessID)
	}
	for _, id := range businessIDs {
		scopes = append(scopes, BusinessScope(id))
	}
	return scopes
}
