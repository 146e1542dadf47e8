package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/db"
)

// Product is the catalog view of a product needed at sale time.
type Product struct {
	ID           int64           `json:"id"`
	BusinessID   int64           `json:"businessId"`
	Name         string          `json:"name"`
	CategoryName string          `json:"categoryName"`
	Price        decimal.Decimal `json:"price"`
	BranchIDs    []int64         `json:"branchIds"`
}

// AssignedTo reports whether the product is sold at branchID.
func (p Product) AssignedTo(branchID int64) bool {
	return slices.Contains(p.BranchIDs, branchID)
}

// Branch is the catalog view of a branch.
type Branch struct {
	ID         int64     `json:"id"`
	BusinessID int64     `json:"businessId"`
	Name       string    `json:"name"`
	OwnerID    uuid.UUID `json:"ownerId"`
}

// Lookup resolves products and branches. Missing ids are reported as
// common.ErrNotFound.
type Lookup interface {
	Product(ctx context.Context, id int64) (Product, error)
	Branch(ctx context.Context, id int64) (Branch, error)
}

// Service implements Lookup over the store with an optional Redis cache.
type Service struct {
	queries db.Querier
	cache   *Cache
	logger  zerolog.Logger
}

var _ Lookup = (*Service)(nil)

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Queries db.Querier
	Cache   *Cache
	Logger  zerolog.Logger
}

func NewService(cfg ServiceConfig) *Service {
	return &Service{queries: cfg.Queries, cache: cfg.Cache, logger: cfg.Logger}
}

func (s *Service) Product(ctx context.Context, id int64) (Product, error) {
	var cached Product
	if ok, err := s.cache.GetJSON(ctx, productKey(id), &cached); err != nil {
		s.logger.Warn().Err(err).Int64("product_id", id).Msg("catalog cache read failed")
	} else if ok {
		return cached, nil
	}

	row, err := s.queries.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return Product{}, common.NotFoundError("product", id)
		}
		return Product{}, fmt.Errorf("get product %d: %w", id, err)
	}
	branchIDs, err := s.queries.ListProductBranchIDs(ctx, id)
	if err != nil {
		return Product{}, fmt.Errorf("list branches of product %d: %w", id, err)
	}
	product := Product{
		ID:           row.ID,
		BusinessID:   row.BusinessID,
		Name:         row.Name,
		CategoryName: row.CategoryName,
		Price:        row.Price,
		BranchIDs:    branchIDs,
	}
	if product.BranchIDs == nil {
		product.BranchIDs = []int64{}
	}
	if err := s.cache.SetJSON(ctx, productKey(id), product); err != nil {
		s.logger.Warn().Err(err).Int64("product_id", id).Msg("catalog cache write failed")
	}
	return product, nil
}

func (s *Service) Branch(ctx context.Context, id int64) (Branch, error) {
	var cached Branch
	if ok, err := s.cache.GetJSON(ctx, branchKey(id), &cached); err != nil {
		s.logger.Warn().Err(err).Int64("branch_id", id).Msg("catalog cache read failed")
	} else if ok {
		return cached, nil
	}

	row, err := s.queries.GetBranch(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return Branch{}, common.NotFoundError("branch", id)
		}
		return Branch{}, fmt.Errorf("get branch %d: %w", id, err)
	}
	branch := Branch{ID: row.ID, BusinessID: row.BusinessID, Name: row.Name, OwnerID: row.OwnerID}
	if err := s.cache.SetJSON(ctx, branchKey(id), branch); err != nil {
		s.logger.Warn().Err(err).Int64("branch_id", id).Msg("catalog cache write failed")
	}
	return branch, nil
}

// ScopeIndex loads every business, branch and product reachable from ownerID.
// It is never cached so ownership changes apply immediately.
func (s *Service) ScopeIndex(ctx context.Context, ownerID uuid.UUID) (ScopeIndex, error) {
	idx := NewScopeIndex()
	businesses, err := s.queries.ListBusinessesByOwner(ctx, ownerID)
	if err != nil {
		return idx, fmt.Errorf("list businesses: %w", err)
	}
	for _, b := range businesses {
		idx.Businesses[b.ID] = struct{}{}
	}
	branches, err := s.queries.ListBranchesByOwner(ctx, ownerID)
	if err != nil {
		return idx, fmt.Errorf("list branches: %w", err)
	}
	for _, br := range branches {
		idx.Branches[br.ID] = struct{}{}
	}
	assignments, err := s.queries.ListProductBranchesByOwner(ctx, ownerID)
	if err != nil {
		return idx, fmt.Errorf("list product assignments: %w", err)
	}
	for _, pb := range assignments {
		idx.Products[pb.ProductID] = struct{}{}
	}
	return idx, nil
}
