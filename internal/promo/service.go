package promo

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/db"
	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/pricehistory"
)

// Catalog is what the promo service needs from the catalog layer.
type Catalog interface {
	catalog.Lookup
	IndexSource
}

// ImpactScheduler defers an impact refresh to a background worker.
type ImpactScheduler interface {
	ScheduleImpactRefresh(ctx context.Context, promoID int64) error
}

// Input is the admin payload for creating or editing a promo.
type Input struct {
	Name            string           `json:"name" validate:"max=120"`
	ScopeType       db.ScopeType     `json:"scopeType" validate:"required,oneof=product branch business"`
	ScopeID         int64            `json:"scopeId" validate:"required,gt=0"`
	StartDate       time.Time        `json:"startDate" validate:"required"`
	EndDate         time.Time        `json:"endDate" validate:"required,gtefield=StartDate"`
	PercentDiscount *decimal.Decimal `json:"percentDiscount"`
	PriceDiscount   *decimal.Decimal `json:"priceDiscount"`
	UsageLimit      *int32           `json:"usageLimit" validate:"omitempty,gte=1"`
}

// Resolution is the active promo for a product and the price it yields.
type Resolution struct {
	ProductID int64
	At        time.Time
	Promo     *db.Promo
	Price     Price
}

// Service owns promo resolution and administration.
type Service struct {
	store     db.Store
	catalog   Catalog
	resolver  Resolver
	recorder  *pricehistory.Recorder
	reader    *pricehistory.Reader
	scheduler ImpactScheduler
	validate  *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// ServiceConfig groups Service dependencies. Scheduler may be nil, in which
// case impact refreshes run inline.
type ServiceConfig struct {
	Store        db.Store
	Catalog      Catalog
	Recorder     *pricehistory.Recorder
	Reader       *pricehistory.Reader
	Scheduler    ImpactScheduler
	Validator    *validator.Validate
	Logger       zerolog.Logger
	Now          func() time.Time
	HistoryLimit int
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		store:     cfg.Store,
		catalog:   cfg.Catalog,
		resolver:  NewResolver(cfg.Catalog),
		recorder:  cfg.Recorder,
		reader:    cfg.Reader,
		scheduler: cfg.Scheduler,
		validate:  cfg.Validator,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.recorder == nil {
		s.recorder = pricehistory.NewRecorder(s.now)
	}
	if s.reader == nil {
		s.reader = pricehistory.NewReader(cfg.Store.Queries(), cfg.HistoryLimit)
	}
	if s.validate == nil {
		s.validate = common.NewValidator()
	}
	return s
}

// ResolveActive returns the promo applying to productID at `at`, if any. It
// performs no writes.
func (s *Service) ResolveActive(ctx context.Context, productID int64, at time.Time) (Resolution, error) {
	if at.IsZero() {
		at = s.now()
	}
	product, err := s.catalog.Product(ctx, productID)
	if err != nil {
		return Resolution{}, err
	}
	scopes, err := s.resolver.Candidates(ctx, productID)
	if err != nil {
		return Resolution{}, err
	}
	p, err := Match(ctx, s.store.Queries(), scopes, at)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{ProductID: productID, At: at, Promo: p, Price: Apply(product.Price, p)}, nil
}

func (s *Service) checkInput(in Input) error {
	if err := common.ValidateStruct(s.validate, in); err != nil {
		return err
	}
	var fields []common.FieldError
	if in.PercentDiscount == nil && in.PriceDiscount == nil {
		fields = append(fields, common.FieldError{Field: "percentDiscount", Message: "percentDiscount or priceDiscount is required"})
	}
	if in.PercentDiscount != nil && (in.PercentDiscount.IsNegative() || in.PercentDiscount.GreaterThan(hundred)) {
		fields = append(fields, common.FieldError{Field: "percentDiscount", Message: "must be between 0 and 100"})
	}
	if in.PriceDiscount != nil && in.PriceDiscount.IsNegative() {
		fields = append(fields, common.FieldError{Field: "priceDiscount", Message: "must not be negative"})
	}
	if len(fields) > 0 {
		return common.ValidationError("request validation failed", fields...)
	}
	return nil
}

func (s *Service) authorizeScope(ctx context.Context, owner uuid.UUID, scope Scope) (catalog.ScopeIndex, error) {
	idx, err := s.catalog.ScopeIndex(ctx, owner)
	if err != nil {
		return idx, fmt.Errorf("load scope index: %w", err)
	}
	if !idx.Contains(scope.Type, scope.ID) {
		return idx, common.ForbiddenError(fmt.Sprintf("scope %s is not owned by the caller", scope))
	}
	return idx, nil
}

// Create stores a new promo targeting one of the owner's scopes.
func (s *Service) Create(ctx context.Context, owner uuid.UUID, in Input) (db.Promo, error) {
	if err := s.checkInput(in); err != nil {
		return db.Promo{}, err
	}
	if _, err := s.authorizeScope(ctx, owner, Scope{Type: in.ScopeType, ID: in.ScopeID}); err != nil {
		return db.Promo{}, err
	}
	created, err := s.store.Queries().CreatePromo(ctx, db.CreatePromoParams{
		OwnerID:         &owner,
		Name:            in.Name,
		ScopeType:       in.ScopeType,
		ScopeID:         in.ScopeID,
		StartDate:       in.StartDate.UTC(),
		EndDate:         in.EndDate.UTC(),
		PercentDiscount: in.PercentDiscount,
		PriceDiscount:   in.PriceDiscount,
		UsageLimit:      in.UsageLimit,
	})
	if err != nil {
		return db.Promo{}, fmt.Errorf("create promo: %w", err)
	}
	s.logger.Info().Int64("promo_id", created.ID).Str("scope", ScopeOf(created).String()).Msg("promo_created")
	return s.afterScopeChange(ctx, created)
}

// Update rewrites the scope, window and discount fields of a promo. Usage
// counters are preserved, the impacted product counter is re-derived.
func (s *Service) Update(ctx context.Context, owner uuid.UUID, id int64, in Input) (db.Promo, error) {
	if err := s.checkInput(in); err != nil {
		return db.Promo{}, err
	}
	existing, err := s.Get(ctx, owner, id)
	if err != nil {
		return db.Promo{}, err
	}
	if _, err := s.authorizeScope(ctx, owner, Scope{Type: in.ScopeType, ID: in.ScopeID}); err != nil {
		return db.Promo{}, err
	}
	if in.UsageLimit != nil && *in.UsageLimit < existing.UsedCount {
		return db.Promo{}, common.ValidationError("request validation failed", common.FieldError{
			Field:   "usageLimit",
			Message: fmt.Sprintf("must be at least the current usage of %d", existing.UsedCount),
		})
	}
	updated, err := s.store.Queries().UpdatePromo(ctx, db.UpdatePromoParams{
		ID:              id,
		Name:            in.Name,
		ScopeType:       in.ScopeType,
		ScopeID:         in.ScopeID,
		StartDate:       in.StartDate.UTC(),
		EndDate:         in.EndDate.UTC(),
		PercentDiscount: in.PercentDiscount,
		PriceDiscount:   in.PriceDiscount,
		UsageLimit:      in.UsageLimit,
	})
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return db.Promo{}, common.NotFoundError("promo", id)
		}
		return db.Promo{}, fmt.Errorf("update promo: %w", err)
	}
	s.logger.Info().Int64("promo_id", updated.ID).Str("scope", ScopeOf(updated).String()).Msg("promo_updated")
	return s.afterScopeChange(ctx, updated)
}

func (s *Service) afterScopeChange(ctx context.Context, p db.Promo) (db.Promo, error) {
	if s.scheduler != nil {
		err := s.scheduler.ScheduleImpactRefresh(ctx, p.ID)
		if err == nil {
			obs.ObserveImpactRefresh("async", "scheduled")
			return p, nil
		}
		s.logger.Warn().Err(err).Int64("promo_id", p.ID).Msg("schedule impact refresh failed, running inline")
	}
	impacted, err := s.RefreshImpact(ctx, p.ID)
	if err != nil {
		return db.Promo{}, err
	}
	p.ImpactedProducts = impacted
	return p, nil
}

// RefreshImpact records a price-history row for every product currently in the
// promo's scope and recomputes impactedProducts as the distinct count of
// products in its history.
func (s *Service) RefreshImpact(ctx context.Context, promoID int64) (int32, error) {
	var impacted int32
	err := s.store.InTx(ctx, func(q db.Querier) error {
		p, err := q.GetPromo(ctx, promoID)
		if err != nil {
			if errors.Is(err, db.ErrNoRows) {
				return common.NotFoundError("promo", promoID)
			}
			return err
		}
		productIDs, err := q.ListProductIDsInScope(ctx, p.ScopeType, p.ScopeID)
		if err != nil {
			return fmt.Errorf("list products in scope: %w", err)
		}
		entries := make([]pricehistory.Entry, 0, len(productIDs))
		for _, productID := range productIDs {
			product, err := q.GetProduct(ctx, productID)
			if err != nil {
				return fmt.Errorf("load product %d: %w", productID, err)
			}
			price := Apply(product.Price, &p)
			entries = append(entries, pricehistory.Entry{
				PromoID:    p.ID,
				ProductID:  productID,
				BasePrice:  price.Base,
				PromoPrice: price.Final,
			})
		}
		if _, err := s.recorder.Append(ctx, q, entries...); err != nil {
			return err
		}
		impacted, err = q.RefreshPromoImpactedProducts(ctx, p.ID)
		return err
	})
	if err != nil {
		obs.ObserveImpactRefresh("inline", "error")
		return 0, err
	}
	obs.ObserveImpactRefresh("inline", "ok")
	s.logger.Info().Int64("promo_id", promoID).Int32("impacted_products", impacted).Msg("promo_impact_refreshed")
	return impacted, nil
}

// Get returns a promo visible to owner. Promos outside the owner's scopes are
// reported as forbidden.
func (s *Service) Get(ctx context.Context, owner uuid.UUID, id int64) (db.Promo, error) {
	p, err := s.store.Queries().GetPromo(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return db.Promo{}, common.NotFoundError("promo", id)
		}
		return db.Promo{}, fmt.Errorf("get promo: %w", err)
	}
	ok, err := NewAuthorizer(s.catalog).CanAccess(ctx, p, owner)
	if err != nil {
		return db.Promo{}, err
	}
	if !ok {
		return db.Promo{}, common.ForbiddenError(fmt.Sprintf("promo %d is not visible to the caller", id))
	}
	return p, nil
}

// List returns the owner's promos, newest first. A limit of 0 returns all.
func (s *Service) List(ctx context.Context, owner uuid.UUID, limit int) ([]db.Promo, error) {
	idx, err := s.catalog.ScopeIndex(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load scope index: %w", err)
	}
	if idx.Empty() {
		return []db.Promo{}, nil
	}
	if limit < 0 {
		limit = 0
	}
	promos, err := s.store.Queries().ListPromosByScopes(ctx, idx.Filter(int32(limit)))
	if err != nil {
		return nil, fmt.Errorf("list promos: %w", err)
	}
	if promos == nil {
		promos = []db.Promo{}
	}
	return promos, nil
}

// PriceHistory returns the newest history rows visible to owner.
func (s *Service) PriceHistory(ctx context.Context, owner uuid.UUID, limit int) ([]db.PromoPriceHistory, error) {
	idx, err := s.catalog.ScopeIndex(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load scope index: %w", err)
	}
	return s.reader.RecentForOwner(ctx, idx, limit)
}

// ImpactedProducts counts distinct products recorded against promoIDs. Every
// id must be visible to owner.
func (s *Service) ImpactedProducts(ctx context.Context, owner uuid.UUID, promoIDs []int64) (int64, error) {
	if len(promoIDs) == 0 {
		return 0, common.ValidationError("at least one promo id is required", common.FieldError{Field: "ids", Message: "is required"})
	}
	idx, err := s.catalog.ScopeIndex(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("load scope index: %w", err)
	}
	for _, id := range promoIDs {
		p, err := s.store.Queries().GetPromo(ctx, id)
		if err != nil {
			if errors.Is(err, db.ErrNoRows) {
				return 0, common.NotFoundError("promo", id)
			}
			return 0, fmt.Errorf("get promo: %w", err)
		}
		if !Visible(p, idx) {
			return 0, common.ForbiddenError(fmt.Sprintf("promo %d is not visible to the caller", id))
		}
	}
	return s.reader.DistinctProducts(ctx, promoIDs)
}
