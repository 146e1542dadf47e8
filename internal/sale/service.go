// Package sale assembles and settles point-of-sale transactions.
package sale

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
	"github.com/noah-isme/backend-kasir/internal/promo"
)

const (
	DefaultMaxAttempts = 5
	DefaultBackoff     = 25 * time.Millisecond
)

// Sale is a committed transaction with its line items.
type Sale struct {
	Transaction db.Transaction
	Items       []db.ProductTransaction
}

// Service creates and reads sales.
type Service struct {
	store       db.Store
	catalog     catalog.Lookup
	resolver    promo.Resolver
	recorder    *pricehistory.Recorder
	numbers     Numberer
	validate    *validator.Validate
	logger      zerolog.Logger
	now         func() time.Time
	maxAttempts int
	backoff     time.Duration
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store        db.Store
	Catalog      catalog.Lookup
	Recorder     *pricehistory.Recorder
	Validator    *validator.Validate
	Logger       zerolog.Logger
	Now          func() time.Time
	NumberPrefix string
	MaxAttempts  int
	Backoff      time.Duration
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		store:       cfg.Store,
		catalog:     cfg.Catalog,
		resolver:    promo.NewResolver(cfg.Catalog),
		recorder:    cfg.Recorder,
		numbers:     Numberer{Prefix: cfg.NumberPrefix},
		validate:    cfg.Validator,
		logger:      cfg.Logger,
		now:         cfg.Now,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.recorder == nil {
		s.recorder = pricehistory.NewRecorder(s.now)
	}
	if s.validate == nil {
		s.validate = common.NewValidator()
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxAttempts
	}
	if s.backoff < 0 {
		s.backoff = 0
	}
	return s
}

// cartLine is a validated input line with its catalog context.
type cartLine struct {
	input   LineInput
	product catalog.Product
	scopes  []promo.Scope
}

// prepare validates the cart against the catalog. It runs outside the store
// transaction and never writes. Only the owner of the branch's business may
// sell there; other users see the branch as missing, as Get does.
func (s *Service) prepare(ctx context.Context, cashier uuid.UUID, in Input) ([]cartLine, error) {
	if err := in.check(s.validate); err != nil {
		return nil, err
	}
	branch, err := s.catalog.Branch(ctx, in.BranchID)
	if err != nil {
		return nil, err
	}
	if branch.OwnerID != cashier {
		s.logger.Warn().Int64("branch_id", in.BranchID).Str("user_id", cashier.String()).Msg("sale_branch_denied")
		return nil, common.NotFoundError("branch", in.BranchID)
	}
	lines := make([]cartLine, 0, len(in.Items))
	for i, item := range in.Items {
		product, err := s.catalog.Product(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if !product.AssignedTo(in.BranchID) {
			return nil, common.ValidationError(
				fmt.Sprintf("product %d is not sold at branch %d", item.ProductID, in.BranchID),
				common.FieldError{Field: fmt.Sprintf("items[%d].productId", i), Message: "is not assigned to the branch"},
			)
		}
		scopes, err := s.resolver.Candidates(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, cartLine{input: item, product: product, scopes: scopes})
	}
	return lines, nil
}

// Create assembles and commits a sale. The whole unit is retried on store
// conflicts; every other failure aborts without persisting anything.
func (s *Service) Create(ctx context.Context, cashier uuid.UUID, in Input) (Sale, error) {
	cart, err := s.prepare(ctx, cashier, in)
	if err != nil {
		obs.ObserveSale("rejected")
		return Sale{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		obs.ObserveSaleAttempt()
		var (
			sale  Sale
			lines []Line
		)
		err := s.store.InTx(ctx, func(q db.Querier) error {
			var err error
			sale, lines, err = s.commit(ctx, q, cashier, in, cart)
			return err
		})
		if err == nil {
			obs.ObserveSale("created")
			for _, l := range lines {
				if l.Promo != nil {
					obs.ObservePromoApplied(string(l.Promo.ScopeType))
				}
			}
			s.logger.Info().
				Int64("transaction_id", sale.Transaction.ID).
				Str("transaction_number", sale.Transaction.TransactionNumber).
				Str("total_amount", sale.Transaction.TotalAmount.StringFixed(2)).
				Int("attempt", attempt).
				Msg("sale_created")
			return sale, nil
		}
		if !errors.Is(err, db.ErrConflict) {
			switch {
			case errors.Is(err, common.ErrPromoUsageExceeded):
				obs.ObservePromoUsageRejected()
				obs.ObserveSale("promo_exhausted")
				s.logger.Warn().Err(err).Int64("branch_id", in.BranchID).Msg("promo_usage_rejected")
			case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrNotFound):
				obs.ObserveSale("rejected")
			default:
				obs.ObserveSale("failed")
			}
			return Sale{}, err
		}
		lastErr = err
		s.logger.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", s.maxAttempts).Msg("sale_conflict_retry")
		if attempt < s.maxAttempts {
			if err := sleep(ctx, s.backoff*time.Duration(attempt)); err != nil {
				obs.ObserveSale("failed")
				return Sale{}, err
			}
		}
	}
	obs.ObserveSale("conflict")
	return Sale{}, common.PersistenceConflictError(s.maxAttempts, lastErr)
}

// commit runs one attempt inside the store transaction. Promos are resolved
// against q so usage and windows are read from the same unit that increments them.
func (s *Service) commit(ctx context.Context, q db.Querier, cashier uuid.UUID, in Input, cart []cartLine) (Sale, []Line, error) {
	at := s.now()
	lines := make([]Line, 0, len(cart))
	for _, c := range cart {
		applied, err := s.promoFor(ctx, q, c, at)
		if err != nil {
			return Sale{}, nil, err
		}
		base := c.product.Price
		if c.input.Price != nil {
			base = *c.input.Price
		}
		name := c.product.Name
		if c.input.ProductName != nil && *c.input.ProductName != "" {
			name = *c.input.ProductName
		}
		category := c.product.CategoryName
		if c.input.CategoryName != nil && *c.input.CategoryName != "" {
			category = *c.input.CategoryName
		}
		lines = append(lines, newLine(c.product.ID, name, category, c.input.Quantity, applied, base))
	}

	totals := ComputeTotals(lines, in.DiscountType, in.DiscountValue)
	var change *decimal.Decimal
	if in.PaymentAmount != nil {
		if in.PaymentAmount.LessThan(totals.Total) {
			return Sale{}, nil, common.ValidationError(
				fmt.Sprintf("payment %s is less than total %s", in.PaymentAmount.StringFixed(2), totals.Total.StringFixed(2)),
				common.FieldError{Field: "paymentAmount", Message: "must cover the total amount"},
			)
		}
		diff := in.PaymentAmount.Sub(totals.Total)
		change = &diff
	}

	number, err := s.numbers.Next(ctx, q, at)
	if err != nil {
		return Sale{}, nil, err
	}
	tx, err := q.CreateTransaction(ctx, db.CreateTransactionParams{
		TransactionNumber: number,
		CustomerName:      in.CustomerName,
		CustomerPhone:     in.CustomerPhone,
		BranchID:          in.BranchID,
		UserID:            cashier,
		DiscountType:      in.DiscountType,
		DiscountValue:     in.DiscountValue,
		Subtotal:          totals.Subtotal,
		TotalAmount:       totals.Total,
		PaymentAmount:     in.PaymentAmount,
		ChangeAmount:      change,
		CreatedAt:         at,
	})
	if err != nil {
		return Sale{}, nil, fmt.Errorf("create transaction: %w", err)
	}

	sale := Sale{Transaction: tx, Items: make([]db.ProductTransaction, 0, len(lines))}
	var history []pricehistory.Entry
	used := make(map[int64]struct{})
	for _, l := range lines {
		arg := db.CreateProductTransactionParams{
			TransactionID: tx.ID,
			ProductID:     l.ProductID,
			ProductName:   l.ProductName,
			CategoryName:  l.CategoryName,
			Price:         l.Price.Base,
			Quantity:      l.Quantity,
			LineTotal:     l.Total,
		}
		if l.Promo != nil {
			promoID := l.Promo.ID
			arg.PromoID = &promoID
			arg.DiscountPercent = l.Price.PercentDiscount
			arg.DiscountPrice = l.Price.PriceDiscount
		}
		item, err := q.CreateProductTransaction(ctx, arg)
		if err != nil {
			return Sale{}, nil, fmt.Errorf("create line item for product %d: %w", l.ProductID, err)
		}
		sale.Items = append(sale.Items, item)

		if l.Promo == nil {
			continue
		}
		history = append(history, pricehistory.Entry{
			PromoID:    l.Promo.ID,
			ProductID:  l.ProductID,
			BasePrice:  l.Price.Base,
			PromoPrice: l.Price.Final,
		})
		if _, done := used[l.Promo.ID]; done {
			continue
		}
		used[l.Promo.ID] = struct{}{}
		if _, err := q.IncrementPromoUsage(ctx, l.Promo.ID); err != nil {
			if errors.Is(err, db.ErrNoRows) {
				return Sale{}, nil, common.PromoUsageExceededError(l.Promo.ID)
			}
			return Sale{}, nil, fmt.Errorf("increment usage of promo %d: %w", l.Promo.ID, err)
		}
	}
	if err := s.recorder.Record(ctx, q, history...); err != nil {
		return Sale{}, nil, err
	}
	return sale, lines, nil
}

// promoFor honours a caller supplied promo when it covers the product and is
// eligible at `at`, otherwise the matcher decides. An id that names no promo
// at all is rejected.
func (s *Service) promoFor(ctx context.Context, q db.Querier, c cartLine, at time.Time) (*db.Promo, error) {
	if c.input.PromoID != nil {
		p, err := q.GetPromo(ctx, *c.input.PromoID)
		if err != nil {
			if errors.Is(err, db.ErrNoRows) {
				return nil, common.NotFoundError("promo", *c.input.PromoID)
			}
			return nil, fmt.Errorf("get promo %d: %w", *c.input.PromoID, err)
		}
		if promo.Covers(p, c.scopes) && promo.Eligible(p, at) {
			return &p, nil
		}
		s.logger.Debug().Int64("promo_id", *c.input.PromoID).Int64("product_id", c.product.ID).Msg("supplied promo ignored")
	}
	return promo.Match(ctx, q, c.scopes, at)
}

// Get returns a sale visible to user: the cashier who rang it up or the owner
// of its branch. Anything else is reported as not found.
func (s *Service) Get(ctx context.Context, user uuid.UUID, id int64) (Sale, error) {
	q := s.store.Queries()
	tx, err := q.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return Sale{}, common.NotFoundError("transaction", id)
		}
		return Sale{}, fmt.Errorf("get transaction: %w", err)
	}
	if tx.UserID != user {
		branch, err := s.catalog.Branch(ctx, tx.BranchID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return Sale{}, err
		}
		if err != nil || branch.OwnerID != user {
			return Sale{}, common.NotFoundError("transaction", id)
		}
	}
	items, err := q.ListProductTransactions(ctx, id)
	if err != nil {
		return Sale{}, fmt.Errorf("list line items: %w", err)
	}
	if items == nil {
		items = []db.ProductTransaction{}
	}
	return Sale{Transaction: tx, Items: items}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
