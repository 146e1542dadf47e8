package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ListEligiblePromosByScopeParams struct {
	ScopeType ScopeType
	ScopeID   int64
	At        time.Time
}

type ListPromosByScopesParams struct {
	BusinessIDs []int64
	BranchIDs   []int64
	ProductIDs  []int64
	Limit       int32
}

type CreatePromoParams struct {
	OwnerID         *uuid.UUID
	Name            string
	ScopeType       ScopeType
	ScopeID         int64
	StartDate       time.Time
	EndDate         time.Time
	PercentDiscount *decimal.Decimal
	PriceDiscount   *decimal.Decimal
	UsageLimit      *int32
}

type UpdatePromoParams struct {
	ID              int64
	Name            string
	ScopeType       ScopeType
	ScopeID         int64
	StartDate       time.Time
	EndDate         time.Time
	PercentDiscount *decimal.Decimal
	PriceDiscount   *decimal.Decimal
	UsageLimit      *int32
}

type InsertPromoPriceHistoryParams struct {
	PromoID    int64
	ProductID  int64
	BasePrice  decimal.Decimal
	PromoPrice decimal.Decimal
	RecordedAt time.Time
}

type ListRecentPriceHistoryParams struct {
	PromoIDs []int64
	Limit    int32
}

type CreateTransactionParams struct {
	TransactionNumber string
	CustomerName      *string
	CustomerPhone     *string
	BranchID          int64
	UserID            uuid.UUID
	DiscountType      *DiscountType
	DiscountValue     *decimal.Decimal
	Subtotal          decimal.Decimal
	TotalAmount       decimal.Decimal
	PaymentAmount     *decimal.Decimal
	ChangeAmount      *decimal.Decimal
	CreatedAt         time.Time
}

type CreateProductTransactionParams struct {
	TransactionID   int64
	ProductID       int64
	ProductName     string
	CategoryName    string
	Price           decimal.Decimal
	Quantity        int32
	PromoID         *int64
	DiscountPercent *decimal.Decimal
	DiscountPrice   *decimal.Decimal
	LineTotal       decimal.Decimal
}

// Querier is the full set of statements used by the services. Both the pgx
// backed Queries and the in-memory store implement it.
type Querier interface {
	GetBranch(ctx context.Context, id int64) (Branch, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProductBranchIDs(ctx context.Context, productID int64) ([]int64, error)
	ListBusinessesByOwner(ctx context.Context, ownerID uuid.UUID) ([]Business, error)
	ListBranchesByOwner(ctx context.Context, ownerID uuid.UUID) ([]Branch, error)
	ListProductBranchesByOwner(ctx context.Context, ownerID uuid.UUID) ([]ProductBranch, error)
	ListProductIDsInScope(ctx context.Context, scopeType ScopeType, scopeID int64) ([]int64, error)

	GetPromo(ctx context.Context, id int64) (Promo, error)
	ListEligiblePromosByScope(ctx context.Context, arg ListEligiblePromosByScopeParams) ([]Promo, error)
	ListPromosByScopes(ctx context.Context, arg ListPromosByScopesParams) ([]Promo, error)
	CreatePromo(ctx context.Context, arg CreatePromoParams) (Promo, error)
	UpdatePromo(ctx context.Context, arg UpdatePromoParams) (Promo, error)
	IncrementPromoUsage(ctx context.Context, id int64) (int32, error)
	RefreshPromoImpactedProducts(ctx context.Context, id int64) (int32, error)

	InsertPromoPriceHistory(ctx context.Context, arg InsertPromoPriceHistoryParams) (PromoPriceHistory, error)
	CountDistinctProductsByPromoIDs(ctx context.Context, promoIDs []int64) (int64, error)
	ListRecentPriceHistory(ctx context.Context, arg ListRecentPriceHistoryParams) ([]PromoPriceHistory, error)

	CountTransactionsByNumberPrefix(ctx context.Context, prefix string) (int64, error)
	CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Transaction, error)
	CreateProductTransaction(ctx context.Context, arg CreateProductTransactionParams) (ProductTransaction, error)
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	ListProductTransactions(ctx context.Context, transactionID int64) ([]ProductTransaction, error)
}

// Store hands out a Querier and runs functions inside one atomic unit.
type Store interface {
	Queries() Querier
	// InTx runs fn inside a transaction. Returning an error from fn rolls the
	// whole unit back. Conflicts are reported wrapped in ErrConflict.
	InTx(ctx context.Context, fn func(Querier) error) error
	Ping(ctx context.Context) error
}
