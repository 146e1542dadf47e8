package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ScopeType enumerates the granularities a promo can be declared at.
type ScopeType string

const (
	ScopeTypeProduct  ScopeType = "product"
	ScopeTypeBranch   ScopeType = "branch"
	ScopeTypeBusiness ScopeType = "business"
)

// DiscountType enumerates order level discount kinds.
type DiscountType string

const (
	DiscountTypeAmount  DiscountType = "amount"
	DiscountTypePercent DiscountType = "percent"
)

type Business struct {
	ID        int64
	OwnerID   uuid.UUID
	Name      string
	CreatedAt time.Time
}

// Branch carries the owner of its business so callers do not need a second lookup.
type Branch struct {
	ID         int64
	BusinessID int64
	Name       string
	OwnerID    uuid.UUID
}

type Category struct {
	ID         int64
	BusinessID int64
	Name       string
}

// Product is joined with its category name.
type Product struct {
	ID           int64
	BusinessID   int64
	CategoryID   *int64
	CategoryName string
	Name         string
	Price        decimal.Decimal
}

type ProductBranch struct {
	ProductID int64
	BranchID  int64
}

type Promo struct {
	ID               int64
	OwnerID          *uuid.UUID
	Name             string
	ScopeType        ScopeType
	ScopeID          int64
	StartDate        time.Time
	EndDate          time.Time
	PercentDiscount  *decimal.Decimal
	PriceDiscount    *decimal.Decimal
	UsageLimit       *int32
	UsedCount        int32
	ImpactedProducts int32
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Transaction struct {
	ID                int64
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

type ProductTransaction struct {
	ID              int64
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

type PromoPriceHistory struct {
	ID         int64
	PromoID    int64
	ProductID  int64
	BasePrice  decimal.Decimal
	PromoPrice decimal.Decimal
	RecordedAt time.Time
}
