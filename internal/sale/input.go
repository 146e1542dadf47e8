package sale

import (
	"fmt"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/db"
)

var hundred = decimal.NewFromInt(100)

// LineInput is one cart entry. Price, names and promo are optional: missing
// values are taken from the catalog and the promo matcher. A caller supplied
// promo is only honoured when it covers the product and is still eligible.
type LineInput struct {
	ProductID    int64            `json:"productId" validate:"required,gt=0"`
	ProductName  *string          `json:"productName" validate:"omitempty,max=200"`
	CategoryName *string          `json:"categoryName" validate:"omitempty,max=200"`
	Price        *decimal.Decimal `json:"price"`
	Quantity     int32            `json:"quantity" validate:"required,gte=1"`
	PromoID      *int64           `json:"promoId" validate:"omitempty,gt=0"`
}

// Input is the payload of createTransaction.
type Input struct {
	BranchID      int64            `json:"branchId" validate:"required,gt=0"`
	CustomerName  *string          `json:"customerName" validate:"omitempty,max=120"`
	CustomerPhone *string          `json:"customerPhone" validate:"omitempty,max=32"`
	DiscountType  *db.DiscountType `json:"discountType" validate:"omitempty,oneof=amount percent"`
	DiscountValue *decimal.Decimal `json:"discountValue"`
	PaymentAmount *decimal.Decimal `json:"paymentAmount"`
	Items         []LineInput      `json:"items" validate:"required,min=1,dive"`
}

func (in Input) check(v *validator.Validate) error {
	if len(in.Items) == 0 {
		return common.ValidationError("at least one line item is required", common.FieldError{Field: "items", Message: "is required"})
	}
	if err := common.ValidateStruct(v, in); err != nil {
		return err
	}
	var fields []common.FieldError
	for i, item := range in.Items {
		if item.Price != nil && item.Price.IsNegative() {
			fields = append(fields, common.FieldError{Field: fmt.Sprintf("items[%d].price", i), Message: "must not be negative"})
		}
	}
	if in.DiscountType != nil {
		switch {
		case in.DiscountValue == nil:
			fields = append(fields, common.FieldError{Field: "discountValue", Message: "is required with discountType"})
		case in.DiscountValue.IsNegative():
			fields = append(fields, common.FieldError{Field: "discountValue", Message: "must not be negative"})
		case *in.DiscountType == db.DiscountTypePercent && in.DiscountValue.GreaterThan(hundred):
			fields = append(fields, common.FieldError{Field: "discountValue", Message: "must be at most 100 for percent discounts"})
		}
	}
	if in.PaymentAmount != nil && in.PaymentAmount.IsNegative() {
		fields = append(fields, common.FieldError{Field: "paymentAmount", Message: "must not be negative"})
	}
	if len(fields) > 0 {
		return common.ValidationError("request validation failed", fields...)
	}
	return nil
}
