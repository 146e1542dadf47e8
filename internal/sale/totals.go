package sale

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/db"
	"github.com/noah-isme/backend-kasir/internal/promo"
)

// Line is a priced cart entry ready to be persisted.
type Line struct {
	ProductID    int64
	ProductName  string
	CategoryName string
	Quantity     int32
	Promo        *db.Promo
	Price        promo.Price
	Total        decimal.Decimal
}

func newLine(productID int64, name, category string, qty int32, p *db.Promo, base decimal.Decimal) Line {
	price := promo.Apply(base, p)
	return Line{
		ProductID:    productID,
		ProductName:  name,
		CategoryName: category,
		Quantity:     qty,
		Promo:        p,
		Price:        price,
		Total:        price.LineTotal(qty),
	}
}

// Totals are the order level amounts of a sale.
type Totals struct {
	Subtotal      decimal.Decimal
	OrderDiscount decimal.Decimal
	Total         decimal.Decimal
}

// ComputeTotals sums line totals and applies the order discount. The total
// never goes below zero.
func ComputeTotals(lines []Line, discountType *db.DiscountType, discountValue *decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total)
	}
	discount := decimal.Zero
	if discountType != nil && discountValue != nil {
		switch *discountType {
		case db.DiscountTypePercent:
			discount = subtotal.Mul(*discountValue).Div(hundred)
		case db.DiscountTypeAmount:
			discount = *discountValue
		}
	}
	discount = promo.RoundMoney(discount)
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return Totals{Subtotal: subtotal, OrderDiscount: discount, Total: total}
}
