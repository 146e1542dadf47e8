package promo

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/db"
)

var hundred = decimal.NewFromInt(100)

// Price is the result of applying a promo to a base price. The discount fields
// hold the promo values as applied and are nil when no promo matched.
type Price struct {
	Base            decimal.Decimal
	Final           decimal.Decimal
	PercentDiscount *decimal.Decimal
	PriceDiscount   *decimal.Decimal
}

// UnitDiscount is the per-unit amount taken off the base price.
func (p Price) UnitDiscount() decimal.Decimal { return p.Base.Sub(p.Final) }

// LineTotal is the discounted price times quantity.
func (p Price) LineTotal(quantity int32) decimal.Decimal {
	return RoundMoney(p.Final.Mul(decimal.NewFromInt32(quantity)))
}

// RoundMoney rounds to two decimal places, halves away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// Apply applies the percent discount first and then the fixed amount. The
// result is clamped to [0, base].
func Apply(base decimal.Decimal, p *db.Promo) Price {
	out := Price{Base: base, Final: base}
	if p == nil {
		return out
	}
	final := base
	if p.PercentDiscount != nil {
		pct := *p.PercentDiscount
		final = final.Sub(final.Mul(pct).Div(hundred))
		out.PercentDiscount = &pct
	}
	if p.PriceDiscount != nil {
		amount := *p.PriceDiscount
		final = final.Sub(amount)
		out.PriceDiscount = &amount
	}
	if final.IsNegative() {
		final = decimal.Zero
	}
	if final.GreaterThan(base) {
		final = base
	}
	out.Final = RoundMoney(final)
	return out
}
