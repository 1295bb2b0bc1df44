package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// MarkupRule converts a supplier cost price into a local sale price
type MarkupRule struct {
	Type   MarkupType
	Amount decimal.Decimal
}

// DefaultMarkupRule is 30% on cost
func DefaultMarkupRule() MarkupRule {
	return MarkupRule{Type: MarkupTypePercentage, Amount: decimal.NewFromInt(30)}
}

// Validate checks the rule
func (r MarkupRule) Validate() error {
	if !r.Type.IsValid() {
		return fmt.Errorf("invalid markup type %q", r.Type)
	}
	if r.Amount.IsNegative() {
		return fmt.Errorf("price markup cannot be negative")
	}
	return nil
}

// CalculateSalePrice applies the rule to cost, rounded to cents.
// percentage: cost*(1+amount/100); fixed: cost+amount.
func (r MarkupRule) CalculateSalePrice(cost decimal.Decimal) decimal.Decimal {
	var price decimal.Decimal
	if r.Type == MarkupTypeFixed {
		price = cost.Add(r.Amount)
	} else {
		price = cost.Mul(decimal.NewFromInt(1).Add(r.Amount.Div(hundred)))
	}
	return price.Round(2)
}
