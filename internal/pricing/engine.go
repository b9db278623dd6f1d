package pricing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidLineItem is returned when a line item carries money-losing input
// such as a negative quantity or price. Inputs are rejected, never clamped.
var ErrInvalidLineItem = errors.New("invalid line item")

// DiscountType selects how a deal-level discount is applied to the subtotal.
type DiscountType string

const (
	// DiscountPercentage applies the discount value as a percentage of the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed subtracts the discount value from the subtotal, floored at zero.
	DiscountFixed DiscountType = "fixed"
)

// Valid reports whether the discount type is one of the known values.
func (d DiscountType) Valid() bool {
	return d == DiscountPercentage || d == DiscountFixed
}

// LineItem is one priced row within a deal.
type LineItem struct {
	Description     string
	Quantity        float64
	UnitPrice       float64
	DiscountPercent float64
	TaxPercent      float64
}

// Validate rejects line items before they reach aggregation.
func (li LineItem) Validate() error {
	if strings.TrimSpace(li.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidLineItem)
	}
	if li.Quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidLineItem)
	}
	if li.UnitPrice < 0 {
		return fmt.Errorf("%w: unit price must not be negative", ErrInvalidLineItem)
	}
	if li.DiscountPercent < 0 || li.DiscountPercent > 100 {
		return fmt.Errorf("%w: discount percent must be between 0 and 100", ErrInvalidLineItem)
	}
	if li.TaxPercent < 0 {
		return fmt.Errorf("%w: tax percent must not be negative", ErrInvalidLineItem)
	}
	return nil
}

// LineTotal computes the rounded total for one line item.
func LineTotal(li LineItem) (float64, error) {
	if err := li.Validate(); err != nil {
		return 0, err
	}
	base := li.Quantity * li.UnitPrice
	discounted := ApplyPercentDiscount(base, li.DiscountPercent)
	return ApplyTax(discounted, li.TaxPercent), nil
}

// Subtotal sums line item totals into a rounded subtotal. An empty item list
// yields zero.
func Subtotal(items []LineItem) (float64, error) {
	var sum float64
	for _, li := range items {
		total, err := LineTotal(li)
		if err != nil {
			return 0, err
		}
		sum += total
	}
	return Round2(sum), nil
}

// DealTotals holds the derived deal-level amounts.
type DealTotals struct {
	DiscountedSubtotal float64
	TaxAmount          float64
	TotalAmount        float64
}

// ComputeDealTotals applies the deal-level discount and tax rate to an
// aggregated subtotal. The function is pure: identical inputs always produce
// identical outputs, so recomputing on every save cannot drift. A discount
// larger than the subtotal, fixed or percentage, clamps to zero rather than
// erroring; an invoice never goes negative.
func ComputeDealTotals(subtotal float64, discountType DiscountType, discountValue, taxRatePercent float64) DealTotals {
	if discountValue < 0 {
		discountValue = 0
	}
	var discounted float64
	switch discountType {
	case DiscountFixed:
		discounted = ApplyFixedDiscount(subtotal, discountValue)
	default:
		if discountValue > 100 {
			discountValue = 100
		}
		discounted = ApplyPercentDiscount(subtotal, discountValue)
	}
	tax := Round2(discounted * taxRatePercent / 100)
	return DealTotals{
		DiscountedSubtotal: discounted,
		TaxAmount:          tax,
		TotalAmount:        Round2(discounted + tax),
	}
}
