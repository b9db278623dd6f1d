package pricing

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineTotal(t *testing.T) {
	item := LineItem{Description: "Consulting", Quantity: 2, UnitPrice: 100, DiscountPercent: 10, TaxPercent: 5}
	total, err := LineTotal(item)
	require.NoError(t, err)
	// 200 * 0.9 = 180, * 1.05 = 189
	assert.Equal(t, 189.00, total)
}

func TestLineTotalRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name string
		item LineItem
	}{
		{"negative quantity", LineItem{Description: "x", Quantity: -1, UnitPrice: 10}},
		{"negative price", LineItem{Description: "x", Quantity: 1, UnitPrice: -10}},
		{"missing description", LineItem{Quantity: 1, UnitPrice: 10}},
		{"discount over 100", LineItem{Description: "x", Quantity: 1, UnitPrice: 10, DiscountPercent: 120}},
		{"negative tax", LineItem{Description: "x", Quantity: 1, UnitPrice: 10, TaxPercent: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LineTotal(tc.item)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidLineItem))
		})
	}
}

func TestSubtotalEmptyItems(t *testing.T) {
	subtotal, err := Subtotal(nil)
	require.NoError(t, err)
	assert.Zero(t, subtotal)
}

func TestSubtotalRoundingDriftBounded(t *testing.T) {
	// Many items with awkward cents: the rounded subtotal must stay within
	// one cent of the sum of individually rounded line totals.
	items := make([]LineItem, 0, 100)
	for i := 0; i < 100; i++ {
		items = append(items, LineItem{Description: "widget", Quantity: 3, UnitPrice: 0.333, TaxPercent: 7.7})
	}
	subtotal, err := Subtotal(items)
	require.NoError(t, err)

	var perItem float64
	for _, li := range items {
		total, err := LineTotal(li)
		require.NoError(t, err)
		perItem += Round2(total)
	}
	assert.LessOrEqual(t, math.Abs(subtotal-Round2(perItem)), 0.01)
}

func TestComputeDealTotals(t *testing.T) {
	totals := ComputeDealTotals(10000, DiscountPercentage, 10, 5)
	assert.Equal(t, 9000.00, totals.DiscountedSubtotal)
	assert.Equal(t, 450.00, totals.TaxAmount)
	assert.Equal(t, 9450.00, totals.TotalAmount)
}

func TestComputeDealTotalsIdempotent(t *testing.T) {
	first := ComputeDealTotals(1234.56, DiscountFixed, 34.56, 19)
	second := ComputeDealTotals(1234.56, DiscountFixed, 34.56, 19)
	assert.Equal(t, first, second)
}

func TestComputeDealTotalsFixedDiscountClamps(t *testing.T) {
	totals := ComputeDealTotals(100, DiscountFixed, 999999, 5)
	assert.Zero(t, totals.DiscountedSubtotal)
	assert.Zero(t, totals.TaxAmount)
	assert.Zero(t, totals.TotalAmount)
}

func TestComputeDealTotalsPercentOver100Clamps(t *testing.T) {
	totals := ComputeDealTotals(100, DiscountPercentage, 150, 5)
	assert.Zero(t, totals.DiscountedSubtotal)
	assert.Zero(t, totals.TaxAmount)
	assert.Zero(t, totals.TotalAmount)
}

func TestComputeDealTotalsNegativeDiscountIgnored(t *testing.T) {
	totals := ComputeDealTotals(100, DiscountPercentage, -10, 0)
	assert.Equal(t, 100.00, totals.TotalAmount)
}

func TestRound2HalfUp(t *testing.T) {
	assert.Equal(t, 0.13, Round2(0.125))
	assert.Equal(t, 0.38, Round2(0.375))
	assert.Equal(t, -0.13, Round2(-0.125))
}

func TestApplyFixedDiscountNeverNegative(t *testing.T) {
	assert.Zero(t, ApplyFixedDiscount(50, 75))
	assert.Equal(t, 25.00, ApplyFixedDiscount(100, 75))
}
