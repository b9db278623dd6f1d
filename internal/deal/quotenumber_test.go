package deal

import (
	"testing"
	"time"
)

func TestQuoteNumber(t *testing.T) {
	cases := []struct {
		name     string
		existing int64
		now      time.Time
		want     string
	}{
		{"first quote", 0, time.Date(2023, 4, 15, 10, 0, 0, 0, time.UTC), "Q2304-0001"},
		{"forty second quote", 41, time.Date(2023, 4, 15, 10, 0, 0, 0, time.UTC), "Q2304-0042"},
		{"single digit month padded", 8, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), "Q2501-0009"},
		{"december", 0, time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC), "Q2412-0001"},
		{"sequence wider than padding", 9999, time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC), "Q2304-10000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := QuoteNumber(tc.existing, tc.now); got != tc.want {
				t.Fatalf("QuoteNumber(%d) = %q, want %q", tc.existing, got, tc.want)
			}
		})
	}
}
