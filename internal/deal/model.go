package deal

import (
	"time"

	"github.com/google/uuid"

	"github.com/sellaris/backend-crm/internal/pricing"
)

// Status is the lifecycle state of a deal.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusViewed    Status = "viewed"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
	StatusConverted Status = "converted"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusViewed, StatusAccepted, StatusRejected, StatusExpired, StatusConverted:
		return true
	}
	return false
}

// Terminal reports whether no further lifecycle transition is defined.
func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusExpired, StatusConverted:
		return true
	}
	return false
}

// LineItem is a priced row within a deal. Total is derived and recomputed on
// every mutation; callers never set it directly.
type LineItem struct {
	Description     string  `json:"description"`
	Quantity        float64 `json:"quantity"`
	UnitPrice       float64 `json:"unit_price"`
	DiscountPercent float64 `json:"discount_percent"`
	TaxPercent      float64 `json:"tax_percent"`
	Total           float64 `json:"total"`
}

// SignedBy captures who accepted the quote.
type SignedBy struct {
	Name              string `json:"name"`
	Email             string `json:"email"`
	Title             string `json:"title,omitempty"`
	SignatureImageRef string `json:"signature_image_ref"`
}

// Deal is a priced proposal (quote) sent to a prospective customer.
type Deal struct {
	ID          uuid.UUID  `json:"id"`
	QuoteNumber string     `json:"quote_number"`
	Title       string     `json:"title"`
	CompanyID   *uuid.UUID `json:"company_id,omitempty"`
	ContactID   *uuid.UUID `json:"contact_id,omitempty"`
	OwnerID     *uuid.UUID `json:"owner_id,omitempty"`

	LineItems      []LineItem           `json:"line_items"`
	DiscountType   pricing.DiscountType `json:"discount_type"`
	DiscountValue  float64              `json:"discount_value"`
	TaxRatePercent float64              `json:"tax_rate_percent"`

	// Derived amounts, recomputed in full on every save. Amount mirrors
	// TotalAmount for query convenience.
	Subtotal    float64 `json:"subtotal"`
	TaxAmount   float64 `json:"tax_amount"`
	TotalAmount float64 `json:"total_amount"`
	Amount      float64 `json:"amount"`

	Status            Status     `json:"status"`
	SignatureRequired bool       `json:"signature_required"`
	SignedBy          *SignedBy  `json:"signed_by,omitempty"`
	SignatureDate     *time.Time `json:"signature_date,omitempty"`
	PDFRef            *string    `json:"pdf_ref,omitempty"`
	Currency          string     `json:"currency"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Recompute derives every financial field from the line items and deal-level
// discount and tax settings. It always recomputes the full set, partial
// updates are how derived fields drift apart.
func Recompute(d *Deal) error {
	items := make([]pricing.LineItem, 0, len(d.LineItems))
	for i := range d.LineItems {
		li := pricing.LineItem{
			Description:     d.LineItems[i].Description,
			Quantity:        d.LineItems[i].Quantity,
			UnitPrice:       d.LineItems[i].UnitPrice,
			DiscountPercent: d.LineItems[i].DiscountPercent,
			TaxPercent:      d.LineItems[i].TaxPercent,
		}
		total, err := pricing.LineTotal(li)
		if err != nil {
			return err
		}
		d.LineItems[i].Total = total
		items = append(items, li)
	}
	subtotal, err := pricing.Subtotal(items)
	if err != nil {
		return err
	}
	totals := pricing.ComputeDealTotals(subtotal, d.DiscountType, d.DiscountValue, d.TaxRatePercent)
	d.Subtotal = subtotal
	d.TaxAmount = totals.TaxAmount
	d.TotalAmount = totals.TotalAmount
	d.Amount = totals.TotalAmount
	return nil
}
