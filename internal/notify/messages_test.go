package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellaris/backend-crm/internal/deal"
)

func TestSignatureRequestEmail(t *testing.T) {
	expiry := time.Date(2023, 5, 15, 0, 0, 0, 0, time.UTC)
	d := deal.Deal{
		QuoteNumber: "Q2304-0042",
		Title:       "Website relaunch",
		TotalAmount: 5222.91,
		Currency:    "EUR",
		ExpiryDate:  &expiry,
	}

	subject, body := SignatureRequestEmail(d, "https://crm.example.com/", "tok en+value")
	assert.Contains(t, subject, "Q2304-0042")
	assert.Contains(t, body, "https://crm.example.com/public/quotes?token=tok+en%2Bvalue")
	assert.Contains(t, body, "5222.91")
	assert.Contains(t, body, "May 15, 2023")
}

func TestQuoteSignedEmail(t *testing.T) {
	signedAt := time.Date(2023, 4, 15, 10, 30, 0, 0, time.UTC)
	d := deal.Deal{
		QuoteNumber: "Q2304-0042",
		TotalAmount: 100,
		Currency:    "USD",
		SignedBy:    &deal.SignedBy{Name: "Jane Roe", Email: "jane@example.com"},
	}

	subject, body := QuoteSignedEmail(d, signedAt)
	require.Contains(t, subject, "signed")
	assert.Contains(t, body, "Jane Roe")
	assert.Contains(t, body, "jane@example.com")
}
