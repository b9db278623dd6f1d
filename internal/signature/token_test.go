package signature

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, now time.Time, ttl time.Duration) *Service {
	t.Helper()
	svc, err := NewService(Config{
		Secret: "test-secret-key-which-is-long-enough",
		TTL:    ttl,
		Now:    func() time.Time { return now },
	})
	require.NoError(t, err)
	return svc
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	now := time.Date(2023, 4, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, now, 0)

	token, expiresAt, err := svc.Issue("deal-123", "Buyer@Example.com")
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*24*time.Hour), expiresAt)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "deal-123", claims.DealID)
	assert.Equal(t, "buyer@example.com", claims.RecipientEmail)
}

func TestVerifyExpiredToken(t *testing.T) {
	issuedAt := time.Date(2023, 4, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, issuedAt, time.Second)

	token, _, err := svc.Issue("deal-123", "buyer@example.com")
	require.NoError(t, err)

	late, err := NewService(Config{
		Secret: "test-secret-key-which-is-long-enough",
		Now:    func() time.Time { return issuedAt.Add(2 * time.Second) },
	})
	require.NoError(t, err)

	_, err = late.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	now := time.Now()
	svc := newTestService(t, now, time.Hour)
	token, _, err := svc.Issue("deal-123", "buyer@example.com")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, err = svc.Verify(tampered)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	now := time.Now()
	svc := newTestService(t, now, time.Hour)
	token, _, err := svc.Issue("deal-123", "buyer@example.com")
	require.NoError(t, err)

	other, err := NewService(Config{Secret: "a-completely-different-secret-value"})
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := newTestService(t, time.Now(), time.Hour)
	for _, raw := range []string{"", "   ", "not-a-token", "a.b.c"} {
		_, err := svc.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	}
}
