// Package signature issues and verifies the bearer tokens that bind a deal
// to a recipient email for remote acceptance. Tokens are self-contained; the
// service never checks that the referenced deal still exists, callers must
// re-resolve it after verification.
package signature

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrInvalidOrExpiredToken is returned when a token fails the cryptographic
// check or its expiry has passed.
var ErrInvalidOrExpiredToken = errors.New("invalid or expired signature token")

const (
	claimDealID         = "deal_id"
	claimRecipientEmail = "recipient_email"
)

// Claims are the decoded contents of a signature token.
type Claims struct {
	DealID         string
	RecipientEmail string
}

// Service signs and verifies signature tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
	alg    jwa.SignatureAlgorithm
	now    func() time.Time
}

// Config holds the settings for a token service.
type Config struct {
	Secret string
	TTL    time.Duration
	Now    func() time.Time
}

// NewService constructs a token service. TTL defaults to 30 days.
func NewService(cfg Config) (*Service, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("signature: secret is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		secret: []byte(cfg.Secret),
		ttl:    ttl,
		alg:    jwa.HS256,
		now:    now,
	}, nil
}

// Issue returns a signed token binding dealID to recipientEmail, along with
// the token's expiry instant.
func (s *Service) Issue(dealID, recipientEmail string) (string, time.Time, error) {
	if strings.TrimSpace(dealID) == "" {
		return "", time.Time{}, errors.New("signature: deal id is required")
	}
	if strings.TrimSpace(recipientEmail) == "" {
		return "", time.Time{}, errors.New("signature: recipient email is required")
	}
	now := s.now()
	expiresAt := now.Add(s.ttl)
	token, err := jwt.NewBuilder().
		Subject(dealID).
		IssuedAt(now).
		Expiration(expiresAt).
		Claim(claimDealID, dealID).
		Claim(claimRecipientEmail, strings.ToLower(strings.TrimSpace(recipientEmail))).
		Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signature: build token: %w", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.alg, s.secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signature: sign token: %w", err)
	}
	return string(signed), expiresAt, nil
}

// Verify decodes and validates a token, returning its claims. Any failure,
// whether signature, algorithm, shape, or expiry, maps to
// ErrInvalidOrExpiredToken so callers cannot distinguish tampering from lapse.
func (s *Service) Verify(raw string) (Claims, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Claims{}, ErrInvalidOrExpiredToken
	}
	if err := checkAlgorithm(trimmed, s.alg); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidOrExpiredToken, err)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(s.alg, s.secret), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidOrExpiredToken, err)
	}
	if err := jwt.Validate(parsed, jwt.WithClock(jwt.ClockFunc(s.now))); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidOrExpiredToken, err)
	}
	claims, err := extractClaims(parsed)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidOrExpiredToken, err)
	}
	return claims, nil
}

func extractClaims(tok jwt.Token) (Claims, error) {
	dealID, ok := stringClaim(tok, claimDealID)
	if !ok {
		return Claims{}, errors.New("missing deal id claim")
	}
	email, ok := stringClaim(tok, claimRecipientEmail)
	if !ok {
		return Claims{}, errors.New("missing recipient email claim")
	}
	return Claims{DealID: dealID, RecipientEmail: email}, nil
}

func stringClaim(tok jwt.Token, name string) (string, bool) {
	raw, ok := tok.Get(name)
	if !ok {
		return "", false
	}
	value, ok := raw.(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

func checkAlgorithm(token string, want jwa.SignatureAlgorithm) error {
	message, err := jws.ParseString(token)
	if err != nil {
		return err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return errors.New("token contains no signatures")
	}
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return errors.New("token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == jwa.NoSignature || alg == "" {
			return errors.New("token missing signature algorithm")
		}
		if alg != want {
			return fmt.Errorf("unexpected token algorithm %s", alg)
		}
	}
	return nil
}
