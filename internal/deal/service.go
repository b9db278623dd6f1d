package deal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sellaris/backend-crm/internal/obs"
	"github.com/sellaris/backend-crm/internal/pricing"
	"github.com/sellaris/backend-crm/internal/signature"
)

var validate = validator.New()

// Jobs schedules asynchronous work triggered by deal transitions. Email and
// PDF rendering run out of band; enqueue failures are logged and never roll
// back a persisted transition.
type Jobs interface {
	EnqueueSignatureEmail(ctx context.Context, dealID uuid.UUID, recipient, token string) error
	EnqueuePDFRender(ctx context.Context, dealID uuid.UUID) error
}

// LineItemInput is the caller-facing shape of a line item. Totals are never
// accepted from callers.
type LineItemInput struct {
	Description     string  `json:"description" validate:"required"`
	Quantity        float64 `json:"quantity" validate:"gte=0"`
	UnitPrice       float64 `json:"unit_price" validate:"gte=0"`
	DiscountPercent float64 `json:"discount_percent" validate:"gte=0,lte=100"`
	TaxPercent      float64 `json:"tax_percent" validate:"gte=0"`
}

// CreateInput carries the fields accepted when creating a deal.
type CreateInput struct {
	Title             string          `json:"title" validate:"required"`
	CompanyID         *uuid.UUID      `json:"company_id"`
	ContactID         *uuid.UUID      `json:"contact_id"`
	OwnerID           *uuid.UUID      `json:"owner_id"`
	LineItems         []LineItemInput `json:"line_items" validate:"dive"`
	DiscountType      string          `json:"discount_type" validate:"omitempty,oneof=percentage fixed"`
	DiscountValue     float64         `json:"discount_value"`
	TaxRatePercent    float64         `json:"tax_rate_percent" validate:"gte=0"`
	SignatureRequired bool            `json:"signature_required"`
	Currency          string          `json:"currency" validate:"omitempty,len=3"`
	ExpiryDate        *time.Time      `json:"expiry_date"`
}

// UpdateInput carries the mutable fields of an existing deal.
type UpdateInput struct {
	Title             *string         `json:"title"`
	CompanyID         *uuid.UUID      `json:"company_id"`
	ContactID         *uuid.UUID      `json:"contact_id"`
	LineItems         []LineItemInput `json:"line_items" validate:"omitempty,dive"`
	DiscountType      *string         `json:"discount_type" validate:"omitempty,oneof=percentage fixed"`
	DiscountValue     *float64        `json:"discount_value"`
	TaxRatePercent    *float64        `json:"tax_rate_percent"`
	SignatureRequired *bool           `json:"signature_required"`
	ExpiryDate        *time.Time      `json:"expiry_date"`
}

// SignInput carries the recipient's signature payload.
type SignInput struct {
	Token             string `json:"token" validate:"required"`
	Name              string `json:"name" validate:"required"`
	Email             string `json:"email" validate:"required,email"`
	Title             string `json:"title"`
	SignatureImageRef string `json:"signature_image" validate:"required"`
}

// Service coordinates deal persistence, pricing recomputation, the quote
// lifecycle, and the collaborators that sit around them.
type Service struct {
	Store           Store
	Tokens          *signature.Service
	Jobs            Jobs
	Cache           *Cache
	Logger          zerolog.Logger
	DefaultCurrency string
	Now             func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Create builds a draft deal, recomputes its totals, assigns its quote number
// and persists it. The quote number is assigned exactly once, here; it is
// never regenerated.
func (s *Service) Create(ctx context.Context, in CreateInput) (Deal, error) {
	if err := validate.Struct(in); err != nil {
		return Deal{}, fmt.Errorf("%w: %v", pricing.ErrInvalidLineItem, err)
	}
	now := s.now()
	d := Deal{
		ID:                uuid.New(),
		Title:             strings.TrimSpace(in.Title),
		CompanyID:         in.CompanyID,
		ContactID:         in.ContactID,
		OwnerID:           in.OwnerID,
		LineItems:         toLineItems(in.LineItems),
		DiscountType:      parseDiscountType(in.DiscountType),
		DiscountValue:     in.DiscountValue,
		TaxRatePercent:    in.TaxRatePercent,
		Status:            StatusDraft,
		SignatureRequired: in.SignatureRequired,
		Currency:          strings.ToUpper(strings.TrimSpace(in.Currency)),
		ExpiryDate:        in.ExpiryDate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if d.Currency == "" {
		d.Currency = s.DefaultCurrency
	}
	if d.Currency == "" {
		d.Currency = "USD"
	}
	if err := Recompute(&d); err != nil {
		return Deal{}, err
	}

	seq, err := s.Store.NextQuoteSeq(ctx)
	if err != nil {
		return Deal{}, err
	}
	d.QuoteNumber = QuoteNumber(seq-1, now)

	created, err := s.Store.Create(ctx, d)
	if err != nil {
		return Deal{}, err
	}
	return created, nil
}

// Update applies caller mutations and recomputes every derived field before
// the atomic write. Terminal deals are closed books and reject edits.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (Deal, error) {
	if err := validate.Struct(in); err != nil {
		return Deal{}, fmt.Errorf("%w: %v", pricing.ErrInvalidLineItem, err)
	}
	d, err := s.Store.Get(ctx, id)
	if err != nil {
		return Deal{}, err
	}
	if d.Status.Terminal() {
		return Deal{}, fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, d.Status)
	}
	if in.Title != nil {
		d.Title = strings.TrimSpace(*in.Title)
	}
	if in.CompanyID != nil {
		d.CompanyID = in.CompanyID
	}
	if in.ContactID != nil {
		d.ContactID = in.ContactID
	}
	if in.LineItems != nil {
		d.LineItems = toLineItems(in.LineItems)
	}
	if in.DiscountType != nil {
		d.DiscountType = parseDiscountType(*in.DiscountType)
	}
	if in.DiscountValue != nil {
		d.DiscountValue = *in.DiscountValue
	}
	if in.TaxRatePercent != nil {
		d.TaxRatePercent = *in.TaxRatePercent
	}
	if in.SignatureRequired != nil {
		d.SignatureRequired = *in.SignatureRequired
	}
	if in.ExpiryDate != nil {
		d.ExpiryDate = in.ExpiryDate
	}
	if err := Recompute(&d); err != nil {
		return Deal{}, err
	}
	d.UpdatedAt = s.now()
	return s.persist(ctx, d)
}

// Get returns a deal by id, serving from the cache when possible.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Deal, error) {
	var cached Deal
	if ok, err := s.Cache.Get(ctx, id, &cached); err == nil && ok {
		return cached, nil
	}
	d, err := s.Store.Get(ctx, id)
	if err != nil {
		return Deal{}, err
	}
	if err := s.Cache.Set(ctx, d); err != nil {
		s.Logger.Warn().Err(err).Str("deal_id", id.String()).Msg("cache deal")
	}
	return d, nil
}

// List returns filtered deals with the total match count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Deal, int, error) {
	return s.Store.List(ctx, filter)
}

// SendSignatureRequest moves the deal to Sent, issues a signature token for
// the recipient and schedules the email. Repeating the call on a Sent deal
// reissues the token without erroring.
func (s *Service) SendSignatureRequest(ctx context.Context, id uuid.UUID, recipientEmail string) (Deal, error) {
	recipient := strings.ToLower(strings.TrimSpace(recipientEmail))
	if recipient == "" {
		return Deal{}, errors.New("deal: recipient email is required")
	}
	d, err := s.Store.Get(ctx, id)
	if err != nil {
		return Deal{}, err
	}
	if err := MarkSent(&d); err != nil {
		obs.IncQuoteTransition(string(StatusSent), "rejected")
		return Deal{}, err
	}
	d.UpdatedAt = s.now()
	d, err = s.persist(ctx, d)
	if err != nil {
		return Deal{}, err
	}

	token, _, err := s.Tokens.Issue(d.ID.String(), recipient)
	if err != nil {
		return Deal{}, err
	}
	if s.Jobs != nil {
		if err := s.Jobs.EnqueueSignatureEmail(ctx, d.ID, recipient, token); err != nil {
			// Delivery is best-effort: the Sent transition stands.
			s.Logger.Error().Err(err).Str("deal_id", d.ID.String()).Msg("enqueue signature email")
		} else {
			obs.IncSignatureRequest()
		}
	}
	obs.IncQuoteTransition(string(StatusSent), "ok")
	return d, nil
}

// ViewWithToken validates a signature token and records that the recipient
// viewed the quote. Invalid or expired tokens never mutate the deal.
func (s *Service) ViewWithToken(ctx context.Context, token string) (Deal, error) {
	claims, err := s.Tokens.Verify(token)
	if err != nil {
		return Deal{}, err
	}
	id, err := uuid.Parse(claims.DealID)
	if err != nil {
		return Deal{}, fmt.Errorf("%w: %v", signature.ErrInvalidOrExpiredToken, err)
	}
	d, err := s.Store.Get(ctx, id)
	if err != nil {
		return Deal{}, err
	}
	if err := MarkViewed(&d); err != nil {
		// Viewing an accepted or rejected quote is still fine to read,
		// it just no longer moves the lifecycle.
		return d, nil
	}
	d.UpdatedAt = s.now()
	if d, err = s.persist(ctx, d); err != nil {
		return Deal{}, err
	}
	obs.IncQuoteTransition(string(StatusViewed), "ok")
	return d, nil
}

// Sign applies the recipient's signature, accepting the quote. The transition
// is terminal; a second application fails with ErrAlreadySigned.
func (s *Service) Sign(ctx context.Context, in SignInput) (Deal, error) {
	if err := validate.Struct(in); err != nil {
		return Deal{}, fmt.Errorf("%w: %v", ErrMissingSignature, err)
	}
	claims, err := s.Tokens.Verify(in.Token)
	if err != nil {
		return Deal{}, err
	}
	id, err := uuid.Parse(claims.DealID)
	if err != nil {
		return Deal{}, fmt.Errorf("%w: %v", signature.ErrInvalidOrExpiredToken, err)
	}
	d, err := s.Store.Get(ctx, id)
	if err != nil {
		return Deal{}, err
	}
	now := s.now()
	sig := SignedBy{
		Name:              strings.TrimSpace(in.Name),
		Email:             strings.ToLower(strings.TrimSpace(in.Email)),
		Title:             strings.TrimSpace(in.Title),
		SignatureImageRef: strings.TrimSpace(in.SignatureImageRef),
	}
	if err := ApplySignature(&d, sig, now); err != nil {
		obs.IncQuoteTransition(string(StatusAccepted), "rejected")
		return Deal{}, err
	}
	d.UpdatedAt = now
	if d, err = s.persist(ctx, d); err != nil {
		return Deal{}, err
	}
	obs.IncQuoteTransition(string(StatusAccepted), "ok")
	obs.IncSignatureApplied()
	return d, nil
}

// SetStatus applies an operator-driven lifecycle move.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, target Status) (Deal, error) {
	d, err := s.Store.Get(ctx, id)
	if err != nil {
		return Deal{}, err
	}
	if err := ManualStatus(&d, target, s.now()); err != nil {
		obs.IncQuoteTransition(string(target), "rejected")
		return Deal{}, err
	}
	d.UpdatedAt = s.now()
	if d, err = s.persist(ctx, d); err != nil {
		return Deal{}, err
	}
	obs.IncQuoteTransition(string(target), "ok")
	return d, nil
}

// AttachPDFRef records a rendered document reference without touching the
// lifecycle state.
func (s *Service) AttachPDFRef(ctx context.Context, id uuid.UUID, ref string) (Deal, error) {
	d, err := s.Store.Get(ctx, id)
	if err != nil {
		return Deal{}, err
	}
	if err := AttachPDF(&d, ref); err != nil {
		return Deal{}, err
	}
	d.UpdatedAt = s.now()
	return s.persist(ctx, d)
}

// RequestPDFRender schedules an asynchronous render of the quote document.
func (s *Service) RequestPDFRender(ctx context.Context, id uuid.UUID) error {
	if s.Jobs == nil {
		return errors.New("deal: job queue not configured")
	}
	if _, err := s.Store.Get(ctx, id); err != nil {
		return err
	}
	return s.Jobs.EnqueuePDFRender(ctx, id)
}

func (s *Service) persist(ctx context.Context, d Deal) (Deal, error) {
	updated, err := s.Store.Update(ctx, d)
	if err != nil {
		return Deal{}, err
	}
	if err := s.Cache.Invalidate(ctx, d.ID); err != nil {
		s.Logger.Warn().Err(err).Str("deal_id", d.ID.String()).Msg("invalidate deal cache")
	}
	return updated, nil
}

func toLineItems(in []LineItemInput) []LineItem {
	out := make([]LineItem, 0, len(in))
	for _, li := range in {
		out = append(out, LineItem{
			Description:     strings.TrimSpace(li.Description),
			Quantity:        li.Quantity,
			UnitPrice:       li.UnitPrice,
			DiscountPercent: li.DiscountPercent,
			TaxPercent:      li.TaxPercent,
		})
	}
	return out
}
