package deal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sellaris/backend-crm/internal/pricing"
)

// PGStore persists deals in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

const dealColumns = `id, quote_number, title, company_id, contact_id, owner_id,
	line_items, discount_type, discount_value, tax_rate_percent,
	subtotal, tax_amount, total_amount, amount,
	status, signature_required, signed_by, signature_date, pdf_ref,
	currency, expiry_date, created_at, updated_at`

// Get implements Store.
func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (Deal, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1`, toPgUUID(id))
	d, err := scanDeal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deal{}, ErrDealNotFound
		}
		return Deal{}, fmt.Errorf("deal: get: %w", err)
	}
	return d, nil
}

// List implements Store.
func (s *PGStore) List(ctx context.Context, filter ListFilter) ([]Deal, int, error) {
	where := ` WHERE ($1::text IS NULL OR status = $1)
		AND ($2::uuid IS NULL OR company_id = $2)`
	var status *string
	if filter.Status != nil {
		v := string(*filter.Status)
		status = &v
	}
	company := pgtype.UUID{}
	if filter.CompanyID != nil {
		company = toPgUUID(*filter.CompanyID)
	}

	var total int
	if err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM deals`+where, status, company).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("deal: count: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT `+dealColumns+` FROM deals`+where+` ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		status, company, limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("deal: list: %w", err)
	}
	defer rows.Close()

	deals := make([]Deal, 0, limit)
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("deal: scan: %w", err)
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("deal: list rows: %w", err)
	}
	return deals, total, nil
}

// Create implements Store. A unique-index violation on quote_number maps to
// ErrQuoteNumberCollision and propagates without retrying.
func (s *PGStore) Create(ctx context.Context, d Deal) (Deal, error) {
	lineItems, signedBy, err := encodeJSONFields(d)
	if err != nil {
		return Deal{}, err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO deals (
			id, quote_number, title, company_id, contact_id, owner_id,
			line_items, discount_type, discount_value, tax_rate_percent,
			subtotal, tax_amount, total_amount, amount,
			status, signature_required, signed_by, signature_date, pdf_ref,
			currency, expiry_date, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23
		)`,
		toPgUUID(d.ID), d.QuoteNumber, d.Title, optUUID(d.CompanyID), optUUID(d.ContactID), optUUID(d.OwnerID),
		lineItems, string(d.DiscountType), d.DiscountValue, d.TaxRatePercent,
		d.Subtotal, d.TaxAmount, d.TotalAmount, d.Amount,
		string(d.Status), d.SignatureRequired, signedBy, d.SignatureDate, d.PDFRef,
		d.Currency, d.ExpiryDate, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Deal{}, ErrQuoteNumberCollision
		}
		return Deal{}, fmt.Errorf("deal: create: %w", err)
	}
	return d, nil
}

// Update implements Store. Every derived field is written in one statement so
// the financial invariant never spans a partial write.
func (s *PGStore) Update(ctx context.Context, d Deal) (Deal, error) {
	lineItems, signedBy, err := encodeJSONFields(d)
	if err != nil {
		return Deal{}, err
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE deals SET
			title = $2, company_id = $3, contact_id = $4, owner_id = $5,
			line_items = $6, discount_type = $7, discount_value = $8, tax_rate_percent = $9,
			subtotal = $10, tax_amount = $11, total_amount = $12, amount = $13,
			status = $14, signature_required = $15, signed_by = $16,
			signature_date = $17, pdf_ref = $18, currency = $19, expiry_date = $20,
			updated_at = $21
		WHERE id = $1`,
		toPgUUID(d.ID), d.Title, optUUID(d.CompanyID), optUUID(d.ContactID), optUUID(d.OwnerID),
		lineItems, string(d.DiscountType), d.DiscountValue, d.TaxRatePercent,
		d.Subtotal, d.TaxAmount, d.TotalAmount, d.Amount,
		string(d.Status), d.SignatureRequired, signedBy,
		d.SignatureDate, d.PDFRef, d.Currency, d.ExpiryDate,
		d.UpdatedAt)
	if err != nil {
		return Deal{}, fmt.Errorf("deal: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Deal{}, ErrDealNotFound
	}
	return d, nil
}

// NextQuoteSeq implements Store via a Postgres sequence, giving at-most-once
// collision-free allocation under concurrency.
func (s *PGStore) NextQuoteSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.Pool.QueryRow(ctx, `SELECT nextval('quote_number_seq')`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("deal: next quote sequence: %w", err)
	}
	return seq, nil
}

func encodeJSONFields(d Deal) (lineItems []byte, signedBy []byte, err error) {
	items := d.LineItems
	if items == nil {
		items = []LineItem{}
	}
	lineItems, err = json.Marshal(items)
	if err != nil {
		return nil, nil, fmt.Errorf("deal: encode line items: %w", err)
	}
	if d.SignedBy != nil {
		signedBy, err = json.Marshal(d.SignedBy)
		if err != nil {
			return nil, nil, fmt.Errorf("deal: encode signature: %w", err)
		}
	}
	return lineItems, signedBy, nil
}

func scanDeal(row pgx.Row) (Deal, error) {
	var (
		d            Deal
		id           pgtype.UUID
		companyID    pgtype.UUID
		contactID    pgtype.UUID
		ownerID      pgtype.UUID
		lineItems    []byte
		discountType string
		status       string
		signedBy     []byte
	)
	err := row.Scan(
		&id, &d.QuoteNumber, &d.Title, &companyID, &contactID, &ownerID,
		&lineItems, &discountType, &d.DiscountValue, &d.TaxRatePercent,
		&d.Subtotal, &d.TaxAmount, &d.TotalAmount, &d.Amount,
		&status, &d.SignatureRequired, &signedBy, &d.SignatureDate, &d.PDFRef,
		&d.Currency, &d.ExpiryDate, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Deal{}, err
	}
	d.ID = uuid.UUID(id.Bytes)
	d.CompanyID = fromPgUUID(companyID)
	d.ContactID = fromPgUUID(contactID)
	d.OwnerID = fromPgUUID(ownerID)
	d.DiscountType = parseDiscountType(discountType)
	d.Status = Status(status)
	if len(lineItems) > 0 {
		if err := json.Unmarshal(lineItems, &d.LineItems); err != nil {
			return Deal{}, fmt.Errorf("decode line items: %w", err)
		}
	}
	if len(signedBy) > 0 {
		var sig SignedBy
		if err := json.Unmarshal(signedBy, &sig); err != nil {
			return Deal{}, fmt.Errorf("decode signature: %w", err)
		}
		d.SignedBy = &sig
	}
	return d, nil
}

func toPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func optUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return toPgUUID(*id)
}

func fromPgUUID(v pgtype.UUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := uuid.UUID(v.Bytes)
	return &id
}

func parseDiscountType(v string) pricing.DiscountType {
	if dt := pricing.DiscountType(v); dt.Valid() {
		return dt
	}
	return pricing.DiscountPercentage
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
