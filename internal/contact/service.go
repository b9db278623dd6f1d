// Package contact manages the people attached to companies and deals.
package contact

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sellaris/backend-crm/internal/common"
)

// Contact is a person record in the CRM.
type Contact struct {
	ID        uuid.UUID  `json:"id"`
	CompanyID *uuid.UUID `json:"company_id,omitempty"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name,omitempty"`
	Email     string     `json:"email,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Title     string     `json:"title,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Input captures the payload for creating or updating a contact.
type Input struct {
	CompanyID *uuid.UUID `json:"company_id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	Title     string     `json:"title"`
	Notes     string     `json:"notes"`
}

// Service performs contact CRUD against Postgres.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs a contact service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

const contactColumns = `id, company_id, first_name, last_name, email, phone, title, notes, created_at, updated_at`

// List returns contacts, optionally restricted to one company.
func (s *Service) List(ctx context.Context, companyID *uuid.UUID, limit, offset int) ([]Contact, int, error) {
	if limit <= 0 {
		limit = 20
	}

	var total int
	if err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM contacts
		WHERE $1::uuid IS NULL OR company_id = $1`, companyID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+contactColumns+` FROM contacts
		WHERE $1::uuid IS NULL OR company_id = $1
		ORDER BY first_name ASC, last_name ASC
		LIMIT $2 OFFSET $3`, companyID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	contacts := make([]Contact, 0, limit)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, err
		}
		contacts = append(contacts, c)
	}
	return contacts, total, rows.Err()
}

// Get returns one contact by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Contact, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)
	c, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, common.NotFound("contact not found", err)
	}
	return c, err
}

// Create inserts a new contact.
func (s *Service) Create(ctx context.Context, in Input) (Contact, error) {
	if strings.TrimSpace(in.FirstName) == "" {
		return Contact{}, common.BadRequest("first_name is required", nil)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO contacts (id, company_id, first_name, last_name, email, phone, title, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+contactColumns,
		uuid.New(), in.CompanyID, strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName),
		strings.ToLower(strings.TrimSpace(in.Email)), strings.TrimSpace(in.Phone),
		strings.TrimSpace(in.Title), strings.TrimSpace(in.Notes))
	return scanContact(row)
}

// Update replaces the mutable fields of a contact.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (Contact, error) {
	if strings.TrimSpace(in.FirstName) == "" {
		return Contact{}, common.BadRequest("first_name is required", nil)
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE contacts SET
			company_id = $2, first_name = $3, last_name = $4, email = $5,
			phone = $6, title = $7, notes = $8, updated_at = now()
		WHERE id = $1
		RETURNING `+contactColumns,
		id, in.CompanyID, strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName),
		strings.ToLower(strings.TrimSpace(in.Email)), strings.TrimSpace(in.Phone),
		strings.TrimSpace(in.Title), strings.TrimSpace(in.Notes))
	c, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, common.NotFound("contact not found", err)
	}
	return c, err
}

// Delete removes a contact.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.NotFound("contact not found", nil)
	}
	return nil
}

func scanContact(row pgx.Row) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.CompanyID, &c.FirstName, &c.LastName, &c.Email,
		&c.Phone, &c.Title, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
