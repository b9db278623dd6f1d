// Package company manages the organizations deals are sold to.
package company

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

// Company is an organization in the CRM.
type Company struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain,omitempty"`
	Industry  string    `json:"industry,omitempty"`
	Website   string    `json:"website,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	City      string    `json:"city,omitempty"`
	Country   string    `json:"country,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input captures the payload for creating or updating a company.
type Input struct {
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Industry string `json:"industry"`
	Website  string `json:"website"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Country  string `json:"country"`
	Notes    string `json:"notes"`
}

// Service performs company CRUD against Postgres.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs a company service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

const companyColumns = `id, name, domain, industry, website, phone, address, city, country, notes, created_at, updated_at`

// List returns companies ordered by name, optionally filtered by a search
// term matched against name and domain.
func (s *Service) List(ctx context.Context, search string, limit, offset int) ([]Company, int, error) {
	if limit <= 0 {
		limit = 20
	}
	term := strings.TrimSpace(search)
	pattern := "%" + term + "%"

	var total int
	if err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM companies
		WHERE $1 = '' OR name ILIKE $2 OR domain ILIKE $2`, term, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+companyColumns+` FROM companies
		WHERE $1 = '' OR name ILIKE $2 OR domain ILIKE $2
		ORDER BY name ASC
		LIMIT $3 OFFSET $4`, term, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	companies := make([]Company, 0, limit)
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, 0, err
		}
		companies = append(companies, c)
	}
	return companies, total, rows.Err()
}

// Get returns one company by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Company, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id)
	c, err := scanCompany(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Company{}, common.NotFound("company not found", err)
	}
	return c, err
}

// Create inserts a new company.
func (s *Service) Create(ctx context.Context, in Input) (Company, error) {
	if strings.TrimSpace(in.Name) == "" {
		return Company{}, common.BadRequest("name is required", nil)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO companies (id, name, domain, industry, website, phone, address, city, country, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+companyColumns,
		uuid.New(), strings.TrimSpace(in.Name), strings.TrimSpace(in.Domain), strings.TrimSpace(in.Industry),
		strings.TrimSpace(in.Website), strings.TrimSpace(in.Phone), strings.TrimSpace(in.Address),
		strings.TrimSpace(in.City), strings.TrimSpace(in.Country), strings.TrimSpace(in.Notes))
	return scanCompany(row)
}

// Update replaces the mutable fields of a company.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (Company, error) {
	if strings.TrimSpace(in.Name) == "" {
		return Company{}, common.BadRequest("name is required", nil)
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE companies SET
			name = $2, domain = $3, industry = $4, website = $5, phone = $6,
			address = $7, city = $8, country = $9, notes = $10, updated_at = now()
		WHERE id = $1
		RETURNING `+companyColumns,
		id, strings.TrimSpace(in.Name), strings.TrimSpace(in.Domain), strings.TrimSpace(in.Industry),
		strings.TrimSpace(in.Website), strings.TrimSpace(in.Phone), strings.TrimSpace(in.Address),
		strings.TrimSpace(in.City), strings.TrimSpace(in.Country), strings.TrimSpace(in.Notes))
	c, err := scanCompany(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Company{}, common.NotFound("company not found", err)
	}
	return c, err
}

// Delete removes a company. Deals keep their denormalized company reference.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.NotFound("company not found", nil)
	}
	return nil
}

func scanCompany(row pgx.Row) (Company, error) {
	var c Company
	err := row.Scan(&c.ID, &c.Name, &c.Domain, &c.Industry, &c.Website, &c.Phone,
		&c.Address, &c.City, &c.Country, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
