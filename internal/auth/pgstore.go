package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the Postgres-backed Store.
type PGStore struct {
	Pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

func (p *PGStore) CreateUser(ctx context.Context, u UserRecord) (UserRecord, error) {
	row := p.Pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email, password_hash, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id, name, email, password_hash, roles, created_at, updated_at`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Roles, u.CreatedAt)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return UserRecord{}, ErrEmailTaken
		}
		return UserRecord{}, err
	}
	return created, nil
}

func (p *PGStore) GetUserByEmail(ctx context.Context, email string) (UserRecord, error) {
	row := p.Pool.QueryRow(ctx, `
		SELECT id, name, email, password_hash, roles, created_at, updated_at
		FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, ErrNotFound
	}
	return u, err
}

func (p *PGStore) GetUserByID(ctx context.Context, id uuid.UUID) (UserRecord, error) {
	row := p.Pool.QueryRow(ctx, `
		SELECT id, name, email, password_hash, roles, created_at, updated_at
		FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, ErrNotFound
	}
	return u, err
}

func (p *PGStore) UpdateUserPassword(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := p.Pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PGStore) CreateSession(ctx context.Context, s SessionRecord) error {
	_, err := p.Pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, user_agent, ip, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.UserID, s.TokenHash, s.UserAgent, s.IP, s.ExpiresAt, s.CreatedAt)
	return err
}

func (p *PGStore) GetSessionByTokenHash(ctx context.Context, hash string) (SessionRecord, error) {
	var s SessionRecord
	err := p.Pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, user_agent, ip, expires_at, created_at
		FROM sessions WHERE token_hash = $1`, hash).
		Scan(&s.ID, &s.UserID, &s.TokenHash, &s.UserAgent, &s.IP, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SessionRecord{}, ErrNotFound
	}
	return s, err
}

func (p *PGStore) RotateSession(ctx context.Context, id uuid.UUID, newHash string, expiresAt time.Time) error {
	tag, err := p.Pool.Exec(ctx, `
		UPDATE sessions SET token_hash = $2, expires_at = $3 WHERE id = $1`, id, newHash, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PGStore) DeleteSessionByTokenHash(ctx context.Context, hash string) error {
	_, err := p.Pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, hash)
	return err
}

func (p *PGStore) DeleteSessionsByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := p.Pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

func (p *PGStore) CreateReset(ctx context.Context, r ResetRecord) error {
	_, err := p.Pool.Exec(ctx, `
		INSERT INTO password_resets (id, user_id, token, expires_at)
		VALUES ($1, $2, $3, $4)`, r.ID, r.UserID, r.Token, r.ExpiresAt)
	return err
}

func (p *PGStore) GetResetByToken(ctx context.Context, token string) (ResetRecord, error) {
	var r ResetRecord
	err := p.Pool.QueryRow(ctx, `
		SELECT id, user_id, token, expires_at, used_at
		FROM password_resets WHERE token = $1`, token).
		Scan(&r.ID, &r.UserID, &r.Token, &r.ExpiresAt, &r.UsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ResetRecord{}, ErrNotFound
	}
	return r, err
}

func (p *PGStore) MarkResetUsed(ctx context.Context, token string, usedAt time.Time) error {
	tag, err := p.Pool.Exec(ctx, `
		UPDATE password_resets SET used_at = $2 WHERE token = $1 AND used_at IS NULL`, token, usedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PGStore) DeleteResetsByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := p.Pool.Exec(ctx, `DELETE FROM password_resets WHERE user_id = $1`, userID)
	return err
}

func scanUser(row pgx.Row) (UserRecord, error) {
	var u UserRecord
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Roles, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
