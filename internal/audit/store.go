package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one recorded action.
type Entry struct {
	ID           uuid.UUID  `json:"id"`
	ActorKind    string     `json:"actor_kind"`
	ActorUserID  *uuid.UUID `json:"actor_user_id,omitempty"`
	Action       string     `json:"action"`
	ResourceType string     `json:"resource_type"`
	ResourceID   *string    `json:"resource_id,omitempty"`
	Method       string     `json:"method"`
	Path         string     `json:"path"`
	Route        *string    `json:"route,omitempty"`
	Status       int        `json:"status"`
	IP           *string    `json:"ip,omitempty"`
	UserAgent    *string    `json:"user_agent,omitempty"`
	RequestID    *string    `json:"request_id,omitempty"`
	Metadata     []byte     `json:"metadata,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ListFilter narrows audit log queries.
type ListFilter struct {
	ResourceType string
	ActorUserID  *uuid.UUID
	Limit        int
	Offset       int
}

// Store persists audit entries.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
}

// PGStore is the Postgres-backed Store.
type PGStore struct {
	Pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// Insert implements Store.
func (p *PGStore) Insert(ctx context.Context, e Entry) error {
	_, err := p.Pool.Exec(ctx, `
		INSERT INTO audit_logs (id, actor_kind, actor_user_id, action, resource_type, resource_id,
			method, path, route, status, ip, user_agent, request_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		e.ID, e.ActorKind, e.ActorUserID, e.Action, e.ResourceType, e.ResourceID,
		e.Method, e.Path, e.Route, e.Status, e.IP, e.UserAgent, e.RequestID, e.Metadata, e.CreatedAt)
	return err
}

// List implements Store, newest first.
func (p *PGStore) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.Pool.Query(ctx, `
		SELECT id, actor_kind, actor_user_id, action, resource_type, resource_id,
			method, path, route, status, ip, user_agent, request_id, metadata, created_at
		FROM audit_logs
		WHERE ($1::text = '' OR resource_type = $1)
		  AND ($2::uuid IS NULL OR actor_user_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		filter.ResourceType, filter.ActorUserID, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := scanEntry(rows, &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row, e *Entry) error {
	return row.Scan(&e.ID, &e.ActorKind, &e.ActorUserID, &e.Action, &e.ResourceType, &e.ResourceID,
		&e.Method, &e.Path, &e.Route, &e.Status, &e.IP, &e.UserAgent, &e.RequestID, &e.Metadata, &e.CreatedAt)
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu      sync.Mutex
	Entries []Entry
}

// Insert implements Store.
func (m *MemStore) Insert(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, e)
	return nil
}

// List implements Store.
func (m *MemStore) List(_ context.Context, filter ListFilter) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.Entries))
	for _, e := range m.Entries {
		if filter.ResourceType != "" && e.ResourceType != filter.ResourceType {
			continue
		}
		if filter.ActorUserID != nil && (e.ActorUserID == nil || *e.ActorUserID != *filter.ActorUserID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
