package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by stores when the requested record does not exist.
var ErrNotFound = errors.New("auth: record not found")

// UserRecord is the persisted shape of an account.
type UserRecord struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionRecord is a refresh-token session. TokenHash holds the SHA-256 of
// the opaque refresh token; the raw token is never stored.
type SessionRecord struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	UserAgent string
	IP        string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ResetRecord is a pending password reset.
type ResetRecord struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Store persists users, sessions and password resets.
type Store interface {
	CreateUser(ctx context.Context, u UserRecord) (UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (UserRecord, error)
	UpdateUserPassword(ctx context.Context, id uuid.UUID, hash string) error

	CreateSession(ctx context.Context, s SessionRecord) error
	GetSessionByTokenHash(ctx context.Context, hash string) (SessionRecord, error)
	RotateSession(ctx context.Context, id uuid.UUID, newHash string, expiresAt time.Time) error
	DeleteSessionByTokenHash(ctx context.Context, hash string) error
	DeleteSessionsByUser(ctx context.Context, userID uuid.UUID) error

	CreateReset(ctx context.Context, r ResetRecord) error
	GetResetByToken(ctx context.Context, token string) (ResetRecord, error)
	MarkResetUsed(ctx context.Context, token string, usedAt time.Time) error
	DeleteResetsByUser(ctx context.Context, userID uuid.UUID) error
}

// ErrEmailTaken is returned when registering with an email that already has an
// account.
var ErrEmailTaken = errors.New("auth: email already registered")

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]UserRecord
	sessions map[uuid.UUID]SessionRecord
	resets   map[uuid.UUID]ResetRecord
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		users:    map[uuid.UUID]UserRecord{},
		sessions: map[uuid.UUID]SessionRecord{},
		resets:   map[uuid.UUID]ResetRecord{},
	}
}

func (m *MemStore) CreateUser(_ context.Context, u UserRecord) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return UserRecord{}, ErrEmailTaken
		}
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *MemStore) GetUserByEmail(_ context.Context, email string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return UserRecord{}, ErrNotFound
}

func (m *MemStore) GetUserByID(_ context.Context, id uuid.UUID) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return UserRecord{}, ErrNotFound
	}
	return u, nil
}

func (m *MemStore) UpdateUserPassword(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

func (m *MemStore) CreateSession(_ context.Context, s SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemStore) GetSessionByTokenHash(_ context.Context, hash string) (SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.TokenHash == hash {
			return s, nil
		}
	}
	return SessionRecord{}, ErrNotFound
}

func (m *MemStore) RotateSession(_ context.Context, id uuid.UUID, newHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.TokenHash = newHash
	s.ExpiresAt = expiresAt
	m.sessions[id] = s
	return nil
}

func (m *MemStore) DeleteSessionByTokenHash(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.TokenHash == hash {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *MemStore) DeleteSessionsByUser(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *MemStore) CreateReset(_ context.Context, r ResetRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[r.ID] = r
	return nil
}

func (m *MemStore) GetResetByToken(_ context.Context, token string) (ResetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.resets {
		if r.Token == token {
			return r, nil
		}
	}
	return ResetRecord{}, ErrNotFound
}

func (m *MemStore) MarkResetUsed(_ context.Context, token string, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.resets {
		if r.Token == token {
			r.UsedAt = &usedAt
			m.resets[id] = r
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemStore) DeleteResetsByUser(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.resets {
		if r.UserID == userID {
			delete(m.resets, id)
		}
	}
	return nil
}
