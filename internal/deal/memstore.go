package deal

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store used by tests and local development. It is
// safe for concurrent use.
type MemStore struct {
	mu       sync.Mutex
	deals    map[uuid.UUID]Deal
	quoteSeq int64
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{deals: map[uuid.UUID]Deal{}}
}

// Get implements Store.
func (m *MemStore) Get(_ context.Context, id uuid.UUID) (Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deals[id]
	if !ok {
		return Deal{}, ErrDealNotFound
	}
	return cloneDeal(d), nil
}

// List implements Store.
func (m *MemStore) List(_ context.Context, filter ListFilter) ([]Deal, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := make([]Deal, 0, len(m.deals))
	for _, d := range m.deals {
		if filter.Status != nil && d.Status != *filter.Status {
			continue
		}
		if filter.CompanyID != nil && (d.CompanyID == nil || *d.CompanyID != *filter.CompanyID) {
			continue
		}
		matched = append(matched, cloneDeal(d))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)

	offset := filter.Offset
	if offset > total {
		offset = total
	}
	end := total
	if filter.Limit > 0 && offset+filter.Limit < end {
		end = offset + filter.Limit
	}
	return matched[offset:end], total, nil
}

// Create implements Store.
func (m *MemStore) Create(_ context.Context, d Deal) (Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.deals {
		if existing.QuoteNumber != "" && existing.QuoteNumber == d.QuoteNumber {
			return Deal{}, ErrQuoteNumberCollision
		}
	}
	m.deals[d.ID] = cloneDeal(d)
	return cloneDeal(d), nil
}

// Update implements Store. The whole record is replaced in one step, matching
// the atomic full-field write contract.
func (m *MemStore) Update(_ context.Context, d Deal) (Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deals[d.ID]; !ok {
		return Deal{}, ErrDealNotFound
	}
	m.deals[d.ID] = cloneDeal(d)
	return cloneDeal(d), nil
}

// NextQuoteSeq implements Store with an atomic in-process counter.
func (m *MemStore) NextQuoteSeq(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quoteSeq++
	return m.quoteSeq, nil
}

func cloneDeal(d Deal) Deal {
	out := d
	out.LineItems = append([]LineItem(nil), d.LineItems...)
	if d.SignedBy != nil {
		sig := *d.SignedBy
		out.SignedBy = &sig
	}
	if d.SignatureDate != nil {
		ts := *d.SignatureDate
		out.SignatureDate = &ts
	}
	if d.PDFRef != nil {
		ref := *d.PDFRef
		out.PDFRef = &ref
	}
	if d.ExpiryDate != nil {
		ts := *d.ExpiryDate
		out.ExpiryDate = &ts
	}
	if d.CompanyID != nil {
		id := *d.CompanyID
		out.CompanyID = &id
	}
	if d.ContactID != nil {
		id := *d.ContactID
		out.ContactID = &id
	}
	if d.OwnerID != nil {
		id := *d.OwnerID
		out.OwnerID = &id
	}
	return out
}
