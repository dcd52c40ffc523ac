package users

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-identity/internal/tenant"
)

// MemoryRepository is an in-process Repository used by tests and local tooling.
// It follows the same tenant filtering and version rules as PGRepository.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*User
	now    func() time.Time
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rows: make(map[int64]*User),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Load fetches a user by id within the tenant.
func (m *MemoryRepository) Load(ctx context.Context, tenantID tenant.ID, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok || u.TenantID() != tenantID {
		return nil, ErrNotFound
	}
	return u.clone(), nil
}

// FindByEmail fetches a user by login handle within the tenant.
func (m *MemoryRepository) FindByEmail(ctx context.Context, tenantID tenant.ID, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = NormalizeEmail(email)
	for _, u := range m.rows {
		if u.TenantID() == tenantID && u.Email == email {
			return u.clone(), nil
		}
	}
	return nil, ErrNotFound
}

// List returns users of the tenant ordered by id.
func (m *MemoryRepository) List(ctx context.Context, tenantID tenant.ID, filter ListFilter) ([]*User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*User
	for _, u := range m.rows {
		if u.TenantID() != tenantID {
			continue
		}
		if filter.Enabled != nil && u.Enabled != *filter.Enabled {
			continue
		}
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	start := filter.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	out := make([]*User, 0, end-start)
	for _, u := range all[start:end] {
		out = append(out, u.clone())
	}
	return out, total, nil
}

// Save stores u, assigning ID on insert and enforcing Version on update.
func (m *MemoryRepository) Save(ctx context.Context, u *User) error {
	if u == nil || !u.TenantID().Valid() {
		return ErrInvalidUser
	}
	if err := u.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, other := range m.rows {
		if id != u.ID && other.TenantID() == u.TenantID() && other.Email == u.Email {
			return ErrEmailTaken
		}
	}
	now := m.now()
	if !u.Persisted() {
		m.nextID++
		u.ID = m.nextID
		u.Version = 1
		u.CreatedAt = now
		u.UpdatedAt = now
		if u.CredentialsUpdatedAt.IsZero() {
			u.CredentialsUpdatedAt = now
		}
		m.rows[u.ID] = u.clone()
		return nil
	}
	stored, ok := m.rows[u.ID]
	if !ok || stored.TenantID() != u.TenantID() {
		return ErrNotFound
	}
	if stored.Version != u.Version {
		return ErrConcurrentModification
	}
	u.Version++
	u.UpdatedAt = now
	m.rows[u.ID] = u.clone()
	return nil
}

// ExpireStaleCredentials mirrors PGRepository.ExpireStaleCredentials.
func (m *MemoryRepository) ExpireStaleCredentials(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stamp := m.now()
	var n int64
	for _, u := range m.rows {
		if u.CredentialsUpdatedAt.Before(cutoff) && u.ExpireCredentials() {
			u.Version++
			u.UpdatedAt = stamp
			n++
		}
	}
	return n, nil
}

// ExpireLapsedAccounts mirrors PGRepository.ExpireLapsedAccounts.
func (m *MemoryRepository) ExpireLapsedAccounts(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stamp := m.now()
	var n int64
	for _, u := range m.rows {
		if u.AccountExpiresAt != nil && !u.AccountExpiresAt.After(now) && u.ExpireAccount() {
			u.Version++
			u.UpdatedAt = stamp
			n++
		}
	}
	return n, nil
}

var _ Repository = (*MemoryRepository)(nil)
