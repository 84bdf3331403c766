package accounts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu      sync.RWMutex
	data    map[string]Account
	revoked map[string]time.Time // jti -> expiresAt
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data:    make(map[string]Account),
		revoked: make(map[string]time.Time),
	}
}

// Create stores a new account, enforcing unique email and username.
func (r *MemoryRepo) Create(ctx context.Context, a Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkUnique(a); err != nil {
		return err
	}
	r.data[a.ID] = a
	return nil
}

func (r *MemoryRepo) checkUnique(a Account) error {
	for id, existing := range r.data {
		if id == a.ID {
			continue
		}
		if strings.EqualFold(existing.Email, a.Email) {
			return ErrEmailTaken
		}
		if existing.Username == a.Username {
			return ErrUsernameTaken
		}
	}
	return nil
}

// GetByID returns an account by ID.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.data[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

// GetByEmail returns an account by case-insensitive email.
func (r *MemoryRepo) GetByEmail(ctx context.Context, email string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.data {
		if strings.EqualFold(a.Email, email) {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

// GetMany returns the accounts found among ids.
func (r *MemoryRepo) GetMany(ctx context.Context, ids []string) (map[string]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Account, len(ids))
	for _, id := range ids {
		if a, ok := r.data[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

// Update replaces an existing account.
func (r *MemoryRepo) Update(ctx context.Context, a Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[a.ID]; !ok {
		return ErrNotFound
	}
	if err := r.checkUnique(a); err != nil {
		return err
	}
	r.data[a.ID] = a
	return nil
}

// ListScholars returns active non-staff accounts.
func (r *MemoryRepo) ListScholars(ctx context.Context, q ListQuery) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit, offset := normalizePage(q.Limit, q.Offset)
	needle := strings.ToLower(strings.TrimSpace(q.Search))

	r.mu.RLock()
	out := make([]Account, 0, len(r.data))
	for _, a := range r.data {
		if !a.IsActive || a.IsStaff {
			continue
		}
		if needle != "" && !matchesSearch(a, needle) {
			continue
		}
		out = append(out, a)
	}
	r.mu.RUnlock()

	field, desc := parseOrdering(q.Ordering)
	less := func(a, b Account) bool {
		if field == "username" && a.Username != b.Username {
			return a.Username < b.Username
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	}
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})

	if offset >= len(out) {
		return []Account{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func matchesSearch(a Account, needle string) bool {
	for _, field := range []string{a.Username, a.FirstName, a.LastName, a.Affiliation, a.Country} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// RevokeToken blacklists a refresh token ID.
func (r *MemoryRepo) RevokeToken(ctx context.Context, jti, accountID string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.revoked[jti]; ok {
		return ErrTokenRevoked
	}
	r.revoked[jti] = expiresAt
	return nil
}

// IsRevoked reports whether the refresh token ID was blacklisted.
func (r *MemoryRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.revoked[jti]
	return ok, nil
}

var _ Repo = (*MemoryRepo)(nil)
