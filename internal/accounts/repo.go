package accounts

import (
	"context"
	"time"
)

// Repo defines persistence operations for accounts and revoked refresh tokens.
type Repo interface {
	Create(ctx context.Context, a Account) error
	GetByID(ctx context.Context, id string) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetMany(ctx context.Context, ids []string) (map[string]Account, error)
	Update(ctx context.Context, a Account) error
	ListScholars(ctx context.Context, q ListQuery) ([]Account, error)
	// RevokeToken blacklists jti and returns ErrTokenRevoked when it
	// already was, so exactly one caller wins a concurrent revocation.
	RevokeToken(ctx context.Context, jti, accountID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

var orderColumns = map[string]string{
	"username":   "username",
	"created_at": "created_at",
}

func parseOrdering(raw string) (string, bool) {
	desc := false
	field := raw
	if len(field) > 0 && field[0] == '-' {
		desc = true
		field = field[1:]
	}
	if _, ok := orderColumns[field]; !ok {
		return "created_at", true
	}
	return field, desc
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
