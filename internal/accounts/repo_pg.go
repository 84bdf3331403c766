package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const accountColumns = `id, email, username, first_name, last_name, bio, affiliation, country, website, password_hash, is_active, is_staff, created_at, updated_at`

const uniqueViolation = "23505"

// Create inserts a new account.
func (r *PGRepo) Create(ctx context.Context, a Account) error {
	const query = `
INSERT INTO accounts (
    id,
    email,
    username,
    first_name,
    last_name,
    bio,
    affiliation,
    country,
    website,
    password_hash,
    is_active,
    is_staff,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.DB.ExecContext(ctx, query,
		a.ID,
		a.Email,
		a.Username,
		a.FirstName,
		a.LastName,
		a.Bio,
		a.Affiliation,
		a.Country,
		a.Website,
		nullableString(a.PasswordHash),
		a.IsActive,
		a.IsStaff,
		a.CreatedAt,
		a.UpdatedAt,
	)
	return mapUniqueViolation(err)
}

// GetByID returns an account by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByEmail returns an account by case-insensitive email.
func (r *PGRepo) GetByEmail(ctx context.Context, email string) (Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = lower($1)`
	return r.getOne(ctx, query, email)
}

func (r *PGRepo) getOne(ctx context.Context, query string, arg any) (Account, error) {
	a, err := scanAccount(r.DB.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// GetMany returns the accounts found among ids.
func (r *PGRepo) GetMany(ctx context.Context, ids []string) (map[string]Account, error) {
	out := make(map[string]Account, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id::text = ANY($1)`
	rows, err := r.DB.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

// Update writes the mutable profile fields.
func (r *PGRepo) Update(ctx context.Context, a Account) error {
	const query = `
UPDATE accounts
SET username = $1, first_name = $2, last_name = $3, bio = $4, affiliation = $5, country = $6, website = $7, updated_at = $8
WHERE id = $9`
	res, err := r.DB.ExecContext(ctx, query,
		a.Username,
		a.FirstName,
		a.LastName,
		a.Bio,
		a.Affiliation,
		a.Country,
		a.Website,
		a.UpdatedAt,
		a.ID,
	)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListScholars returns active non-staff accounts.
func (r *PGRepo) ListScholars(ctx context.Context, q ListQuery) ([]Account, error) {
	query, args := buildScholarQuery(q)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func buildScholarQuery(q ListQuery) (string, []any) {
	var args []any
	var b strings.Builder
	b.WriteString(`SELECT ` + accountColumns + ` FROM accounts WHERE is_active AND NOT is_staff`)
	if s := strings.TrimSpace(q.Search); s != "" {
		args = append(args, likePattern(s))
		b.WriteString(` AND (username ILIKE $1 OR first_name ILIKE $1 OR last_name ILIKE $1 OR affiliation ILIKE $1 OR country ILIKE $1)`)
	}
	field, desc := parseOrdering(q.Ordering)
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	fmt.Fprintf(&b, " ORDER BY %s %s, id %s", orderColumns[field], dir, dir)

	limit, offset := normalizePage(q.Limit, q.Offset)
	args = append(args, limit, offset)
	fmt.Fprintf(&b, " LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return b.String(), args
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// RevokeToken blacklists a refresh token ID.
func (r *PGRepo) RevokeToken(ctx context.Context, jti, accountID string, expiresAt time.Time) error {
	const query = `
INSERT INTO revoked_tokens (jti, account_id, expires_at, revoked_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (jti) DO NOTHING`
	res, err := r.DB.ExecContext(ctx, query, jti, accountID, expiresAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrTokenRevoked
	}
	return nil
}

// IsRevoked reports whether the refresh token ID was blacklisted.
func (r *PGRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)`, jti).Scan(&exists)
	return exists, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var (
		a            Account
		passwordHash sql.NullString
	)
	if err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Username,
		&a.FirstName,
		&a.LastName,
		&a.Bio,
		&a.Affiliation,
		&a.Country,
		&a.Website,
		&passwordHash,
		&a.IsActive,
		&a.IsStaff,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return Account{}, err
	}
	if passwordHash.Valid {
		a.PasswordHash = passwordHash.String
	}
	return a, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	if strings.Contains(pgErr.ConstraintName, "email") {
		return ErrEmailTaken
	}
	return ErrUsernameTaken
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

var _ Repo = (*PGRepo)(nil)
