package works

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

const workColumns = `id, title, authors, publication_year, description, keywords, original_key, original_filename, file_size, file_type, converted_key, conversion_status, conversion_progress, uploader_id, uploaded_at, updated_at`

// Create inserts a new work.
func (r *PGRepo) Create(ctx context.Context, w Work) error {
	const query = `
INSERT INTO works (
    id,
    title,
    authors,
    publication_year,
    description,
    keywords,
    original_key,
    original_filename,
    file_size,
    file_type,
    converted_key,
    conversion_status,
    conversion_progress,
    uploader_id,
    uploaded_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.DB.ExecContext(
		ctx,
		query,
		w.ID,
		w.Title,
		w.Authors,
		w.PublicationYear,
		w.Description,
		w.Keywords,
		w.OriginalKey,
		w.OriginalFilename,
		w.FileSize,
		string(w.FileType),
		nullString(w.ConvertedKey),
		string(w.ConversionStatus),
		w.ConversionProgress,
		w.UploaderID,
		w.UploadedAt,
		w.UpdatedAt,
	)
	return err
}

// Get returns a work by ID.
func (r *PGRepo) Get(ctx context.Context, id string) (Work, error) {
	query := `SELECT ` + workColumns + ` FROM works WHERE id = $1`
	w, err := scanWork(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Work{}, ErrNotFound
		}
		return Work{}, err
	}
	return w, nil
}

// List filters, orders and pages works.
func (r *PGRepo) List(ctx context.Context, q ListQuery) ([]Work, error) {
	query, args := buildListQuery(q)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Work{}
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func buildListQuery(q ListQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.PublicationYear != 0 {
		where = append(where, "publication_year = "+arg(q.PublicationYear))
	}
	if q.FileType != "" {
		where = append(where, "file_type = "+arg(string(q.FileType)))
	}
	if a := strings.TrimSpace(q.Author); a != "" {
		where = append(where, "authors ILIKE "+arg(likePattern(a)))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		p := arg(likePattern(s))
		where = append(where, fmt.Sprintf("(title ILIKE %[1]s OR authors ILIKE %[1]s OR keywords ILIKE %[1]s)", p))
	}

	var b strings.Builder
	b.WriteString("SELECT " + workColumns + " FROM works")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	order := parseOrdering(q.Ordering)
	dir := "ASC"
	if order.desc {
		dir = "DESC"
	}
	fmt.Fprintf(&b, " ORDER BY %s %s, id %s", orderColumns[order.field], dir, dir)

	limit, offset := normalizePage(q.Limit, q.Offset)
	b.WriteString(" LIMIT " + arg(limit) + " OFFSET " + arg(offset))
	return b.String(), args
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// Delete locks the row, checks ownership, runs stage and removes the record.
// Reactions go with it through the foreign key cascade.
func (r *PGRepo) Delete(ctx context.Context, id, requesterID string, stage StageFunc) (Work, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Work{}, err
	}
	defer tx.Rollback()

	w, err := lockWork(ctx, tx, id)
	if err != nil {
		return Work{}, err
	}
	if w.UploaderID != requesterID {
		return Work{}, ErrForbidden
	}
	if stage != nil {
		if err := stage(w); err != nil {
			return Work{}, err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM works WHERE id = $1`, id); err != nil {
		return Work{}, err
	}
	if err := tx.Commit(); err != nil {
		return Work{}, err
	}
	return w, nil
}

// Apply locks the row and persists fn's result when it reports a change.
func (r *PGRepo) Apply(ctx context.Context, id string, fn ApplyFunc) (Work, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Work{}, err
	}
	defer tx.Rollback()

	w, err := lockWork(ctx, tx, id)
	if err != nil {
		return Work{}, err
	}
	next, changed, err := fn(w)
	if err != nil {
		return w, err
	}
	if !changed {
		return next, tx.Commit()
	}

	const query = `
UPDATE works
SET conversion_status = $1, conversion_progress = $2, converted_key = $3, updated_at = $4
WHERE id = $5`
	if _, err := tx.ExecContext(ctx, query,
		string(next.ConversionStatus),
		next.ConversionProgress,
		nullString(next.ConvertedKey),
		next.UpdatedAt,
		id,
	); err != nil {
		return Work{}, err
	}
	if err := tx.Commit(); err != nil {
		return Work{}, err
	}
	return next, nil
}

// ToggleReaction removes the caller's reaction if present and adds it otherwise.
// The work row lock serialises concurrent toggles on the same work.
func (r *PGRepo) ToggleReaction(ctx context.Context, workID, accountID string, at time.Time) (ReactionResult, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return ReactionResult{}, err
	}
	defer tx.Rollback()

	var lockedID string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM works WHERE id = $1 FOR UPDATE`, workID).Scan(&lockedID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ReactionResult{}, ErrNotFound
		}
		return ReactionResult{}, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM reactions WHERE work_id = $1 AND account_id = $2`, workID, accountID)
	if err != nil {
		return ReactionResult{}, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return ReactionResult{}, err
	}

	outcome := ReactionRemoved
	if removed == 0 {
		outcome = ReactionAdded
		const insert = `
INSERT INTO reactions (work_id, account_id, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (work_id, account_id) DO NOTHING`
		if _, err := tx.ExecContext(ctx, `SAVEPOINT reaction_insert`); err != nil {
			return ReactionResult{}, err
		}
		if _, err := tx.ExecContext(ctx, insert, workID, accountID, at); err != nil {
			if !isUniqueViolation(err) {
				return ReactionResult{}, err
			}
			// The reaction already exists; keep the transaction usable.
			if _, err := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT reaction_insert`); err != nil {
				return ReactionResult{}, err
			}
		}
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM reactions WHERE work_id = $1`, workID).Scan(&count); err != nil {
		return ReactionResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ReactionResult{}, err
	}
	return ReactionResult{Outcome: outcome, Count: count}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ReactionState returns counts and the viewer's reaction flag per work.
func (r *PGRepo) ReactionState(ctx context.Context, workIDs []string, accountID string) (map[string]ReactionInfo, error) {
	out := make(map[string]ReactionInfo, len(workIDs))
	if len(workIDs) == 0 {
		return out, nil
	}
	const query = `
SELECT work_id::text, COUNT(*), COALESCE(BOOL_OR(account_id::text = $2), FALSE)
FROM reactions
WHERE work_id::text = ANY($1)
GROUP BY work_id`
	rows, err := r.DB.QueryContext(ctx, query, workIDs, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for _, id := range workIDs {
		out[id] = ReactionInfo{}
	}
	for rows.Next() {
		var (
			id   string
			info ReactionInfo
		)
		if err := rows.Scan(&id, &info.Count, &info.HasReacted); err != nil {
			return nil, err
		}
		if accountID == "" {
			info.HasReacted = false
		}
		out[id] = info
	}
	return out, rows.Err()
}

// UploaderStats counts an account's works and the reactions they received.
func (r *PGRepo) UploaderStats(ctx context.Context, accountID string) (UploaderStats, error) {
	const query = `
SELECT
    (SELECT COUNT(*) FROM works WHERE uploader_id = $1),
    (SELECT COUNT(*) FROM reactions re JOIN works w ON w.id = re.work_id WHERE w.uploader_id = $1)`
	var stats UploaderStats
	if err := r.DB.QueryRowContext(ctx, query, accountID).Scan(&stats.Uploads, &stats.Reactions); err != nil {
		return UploaderStats{}, err
	}
	return stats, nil
}

func lockWork(ctx context.Context, tx *sql.Tx, id string) (Work, error) {
	query := `SELECT ` + workColumns + ` FROM works WHERE id = $1 FOR UPDATE`
	w, err := scanWork(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Work{}, ErrNotFound
		}
		return Work{}, err
	}
	return w, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWork(row rowScanner) (Work, error) {
	var (
		w            Work
		fileType     string
		status       string
		convertedKey sql.NullString
	)
	if err := row.Scan(
		&w.ID,
		&w.Title,
		&w.Authors,
		&w.PublicationYear,
		&w.Description,
		&w.Keywords,
		&w.OriginalKey,
		&w.OriginalFilename,
		&w.FileSize,
		&fileType,
		&convertedKey,
		&status,
		&w.ConversionProgress,
		&w.UploaderID,
		&w.UploadedAt,
		&w.UpdatedAt,
	); err != nil {
		return Work{}, err
	}
	w.FileType = FileType(fileType)
	w.ConversionStatus = ConversionStatus(status)
	if convertedKey.Valid {
		w.ConvertedKey = convertedKey.String
	}
	return w, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
