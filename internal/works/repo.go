package works

import (
	"context"
	"time"
)

// StageFunc runs inside a delete after ownership is confirmed and before the
// record is removed. Returning an error aborts the delete.
type StageFunc func(w Work) error

// ApplyFunc computes the next state of a locked record.
type ApplyFunc func(w Work) (next Work, changed bool, err error)

// Repo defines persistence operations for works and their reactions.
type Repo interface {
	Create(ctx context.Context, w Work) error
	Get(ctx context.Context, id string) (Work, error)
	List(ctx context.Context, q ListQuery) ([]Work, error)
	Delete(ctx context.Context, id, requesterID string, stage StageFunc) (Work, error)
	Apply(ctx context.Context, id string, fn ApplyFunc) (Work, error)
	ToggleReaction(ctx context.Context, workID, accountID string, at time.Time) (ReactionResult, error)
	ReactionState(ctx context.Context, workIDs []string, accountID string) (map[string]ReactionInfo, error)
	UploaderStats(ctx context.Context, accountID string) (UploaderStats, error)
}

type orderSpec struct {
	field string
	desc  bool
}

var orderColumns = map[string]string{
	"uploaded_at":      "uploaded_at",
	"title":            "title",
	"publication_year": "publication_year",
}

func parseOrdering(raw string) orderSpec {
	desc := false
	field := raw
	if len(field) > 0 && field[0] == '-' {
		desc = true
		field = field[1:]
	}
	if _, ok := orderColumns[field]; !ok {
		return orderSpec{field: "uploaded_at", desc: true}
	}
	return orderSpec{field: field, desc: desc}
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
