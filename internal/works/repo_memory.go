package works

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu        sync.RWMutex
	data      map[string]Work
	reactions map[string]map[string]time.Time // workID -> accountID -> createdAt
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		data:      make(map[string]Work),
		reactions: make(map[string]map[string]time.Time),
	}
}

// Create stores a new work.
func (r *MemoryRepo) Create(ctx context.Context, w Work) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[w.ID] = w
	return nil
}

// Get returns a work by ID.
func (r *MemoryRepo) Get(ctx context.Context, id string) (Work, error) {
	if err := ctx.Err(); err != nil {
		return Work{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.data[id]
	if !ok {
		return Work{}, ErrNotFound
	}
	return w, nil
}

// List filters, orders and pages works.
func (r *MemoryRepo) List(ctx context.Context, q ListQuery) ([]Work, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit, offset := normalizePage(q.Limit, q.Offset)

	r.mu.RLock()
	out := make([]Work, 0, len(r.data))
	for _, w := range r.data {
		if matches(w, q) {
			out = append(out, w)
		}
	}
	r.mu.RUnlock()

	order := parseOrdering(q.Ordering)
	sort.SliceStable(out, func(i, j int) bool {
		if order.desc {
			return lessBy(out[j], out[i], order.field)
		}
		return lessBy(out[i], out[j], order.field)
	})

	if offset >= len(out) {
		return []Work{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func matches(w Work, q ListQuery) bool {
	if q.PublicationYear != 0 && w.PublicationYear != q.PublicationYear {
		return false
	}
	if q.FileType != "" && w.FileType != q.FileType {
		return false
	}
	if a := strings.TrimSpace(q.Author); a != "" && !containsFold(w.Authors, a) {
		return false
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		if !containsFold(w.Title, s) && !containsFold(w.Authors, s) && !containsFold(w.Keywords, s) {
			return false
		}
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func lessBy(a, b Work, field string) bool {
	switch field {
	case "title":
		if a.Title != b.Title {
			return a.Title < b.Title
		}
	case "publication_year":
		if a.PublicationYear != b.PublicationYear {
			return a.PublicationYear < b.PublicationYear
		}
	}
	if !a.UploadedAt.Equal(b.UploadedAt) {
		return a.UploadedAt.Before(b.UploadedAt)
	}
	return a.ID < b.ID
}

// Delete removes a work and its reactions once stage succeeds.
func (r *MemoryRepo) Delete(ctx context.Context, id, requesterID string, stage StageFunc) (Work, error) {
	if err := ctx.Err(); err != nil {
		return Work{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.data[id]
	if !ok {
		return Work{}, ErrNotFound
	}
	if w.UploaderID != requesterID {
		return Work{}, ErrForbidden
	}
	if stage != nil {
		if err := stage(w); err != nil {
			return Work{}, err
		}
	}
	delete(r.data, id)
	delete(r.reactions, id)
	return w, nil
}

// Apply runs fn against the current record and stores the result if it changed.
func (r *MemoryRepo) Apply(ctx context.Context, id string, fn ApplyFunc) (Work, error) {
	if err := ctx.Err(); err != nil {
		return Work{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.data[id]
	if !ok {
		return Work{}, ErrNotFound
	}
	next, changed, err := fn(w)
	if err != nil {
		return w, err
	}
	if changed {
		r.data[id] = next
	}
	return next, nil
}

// ToggleReaction adds the reaction if absent and removes it otherwise.
func (r *MemoryRepo) ToggleReaction(ctx context.Context, workID, accountID string, at time.Time) (ReactionResult, error) {
	if err := ctx.Err(); err != nil {
		return ReactionResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[workID]; !ok {
		return ReactionResult{}, ErrNotFound
	}
	set := r.reactions[workID]
	if set == nil {
		set = make(map[string]time.Time)
		r.reactions[workID] = set
	}
	outcome := ReactionAdded
	if _, ok := set[accountID]; ok {
		delete(set, accountID)
		outcome = ReactionRemoved
	} else {
		set[accountID] = at
	}
	return ReactionResult{Outcome: outcome, Count: len(set)}, nil
}

// ReactionState returns counts and the viewer's reaction flag per work.
func (r *MemoryRepo) ReactionState(ctx context.Context, workIDs []string, accountID string) (map[string]ReactionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ReactionInfo, len(workIDs))
	for _, id := range workIDs {
		set := r.reactions[id]
		info := ReactionInfo{Count: len(set)}
		if accountID != "" {
			_, info.HasReacted = set[accountID]
		}
		out[id] = info
	}
	return out, nil
}

// UploaderStats counts an account's works and the reactions they received.
func (r *MemoryRepo) UploaderStats(ctx context.Context, accountID string) (UploaderStats, error) {
	if err := ctx.Err(); err != nil {
		return UploaderStats{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var stats UploaderStats
	for id, w := range r.data {
		if w.UploaderID != accountID {
			continue
		}
		stats.Uploads++
		stats.Reactions += len(r.reactions[id])
	}
	return stats, nil
}

var _ Repo = (*MemoryRepo)(nil)
