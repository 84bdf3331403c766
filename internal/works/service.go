package works

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ivioje/globe-scholars/internal/queue"
	"github.com/ivioje/globe-scholars/internal/shared/metrics"
	"github.com/ivioje/globe-scholars/internal/shared/pdfdoc"
	"github.com/ivioje/globe-scholars/internal/shared/storage/object"
	"github.com/ivioje/globe-scholars/internal/shared/telemetry"
)

// Service contains business logic for works, reactions and the conversion lifecycle.
type Service struct {
	Repo     Repo
	Store    object.ObjectStore
	JobQueue queue.Client
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Create validates an upload, stores the original artifact and records the work.
// DOCX uploads are queued for conversion.
func (s *Service) Create(ctx context.Context, in CreateInput) (Work, error) {
	fileType, ok := FileTypeForContentType(in.DeclaredContentType)
	if !ok {
		return Work{}, fmt.Errorf("only PDF and DOCX files are allowed: %w", ErrInvalidFile)
	}
	if in.Size > MaxFileSize {
		return Work{}, fmt.Errorf("file size cannot exceed 20 MB: %w", ErrInvalidFile)
	}
	if in.Body == nil {
		return Work{}, fmt.Errorf("file is required: %w", ErrInvalidFile)
	}
	fileName := strings.TrimSpace(in.FileName)
	if fileName == "" || len(fileName) > maxFilenameLen {
		return Work{}, fmt.Errorf("file name must be 1-%d characters: %w", maxFilenameLen, ErrInvalidFile)
	}
	if strings.TrimSpace(in.UploaderID) == "" {
		return Work{}, fmt.Errorf("uploader is required: %w", ErrInvalidInput)
	}
	if err := validateMetadata(in, s.now()); err != nil {
		return Work{}, err
	}

	body := io.LimitReader(in.Body, MaxFileSize+1)
	key, size, sniffed, err := s.Store.Save(ctx, in.UploaderID, fileName, body)
	if err != nil {
		return Work{}, fmt.Errorf("store original: %w", err)
	}
	if size > MaxFileSize {
		s.removeArtifact(ctx, key)
		return Work{}, fmt.Errorf("file size cannot exceed 20 MB: %w", ErrInvalidFile)
	}
	if sniffed != "" && !strings.HasPrefix(sniffed, fileType.ContentType()) {
		telemetry.Debug("works.content_type_mismatch", map[string]any{
			"declared": fileType.ContentType(),
			"sniffed":  sniffed,
			"file":     fileName,
		})
	}

	status, progress := fileType.InitialStatus()
	now := s.now()
	w := Work{
		ID:                 uuid.NewString(),
		Title:              strings.TrimSpace(in.Title),
		Authors:            strings.TrimSpace(in.Authors),
		PublicationYear:    in.PublicationYear,
		Description:        strings.TrimSpace(in.Description),
		Keywords:           strings.TrimSpace(in.Keywords),
		OriginalKey:        key,
		OriginalFilename:   fileName,
		FileSize:           size,
		FileType:           fileType,
		ConversionStatus:   status,
		ConversionProgress: progress,
		UploaderID:         in.UploaderID,
		UploadedAt:         now,
		UpdatedAt:          now,
	}

	if err := s.Repo.Create(ctx, w); err != nil {
		s.removeArtifact(ctx, key)
		return Work{}, err
	}
	metrics.IncWorksUploaded()
	telemetry.Info("works.created", map[string]any{
		"work_id":           w.ID,
		"user_id":           w.UploaderID,
		"file_type":         string(w.FileType),
		"size_bytes":        w.FileSize,
		"conversion_status": string(w.ConversionStatus),
	})

	if w.FileType == FileTypeDOCX {
		s.enqueueConversion(ctx, w)
	}
	return w, nil
}

func validateMetadata(in CreateInput, now time.Time) error {
	title := strings.TrimSpace(in.Title)
	authors := strings.TrimSpace(in.Authors)
	switch {
	case title == "":
		return fmt.Errorf("title is required: %w", ErrInvalidInput)
	case len(title) > maxTitleLen:
		return fmt.Errorf("title must be at most %d characters: %w", maxTitleLen, ErrInvalidInput)
	case authors == "":
		return fmt.Errorf("authors is required: %w", ErrInvalidInput)
	case len(authors) > maxAuthorsLen:
		return fmt.Errorf("authors must be at most %d characters: %w", maxAuthorsLen, ErrInvalidInput)
	case len(strings.TrimSpace(in.Keywords)) > maxKeywordsLen:
		return fmt.Errorf("keywords must be at most %d characters: %w", maxKeywordsLen, ErrInvalidInput)
	}
	maxYear := now.Year() + 1
	if in.PublicationYear < minYear || in.PublicationYear > maxYear {
		return fmt.Errorf("publication year must be between %d and %d: %w", minYear, maxYear, ErrInvalidInput)
	}
	return nil
}

func (s *Service) enqueueConversion(ctx context.Context, w Work) {
	if s.JobQueue == nil {
		telemetry.Warn("works.conversion_queue_missing", map[string]any{"work_id": w.ID})
		return
	}
	msg := queue.NewMessage(w.ID, requestIDFromContext(ctx), s.now())
	if err := s.JobQueue.Send(ctx, msg); err != nil {
		metrics.IncConversionEnqueueFailed()
		telemetry.Error("works.conversion_enqueue_failed", map[string]any{
			"work_id":    w.ID,
			"request_id": msg.RequestID,
			"error":      err.Error(),
		})
		return
	}
	metrics.IncConversionJobsEnqueued()
	telemetry.Info("works.conversion_enqueued", map[string]any{
		"work_id":    w.ID,
		"request_id": msg.RequestID,
	})
}

// Get returns a work by ID.
func (s *Service) Get(ctx context.Context, id string) (Work, error) {
	id, err := parseWorkID(id)
	if err != nil {
		return Work{}, err
	}
	return s.Repo.Get(ctx, id)
}

// parseWorkID canonicalizes a work identifier. Anything that is not a UUID
// cannot name a work and reports ErrNotFound.
func parseWorkID(id string) (string, error) {
	u, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", ErrNotFound
	}
	return u.String(), nil
}

// List returns works matching q.
func (s *Service) List(ctx context.Context, q ListQuery) ([]Work, error) {
	if q.FileType != "" && q.FileType != FileTypePDF && q.FileType != FileTypeDOCX {
		return nil, fmt.Errorf("file_type must be pdf or docx: %w", ErrInvalidInput)
	}
	return s.Repo.List(ctx, q)
}

// Delete removes a work owned by requesterID together with both artifacts.
//
// Artifacts are moved to trash keys inside the repo transaction. If anything
// fails before commit they are moved back and the record stays. After commit the
// trash copies are purged; purge failures are logged and never undo the delete.
func (s *Service) Delete(ctx context.Context, id, requesterID string) error {
	if strings.TrimSpace(requesterID) == "" {
		return ErrForbidden
	}
	id, err := parseWorkID(id)
	if err != nil {
		return err
	}

	type staged struct{ from, to string }
	var moved []staged

	stage := func(w Work) error {
		for _, key := range []string{w.OriginalKey, w.ConvertedKey} {
			if key == "" {
				continue
			}
			trash := TrashKey(w.ID, key)
			if err := s.Store.Rename(ctx, key, trash); err != nil {
				if object.IsNotExist(err) {
					telemetry.Warn("works.artifact_missing", map[string]any{
						"work_id": w.ID,
						"key":     key,
						"op":      "delete",
					})
					continue
				}
				return fmt.Errorf("stage artifact %s: %w", key, err)
			}
			moved = append(moved, staged{from: key, to: trash})
		}
		return nil
	}

	w, err := s.Repo.Delete(ctx, id, requesterID, stage)
	if err != nil {
		restoreCtx := context.WithoutCancel(ctx)
		for i := len(moved) - 1; i >= 0; i-- {
			if rerr := s.Store.Rename(restoreCtx, moved[i].to, moved[i].from); rerr != nil {
				telemetry.Error("works.delete_restore_failed", map[string]any{
					"work_id": id,
					"key":     moved[i].from,
					"error":   rerr.Error(),
				})
			}
		}
		return err
	}

	purgeCtx := context.WithoutCancel(ctx)
	for _, m := range moved {
		if err := s.Store.Delete(purgeCtx, m.to); err != nil {
			telemetry.Error("works.delete_purge_failed", map[string]any{
				"work_id": w.ID,
				"key":     m.to,
				"error":   err.Error(),
			})
		}
	}
	metrics.IncWorksDeleted()
	telemetry.Info("works.deleted", map[string]any{
		"work_id": w.ID,
		"user_id": requesterID,
	})
	return nil
}

// ToggleReaction flips accountID's reaction on the work.
func (s *Service) ToggleReaction(ctx context.Context, id, accountID string) (ReactionResult, error) {
	if strings.TrimSpace(accountID) == "" {
		return ReactionResult{}, fmt.Errorf("account is required: %w", ErrInvalidInput)
	}
	id, err := parseWorkID(id)
	if err != nil {
		return ReactionResult{}, err
	}
	res, err := s.Repo.ToggleReaction(ctx, id, accountID, s.now())
	if err != nil {
		return ReactionResult{}, err
	}
	metrics.IncReactionsToggled()
	return res, nil
}

// ReactionState returns reaction counts and viewerID's flag for each work.
func (s *Service) ReactionState(ctx context.Context, ids []string, viewerID string) (map[string]ReactionInfo, error) {
	return s.Repo.ReactionState(ctx, ids, viewerID)
}

// UploaderStats aggregates an account's uploads and the reactions they received.
func (s *Service) UploaderStats(ctx context.Context, accountID string) (UploaderStats, error) {
	return s.Repo.UploaderStats(ctx, accountID)
}

// ReportConversion applies a converter report. For a completed report the
// derived PDF is validated and stored before the transition is applied and is
// removed again if the transition is rejected.
func (s *Service) ReportConversion(ctx context.Context, workID string, status ConversionStatus, progress int, converted io.Reader) (Work, error) {
	workID, err := parseWorkID(workID)
	if err != nil {
		return Work{}, err
	}
	report := ConversionReport{Status: status, Progress: progress, At: s.now()}

	var storedKey string
	if status == StatusCompleted {
		if converted == nil {
			return Work{}, fmt.Errorf("completed without converted file: %w", ErrInvalidTransition)
		}
		data, err := io.ReadAll(io.LimitReader(converted, MaxFileSize*4+1))
		if err != nil {
			return Work{}, fmt.Errorf("read converted file: %w", err)
		}
		if _, err := pdfdoc.Validate(data); err != nil {
			return Work{}, fmt.Errorf("converted file: %v: %w", err, ErrInvalidInput)
		}
		cur, err := s.Repo.Get(ctx, workID)
		if err != nil {
			return Work{}, err
		}
		check := report
		check.ConvertedKey = "pending-upload"
		if _, _, err := Transition(cur, check); err != nil {
			s.logRejected(workID, cur.ConversionStatus, status, progress, err)
			return cur, err
		}
		storedKey = ConvertedKey(workID, uuid.NewString())
		if _, err := s.Store.SaveWithKey(ctx, storedKey, ContentTypePDF, bytes.NewReader(data)); err != nil {
			return Work{}, fmt.Errorf("store converted file: %w", err)
		}
		report.ConvertedKey = storedKey
	}

	var from ConversionStatus
	w, err := s.Repo.Apply(ctx, workID, func(cur Work) (Work, bool, error) {
		from = cur.ConversionStatus
		return Transition(cur, report)
	})
	if err != nil {
		if storedKey != "" {
			s.removeArtifact(context.WithoutCancel(ctx), storedKey)
		}
		s.logRejected(workID, from, status, progress, err)
		return w, err
	}

	if from != w.ConversionStatus {
		switch w.ConversionStatus {
		case StatusProcessing:
			metrics.IncConversionStarted()
		case StatusCompleted:
			metrics.IncConversionCompleted()
		case StatusFailed:
			metrics.IncConversionFailed()
		}
		telemetry.Info("works.conversion_transition", map[string]any{
			"work_id":           workID,
			"status_transition": string(from) + "->" + string(w.ConversionStatus),
			"progress":          w.ConversionProgress,
		})
	}
	return w, nil
}

// Servable is the artifact chosen for download.
type Servable struct {
	Body        io.ReadCloser
	Filename    string
	ContentType string
	Converted   bool
}

// ResolveServable picks the converted PDF when one is recorded and the original otherwise.
func (s *Service) ResolveServable(ctx context.Context, workID string) (Servable, Work, error) {
	w, err := s.Get(ctx, workID)
	if err != nil {
		return Servable{}, Work{}, err
	}

	out := Servable{
		Filename:    w.OriginalFilename,
		ContentType: w.FileType.ContentType(),
	}
	key := w.OriginalKey
	if w.FileType == FileTypeDOCX && w.HasConverted() {
		key = w.ConvertedKey
		out.Filename = pdfFilename(w.OriginalFilename)
		out.ContentType = ContentTypePDF
		out.Converted = true
	}

	body, err := s.Store.Open(ctx, key)
	if err != nil {
		if object.IsNotExist(err) {
			metrics.IncArtifactsMissing()
			telemetry.Warn("works.artifact_missing", map[string]any{
				"work_id":   w.ID,
				"key":       key,
				"converted": out.Converted,
				"op":        "download",
			})
			return Servable{}, w, fmt.Errorf("%s: %w", key, ErrArtifactMissing)
		}
		return Servable{}, w, err
	}
	out.Body = body
	return out, w, nil
}

func (s *Service) logRejected(workID string, from, to ConversionStatus, progress int, err error) {
	if !errors.Is(err, ErrInvalidTransition) {
		return
	}
	metrics.IncConversionRejected()
	telemetry.Warn("works.conversion_rejected", map[string]any{
		"work_id":  workID,
		"from":     string(from),
		"to":       string(to),
		"progress": progress,
		"error":    err.Error(),
	})
}

func (s *Service) removeArtifact(ctx context.Context, key string) {
	if err := s.Store.Delete(ctx, key); err != nil {
		telemetry.Error("works.artifact_cleanup_failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
	}
}
