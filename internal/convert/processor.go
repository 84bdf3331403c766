package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ivioje/globe-scholars/internal/shared/metrics"
	"github.com/ivioje/globe-scholars/internal/shared/storage/object"
	"github.com/ivioje/globe-scholars/internal/shared/telemetry"
	"github.com/ivioje/globe-scholars/internal/works"
)

// WorkService is the part of the works service a converter needs.
type WorkService interface {
	Get(ctx context.Context, id string) (works.Work, error)
	ReportConversion(ctx context.Context, workID string, status works.ConversionStatus, progress int, converted io.Reader) (works.Work, error)
}

// Processor converts queued DOCX works and reports progress back.
type Processor struct {
	Works WorkService
	Store object.ObjectStore
	Now   func() time.Time
}

// NewProcessor constructs a Processor.
func NewProcessor(svc WorkService, store object.ObjectStore) *Processor {
	return &Processor{Works: svc, Store: store}
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Progress checkpoints reported while a conversion runs.
const (
	progressLoaded   = 10
	progressParsed   = 50
	progressRendered = 90
)

// ProcessConversion runs one conversion job. Jobs for deleted or already
// finished works are discarded and return nil. A non-nil error means the job
// should be retried.
func (p *Processor) ProcessConversion(ctx context.Context, workID string) error {
	start := p.now()
	w, err := p.Works.Get(ctx, workID)
	if err != nil {
		return p.discardOr(workID, err)
	}
	if w.FileType != works.FileTypeDOCX {
		p.discard(workID, "not a docx work")
		return nil
	}
	if w.ConversionStatus == works.StatusCompleted || w.ConversionStatus == works.StatusFailed {
		p.discard(workID, "conversion already finished")
		return nil
	}

	job := &job{p: p, workID: workID, progress: w.ConversionProgress}
	if err := job.report(ctx, works.StatusProcessing, w.ConversionProgress); err != nil {
		return p.discardOr(workID, err)
	}

	data, err := p.readOriginal(ctx, w.OriginalKey)
	if err != nil {
		if object.IsNotExist(err) {
			return job.fail(ctx, err)
		}
		return err
	}
	if err := job.report(ctx, works.StatusProcessing, progressLoaded); err != nil {
		return p.discardOr(workID, err)
	}

	paras, err := ParseDOCX(data)
	if err != nil {
		return job.fail(ctx, err)
	}
	if err := job.report(ctx, works.StatusProcessing, progressParsed); err != nil {
		return p.discardOr(workID, err)
	}

	pdf, err := RenderPDF(w.Title, paras)
	if err != nil {
		return job.fail(ctx, err)
	}
	if err := checkRendered(pdf, paras); err != nil {
		return job.fail(ctx, err)
	}
	if err := job.report(ctx, works.StatusProcessing, progressRendered); err != nil {
		return p.discardOr(workID, err)
	}

	if _, err := p.Works.ReportConversion(ctx, workID, works.StatusCompleted, 100, bytes.NewReader(pdf)); err != nil {
		return p.discardOr(workID, err)
	}

	durationMs := float64(p.now().Sub(start).Milliseconds())
	metrics.ObserveConversionDurationMs(durationMs)
	telemetry.Info("worker.conversion.completed", map[string]any{
		"work_id":     workID,
		"duration_ms": durationMs,
		"paragraphs":  len(paras),
		"pdf_bytes":   len(pdf),
	})
	return nil
}

func (p *Processor) readOriginal(ctx context.Context, key string) ([]byte, error) {
	rc, err := p.Store.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open original: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, works.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read original: %w", err)
	}
	return data, nil
}

func (p *Processor) discardOr(workID string, err error) error {
	if errors.Is(err, works.ErrNotFound) {
		p.discard(workID, "work deleted")
		return nil
	}
	if errors.Is(err, works.ErrInvalidTransition) {
		p.discard(workID, "stale report")
		return nil
	}
	return err
}

func (p *Processor) discard(workID, reason string) {
	metrics.IncConversionJobsDiscarded()
	telemetry.Info("worker.conversion.discarded", map[string]any{
		"work_id": workID,
		"reason":  reason,
	})
}

type job struct {
	p        *Processor
	workID   string
	progress int
}

func (j *job) report(ctx context.Context, status works.ConversionStatus, progress int) error {
	if progress < j.progress {
		progress = j.progress
	}
	w, err := j.p.Works.ReportConversion(ctx, j.workID, status, progress, nil)
	if err != nil {
		return err
	}
	j.progress = w.ConversionProgress
	return nil
}

// fail records a permanent conversion failure. The job itself succeeds so
// the message is not redelivered.
func (j *job) fail(ctx context.Context, cause error) error {
	telemetry.Warn("worker.conversion.failed", map[string]any{
		"work_id":  j.workID,
		"progress": j.progress,
		"error":    cause.Error(),
	})
	if err := j.report(ctx, works.StatusFailed, j.progress); err != nil {
		return j.p.discardOr(j.workID, err)
	}
	return nil
}
