package works

import (
	"fmt"
	"time"
)

// ConversionReport is one progress update sent by the converter.
type ConversionReport struct {
	Status   ConversionStatus
	Progress int
	// ConvertedKey is the stored derived PDF; required when Status is completed.
	ConvertedKey string
	At           time.Time
}

// Transition applies a conversion report to a work and returns the resulting
// record. changed is false when the report was accepted as an idempotent repeat.
//
// Allowed moves:
//
//	pending    -> processing
//	processing -> processing (progress may not go down)
//	processing -> completed  (converted file required, progress becomes 100)
//	processing -> failed     (converted file stays absent)
//
// completed and failed are terminal.
func Transition(w Work, r ConversionReport) (Work, bool, error) {
	if r.Progress < 0 || r.Progress > 100 {
		return w, false, fmt.Errorf("progress %d out of range: %w", r.Progress, ErrInvalidTransition)
	}

	switch w.ConversionStatus {
	case StatusCompleted, StatusFailed:
		return w, false, fmt.Errorf("work is %s: %w", w.ConversionStatus, ErrInvalidTransition)
	case StatusPending:
		if r.Status != StatusProcessing {
			return w, false, fmt.Errorf("pending -> %s: %w", r.Status, ErrInvalidTransition)
		}
	case StatusProcessing:
	default:
		return w, false, fmt.Errorf("unknown status %q: %w", w.ConversionStatus, ErrInvalidTransition)
	}

	next := w
	switch r.Status {
	case StatusProcessing:
		if w.ConversionStatus == StatusProcessing {
			if r.Progress < w.ConversionProgress {
				return w, false, fmt.Errorf("progress %d below current %d: %w", r.Progress, w.ConversionProgress, ErrInvalidTransition)
			}
			if r.Progress == w.ConversionProgress {
				return w, false, nil
			}
		}
		next.ConversionStatus = StatusProcessing
		next.ConversionProgress = r.Progress
	case StatusCompleted:
		if r.ConvertedKey == "" {
			return w, false, fmt.Errorf("completed without converted file: %w", ErrInvalidTransition)
		}
		next.ConversionStatus = StatusCompleted
		next.ConversionProgress = 100
		next.ConvertedKey = r.ConvertedKey
	case StatusFailed:
		next.ConversionStatus = StatusFailed
		next.ConvertedKey = ""
		if r.Progress > next.ConversionProgress {
			next.ConversionProgress = r.Progress
		}
	default:
		return w, false, fmt.Errorf("cannot report %q: %w", r.Status, ErrInvalidTransition)
	}

	if !r.At.IsZero() {
		next.UpdatedAt = r.At
	}
	return next, true, nil
}

// ParseStatus validates a reported status string.
func ParseStatus(s string) (ConversionStatus, error) {
	switch st := ConversionStatus(s); st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown conversion status %q: %w", s, ErrInvalidInput)
	}
}
