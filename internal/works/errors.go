package works

import "errors"

var (
	// ErrInvalidFile indicates an unsupported or oversized upload.
	ErrInvalidFile = errors.New("invalid file")

	// ErrInvalidInput indicates validation or bad input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates the work does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the caller may not act on the work.
	ErrForbidden = errors.New("forbidden")

	// ErrArtifactMissing indicates the record points at a file storage no longer has.
	ErrArtifactMissing = errors.New("artifact missing")

	// ErrInvalidTransition indicates a conversion report the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid transition")
)
