package lead

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no lead.
	ErrNotFound = errors.New("lead not found")

	// ErrInvalidInput marks caller mistakes (bad request bodies, bad filters).
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotConfigured is returned when an optional backend (store, LLM,
	// browser) is required but was not configured.
	ErrNotConfigured = errors.New("not configured")

	// ErrForbidden is returned by fetchers when the job board answers 403.
	ErrForbidden = errors.New("forbidden by remote site")

	// ErrIngestDisabled is returned when email ingestion has no extractor.
	ErrIngestDisabled = errors.New("email ingestion is not enabled in this build")
)
