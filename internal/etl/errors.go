package etl

import (
	"errors"

	"collector/internal/document"
)

// ── Errors ─────────────────────────────────────────────────
// Adapters wrap these with fmt.Errorf("...: %w") so the collector can decide
// what to retry with errors.Is.

var (
	// ErrConnectivity marks an unreachable endpoint or database. Retried.
	ErrConnectivity = errors.New("connectivity error")

	// ErrQuery marks a statement or query rejected by the driver.
	ErrQuery = errors.New("query error")

	// ErrDecode marks a response body that is not a document. Retried.
	ErrDecode = errors.New("decode error")

	// ErrConfiguration marks a run that can never succeed as configured.
	ErrConfiguration = errors.New("configuration error")

	// ErrRowCountMismatch is returned by Render when fan-out tokens
	// disagree on the number of rows.
	ErrRowCountMismatch = errors.New("template fan-out row count mismatch")
)

// retryable reports whether a fetch/transform failure may be attempted again.
// Strict-mode mapping misses are deterministic, so they fail fast too.
func retryable(err error) bool {
	return !errors.Is(err, ErrConfiguration) &&
		!errors.Is(err, ErrRowCountMismatch) &&
		!errors.Is(err, document.ErrPathNotFound)
}
