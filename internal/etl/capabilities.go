package etl

import (
	"context"

	"collector/internal/document"
)

// ── Capabilities ───────────────────────────────────────────
// Connectivity the core consumes. Concrete implementations live in
// etl/sources (HTTP) and dbclient (databases).

// HTTPFetcher performs one HTTP request and returns the response body.
type HTTPFetcher interface {
	FetchHTTP(ctx context.Context, method, url string, headers map[string]string, body string) (string, error)
}

// DBQuerier runs a query and returns its rows as documents.
type DBQuerier interface {
	QueryDB(ctx context.Context, locator, query string) ([]document.Value, error)
}

// DBExecutor runs statements independently. The slice holds one entry per
// statement (nil on success); the error reports a connection failure, in
// which case no statement ran.
type DBExecutor interface {
	ExecuteDB(ctx context.Context, locator string, statements []string) ([]error, error)
}
