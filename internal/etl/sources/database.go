package sources

import (
	"context"
	"fmt"

	"collector/internal/document"
	"collector/internal/etl"
)

// ── Database Source ────────────────────────────────────────
// Runs a query against a stored connection or DSN. The raw document is
// {"rows": [...]} with one object per row, columns in select order.

// RowsField is the key holding query rows in the raw document.
const RowsField = "rows"

type databasePipeline struct {
	etl.Base
	querier etl.DBQuerier
}

// NewDatabase returns the "database" pipeline.
func NewDatabase(querier etl.DBQuerier, executor etl.DBExecutor) etl.Pipeline {
	return &databasePipeline{Base: etl.Base{Executor: executor}, querier: querier}
}

func (s *databasePipeline) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "database",
		Label: "Database Query",
		ConfigFields: []etl.ConfigField{
			{Key: "locator", Label: "Connection", Type: "string", Required: true, Help: "Stored connection id or DSN (postgres://, mysql://, sqlite://, mongodb://)"},
			{Key: "query", Label: "Query", Type: "textarea", Required: true, Help: "SQL, or a JSON command for MongoDB; may use ${page} placeholders"},
		},
	}
}

func (s *databasePipeline) Receive(ctx context.Context, src etl.SourceConfig) (document.Value, error) {
	if src.Locator == "" || src.Query == "" {
		return document.Value{}, fmt.Errorf("%w: locator and query are required", etl.ErrConfiguration)
	}
	if s.querier == nil {
		return document.Value{}, fmt.Errorf("%w: database provider not initialized", etl.ErrConfiguration)
	}

	rows, err := s.querier.QueryDB(ctx, src.Locator, src.Query)
	if err != nil {
		return document.Value{}, err
	}
	return document.ObjectValue(document.F(RowsField, document.ArrayValue(rows...))), nil
}
