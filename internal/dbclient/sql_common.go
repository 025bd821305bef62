package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"collector/internal/document"
)

// sqlConnector is the shared implementation for MySQL, Postgres, and SQLite.
type sqlConnector struct {
	driverName string
	db         *sql.DB
	timeout    time.Duration
}

// newSQLConnector creates a generic SQL connector.
func newSQLConnector(driverName, dsn string, timeout time.Duration) (*sqlConnector, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	// Connectors are short-lived: one per query or flush.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(10 * time.Minute)

	return &sqlConnector{driverName: driverName, db: db, timeout: timeout}, nil
}

func (c *sqlConnector) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.db.PingContext(ctx)
}

func (c *sqlConnector) Query(ctx context.Context, query string) ([]document.Value, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	out := []document.Value{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for j := range values {
			ptrs[j] = &values[j]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rec := document.ObjectValue()
		for j, col := range cols {
			rec.Set(col, document.FromAny(values[j]))
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return out, nil
}

func (c *sqlConnector) Exec(ctx context.Context, stmt string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.db.ExecContext(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

func (c *sqlConnector) Close() error {
	return c.db.Close()
}
