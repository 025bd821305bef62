package dbclient

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"collector/internal/document"
	"collector/internal/domain"
	"collector/internal/etl"
	"collector/internal/secret"
)

// ── Provider ───────────────────────────────────────────────
// Provider gives the collector access to databases. A locator is either a
// connection URL (postgres://, mysql://, sqlite://, mongodb://) or the id of
// a stored DatabaseConnection whose password lives in the SecretStore.
// A fresh Connector is opened per call and closed afterwards.

// SecretKey is the SecretStore key holding a stored connection's password.
func SecretKey(connID string) string { return "db:" + connID }

type Provider struct {
	conns   domain.DatabaseConnectionStore
	secrets secret.SecretStore
	timeout time.Duration
}

// NewProvider creates a Provider. conns and secrets may be nil, in which
// case only URL locators resolve.
func NewProvider(conns domain.DatabaseConnectionStore, secrets secret.SecretStore, timeout time.Duration) *Provider {
	return &Provider{conns: conns, secrets: secrets, timeout: timeout}
}

// Resolve turns a locator into a connection and its password.
func (p *Provider) Resolve(locator string) (*domain.DatabaseConnection, string, error) {
	if locator == "" {
		return nil, "", fmt.Errorf("%w: empty database locator", etl.ErrConfiguration)
	}
	if IsDSN(locator) {
		conn, password, err := ParseDSN(locator)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", etl.ErrConfiguration, err)
		}
		return conn, password, nil
	}
	if p.conns == nil {
		return nil, "", fmt.Errorf("%w: unknown connection %q", etl.ErrConfiguration, locator)
	}
	conn, err := p.conns.GetConnection(locator)
	if err != nil {
		return nil, "", fmt.Errorf("%w: connection %q: %v", etl.ErrConfiguration, locator, err)
	}
	var password string
	if p.secrets != nil {
		// A password exported by connection name (COLLECTOR_SECRET_DB_<NAME>)
		// is used when none is stored under the id.
		for _, key := range []string{SecretKey(conn.ID), SecretKey(conn.Name)} {
			pw, err := p.secrets.Get(key)
			if err != nil {
				return nil, "", fmt.Errorf("get password: %w", err)
			}
			if len(pw) > 0 {
				password = string(pw)
				break
			}
		}
	}
	return conn, password, nil
}

// open resolves the locator, connects and pings.
func (p *Provider) open(ctx context.Context, locator string) (Connector, error) {
	conn, password, err := p.Resolve(locator)
	if err != nil {
		return nil, err
	}
	c, err := NewConnector(conn, password, p.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", etl.ErrConnectivity, err)
	}
	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", etl.ErrConnectivity, conn.Driver, err)
	}
	return c, nil
}

// QueryDB implements etl.DBQuerier.
func (p *Provider) QueryDB(ctx context.Context, locator, query string) ([]document.Value, error) {
	c, err := p.open(ctx, locator)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	rows, err := c.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", etl.ErrQuery, err)
	}
	return rows, nil
}

// ExecuteDB implements etl.DBExecutor. Statements run one by one; a failing
// statement does not stop the rest.
func (p *Provider) ExecuteDB(ctx context.Context, locator string, statements []string) ([]error, error) {
	c, err := p.open(ctx, locator)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	errs := make([]error, len(statements))
	for i, stmt := range statements {
		if _, err := c.Exec(ctx, stmt); err != nil {
			errs[i] = fmt.Errorf("%w: statement %d: %v", etl.ErrQuery, i+1, err)
			slog.Debug("dbclient: statement failed", "index", i, "error", err)
		}
	}
	return errs, nil
}

// TestConnection pings a stored connection or URL.
func (p *Provider) TestConnection(ctx context.Context, locator string) error {
	c, err := p.open(ctx, locator)
	if err != nil {
		return err
	}
	return c.Close()
}
