package dbclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"collector/internal/document"
	"collector/internal/domain"
)

// DefaultTimeout bounds a single query or statement.
const DefaultTimeout = 30 * time.Second

// Connector abstracts interaction with an external database.
type Connector interface {
	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Query runs a read and returns one document per row, columns in order.
	Query(ctx context.Context, query string) ([]document.Value, error)

	// Exec runs one write statement and returns the affected row count.
	Exec(ctx context.Context, stmt string) (int64, error)

	// Close releases the connection.
	Close() error
}

// NewConnector creates a Connector for the given database connection.
// The password must be provided separately (from SecretStore).
func NewConnector(conn *domain.DatabaseConnection, password string, timeout time.Duration) (Connector, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	switch conn.Driver {
	case domain.DatabaseDriverSQLite:
		return newSQLiteConnector(conn.Host, timeout)
	case domain.DatabaseDriverMySQL:
		return newSQLConnector("mysql", buildMySQLDSN(conn, password), timeout)
	case domain.DatabaseDriverPostgres:
		return newSQLConnector("postgres", buildPostgresDSN(conn, password), timeout)
	case domain.DatabaseDriverMongoDB:
		return newMongoConnector(conn, password, timeout)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conn.Driver)
	}
}

// IsDSN reports whether locator is a connection URL rather than a stored
// connection id.
func IsDSN(locator string) bool {
	return strings.Contains(locator, "://")
}

// ParseDSN turns a connection URL into a DatabaseConnection and password.
// Supported schemes: postgres, postgresql, mysql, sqlite, mongodb, mongodb+srv.
func ParseDSN(dsn string) (*domain.DatabaseConnection, string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, "", fmt.Errorf("parse dsn: %w", err)
	}

	conn := &domain.DatabaseConnection{ID: dsn, Name: u.Host}
	password, _ := u.User.Password()
	conn.Username = u.User.Username()
	conn.Host = u.Hostname()
	if p := u.Port(); p != "" {
		fmt.Sscanf(p, "%d", &conn.Port)
	}
	conn.Database = strings.TrimPrefix(u.Path, "/")
	conn.SSLMode = u.Query().Get("sslmode")

	switch u.Scheme {
	case "postgres", "postgresql":
		conn.Driver = domain.DatabaseDriverPostgres
	case "mysql":
		conn.Driver = domain.DatabaseDriverMySQL
	case "sqlite", "sqlite3", "file":
		conn.Driver = domain.DatabaseDriverSQLite
		// sqlite:///abs/path.db and sqlite://rel/path.db both name a file.
		conn.Host = u.Host + u.Path
		conn.Database = ""
	case "mongodb", "mongodb+srv":
		conn.Driver = domain.DatabaseDriverMongoDB
		conn.Host = dsn
	default:
		return nil, "", fmt.Errorf("unsupported dsn scheme: %q", u.Scheme)
	}
	return conn, password, nil
}
