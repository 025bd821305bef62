package domain

import "time"

// DatabaseDriver represents the type of database engine.
type DatabaseDriver string

const (
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverMongoDB  DatabaseDriver = "mongodb"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
)

// Valid reports whether d is a supported driver.
func (d DatabaseDriver) Valid() bool {
	switch d {
	case DatabaseDriverMySQL, DatabaseDriverPostgres, DatabaseDriverMongoDB, DatabaseDriverSQLite:
		return true
	}
	return false
}

// DatabaseConnection holds the metadata for connecting to a source or
// destination database. The password is kept in the SecretStore under the
// connection id.
type DatabaseConnection struct {
	ID        string         `json:"id" yaml:"id,omitempty"`
	Name      string         `json:"name" yaml:"name"`
	Driver    DatabaseDriver `json:"driver" yaml:"driver"`
	Host      string         `json:"host" yaml:"host"`                   // hostname, file path (sqlite) or mongodb:// URI
	Port      int            `json:"port" yaml:"port,omitempty"`         // 0 for sqlite
	Database  string         `json:"database" yaml:"database,omitempty"` // db name or empty for sqlite
	Username  string         `json:"username" yaml:"username,omitempty"`
	SSLMode   string         `json:"sslMode" yaml:"sslMode,omitempty"`
	ExtraJSON string         `json:"extraJson" yaml:"extraJson,omitempty"` // driver-specific options
	CreatedAt time.Time      `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time      `json:"updatedAt" yaml:"-"`
}

// DatabaseConnectionStore manages CRUD operations for database connections.
type DatabaseConnectionStore interface {
	CreateConnection(c *DatabaseConnection) error
	GetConnection(id string) (*DatabaseConnection, error)
	ListConnections() ([]DatabaseConnection, error)
	UpdateConnection(c *DatabaseConnection) error
	DeleteConnection(id string) error
}
