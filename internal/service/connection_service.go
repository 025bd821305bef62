package service

import (
	"context"
	"fmt"

	"collector/internal/dbclient"
	"collector/internal/document"
	"collector/internal/domain"
	"collector/internal/secret"
)

// ─────────────────────────────────────────────────────────────
// Connection Service — stored database connections
// ─────────────────────────────────────────────────────────────

// ConnectionInput is the service-layer DTO for creating/updating connections.
type ConnectionInput struct {
	Name      string `json:"name" yaml:"name"`
	Driver    string `json:"driver" yaml:"driver"`
	Host      string `json:"host" yaml:"host"`
	Port      int    `json:"port" yaml:"port"`
	Database  string `json:"database" yaml:"database"`
	Username  string `json:"username" yaml:"username"`
	Password  string `json:"password" yaml:"password"`
	SSLMode   string `json:"sslMode" yaml:"sslMode"`
	ExtraJSON string `json:"extraJson" yaml:"extraJson"`
}

// ConnectionService manages stored database connections. Passwords go to
// the SecretStore under dbclient.SecretKey(id).
type ConnectionService struct {
	store    domain.DatabaseConnectionStore
	secrets  secret.SecretStore
	provider *dbclient.Provider
}

// NewConnectionService creates a ConnectionService.
func NewConnectionService(store domain.DatabaseConnectionStore, secrets secret.SecretStore, provider *dbclient.Provider) *ConnectionService {
	return &ConnectionService{store: store, secrets: secrets, provider: provider}
}

func (s *ConnectionService) ListConnections() ([]domain.DatabaseConnection, error) {
	return s.store.ListConnections()
}

func (s *ConnectionService) GetConnection(id string) (*domain.DatabaseConnection, error) {
	return s.store.GetConnection(id)
}

func (s *ConnectionService) CreateConnection(input ConnectionInput) (*domain.DatabaseConnection, error) {
	conn := &domain.DatabaseConnection{}
	input.apply(conn)
	if conn.Name == "" {
		return nil, fmt.Errorf("connection name is required")
	}
	if err := s.store.CreateConnection(conn); err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}
	if err := s.setPassword(conn.ID, input.Password); err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *ConnectionService) UpdateConnection(id string, input ConnectionInput) error {
	conn, err := s.store.GetConnection(id)
	if err != nil {
		return err
	}
	input.apply(conn)
	if err := s.store.UpdateConnection(conn); err != nil {
		return err
	}
	return s.setPassword(conn.ID, input.Password)
}

func (s *ConnectionService) DeleteConnection(id string) error {
	conn, err := s.store.GetConnection(id)
	if err != nil {
		return err
	}
	if s.secrets != nil {
		_ = s.secrets.Delete(dbclient.SecretKey(conn.ID))
	}
	return s.store.DeleteConnection(conn.ID)
}

// TestConnection pings a stored connection or a DSN.
func (s *ConnectionService) TestConnection(ctx context.Context, locator string) error {
	return s.provider.TestConnection(ctx, locator)
}

// Query runs an ad hoc read against a stored connection or a DSN.
func (s *ConnectionService) Query(ctx context.Context, locator, query string) ([]document.Value, error) {
	return s.provider.QueryDB(ctx, locator, query)
}

func (s *ConnectionService) setPassword(id, password string) error {
	if password == "" || s.secrets == nil {
		return nil
	}
	if err := s.secrets.Set(dbclient.SecretKey(id), []byte(password)); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	return nil
}

func (in ConnectionInput) apply(c *domain.DatabaseConnection) {
	c.Name = in.Name
	c.Driver = domain.DatabaseDriver(in.Driver)
	c.Host = in.Host
	c.Port = in.Port
	c.Database = in.Database
	c.Username = in.Username
	c.SSLMode = in.SSLMode
	c.ExtraJSON = in.ExtraJSON
}
