package dbclient

import (
	"encoding/json"
	"net"
	"net/url"
	"strconv"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"collector/internal/domain"
)

// ── Connection strings ─────────────────────────────────────

// extraParams decodes a connection's ExtraJSON into driver parameters.
// Malformed or empty extras yield nil.
func extraParams(conn *domain.DatabaseConnection) map[string]string {
	if conn.ExtraJSON == "" || conn.ExtraJSON == "{}" {
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(conn.ExtraJSON), &raw); err != nil {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			out[k] = t
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(t)
		}
	}
	return out
}

func portOr(conn *domain.DatabaseConnection, def int) string {
	if conn.Port == 0 {
		return strconv.Itoa(def)
	}
	return strconv.Itoa(conn.Port)
}

func buildMySQLDSN(conn *domain.DatabaseConnection, password string) string {
	cfg := mysql.NewConfig()
	cfg.User = conn.Username
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(conn.Host, portOr(conn, 3306))
	cfg.DBName = conn.Database
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	if conn.SSLMode == "require" {
		cfg.TLSConfig = "true"
	}
	for k, v := range extraParams(conn) {
		cfg.Params[k] = v
	}
	return cfg.FormatDSN()
}

// buildPostgresDSN renders a postgres:// URL; sslmode defaults to disable.
func buildPostgresDSN(conn *domain.DatabaseConnection, password string) string {
	q := url.Values{}
	for k, v := range extraParams(conn) {
		q.Set(k, v)
	}
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q.Set("sslmode", sslMode)

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(conn.Host, portOr(conn, 5432)),
		Path:     "/" + conn.Database,
		RawQuery: q.Encode(),
	}
	switch {
	case conn.Username != "" && password != "":
		u.User = url.UserPassword(conn.Username, password)
	case conn.Username != "":
		u.User = url.User(conn.Username)
	}
	return u.String()
}
