package dbclient

import (
	"time"

	_ "modernc.org/sqlite"
)

// newSQLiteConnector opens a SQLite file in WAL mode with a busy timeout.
func newSQLiteConnector(path string, timeout time.Duration) (*sqlConnector, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	return newSQLConnector("sqlite", dsn, timeout)
}
