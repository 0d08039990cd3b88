package psql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

// failingDriver connects, then fails Ping or Exec as configured by the DSN.
type failingDriver struct{}

type failingConn struct {
	dsn string
}

func (failingDriver) Open(dsn string) (driver.Conn, error) {
	return &failingConn{dsn: dsn}, nil
}

func (c *failingConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("not supported")
}

func (c *failingConn) Close() error { return nil }

func (c *failingConn) Begin() (driver.Tx, error) {
	return nil, errors.New("not supported")
}

func (c *failingConn) Ping(ctx context.Context) error {
	if c.dsn == "ping" {
		return errors.New("connection refused")
	}
	return nil
}

func (c *failingConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	return nil, errors.New("permission denied for schema public")
}

func init() {
	sql.Register("psql-failing", failingDriver{})
}

func TestOpen_ClosesDBOnFailure(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name          string
		dsn           string
		expectedError string
	}{
		{name: "Ping fails", dsn: "ping", expectedError: "connection refused"},
		{name: "Schema fails", dsn: "exec", expectedError: "create schema"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := sql.Open("psql-failing", tt.dsn)
			if err != nil {
				t.Fatalf("sql.Open: %v", err)
			}

			s, err := open(db, tt.dsn, log)
			if err == nil || !strings.Contains(err.Error(), tt.expectedError) {
				t.Fatalf("Expected error containing '%s', got %v", tt.expectedError, err)
			}
			if s != nil {
				t.Errorf("Expected no storage, got %+v", s)
			}

			if err := db.Ping(); err == nil || !strings.Contains(err.Error(), "database is closed") {
				t.Errorf("Expected the database to be closed, got %v", err)
			}
		})
	}
}
