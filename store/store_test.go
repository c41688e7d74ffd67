package store

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func TestOpenDuckDBInMemory(t *testing.T) {
	db, err := Open(context.Background(), DriverDuckDB, "", Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var one int
	if err := db.QueryRow("SELECT 1").Scan(&one); err != nil || one != 1 {
		t.Fatalf("select 1: %d %v", one, err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), "sqlite", "x.db", Options{})
	if err == nil || !strings.Contains(err.Error(), "unsupported database driver") {
		t.Fatalf("expected unsupported driver error, got %v", err)
	}
}

func TestValidatePostgresTLS(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		dsn     string
		wantErr bool
	}{
		{name: "verify_full_allowed", dsn: "postgres://u:p@db:5432/x?sslmode=verify-full"},
		{name: "require_allowed", dsn: "postgres://u:p@db:5432/x?sslmode=require"},
		{name: "keyword_require_allowed", dsn: "host=db user=u sslmode=require"},
		{name: "prefer_denied", dsn: "postgres://u:p@db:5432/x?sslmode=prefer", wantErr: true},
		{name: "missing_sslmode_denied", dsn: "postgres://u:p@db:5432/x", wantErr: true},
		{name: "keyword_disable_denied", dsn: "host=db sslmode=disable", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validatePostgresTLS(tt.dsn)
			if tt.wantErr && err == nil {
				t.Fatalf("expected error for %q", tt.dsn)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.dsn, err)
			}
		})
	}
}

func TestOpenPostgresRejectsInsecureDSN(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), DriverPostgres, "postgres://u:p@db:5432/x?sslmode=disable", Options{RequireTLS: true})
	if err == nil || !strings.Contains(err.Error(), "insecure") {
		t.Fatalf("expected insecure transport error, got %v", err)
	}
}

func TestOpenRetryExhaustedPing(t *testing.T) {
	origRetries, origDelay, origPing, origSleep := connectRetries, retryDelay, pingTimeout, sleep
	defer func() {
		connectRetries, retryDelay, pingTimeout, sleep = origRetries, origDelay, origPing, origSleep
	}()
	connectRetries = 2
	retryDelay = 0
	pingTimeout = 50 * time.Millisecond
	slept := 0
	sleep = func(time.Duration) { slept++ }

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	_, err = Open(context.Background(), DriverPostgres, "postgres://u:p@"+addr+"/x?sslmode=disable", Options{})
	if err == nil || !strings.Contains(err.Error(), "db ping retries exhausted") {
		t.Fatalf("expected retry exhausted error, got %v", err)
	}
	if slept != 2 {
		t.Fatalf("expected a pause after each failed attempt, got %d", slept)
	}
}

func TestOpenSurfacesDriverError(t *testing.T) {
	origRetries, origOpen, origSleep := connectRetries, sqlOpen, sleep
	defer func() {
		connectRetries, sqlOpen, sleep = origRetries, origOpen, origSleep
	}()
	connectRetries = 1
	sleep = func(time.Duration) {}
	sqlOpen = func(string, string) (*sql.DB, error) { return nil, errors.New("boom") }

	_, err := Open(context.Background(), DriverDuckDB, "", Options{})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected driver error, got %v", err)
	}
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DriverDuckDB, "", Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, "CREATE TABLE items (name VARCHAR)"); err != nil {
		t.Fatal(err)
	}

	err = WithTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO items VALUES ($1)", "kept")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	failure := errors.New("abort")
	err = WithTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO items VALUES ($1)", "dropped"); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected the callback error, got %v", err)
	}

	var n int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM items").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected the rolled back row to be gone, got %d rows", n)
	}
}
