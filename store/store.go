package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Supported database/sql driver names.
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "pgx"
)

var (
	sqlOpen          = sql.Open
	connectRetries   = 10
	retryDelay       = 2 * time.Second
	pingTimeout      = 2 * time.Second
	sleep            = time.Sleep
	postgresMaxConns = 10
)

// Options tune Open beyond the driver and DSN.
type Options struct {
	// RequireTLS rejects Postgres DSNs whose sslmode does not verify or
	// require transport security.
	RequireTLS bool
}

// Open connects to the analytical store and pings it until it answers or the
// retries run out. An empty DuckDB DSN opens an in-memory database.
func Open(ctx context.Context, driver, dsn string, opts Options) (*sql.DB, error) {
	switch driver {
	case DriverDuckDB:
	case DriverPostgres:
		if _, err := pgx.ParseConfig(dsn); err != nil {
			return nil, fmt.Errorf("invalid postgres dsn: %w", err)
		}
		if opts.RequireTLS {
			if err := validatePostgresTLS(dsn); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q (want %s or %s)", driver, DriverDuckDB, DriverPostgres)
	}

	var lastErr error
	for i := 0; i < connectRetries; i++ {
		db, err := sqlOpen(driver, dsn)
		if err != nil {
			lastErr = err
			sleep(retryDelay)
			continue
		}
		if driver == DriverPostgres {
			db.SetMaxOpenConns(postgresMaxConns)
			db.SetConnMaxIdleTime(5 * time.Minute)
		}
		ctxPing, cancel := context.WithTimeout(ctx, pingTimeout)
		err = db.PingContext(ctxPing)
		cancel()
		if err == nil {
			return db, nil
		}
		lastErr = err
		db.Close()
		if ctx.Err() != nil {
			break
		}
		sleep(retryDelay)
	}
	return nil, fmt.Errorf("db ping retries exhausted: %w", lastErr)
}

// WithTx runs fn in a transaction on a dedicated connection. The transaction
// is committed when fn returns nil and rolled back otherwise; the connection
// goes back to the pool either way.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("error acquiring connection: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

func validatePostgresTLS(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" {
		// key=value DSNs
		for _, field := range strings.Fields(rawURL) {
			if k, v, ok := strings.Cut(field, "="); ok && k == "sslmode" {
				return checkSSLMode(v)
			}
		}
		return checkSSLMode("")
	}
	return checkSSLMode(parsed.Query().Get("sslmode"))
}

func checkSSLMode(mode string) error {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "verify-full", "verify-ca", "require":
		return nil
	case "allow", "disable", "prefer":
		return fmt.Errorf("tls required but dsn sslmode=%q is insecure", mode)
	default:
		return fmt.Errorf("tls required: set sslmode=require|verify-ca|verify-full")
	}
}
