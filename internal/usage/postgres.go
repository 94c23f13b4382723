package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresCounter keeps the monthly counter in a single-row-per-month
// Postgres table, for deployments without AWS access.
type PostgresCounter struct {
	db *sql.DB
}

// NewPostgresCounter connects and ensures the counter table exists.
func NewPostgresCounter(dsn string) (*PostgresCounter, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres counter: missing DSN")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres counter: opening connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres counter: pinging database: %w", err)
	}
	c := &PostgresCounter{db: db}
	if err := c.ensureSchema(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *PostgresCounter) ensureSchema() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS usage_counter (
			month_year TEXT PRIMARY KEY,
			count      INTEGER NOT NULL DEFAULT 0
		)`)
	if err != nil {
		return fmt.Errorf("postgres counter: creating schema: %w", err)
	}
	return nil
}

// Count reads the current value for period, 0 when the month has no
// row yet.
func (c *PostgresCounter) Count(ctx context.Context, period string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT count FROM usage_counter WHERE month_year = $1`, period).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres counter: reading count: %w", err)
	}
	return n, nil
}

// Increment atomically adds one and returns the new value.
func (c *PostgresCounter) Increment(ctx context.Context, period string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO usage_counter (month_year, count) VALUES ($1, 1)
		ON CONFLICT (month_year)
		DO UPDATE SET count = usage_counter.count + 1
		RETURNING count`, period).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres counter: incrementing: %w", err)
	}
	return n, nil
}

// Close releases the database connection.
func (c *PostgresCounter) Close() error {
	return c.db.Close()
}
