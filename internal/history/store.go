// Package history records batch estimates in ClickHouse for later
// analytics. The sink is optional; the service runs without it.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carlosmorenolosa/corsam-pricing/pkg/api"
)

// Config contains ClickHouse connection details.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
}

// Store writes one row per processed batch.
type Store struct {
	conn clickhouse.Conn
}

// NewStore connects to ClickHouse and ensures the audit table exists.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("history: connecting to ClickHouse: %w", err)
	}
	s := &Store{conn: conn}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	err := s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS estimate_batches (
			id              UUID,
			created_at      DateTime,
			item_count      UInt32,
			total_original  Decimal(18, 2),
			total_optimized Decimal(18, 2),
			total_savings   Decimal(18, 2),
			total_hours     Decimal(18, 2),
			total_profit    Decimal(18, 2),
			elapsed_sec     Float64
		)
		ENGINE = MergeTree()
		ORDER BY created_at`)
	if err != nil {
		return fmt.Errorf("history: creating schema: %w", err)
	}
	return nil
}

// Record stores the roll-up of one processed batch.
func (s *Store) Record(ctx context.Context, id uuid.UUID, result api.BatchResult) error {
	err := s.conn.Exec(ctx, `
		INSERT INTO estimate_batches (
			id, created_at, item_count, total_original, total_optimized,
			total_savings, total_hours, total_profit, elapsed_sec
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		time.Now().UTC(),
		uint32(len(result.Items)),
		decimal.NewFromFloat(result.TotalOriginal),
		decimal.NewFromFloat(result.TotalOptimized),
		decimal.NewFromFloat(result.TotalSavings),
		decimal.NewFromFloat(result.TotalHours),
		decimal.NewFromFloat(result.TotalProfit),
		result.ElapsedSec,
	)
	if err != nil {
		return fmt.Errorf("history: inserting batch row: %w", err)
	}
	return nil
}

// Ping checks connectivity, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
