package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"gexflow/internal/bias"
	"gexflow/internal/flow"
	"gexflow/internal/market"
)

// Config represents Postgres connection settings
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxOpen  int
	MaxIdle  int
	Timeout  time.Duration
}

// Store persists burst events and bias verdicts for later review. The
// analytics core itself has no persistence requirement; the service
// runs fine with a nil *Store.
type Store struct {
	db *sql.DB
}

// New opens a Postgres connection and runs pending migrations
func New(cfg *Config) (*Store, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpen > 0 {
		db.SetMaxOpenConns(cfg.MaxOpen)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// InsertBursts writes a batch of burst events in one transaction
func (s *Store) InsertBursts(ctx context.Context, bursts []flow.Burst) error {
	if s == nil || len(bursts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flow_bursts (
			id, underlying, strike, option_type, side, notional_usd, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range bursts {
		if _, err := stmt.ExecContext(ctx,
			b.ID, b.Underlying, b.Strike, string(b.Type), string(b.Side), b.NotionalUSD, b.Timestamp,
		); err != nil {
			return fmt.Errorf("failed to insert burst %s: %w", b.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InsertVerdict records one bias verdict
func (s *Store) InsertVerdict(ctx context.Context, v *bias.Verdict) error {
	if s == nil || v == nil {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bias_verdicts (
			underlying, bias, confidence, regime, gamma_flip, imbalance, atm_imbalance, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		v.Underlying, string(v.Bias), v.Confidence, string(v.Regime.Type),
		v.Regime.GammaFlip, v.Flow.Imbalance, v.Flow.ATMImbalance, v.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert verdict: %w", err)
	}
	return nil
}

// RecentBursts returns the most recent burst events for an underlying
func (s *Store) RecentBursts(ctx context.Context, underlying string, limit int) ([]flow.Burst, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, underlying, strike, option_type, side, notional_usd, created_at
		FROM flow_bursts
		WHERE underlying = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, underlying, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bursts: %w", err)
	}
	defer rows.Close()

	var bursts []flow.Burst
	for rows.Next() {
		var b flow.Burst
		var typ, side string
		if err := rows.Scan(&b.ID, &b.Underlying, &b.Strike, &typ, &side, &b.NotionalUSD, &b.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan burst: %w", err)
		}
		b.Type = market.OptionType(typ)
		b.Side = flow.Side(side)
		bursts = append(bursts, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bursts: %w", err)
	}
	return bursts, nil
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
