// Package data implements the observation source the factor engine
// consumes: a Postgres reader over the collected bond_data table, an
// optional Redis read-through cache, and a circuit breaker in front of
// upstream failures.
package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/jgbdesk/factorcurve/internal/curve"
)

// ErrUpstreamUnavailable marks data-layer failures (connection loss, query
// timeouts, a tripped breaker). The core propagates it unchanged and never
// retries; retry policy belongs to the caller.
var ErrUpstreamUnavailable = errors.New("upstream bond data unavailable")

// Config holds Postgres connection settings.
type Config struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`

	// MinMaturityYears drops money-market-like stubs whose pull-to-par
	// yields distort the short end of the curve.
	MinMaturityYears float64 `yaml:"min_maturity_years"`
}

// DefaultConfig returns reasonable defaults for the bond data store.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxLifetime:  30 * time.Minute,
		QueryTimeout:     30 * time.Second,
		MinMaturityYears: 0.5,
	}
}

// Store reads daily JGB yield observations from the bond_data table.
type Store struct {
	db  *sqlx.DB
	cfg Config
}

// NewStore opens a connection pool against the configured DSN and verifies
// it with a ping.
func NewStore(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.QueryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrUpstreamUnavailable, err)
	}

	return &Store{db: db, cfg: cfg}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies store connectivity for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return nil
}

type bondRow struct {
	TradeDate time.Time      `db:"trade_date"`
	DueDate   time.Time      `db:"due_date"`
	Yield     float64        `db:"ave_compound_yield"`
	BondCode  sql.NullString `db:"bond_code"`
	BondName  sql.NullString `db:"bond_name"`
}

// ObservationsForDate returns every usable observation for one trading day:
// yield and due date present, maturity at or above the configured floor.
func (s *Store) ObservationsForDate(ctx context.Context, date time.Time) ([]curve.Observation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	const query = `
		SELECT trade_date, due_date, ave_compound_yield, bond_code, bond_name
		FROM bond_data
		WHERE trade_date = $1
		  AND ave_compound_yield IS NOT NULL
		  AND due_date IS NOT NULL
		ORDER BY due_date ASC`

	var rows []bondRow
	if err := s.db.SelectContext(ctx, &rows, query, date.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("%w: observations for %s: %v", ErrUpstreamUnavailable, date.Format("2006-01-02"), err)
	}

	obs := make([]curve.Observation, 0, len(rows))
	for _, r := range rows {
		maturity := MaturityYears(r.TradeDate, r.DueDate)
		if maturity < s.cfg.MinMaturityYears {
			continue
		}
		obs = append(obs, curve.Observation{
			TradeDate:     r.TradeDate,
			BondCode:      curve.NormalizeBondCode(r.BondCode.String),
			BondName:      nameOrNA(r.BondName),
			MaturityYears: maturity,
			YieldPct:      r.Yield,
		})
	}
	return obs, nil
}

// BusinessDays returns up to lookback distinct trade dates at or before end,
// most recent first. The collected data itself defines the trading
// calendar; holiday logic never enters the core.
func (s *Store) BusinessDays(ctx context.Context, end time.Time, lookback int) ([]time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	const query = `
		SELECT DISTINCT trade_date
		FROM bond_data
		WHERE trade_date <= $1
		ORDER BY trade_date DESC
		LIMIT $2`

	var dates []time.Time
	if err := s.db.SelectContext(ctx, &dates, query, end.Format("2006-01-02"), lookback); err != nil {
		return nil, fmt.Errorf("%w: business days before %s: %v", ErrUpstreamUnavailable, end.Format("2006-01-02"), err)
	}
	return dates, nil
}

// MaturityYears computes remaining life in years on ACT/365.25, matching
// the convention the collection pipeline stores yields against.
func MaturityYears(tradeDate, dueDate time.Time) float64 {
	return dueDate.Sub(tradeDate).Hours() / 24 / 365.25
}

func nameOrNA(s sql.NullString) string {
	if !s.Valid || s.String == "" {
		return "N/A"
	}
	return s.String
}
