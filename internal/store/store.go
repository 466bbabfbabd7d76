package store

import (
	"context"
	"fmt"
	"time"

	"stock-service/internal/port"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store is the Postgres adapter behind port.Store.
type Store struct {
	db *sqlx.DB
}

// NewStore connects to Postgres and fails fast if the database is not
// reachable at startup.
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports storage availability (readiness probe).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx wraps a sqlx transaction with the ledger's row-level primitives.
type Tx struct {
	tx *sqlx.Tx
}

// WithinTx runs fn inside one transaction. FOR UPDATE reads issued through
// the Tx hold their row locks until commit or rollback, which is what
// serializes concurrent mutations of the same balance row.
func (s *Store) WithinTx(ctx context.Context, fn func(tx port.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	return tx.Commit()
}
