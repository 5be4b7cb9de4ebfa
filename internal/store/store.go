package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrDuplicateOrderID is returned when an order id is already present.
var ErrDuplicateOrderID = errors.New("order id already exists")

// Mutator edits an order in place during Update. Returning an error aborts the
// update and leaves the stored order untouched.
type Mutator func(order *models.Order) error

// OrderRepository persists draft orders. Lookups return (nil, nil) when the
// order does not exist.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, orderID string) (*models.Order, error)
	FindByPreferenceID(ctx context.Context, preferenceID string) (*models.Order, error)
	Update(ctx context.Context, orderID string, mutate Mutator) (*models.Order, error)
	Count(ctx context.Context) (int, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS orders (
	order_id      TEXT PRIMARY KEY,
	preference_id TEXT NOT NULL,
	document      JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_preference_id_idx ON orders (preference_id);`

// PostgresStore keeps each order as a JSONB document keyed by order id.
type PostgresStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresStore connects to Postgres and ensures the orders table exists.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewPostgresStoreFromDB(db)
	if err := s.EnsureSchema(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromDB wraps an existing connection.
func NewPostgresStoreFromDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// EnsureSchema creates the orders table if needed.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create orders schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
