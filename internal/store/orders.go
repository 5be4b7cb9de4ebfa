package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// Create inserts a new order
func (s *PostgresStore) Create(ctx context.Context, order *models.Order) error {
	stamp(order, s.now())

	doc, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode order: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orders (order_id, preference_id, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		order.OrderID, order.PreferenceID, doc, order.CreatedAt, order.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateOrderID, order.OrderID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg string) (*models.Order, error) {
	var doc []byte
	err := s.db.GetContext(ctx, &doc, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var order models.Order
	if err := json.Unmarshal(doc, &order); err != nil {
		return nil, fmt.Errorf("failed to decode order: %w", err)
	}
	return &order, nil
}

// FindByID retrieves an order by id
func (s *PostgresStore) FindByID(ctx context.Context, orderID string) (*models.Order, error) {
	return s.findOne(ctx, "SELECT document FROM orders WHERE order_id = $1", orderID)
}

// FindByPreferenceID retrieves the most recent order for a payment preference
func (s *PostgresStore) FindByPreferenceID(ctx context.Context, preferenceID string) (*models.Order, error) {
	return s.findOne(ctx,
		"SELECT document FROM orders WHERE preference_id = $1 ORDER BY created_at DESC LIMIT 1",
		preferenceID)
}

// Update applies mutate to the order under a row lock.
func (s *PostgresStore) Update(ctx context.Context, orderID string, mutate Mutator) (*models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var doc []byte
	err = tx.GetContext(ctx, &doc, "SELECT document FROM orders WHERE order_id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	var current models.Order
	if err := json.Unmarshal(doc, &current); err != nil {
		return nil, fmt.Errorf("failed to decode order: %w", err)
	}

	updated, err := applyMutation(&current, mutate, s.now())
	if err != nil {
		return nil, err
	}

	doc, err = json.Marshal(updated)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET preference_id = $1, document = $2, updated_at = $3 WHERE order_id = $4",
		updated.PreferenceID, doc, updated.UpdatedAt, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

// Count returns the number of stored orders
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM orders")
	return n, err
}
