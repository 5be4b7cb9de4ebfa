package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewPostgresStoreFromDB(sqlx.NewDb(db, "postgres"))
	s.now = func() time.Time { return time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC) }
	return s, mock
}

func TestPostgresStoreCreate(t *testing.T) {
	s, mock := newMockStore(t)
	order := sampleOrder("ZM-1718000000123-A1B2C3", "pref-1")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).
		WithArgs(order.OrderID, "pref-1", sqlmock.AnyArg(), order.CreatedAt, order.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.Create(context.Background(), order))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreCreateDuplicate(t *testing.T) {
	s, mock := newMockStore(t)
	order := sampleOrder("ZM-1718000000123-A1B2C3", "pref-1")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := s.Create(context.Background(), order)
	assert.True(t, errors.Is(err, ErrDuplicateOrderID))
}

func TestPostgresStoreFindByID(t *testing.T) {
	s, mock := newMockStore(t)
	order := sampleOrder("ZM-1718000000123-A1B2C3", "pref-1")
	doc, err := json.Marshal(order)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT document FROM orders WHERE order_id = $1")).
		WithArgs(order.OrderID).
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow(doc))

	got, err := s.FindByID(context.Background(), order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, order.Totals, got.Totals)
	assert.Equal(t, order.Items, got.Items)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT document FROM orders WHERE order_id = $1")).
		WithArgs("ZM-1718000000123-000000").
		WillReturnRows(sqlmock.NewRows([]string{"document"}))

	got, err = s.FindByID(context.Background(), "ZM-1718000000123-000000")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreFindByPreferenceID(t *testing.T) {
	s, mock := newMockStore(t)
	order := sampleOrder("ZM-1718000000123-A1B2C3", "pref-1")
	doc, _ := json.Marshal(order)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT document FROM orders WHERE preference_id = $1")).
		WithArgs("pref-1").
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow(doc))

	got, err := s.FindByPreferenceID(context.Background(), "pref-1")
	require.NoError(t, err)
	assert.Equal(t, order.OrderID, got.OrderID)
}

func TestPostgresStoreUpdate(t *testing.T) {
	s, mock := newMockStore(t)
	order := sampleOrder("ZM-1718000000123-A1B2C3", "pref-1")
	doc, _ := json.Marshal(order)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT document FROM orders WHERE order_id = $1 FOR UPDATE")).
		WithArgs(order.OrderID).
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow(doc))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET preference_id = $1, document = $2, updated_at = $3 WHERE order_id = $4")).
		WithArgs("pref-1", sqlmock.AnyArg(), s.now(), order.OrderID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := s.Update(context.Background(), order.OrderID, func(o *models.Order) error {
		o.PaymentStatus = models.PaymentStatusApproved
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusApproved, updated.PaymentStatus)
	assert.Equal(t, s.now(), updated.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdateMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("ZM-1718000000123-000000").
		WillReturnRows(sqlmock.NewRows([]string{"document"}))
	mock.ExpectRollback()

	got, err := s.Update(context.Background(), "ZM-1718000000123-000000", func(o *models.Order) error { return nil })
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreCount(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM orders")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
