package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOrder(id, preferenceID string) *models.Order {
	pc := "1746"
	return &models.Order{
		OrderID:        id,
		CreatedAt:      time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
		PreferenceID:   preferenceID,
		PaymentStatus:  models.PaymentStatusPending,
		CheckoutStatus: models.CheckoutStatusPendingPayment,
		Items: []models.CartItem{
			{ID: 1, Title: "Sillón Nórdico 3 cuerpos", Quantity: 2, UnitPrice: 185000, Currency: "ARS"},
		},
		Delivery: models.DeliveryDecision{
			Method:        models.DeliveryMethodShipping,
			PostalCode:    &pc,
			ShippingLabel: "Zona Oeste",
			ShippingCost:  8000,
		},
		Totals: models.Totals{Subtotal: 370000, Shipping: 8000, Total: 378000},
	}
}

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "orders.json")
	return NewFileStore(path), path
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	s, path := newTestFileStore(t)
	ctx := context.Background()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	o, err := s.FindByID(ctx, "ZM-1718000000123-A1B2C3")
	assert.NoError(t, err)
	assert.Nil(t, o)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreRoundTrip(t *testing.T) {
	s, path := newTestFileStore(t)
	ctx := context.Background()
	order := sampleOrder("ZM-1718000000123-A1B2C3", "pref-1")

	require.NoError(t, s.Create(ctx, order))

	got, err := s.FindByID(ctx, order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, order.Items, got.Items)
	assert.Equal(t, order.Delivery, got.Delivery)
	assert.Equal(t, order.Totals, got.Totals)
	assert.Equal(t, order.CreatedAt, got.UpdatedAt)

	byPref, err := s.FindByPreferenceID(ctx, "pref-1")
	require.NoError(t, err)
	require.NotNil(t, byPref)
	assert.Equal(t, order.OrderID, byPref.OrderID)

	var raw map[string][]map[string]interface{}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw["orders"], 1)
	assert.Equal(t, "2026-10-17T12:00:00Z", raw["orders"][0]["createdAt"])
}

func TestFileStoreRejectsDuplicateID(t *testing.T) {
	s, _ := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, sampleOrder("ZM-1718000000123-A1B2C3", "a")))
	err := s.Create(ctx, sampleOrder("ZM-1718000000123-A1B2C3", "b"))

	assert.True(t, errors.Is(err, ErrDuplicateOrderID))
	n, _ := s.Count(ctx)
	assert.Equal(t, 1, n)
}

func TestFileStoreUpdate(t *testing.T) {
	s, _ := newTestFileStore(t)
	ctx := context.Background()
	order := sampleOrder("ZM-1718000000123-A1B2C3", "pref-1")
	require.NoError(t, s.Create(ctx, order))

	later := time.Date(2026, 10, 17, 13, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return later }

	updated, err := s.Update(ctx, order.OrderID, func(o *models.Order) error {
		o.CheckoutStatus = models.CheckoutStatusDeliveryDataReceived
		o.CustomerData = &models.CustomerData{FullName: "Ana Pérez"}
		o.OrderID = "ZM-0000000000000-FFFFFF"
		o.Totals.Total = 1
		o.Items = nil
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, updated)

	assert.Equal(t, order.OrderID, updated.OrderID)
	assert.Equal(t, order.Totals, updated.Totals)
	assert.Equal(t, order.Items, updated.Items)
	assert.Equal(t, later, updated.UpdatedAt)
	assert.Equal(t, order.CreatedAt, updated.CreatedAt)

	got, err := s.FindByID(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.CheckoutStatusDeliveryDataReceived, got.CheckoutStatus)
	assert.Equal(t, "Ana Pérez", got.CustomerData.FullName)
}

func TestFileStoreUpdateUnknownAndAborted(t *testing.T) {
	s, _ := newTestFileStore(t)
	ctx := context.Background()
	order := sampleOrder("ZM-1718000000123-A1B2C3", "pref-1")
	require.NoError(t, s.Create(ctx, order))

	got, err := s.Update(ctx, "ZM-1718000000123-000000", func(o *models.Order) error { return nil })
	assert.NoError(t, err)
	assert.Nil(t, got)

	abort := errors.New("rejected")
	_, err = s.Update(ctx, order.OrderID, func(o *models.Order) error {
		o.PaymentStatus = models.PaymentStatusApproved
		return abort
	})
	assert.ErrorIs(t, err, abort)

	stored, _ := s.FindByID(ctx, order.OrderID)
	assert.Equal(t, models.PaymentStatusPending, stored.PaymentStatus)
}

func TestFileStoreReturnsCopies(t *testing.T) {
	s, _ := newTestFileStore(t)
	ctx := context.Background()
	order := sampleOrder("ZM-1718000000123-A1B2C3", "pref-1")
	require.NoError(t, s.Create(ctx, order))

	order.Items[0].UnitPrice = 1

	got, _ := s.FindByID(ctx, order.OrderID)
	assert.Equal(t, int64(185000), got.Items[0].UnitPrice)
}

func TestFileStoreConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	s, _ := newTestFileStore(t)
	ctx := context.Background()
	order := sampleOrder("ZM-1718000000123-A1B2C3", "pref-1")
	require.NoError(t, s.Create(ctx, order))

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, order.OrderID, func(o *models.Order) error {
				if o.PaymentMeta == nil {
					o.PaymentMeta = &models.PaymentMeta{}
				}
				o.PaymentMeta.PaymentID += "x"
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.FindByID(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Len(t, got.PaymentMeta.PaymentID, writers)
}

func TestFileStoreCorruptFileIsAnError(t *testing.T) {
	s, path := newTestFileStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := s.FindByID(context.Background(), "ZM-1718000000123-A1B2C3")
	assert.Error(t, err)
}
