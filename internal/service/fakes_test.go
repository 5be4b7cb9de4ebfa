package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"storefront/internal/catalog"
	"storefront/internal/delivery"
	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/store"
)

type fakeCreator struct {
	mu       sync.Mutex
	calls    int
	requests []*payment.PreferenceRequest
	respond  func(call int) (*payment.Preference, error)
}

func (f *fakeCreator) CreatePreference(ctx context.Context, req *payment.PreferenceRequest) (*payment.Preference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.requests = append(f.requests, req)
	if f.respond == nil {
		return &payment.Preference{ID: "pref-123", InitPoint: "https://mp.example/init/pref-123"}, nil
	}
	return f.respond(f.calls)
}

type recordingPublisher struct {
	mu       sync.Mutex
	created  []string
	received []string
	err      error
}

func (p *recordingPublisher) PublishOrderCreated(ctx context.Context, order *models.Order, mode string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, order.OrderID+":"+mode)
	return p.err
}

func (p *recordingPublisher) PublishDeliveryDetailsReceived(ctx context.Context, order *models.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.received = append(p.received, order.OrderID)
	return p.err
}

type checkoutFixture struct {
	svc       *CheckoutService
	orders    *store.FileStore
	creator   *fakeCreator
	publisher *recordingPublisher
}

func newCheckoutFixture(t *testing.T, fallback bool) *checkoutFixture {
	t.Helper()
	orders := store.NewFileStore(filepath.Join(t.TempDir(), "orders.json"))
	creator := &fakeCreator{}
	publisher := &recordingPublisher{}

	svc := NewCheckoutService(
		catalog.Default(),
		delivery.NewEngine(),
		delivery.NewStaticSource(delivery.DefaultConfig()),
		orders,
		creator,
		publisher,
		CheckoutOptions{
			PublicBaseURL:       "https://zm.example/",
			DeliveryDetailsPath: "/datos-entrega",
			FailurePath:         "/carrito",
			Policy: payment.Policy{
				MaxAttempts:     3,
				BaseDelay:       time.Millisecond,
				FallbackEnabled: fallback,
				Sleep:           func(context.Context, time.Duration) error { return nil },
			},
		},
	)
	svc.now = func() time.Time { return time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC) }

	return &checkoutFixture{svc: svc, orders: orders, creator: creator, publisher: publisher}
}
