package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *memWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

type memReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *memReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		r.cancel()
		return kafka.Message{}, context.Canceled
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *memReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *memReader) Close() error { return nil }

func testOrder() *models.Order {
	pc := "1746"
	return &models.Order{
		OrderID:        "ZM-1760702400000-A1B2C3",
		PaymentStatus:  models.PaymentStatusPending,
		CheckoutStatus: models.CheckoutStatusPendingPayment,
		Items:          []models.CartItem{{ID: 1, Title: "Sillón", Quantity: 2, UnitPrice: 185000, Currency: "ARS"}},
		Delivery:       models.DeliveryDecision{Method: models.DeliveryMethodShipping, PostalCode: &pc, ShippingCost: 8000},
		Totals:         models.Totals{Subtotal: 370000, Shipping: 8000, Total: 378000},
		CustomerData:   &models.CustomerData{FullName: "Ana Pérez", Email: "ana@example.com"},
	}
}

func newTestPublisher(w *memWriter) *EventPublisher {
	ep := NewEventPublisher(&Producer{writer: w, logger: util.GetLogger()})
	ep.now = func() time.Time { return time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC) }
	return ep
}

func TestPublishOrderCreated(t *testing.T) {
	w := &memWriter{}
	ep := newTestPublisher(w)

	require.NoError(t, ep.PublishOrderCreated(context.Background(), testOrder(), "offline"))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "order-ZM-1760702400000-A1B2C3", string(w.msgs[0].Key))

	var event models.OrderCreatedEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
	assert.Equal(t, models.EventTypeOrderCreated, event.EventType)
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "offline", event.PaymentMode)
	assert.Equal(t, int64(378000), event.Totals.Total)
}

func TestPublishDeliveryDetailsReceived(t *testing.T) {
	w := &memWriter{}
	ep := newTestPublisher(w)

	require.NoError(t, ep.PublishDeliveryDetailsReceived(context.Background(), testOrder()))

	var event models.DeliveryDetailsReceivedEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
	assert.Equal(t, models.EventTypeOrderDeliveryDetailsReceived, event.EventType)
	assert.Equal(t, "Ana Pérez", event.Customer.FullName)
	assert.Equal(t, models.DeliveryMethodShipping, event.Method)
}

func TestPublishWriteError(t *testing.T) {
	w := &memWriter{err: errors.New("no brokers")}
	ep := newTestPublisher(w)

	err := ep.PublishOrderCreated(context.Background(), testOrder(), "mercadopago")
	assert.Error(t, err)
}

func TestEventHandlerRoutesByType(t *testing.T) {
	w := &memWriter{}
	ep := newTestPublisher(w)
	ctx := context.Background()
	require.NoError(t, ep.PublishOrderCreated(ctx, testOrder(), "mercadopago"))
	require.NoError(t, ep.PublishDeliveryDetailsReceived(ctx, testOrder()))

	var created, received []string
	h := NewEventHandler()
	h.OnOrderCreated(func(ctx context.Context, e *models.OrderCreatedEvent) error {
		created = append(created, e.OrderID)
		return nil
	})
	h.OnDeliveryDetailsReceived(func(ctx context.Context, e *models.DeliveryDetailsReceivedEvent) error {
		received = append(received, e.Customer.Email)
		return nil
	})

	for _, m := range w.msgs {
		require.NoError(t, h.HandleMessage(ctx, m))
	}
	assert.Equal(t, []string{"ZM-1760702400000-A1B2C3"}, created)
	assert.Equal(t, []string{"ana@example.com"}, received)

	assert.NoError(t, h.HandleMessage(ctx, kafka.Message{Value: []byte(`{"event_type":"SOMETHING_ELSE"}`)}))
	assert.Error(t, h.HandleMessage(ctx, kafka.Message{Value: []byte(`not json`)}))
}

func TestStartConsumingCommitsHandledMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &memReader{
		msgs:   []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}},
		cancel: cancel,
	}
	c := &Consumer{reader: r, topic: "orders", logger: util.GetLogger(), retryBackoff: time.Millisecond}

	err := c.StartConsuming(ctx, func(ctx context.Context, msg kafka.Message) error {
		if msg.Offset == 2 {
			return errors.New("handler failed")
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int64{1, 3}, r.committed)
}
