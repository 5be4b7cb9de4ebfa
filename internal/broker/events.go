package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher turns order changes into domain events
type EventPublisher struct {
	producer *Producer
	now      func() time.Time
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer, now: time.Now}
}

func (ep *EventPublisher) base(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: ep.now().UTC(),
	}
}

func (ep *EventPublisher) publish(ctx context.Context, orderID, eventType string, event interface{}) error {
	err := ep.producer.PublishEvent(ctx, "order-"+orderID, event)
	result := "ok"
	if err != nil {
		result = "error"
	}
	util.EventsPublishedTotal.WithLabelValues(eventType, result).Inc()
	return err
}

// PublishOrderCreated publishes an OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, order *models.Order, paymentMode string) error {
	event := &models.OrderCreatedEvent{
		BaseEvent:      ep.base(models.EventTypeOrderCreated),
		OrderID:        order.OrderID,
		PaymentMode:    paymentMode,
		CheckoutStatus: order.CheckoutStatus,
		Items:          order.Items,
		Delivery:       order.Delivery,
		Totals:         order.Totals,
	}
	return ep.publish(ctx, order.OrderID, event.EventType, event)
}

// PublishDeliveryDetailsReceived publishes a DeliveryDetailsReceived event
func (ep *EventPublisher) PublishDeliveryDetailsReceived(ctx context.Context, order *models.Order) error {
	event := &models.DeliveryDetailsReceivedEvent{
		BaseEvent:     ep.base(models.EventTypeOrderDeliveryDetailsReceived),
		OrderID:       order.OrderID,
		PaymentStatus: order.PaymentStatus,
		Method:        order.Delivery.Method,
		Totals:        order.Totals,
	}
	if order.CustomerData != nil {
		event.Customer = *order.CustomerData
	}
	return ep.publish(ctx, order.OrderID, event.EventType, event)
}

// EventHandler routes incoming events to registered callbacks
type EventHandler struct {
	onOrderCreated            func(context.Context, *models.OrderCreatedEvent) error
	onDeliveryDetailsReceived func(context.Context, *models.DeliveryDetailsReceivedEvent) error
	logger                    *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderCreated registers a handler for OrderCreated events
func (eh *EventHandler) OnOrderCreated(handler func(context.Context, *models.OrderCreatedEvent) error) {
	eh.onOrderCreated = handler
}

// OnDeliveryDetailsReceived registers a handler for DeliveryDetailsReceived events
func (eh *EventHandler) OnDeliveryDetailsReceived(handler func(context.Context, *models.DeliveryDetailsReceivedEvent) error) {
	eh.onDeliveryDetailsReceived = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderCreated:
		if eh.onOrderCreated != nil {
			var event models.OrderCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderCreated event: %w", err)
			}
			return eh.onOrderCreated(ctx, &event)
		}

	case models.EventTypeOrderDeliveryDetailsReceived:
		if eh.onDeliveryDetailsReceived != nil {
			var event models.DeliveryDetailsReceivedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal DeliveryDetailsReceived event: %w", err)
			}
			return eh.onDeliveryDetailsReceived(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
