package models

import "time"

// Event types
const (
	EventTypeOrderCreated                 = "ORDER_CREATED"
	EventTypeOrderDeliveryDetailsReceived = "ORDER_DELIVERY_DETAILS_RECEIVED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent is published after a draft order is persisted.
type OrderCreatedEvent struct {
	BaseEvent
	OrderID        string           `json:"order_id"`
	PaymentMode    string           `json:"payment_mode"`
	CheckoutStatus string           `json:"checkout_status"`
	Items          []CartItem       `json:"items"`
	Delivery       DeliveryDecision `json:"delivery"`
	Totals         Totals           `json:"totals"`
}

// DeliveryDetailsReceivedEvent is published after recipient data is attached to an order.
type DeliveryDetailsReceivedEvent struct {
	BaseEvent
	OrderID       string       `json:"order_id"`
	PaymentStatus string       `json:"payment_status"`
	Method        string       `json:"method"`
	Customer      CustomerData `json:"customer"`
	Totals        Totals       `json:"totals"`
}
