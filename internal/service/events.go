package service

import (
	"context"

	"storefront/internal/models"
)

// EventPublisher announces order lifecycle changes. Publishing is best-effort:
// callers log failures and carry on.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, order *models.Order, paymentMode string) error
	PublishDeliveryDetailsReceived(ctx context.Context, order *models.Order) error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishOrderCreated(context.Context, *models.Order, string) error { return nil }

func (NoopPublisher) PublishDeliveryDetailsReceived(context.Context, *models.Order) error { return nil }
