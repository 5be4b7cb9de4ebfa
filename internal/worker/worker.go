package worker

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/broker"
	"storefront/internal/formrelay"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// LeadWorker forwards order events to the form relay so the sales team hears
// about every checkout, including the ones the payment provider never saw.
type LeadWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	relay        formrelay.Submitter
	logger       *zap.Logger
}

// NewLeadWorker creates a new lead worker
func NewLeadWorker(consumer *broker.Consumer, relay formrelay.Submitter) *LeadWorker {
	w := &LeadWorker{
		consumer: consumer,
		relay:    relay,
		logger:   util.GetLogger(),
	}

	w.eventHandler = broker.NewEventHandler()
	w.eventHandler.OnOrderCreated(w.HandleOrderCreated)
	w.eventHandler.OnDeliveryDetailsReceived(w.HandleDeliveryDetailsReceived)
	return w
}

// Start starts the worker
func (w *LeadWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting lead worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *LeadWorker) Stop() error {
	w.logger.Info("Stopping lead worker")
	return w.consumer.Close()
}

// HandleOrderCreated relays a new checkout. Offline fallback orders are
// flagged urgent: nobody has paid yet and someone must call the customer.
func (w *LeadWorker) HandleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	urgent := event.PaymentMode == "offline"
	subject := "Nuevo pedido " + event.OrderID
	if urgent {
		subject = "Pedido sin pago registrado " + event.OrderID
	}

	return w.submit(ctx, &formrelay.Submission{
		Source:  formrelay.SourceCheckout,
		Subject: subject,
		OrderID: event.OrderID,
		Urgent:  urgent,
		Message: summarize(event.Items, event.Delivery, event.Totals),
		Fields: map[string]string{
			"paymentMode":    event.PaymentMode,
			"checkoutStatus": event.CheckoutStatus,
		},
	})
}

// HandleDeliveryDetailsReceived relays the recipient data of an order.
func (w *LeadWorker) HandleDeliveryDetailsReceived(ctx context.Context, event *models.DeliveryDetailsReceivedEvent) error {
	c := event.Customer
	fields := map[string]string{
		"paymentStatus": event.PaymentStatus,
		"method":        event.Method,
		"documentId":    c.DocumentID,
	}
	if event.Method == models.DeliveryMethodShipping {
		fields["address"] = strings.TrimSpace(strings.Join([]string{c.Street, c.Number, c.Floor, c.Apartment}, " "))
		fields["city"] = c.City
		fields["province"] = c.Province
		fields["postalCode"] = c.PostalCode
	}

	return w.submit(ctx, &formrelay.Submission{
		Source:  formrelay.SourceDeliveryDetails,
		Subject: "Datos de entrega " + event.OrderID,
		Name:    c.FullName,
		Email:   c.Email,
		Phone:   c.Phone,
		OrderID: event.OrderID,
		Urgent:  event.PaymentStatus == models.PaymentStatusUnavailable,
		Message: fmt.Sprintf("Total: $%d. %s", event.Totals.Total, c.Notes),
		Fields:  fields,
	})
}

func (w *LeadWorker) submit(ctx context.Context, s *formrelay.Submission) error {
	if err := w.relay.Submit(ctx, s); err != nil {
		util.LeadsRelayedTotal.WithLabelValues(s.Source, "error").Inc()
		w.logger.Error("Failed to relay lead",
			zap.String("order_id", s.OrderID),
			zap.String("source", s.Source),
			zap.Error(err))
		return err
	}
	util.LeadsRelayedTotal.WithLabelValues(s.Source, "ok").Inc()
	return nil
}

func summarize(items []models.CartItem, d models.DeliveryDecision, totals models.Totals) string {
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "%d x %s ($%d)\n", it.Quantity, it.Title, it.UnitPrice)
	}
	fmt.Fprintf(&b, "Entrega: %s", d.ShippingLabel)
	if d.PostalCode != nil {
		fmt.Fprintf(&b, " (CP %s)", *d.PostalCode)
	}
	if d.InstallationRequested {
		b.WriteString(", con instalación")
	}
	fmt.Fprintf(&b, "\nTotal: $%d", totals.Total)
	return b.String()
}
