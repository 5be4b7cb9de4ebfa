package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/catalog"
	"storefront/internal/delivery"
	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Payment modes reported to the client
const (
	PaymentModeMercadoPago = "mercadopago"
	PaymentModeOffline     = "offline"
)

// Cart limits
const (
	MaxCartLines   = 20
	MaxLineQty     = 10
	offlineWarning = "El servicio de pagos no está disponible en este momento. " +
		"Registramos tu pedido y te contactaremos para coordinar el pago."
)

// CheckoutOptions holds the URLs and retry policy used to build preferences.
type CheckoutOptions struct {
	PublicBaseURL       string
	DeliveryDetailsPath string
	FailurePath         string
	NotificationURL     string
	UseSandbox          bool
	Policy              payment.Policy
}

// CheckoutService creates draft orders and their payment preferences
type CheckoutService struct {
	catalog  *catalog.Catalog
	engine   *delivery.Engine
	source   delivery.Source
	orders   store.OrderRepository
	payments payment.PreferenceCreator
	events   EventPublisher
	opts     CheckoutOptions
	logger   *zap.Logger
	now      func() time.Time
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	cat *catalog.Catalog,
	engine *delivery.Engine,
	source delivery.Source,
	orders store.OrderRepository,
	payments payment.PreferenceCreator,
	events EventPublisher,
	opts CheckoutOptions,
) *CheckoutService {
	if events == nil {
		events = NoopPublisher{}
	}
	return &CheckoutService{
		catalog:  cat,
		engine:   engine,
		source:   source,
		orders:   orders,
		payments: payments,
		events:   events,
		opts:     opts,
		logger:   util.GetLogger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CheckoutItemRequest is one cart line as sent by the client. Any title or
// price the client adds is ignored.
type CheckoutItemRequest struct {
	ID       int64 `json:"id"`
	Quantity int   `json:"quantity"`
}

// CheckoutRequest represents a request to start a checkout
type CheckoutRequest struct {
	Items    []CheckoutItemRequest    `json:"items"`
	Delivery delivery.DeliveryRequest `json:"delivery"`
}

// CheckoutResult is returned to the client after a checkout is created
type CheckoutResult struct {
	ID          string        `json:"id"`
	InitPoint   string        `json:"init_point"`
	OrderID     string        `json:"order_id"`
	PaymentMode string        `json:"payment_mode"`
	Warning     string        `json:"warning,omitempty"`
	Totals      models.Totals `json:"totals"`
}

// CreateCheckout validates the cart, prices delivery, obtains a payment
// preference and persists the draft order.
func (s *CheckoutService) CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateCheckout")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	items, subtotal, err := s.validateCart(req.Items)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("invalid_cart").Inc()
		return nil, err
	}

	decision, err := s.engine.Quote(req.Delivery, s.source.Snapshot())
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("delivery").Inc()
		return nil, err
	}

	totals := models.Totals{
		Subtotal:     subtotal,
		Shipping:     decision.ShippingCost,
		Installation: decision.InstallationCost,
	}
	totals.Total = totals.Subtotal + totals.Shipping + totals.Installation

	now := s.now()
	orderID, err := models.NewOrderID(now)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order_id", orderID))

	order := &models.Order{
		OrderID:   orderID,
		CreatedAt: now,
		Items:     items,
		Delivery:  *decision,
		Totals:    totals,
	}

	prefReq := s.buildPreference(order)
	outcome := s.opts.Policy.Run(ctx, func(ctx context.Context) (*payment.Preference, error) {
		return s.payments.CreatePreference(ctx, prefReq)
	})
	span.SetAttributes(
		attribute.String("payment.state", outcome.State.String()),
		attribute.Int("payment.attempts", outcome.Attempts),
	)

	result := &CheckoutResult{OrderID: orderID, Totals: totals}

	switch outcome.State {
	case payment.StateSucceeded:
		order.PreferenceID = outcome.Preference.ID
		order.PaymentStatus = models.PaymentStatusPending
		order.CheckoutStatus = models.CheckoutStatusPendingPayment
		result.ID = outcome.Preference.ID
		result.InitPoint = s.redirectURL(outcome.Preference)
		result.PaymentMode = PaymentModeMercadoPago

	case payment.StateFallbackEngaged:
		s.logger.Warn("Payment provider unreachable, using offline fallback",
			zap.String("order_id", orderID),
			zap.Int("attempts", outcome.Attempts),
			zap.Error(outcome.Err))
		order.PreferenceID = models.OfflinePreferenceID(orderID)
		order.PaymentStatus = models.PaymentStatusUnavailable
		order.CheckoutStatus = models.CheckoutStatusOfflineFallback
		result.ID = order.PreferenceID
		result.InitPoint = s.offlineRedirectURL(orderID)
		result.PaymentMode = PaymentModeOffline
		result.Warning = offlineWarning

	default:
		status := http.StatusServiceUnavailable
		reason := "provider_unreachable"
		switch {
		case errors.Is(outcome.Err, context.Canceled):
			reason = "cancelled"
		case payment.Classify(outcome.Err) == payment.Fatal:
			status = http.StatusBadGateway
			reason = "provider_error"
		}
		var httpErr *payment.HTTPError
		if errors.As(outcome.Err, &httpErr) {
			s.logger.Error("Payment provider rejected preference",
				zap.String("order_id", orderID),
				zap.Int("status", httpErr.StatusCode),
				zap.String("body", httpErr.Body))
		} else {
			s.logger.Error("Payment preference creation failed",
				zap.String("order_id", orderID),
				zap.Int("attempts", outcome.Attempts),
				zap.Error(outcome.Err))
		}
		util.CheckoutsFailedTotal.WithLabelValues(reason).Inc()
		return nil, &apperror.ErrProviderUnavailable{Status: status, Cause: outcome.Err}
	}

	if err := s.orders.Create(ctx, order); err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}

	util.CheckoutsCreatedTotal.WithLabelValues(result.PaymentMode).Inc()
	s.logger.Info("Checkout created",
		zap.String("order_id", orderID),
		zap.String("payment_mode", result.PaymentMode),
		zap.Int64("total", totals.Total))

	if err := s.events.PublishOrderCreated(ctx, order, result.PaymentMode); err != nil {
		s.logger.Error("Failed to publish order created event",
			zap.String("order_id", orderID),
			zap.Error(err))
	}

	return result, nil
}

// validateCart prices every line from the catalog. Any bad line rejects the
// whole cart.
func (s *CheckoutService) validateCart(lines []CheckoutItemRequest) ([]models.CartItem, int64, error) {
	if len(lines) == 0 {
		return nil, 0, &apperror.ErrValidation{
			Code:    apperror.CodeValidation,
			Message: "El carrito está vacío.",
			Fields:  map[string]string{"items": "at least one item is required"},
		}
	}
	if len(lines) > MaxCartLines {
		return nil, 0, &apperror.ErrValidation{
			Code:    apperror.CodeValidation,
			Message: fmt.Sprintf("El carrito admite como máximo %d productos.", MaxCartLines),
			Fields:  map[string]string{"items": fmt.Sprintf("at most %d items", MaxCartLines)},
		}
	}

	items := make([]models.CartItem, 0, len(lines))
	var subtotal int64
	for i, line := range lines {
		field := fmt.Sprintf("items[%d]", i)

		product, ok := s.catalog.Get(line.ID)
		if line.ID <= 0 || !ok {
			return nil, 0, &apperror.ErrValidation{
				Code:    apperror.CodeValidation,
				Message: "Uno de los productos del carrito no existe.",
				Fields:  map[string]string{field + ".id": "unknown product"},
			}
		}
		if line.Quantity < 1 || line.Quantity > MaxLineQty {
			return nil, 0, &apperror.ErrValidation{
				Code:    apperror.CodeValidation,
				Message: fmt.Sprintf("La cantidad de cada producto debe estar entre 1 y %d.", MaxLineQty),
				Fields:  map[string]string{field + ".quantity": fmt.Sprintf("must be between 1 and %d", MaxLineQty)},
			}
		}

		items = append(items, models.CartItem{
			ID:        product.ID,
			Title:     product.Title,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
			Currency:  catalog.Currency,
		})
		subtotal += product.Price * int64(line.Quantity)
	}
	return items, subtotal, nil
}

func (s *CheckoutService) buildPreference(order *models.Order) *payment.PreferenceRequest {
	items := make([]payment.PreferenceItem, 0, len(order.Items)+2)
	for _, it := range order.Items {
		items = append(items, payment.PreferenceItem{
			ID:         strconv.FormatInt(it.ID, 10),
			Title:      it.Title,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			CurrencyID: it.Currency,
		})
	}
	if order.Delivery.ShippingCost > 0 {
		items = append(items, payment.PreferenceItem{
			ID:         "shipping",
			Title:      "Envío - " + order.Delivery.ShippingLabel,
			Quantity:   1,
			UnitPrice:  order.Delivery.ShippingCost,
			CurrencyID: catalog.Currency,
		})
	}
	if order.Delivery.InstallationCost > 0 {
		items = append(items, payment.PreferenceItem{
			ID:         "installation",
			Title:      "Instalación",
			Quantity:   1,
			UnitPrice:  order.Delivery.InstallationCost,
			CurrencyID: catalog.Currency,
		})
	}

	details := s.pageURL(s.opts.DeliveryDetailsPath, url.Values{"order_id": {order.OrderID}})
	return &payment.PreferenceRequest{
		Items: items,
		BackURLs: payment.BackURLs{
			Success: details,
			Pending: details,
			Failure: s.pageURL(s.opts.FailurePath, url.Values{"order_id": {order.OrderID}}),
		},
		AutoReturn:        "approved",
		ExternalReference: order.OrderID,
		NotificationURL:   s.opts.NotificationURL,
	}
}

func (s *CheckoutService) redirectURL(pref *payment.Preference) string {
	if s.opts.UseSandbox && pref.SandboxInitPoint != "" {
		return pref.SandboxInitPoint
	}
	if pref.InitPoint == "" {
		return pref.SandboxInitPoint
	}
	return pref.InitPoint
}

func (s *CheckoutService) offlineRedirectURL(orderID string) string {
	return s.pageURL(s.opts.DeliveryDetailsPath, url.Values{
		"order_id":       {orderID},
		"payment_status": {models.PaymentStatusUnavailable},
	})
}

func (s *CheckoutService) pageURL(path string, query url.Values) string {
	base := strings.TrimRight(s.opts.PublicBaseURL, "/")
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path + "?" + query.Encode()
}
