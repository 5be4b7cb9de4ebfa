package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"testing"

	"storefront/internal/apperror"
	"storefront/internal/delivery"
	"storefront/internal/models"
	"storefront/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRefused = &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}

func shippingCart(postalCode string, installation bool) *CheckoutRequest {
	return &CheckoutRequest{
		Items: []CheckoutItemRequest{{ID: 1, Quantity: 2}},
		Delivery: delivery.DeliveryRequest{
			Method:                "shipping",
			PostalCode:            postalCode,
			InstallationRequested: installation,
		},
	}
}

func orderCount(t *testing.T, f *checkoutFixture) int {
	t.Helper()
	n, err := f.orders.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestCreateCheckoutShipping(t *testing.T) {
	f := newCheckoutFixture(t, false)
	ctx := context.Background()

	res, err := f.svc.CreateCheckout(ctx, shippingCart("1746", false))
	require.NoError(t, err)

	assert.Equal(t, models.Totals{Subtotal: 370000, Shipping: 8000, Installation: 0, Total: 378000}, res.Totals)
	assert.Equal(t, PaymentModeMercadoPago, res.PaymentMode)
	assert.Equal(t, "pref-123", res.ID)
	assert.Equal(t, "https://mp.example/init/pref-123", res.InitPoint)
	assert.Empty(t, res.Warning)
	assert.True(t, models.IsValidOrderID(res.OrderID))

	stored, err := f.orders.FindByID(ctx, res.OrderID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, res.Totals, stored.Totals)
	assert.Equal(t, "pref-123", stored.PreferenceID)
	assert.Equal(t, models.PaymentStatusPending, stored.PaymentStatus)
	assert.Equal(t, models.CheckoutStatusPendingPayment, stored.CheckoutStatus)
	assert.Equal(t, "1746", *stored.Delivery.PostalCode)
	assert.Equal(t, "Zona Oeste", stored.Delivery.ShippingLabel)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, int64(185000), stored.Items[0].UnitPrice)
	assert.Equal(t, "ARS", stored.Items[0].Currency)

	assert.Equal(t, []string{res.OrderID + ":mercadopago"}, f.publisher.created)
}

func TestCreateCheckoutPreferencePayload(t *testing.T) {
	f := newCheckoutFixture(t, false)

	res, err := f.svc.CreateCheckout(context.Background(), shippingCart("1746", true))
	require.NoError(t, err)
	assert.Equal(t, int64(25000), res.Totals.Installation)
	assert.Equal(t, int64(370000+8000+25000), res.Totals.Total)

	require.Len(t, f.creator.requests, 1)
	req := f.creator.requests[0]
	require.Len(t, req.Items, 3)
	assert.Equal(t, "1", req.Items[0].ID)
	assert.Equal(t, 2, req.Items[0].Quantity)
	assert.Equal(t, "shipping", req.Items[1].ID)
	assert.Equal(t, int64(8000), req.Items[1].UnitPrice)
	assert.Equal(t, "installation", req.Items[2].ID)
	assert.Equal(t, int64(25000), req.Items[2].UnitPrice)

	assert.Equal(t, res.OrderID, req.ExternalReference)
	assert.Equal(t, "approved", req.AutoReturn)
	assert.Equal(t, "https://zm.example/datos-entrega?order_id="+res.OrderID, req.BackURLs.Success)
	assert.Equal(t, "https://zm.example/carrito?order_id="+res.OrderID, req.BackURLs.Failure)
}

func TestCreateCheckoutPickup(t *testing.T) {
	f := newCheckoutFixture(t, false)
	ctx := context.Background()

	res, err := f.svc.CreateCheckout(ctx, &CheckoutRequest{
		Items:    []CheckoutItemRequest{{ID: 1, Quantity: 2}},
		Delivery: delivery.DeliveryRequest{Method: "pickup", PostalCode: "9999", InstallationRequested: true},
	})
	require.NoError(t, err)
	assert.Equal(t, models.Totals{Subtotal: 370000, Total: 370000}, res.Totals)

	stored, err := f.orders.FindByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Nil(t, stored.Delivery.PostalCode)
	assert.Equal(t, delivery.PickupLabel, stored.Delivery.ShippingLabel)

	require.Len(t, f.creator.requests, 1)
	assert.Len(t, f.creator.requests[0].Items, 1)
}

func TestCreateCheckoutUnsupportedPostalCode(t *testing.T) {
	f := newCheckoutFixture(t, true)

	_, err := f.svc.CreateCheckout(context.Background(), shippingCart("9999", false))

	var unsupported *apperror.ErrUnsupportedZone
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, http.StatusUnprocessableEntity, apperror.HTTPStatus(err))
	assert.Equal(t, apperror.CodeUnsupportedPostalCode, apperror.Code(err))
	assert.Equal(t, 0, orderCount(t, f))
	assert.Equal(t, 0, f.creator.calls)
}

func TestCreateCheckoutInstallationUnavailable(t *testing.T) {
	f := newCheckoutFixture(t, true)

	// Zona Norte ships but has no installation.
	_, err := f.svc.CreateCheckout(context.Background(), shippingCart("1650", true))

	assert.Equal(t, apperror.CodeInstallationUnavailable, apperror.Code(err))
	assert.Equal(t, 0, orderCount(t, f))
}

func TestCreateCheckoutRejectsInvalidCarts(t *testing.T) {
	tooMany := make([]CheckoutItemRequest, MaxCartLines+1)
	for i := range tooMany {
		tooMany[i] = CheckoutItemRequest{ID: 1, Quantity: 1}
	}

	tests := []struct {
		name  string
		items []CheckoutItemRequest
	}{
		{"empty", nil},
		{"too many lines", tooMany},
		{"unknown product", []CheckoutItemRequest{{ID: 1, Quantity: 1}, {ID: 999, Quantity: 1}}},
		{"zero id", []CheckoutItemRequest{{ID: 0, Quantity: 1}}},
		{"zero quantity", []CheckoutItemRequest{{ID: 1, Quantity: 0}}},
		{"quantity over limit", []CheckoutItemRequest{{ID: 1, Quantity: MaxLineQty + 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCheckoutFixture(t, true)
			req := shippingCart("1746", false)
			req.Items = tt.items

			_, err := f.svc.CreateCheckout(context.Background(), req)

			var validation *apperror.ErrValidation
			require.True(t, errors.As(err, &validation))
			assert.Equal(t, http.StatusBadRequest, apperror.HTTPStatus(err))
			assert.Equal(t, 0, orderCount(t, f))
			assert.Equal(t, 0, f.creator.calls)
		})
	}
}

func TestCreateCheckoutRetriesNetworkErrors(t *testing.T) {
	f := newCheckoutFixture(t, false)
	f.creator.respond = func(call int) (*payment.Preference, error) {
		if call < 3 {
			return nil, errRefused
		}
		return &payment.Preference{ID: "pref-late", InitPoint: "https://mp.example/init/late"}, nil
	}

	res, err := f.svc.CreateCheckout(context.Background(), shippingCart("1746", false))
	require.NoError(t, err)
	assert.Equal(t, 3, f.creator.calls)
	assert.Equal(t, "pref-late", res.ID)
	assert.Equal(t, PaymentModeMercadoPago, res.PaymentMode)
}

func TestCreateCheckoutOfflineFallback(t *testing.T) {
	f := newCheckoutFixture(t, true)
	f.creator.respond = func(int) (*payment.Preference, error) { return nil, errRefused }
	ctx := context.Background()

	res, err := f.svc.CreateCheckout(ctx, shippingCart("1746", false))
	require.NoError(t, err)

	assert.Equal(t, 3, f.creator.calls)
	assert.Equal(t, PaymentModeOffline, res.PaymentMode)
	assert.NotEmpty(t, res.Warning)
	assert.Equal(t, "offline-"+res.OrderID, res.ID)

	u, err := url.Parse(res.InitPoint)
	require.NoError(t, err)
	assert.Equal(t, "/datos-entrega", u.Path)
	assert.Equal(t, res.OrderID, u.Query().Get("order_id"))
	assert.Equal(t, "unavailable", u.Query().Get("payment_status"))

	stored, err := f.orders.FindByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusUnavailable, stored.PaymentStatus)
	assert.Equal(t, models.CheckoutStatusOfflineFallback, stored.CheckoutStatus)
	assert.True(t, strings.HasPrefix(stored.PreferenceID, models.OfflinePreferencePrefix))
	assert.Equal(t, []string{res.OrderID + ":offline"}, f.publisher.created)
}

func TestCreateCheckoutNetworkFailureWithoutFallback(t *testing.T) {
	f := newCheckoutFixture(t, false)
	f.creator.respond = func(int) (*payment.Preference, error) { return nil, errRefused }

	_, err := f.svc.CreateCheckout(context.Background(), shippingCart("1746", false))

	assert.Equal(t, http.StatusServiceUnavailable, apperror.HTTPStatus(err))
	assert.Equal(t, apperror.CodeProviderUnavailable, apperror.Code(err))
	assert.False(t, apperror.IsClientVisible(err))
	assert.Equal(t, 3, f.creator.calls)
	assert.Equal(t, 0, orderCount(t, f))
}

func TestCreateCheckoutCancelledRequestSkipsFallback(t *testing.T) {
	f := newCheckoutFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.creator.respond = func(int) (*payment.Preference, error) {
		cancel()
		return nil, errRefused
	}

	_, err := f.svc.CreateCheckout(ctx, shippingCart("1746", false))

	var provider *apperror.ErrProviderUnavailable
	require.True(t, errors.As(err, &provider))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, http.StatusServiceUnavailable, provider.Status)
	assert.Equal(t, 1, f.creator.calls)
	assert.Equal(t, 0, orderCount(t, f))
	assert.Empty(t, f.publisher.created)
}

func TestCreateCheckoutProviderHTTPErrorIsNotRetried(t *testing.T) {
	f := newCheckoutFixture(t, true)
	f.creator.respond = func(int) (*payment.Preference, error) {
		return nil, &payment.HTTPError{StatusCode: http.StatusBadRequest, Body: `{"message":"bad"}`}
	}

	_, err := f.svc.CreateCheckout(context.Background(), shippingCart("1746", false))

	assert.Equal(t, http.StatusBadGateway, apperror.HTTPStatus(err))
	assert.Equal(t, 1, f.creator.calls)
	assert.Equal(t, 0, orderCount(t, f))
	assert.Empty(t, f.publisher.created)
}

func TestCreateCheckoutPublishFailureIsNotFatal(t *testing.T) {
	f := newCheckoutFixture(t, false)
	f.publisher.err = errors.New("broker down")

	res, err := f.svc.CreateCheckout(context.Background(), shippingCart("1746", false))
	require.NoError(t, err)
	assert.Equal(t, 1, orderCount(t, f))
	assert.NotEmpty(t, res.OrderID)
}

func TestCreateCheckoutSandboxRedirect(t *testing.T) {
	f := newCheckoutFixture(t, false)
	f.svc.opts.UseSandbox = true
	f.creator.respond = func(int) (*payment.Preference, error) {
		return &payment.Preference{ID: "p", InitPoint: "https://mp.example/live", SandboxInitPoint: "https://mp.example/sandbox"}, nil
	}

	res, err := f.svc.CreateCheckout(context.Background(), shippingCart("1746", false))
	require.NoError(t, err)
	assert.Equal(t, "https://mp.example/sandbox", res.InitPoint)
}
