package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Delivery methods
const (
	DeliveryMethodShipping = "shipping"
	DeliveryMethodPickup   = "pickup"
)

// Payment statuses
const (
	PaymentStatusPending     = "pending"
	PaymentStatusApproved    = "approved"
	PaymentStatusUnavailable = "unavailable"
)

// Checkout statuses
const (
	CheckoutStatusPendingPayment       = "pending_payment"
	CheckoutStatusOfflineFallback      = "offline_fallback"
	CheckoutStatusDeliveryDataReceived = "delivery_data_received"
)

// OfflinePreferencePrefix marks preference ids synthesized by the offline fallback.
const OfflinePreferencePrefix = "offline-"

var orderIDPattern = regexp.MustCompile(`^ZM-\d{13}-[0-9A-F]{6}$`)

// CartItem is a validated cart line. Title and price always come from the catalog.
type CartItem struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Currency  string `json:"currency"`
}

// DeliveryDecision is the priced outcome of a delivery quote, embedded in Order.
type DeliveryDecision struct {
	Method                string  `json:"method"`
	PostalCode            *string `json:"postalCode"`
	ShippingLabel         string  `json:"shippingLabel"`
	ShippingCost          int64   `json:"shippingCost"`
	InstallationAvailable bool    `json:"installationAvailable"`
	InstallationRequested bool    `json:"installationRequested"`
	InstallationCost      int64   `json:"installationCost"`
}

// Totals holds the order amounts in whole pesos.
type Totals struct {
	Subtotal     int64 `json:"subtotal"`
	Shipping     int64 `json:"shipping"`
	Installation int64 `json:"installation"`
	Total        int64 `json:"total"`
}

// CustomerData holds the recipient and address attached after payment redirect.
type CustomerData struct {
	FullName   string `json:"fullName"`
	DocumentID string `json:"documentId"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Street     string `json:"street,omitempty"`
	Number     string `json:"number,omitempty"`
	Floor      string `json:"floor,omitempty"`
	Apartment  string `json:"apartment,omitempty"`
	City       string `json:"city,omitempty"`
	Province   string `json:"province,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// PaymentMeta is what the payment provider reported on the return redirect.
type PaymentMeta struct {
	PaymentID     string `json:"paymentId"`
	PreferenceID  string `json:"preferenceId"`
	PaymentStatus string `json:"paymentStatus"`
}

// Order is a draft order persisted before payment completion.
type Order struct {
	OrderID        string           `json:"orderId"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
	PreferenceID   string           `json:"preferenceId"`
	PaymentStatus  string           `json:"paymentStatus"`
	CheckoutStatus string           `json:"checkoutStatus"`
	Items          []CartItem       `json:"items"`
	Delivery       DeliveryDecision `json:"delivery"`
	Totals         Totals           `json:"totals"`
	CustomerData   *CustomerData    `json:"customerData"`
	PaymentMeta    *PaymentMeta     `json:"paymentMeta"`
}

// Clone returns a deep copy so callers never share slices or pointers with a store.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]CartItem(nil), o.Items...)
	if o.Delivery.PostalCode != nil {
		pc := *o.Delivery.PostalCode
		c.Delivery.PostalCode = &pc
	}
	if o.CustomerData != nil {
		cd := *o.CustomerData
		c.CustomerData = &cd
	}
	if o.PaymentMeta != nil {
		pm := *o.PaymentMeta
		c.PaymentMeta = &pm
	}
	return &c
}

// PublicOrder is the projection served to clients: no provider metadata and
// no recipient personal data.
type PublicOrder struct {
	OrderID            string           `json:"orderId"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
	PreferenceID       string           `json:"preferenceId"`
	PaymentStatus      string           `json:"paymentStatus"`
	CheckoutStatus     string           `json:"checkoutStatus"`
	Items              []CartItem       `json:"items"`
	Delivery           DeliveryDecision `json:"delivery"`
	Totals             Totals           `json:"totals"`
	HasDeliveryDetails bool             `json:"hasDeliveryDetails"`
}

// Public builds the client-facing projection of o.
func (o *Order) Public() PublicOrder {
	return PublicOrder{
		OrderID:            o.OrderID,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		PreferenceID:       o.PreferenceID,
		PaymentStatus:      o.PaymentStatus,
		CheckoutStatus:     o.CheckoutStatus,
		Items:              o.Items,
		Delivery:           o.Delivery,
		Totals:             o.Totals,
		HasDeliveryDetails: o.CustomerData != nil,
	}
}

// NewOrderID generates an id of the form ZM-<13 digit millis>-<6 uppercase hex>.
func NewOrderID(now time.Time) (string, error) {
	suffix := make([]byte, 3)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("failed to generate order id: %w", err)
	}
	return fmt.Sprintf("ZM-%013d-%s", now.UnixMilli(), strings.ToUpper(hex.EncodeToString(suffix))), nil
}

// IsValidOrderID reports whether id has the public order id format.
func IsValidOrderID(id string) bool {
	return orderIDPattern.MatchString(id)
}

// OfflinePreferenceID is the synthetic preference id used by the offline fallback.
func OfflinePreferenceID(orderID string) string {
	return OfflinePreferencePrefix + orderID
}
