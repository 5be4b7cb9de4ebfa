package service

import (
	"context"
	"strings"

	"storefront/internal/apperror"
	"storefront/internal/delivery"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// DeliveryDetailsRequest carries recipient data posted after the payment
// redirect, together with whatever the provider reported on that redirect.
type DeliveryDetailsRequest struct {
	FullName   string `json:"fullName" validate:"required,max=120"`
	DocumentID string `json:"documentId" validate:"required,max=20"`
	Phone      string `json:"phone" validate:"required,max=40"`
	Email      string `json:"email" validate:"required,email,max=160"`
	Street     string `json:"street" validate:"max=120"`
	Number     string `json:"number" validate:"max=20"`
	Floor      string `json:"floor" validate:"max=20"`
	Apartment  string `json:"apartment" validate:"max=20"`
	City       string `json:"city" validate:"max=80"`
	Province   string `json:"province" validate:"max=80"`
	PostalCode string `json:"postalCode" validate:"max=10"`
	Notes      string `json:"notes" validate:"max=500"`

	PaymentID     string `json:"paymentId" validate:"max=64"`
	PreferenceID  string `json:"preferenceId" validate:"max=128"`
	PaymentStatus string `json:"paymentStatus" validate:"max=32"`
}

func (r *DeliveryDetailsRequest) trim() {
	for _, f := range []*string{
		&r.FullName, &r.DocumentID, &r.Phone, &r.Email,
		&r.Street, &r.Number, &r.Floor, &r.Apartment,
		&r.City, &r.Province, &r.PostalCode, &r.Notes,
		&r.PaymentID, &r.PreferenceID, &r.PaymentStatus,
	} {
		*f = strings.TrimSpace(*f)
	}
}

// DeliveryDetailsService attaches recipient data to existing orders
type DeliveryDetailsService struct {
	orders   store.OrderRepository
	events   EventPublisher
	validate *validator.Validate
	logger   *zap.Logger
}

// NewDeliveryDetailsService creates a new delivery details service
func NewDeliveryDetailsService(orders store.OrderRepository, events EventPublisher) *DeliveryDetailsService {
	if events == nil {
		events = NoopPublisher{}
	}
	return &DeliveryDetailsService{
		orders:   orders,
		events:   events,
		validate: newValidator(),
		logger:   util.GetLogger(),
	}
}

// AttachDeliveryDetails validates req against the order's quote and merges it
// into the order.
func (s *DeliveryDetailsService) AttachDeliveryDetails(ctx context.Context, orderID string, req *DeliveryDetailsRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "DeliveryDetailsService.AttachDeliveryDetails")
	defer span.End()

	if !models.IsValidOrderID(orderID) {
		return nil, &apperror.ErrValidation{Code: apperror.CodeInvalidOrderID, Message: "Número de pedido inválido."}
	}

	req.trim()
	if err := s.validateIdentity(req); err != nil {
		return nil, err
	}

	updated, err := s.orders.Update(ctx, orderID, func(o *models.Order) error {
		if err := checkConsistency(o, req); err != nil {
			return err
		}
		merge(o, req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, &apperror.ErrNotFound{Resource: "order", ID: orderID}
	}

	util.DeliveryDetailsReceivedTotal.Inc()
	s.logger.Info("Delivery details received",
		zap.String("order_id", orderID),
		zap.String("method", updated.Delivery.Method),
		zap.String("payment_status", updated.PaymentStatus))

	if err := s.events.PublishDeliveryDetailsReceived(ctx, updated); err != nil {
		s.logger.Error("Failed to publish delivery details event",
			zap.String("order_id", orderID),
			zap.Error(err))
	}
	return updated, nil
}

func (s *DeliveryDetailsService) validateIdentity(req *DeliveryDetailsRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	fields, ok := fieldErrors(err)
	if !ok {
		return err
	}
	return &apperror.ErrValidation{
		Code:    apperror.CodeValidation,
		Message: "Completá nombre, documento, teléfono y un email válido.",
		Fields:  fields,
	}
}

// checkConsistency compares the submission with what the order recorded at
// checkout time.
func checkConsistency(o *models.Order, req *DeliveryDetailsRequest) error {
	if o.Delivery.Method == models.DeliveryMethodShipping {
		missing := map[string]string{}
		for name, v := range map[string]string{
			"street":     req.Street,
			"number":     req.Number,
			"city":       req.City,
			"province":   req.Province,
			"postalCode": req.PostalCode,
		} {
			if v == "" {
				missing[name] = "required"
			}
		}
		if len(missing) > 0 {
			return &apperror.ErrValidation{
				Code:    apperror.CodeValidation,
				Message: "Para envíos completá calle, número, ciudad, provincia y código postal.",
				Fields:  missing,
			}
		}

		code, ok := delivery.NormalizePostalCode(req.PostalCode)
		if !ok {
			return &apperror.ErrValidation{
				Code:    apperror.CodeInvalidPostalCode,
				Message: "El código postal debe tener exactamente 4 dígitos.",
				Fields:  map[string]string{"postalCode": "must be 4 digits"},
			}
		}
		if o.Delivery.PostalCode != nil && code != *o.Delivery.PostalCode {
			return &apperror.ErrConflict{
				Message: "El código postal no coincide con el usado para cotizar el envío (" + *o.Delivery.PostalCode + ").",
			}
		}
		req.PostalCode = code
	}

	if req.PreferenceID != "" && o.PreferenceID != "" && req.PreferenceID != o.PreferenceID {
		return &apperror.ErrConflict{Message: "La referencia de pago no corresponde a este pedido."}
	}
	if req.PaymentID != "" && o.PaymentMeta != nil && o.PaymentMeta.PaymentID != "" && req.PaymentID != o.PaymentMeta.PaymentID {
		return &apperror.ErrConflict{Message: "El pago informado no corresponde a este pedido."}
	}
	return nil
}

func merge(o *models.Order, req *DeliveryDetailsRequest) {
	o.CustomerData = &models.CustomerData{
		FullName:   req.FullName,
		DocumentID: req.DocumentID,
		Phone:      req.Phone,
		Email:      req.Email,
		Street:     req.Street,
		Number:     req.Number,
		Floor:      req.Floor,
		Apartment:  req.Apartment,
		City:       req.City,
		Province:   req.Province,
		PostalCode: req.PostalCode,
		Notes:      req.Notes,
	}

	if req.PaymentID != "" || req.PreferenceID != "" || req.PaymentStatus != "" {
		meta := o.PaymentMeta
		if meta == nil {
			meta = &models.PaymentMeta{}
		}
		if req.PaymentID != "" {
			meta.PaymentID = req.PaymentID
		}
		if meta.PreferenceID == "" {
			meta.PreferenceID = req.PreferenceID
		}
		if req.PaymentStatus != "" {
			meta.PaymentStatus = strings.ToLower(req.PaymentStatus)
		}
		o.PaymentMeta = meta
	}

	// Only a provider-reported approval moves a pending payment forward.
	if strings.EqualFold(req.PaymentStatus, models.PaymentStatusApproved) && o.PaymentStatus == models.PaymentStatusPending {
		o.PaymentStatus = models.PaymentStatusApproved
	}
	o.CheckoutStatus = models.CheckoutStatusDeliveryDataReceived
}
