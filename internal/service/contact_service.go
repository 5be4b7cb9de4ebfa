package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"storefront/internal/apperror"
	"storefront/internal/catalog"
	"storefront/internal/formrelay"
	"storefront/internal/util"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ContactRequest is a contact or quote form submission
type ContactRequest struct {
	Name      string `json:"name" validate:"required,max=120"`
	Email     string `json:"email" validate:"required,email,max=160"`
	Phone     string `json:"phone" validate:"max=40"`
	Message   string `json:"message" validate:"required,max=2000"`
	ProductID int64  `json:"productId" validate:"gte=0"`
}

// ContactService relays contact forms
type ContactService struct {
	relay    formrelay.Submitter
	catalog  *catalog.Catalog
	validate *validator.Validate
	logger   *zap.Logger
}

// NewContactService creates a new contact service
func NewContactService(relay formrelay.Submitter, cat *catalog.Catalog) *ContactService {
	return &ContactService{
		relay:    relay,
		catalog:  cat,
		validate: newValidator(),
		logger:   util.GetLogger(),
	}
}

// Submit validates req and forwards it to the form relay.
func (s *ContactService) Submit(ctx context.Context, req *ContactRequest) error {
	ctx, span := util.StartSpan(ctx, "ContactService.Submit")
	defer span.End()

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Message = strings.TrimSpace(req.Message)

	if err := s.validate.Struct(req); err != nil {
		fields, ok := fieldErrors(err)
		if !ok {
			return err
		}
		return &apperror.ErrValidation{
			Code:    apperror.CodeValidation,
			Message: "Completá nombre, un email válido y tu mensaje.",
			Fields:  fields,
		}
	}

	sub := &formrelay.Submission{
		Source:  formrelay.SourceContact,
		Subject: "Consulta de " + req.Name,
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Message: req.Message,
	}
	if req.ProductID > 0 {
		if p, ok := s.catalog.Get(req.ProductID); ok {
			sub.Subject = "Consulta por " + p.Title
			sub.Fields = map[string]string{"productId": fmt.Sprint(p.ID), "product": p.Title}
		}
	}

	if err := s.relay.Submit(ctx, sub); err != nil {
		util.LeadsRelayedTotal.WithLabelValues(formrelay.SourceContact, "error").Inc()
		s.logger.Error("Failed to relay contact form", zap.Error(err))
		return &apperror.ErrProviderUnavailable{Status: http.StatusBadGateway, Cause: err}
	}
	util.LeadsRelayedTotal.WithLabelValues(formrelay.SourceContact, "ok").Inc()
	return nil
}
