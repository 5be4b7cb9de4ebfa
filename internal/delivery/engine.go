package delivery

import (
	"fmt"
	"strings"

	"storefront/internal/apperror"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// PickupLabel is the shipping label used for factory pickup.
const PickupLabel = "Retiro en fábrica"

// DeliveryRequest is the raw delivery choice sent by the client.
type DeliveryRequest struct {
	Method                string `json:"method"`
	PostalCode            string `json:"postalCode"`
	InstallationRequested bool   `json:"installationRequested"`
}

// ShippingQuote is the answer to a postal code lookup.
type ShippingQuote struct {
	PostalCode                string `json:"postalCode"`
	ShippingLabel             string `json:"shippingLabel"`
	ShippingCost              int64  `json:"shippingCost"`
	InstallationAvailable     bool   `json:"installationAvailable"`
	InstallationBaseCost      int64  `json:"installationBaseCost"`
	InstallationComplexNotice string `json:"installationComplexNotice"`
}

// Options is the static delivery information shown before a postal code is known.
type Options struct {
	Currency                     string        `json:"currency"`
	InstallationBaseCost         int64         `json:"installationBaseCost"`
	InstallationComplexNotice    string        `json:"installationComplexNotice"`
	UnsupportedPostalCodeMessage string        `json:"unsupportedPostalCodeMessage"`
	FactoryPickup                FactoryPickup `json:"factoryPickup"`
	InstallationZonesLabel       string        `json:"installationZonesLabel"`
}

// Engine prices shipping and installation from a config snapshot. It holds no
// mutable state.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates a new quote engine
func NewEngine() *Engine {
	return &Engine{logger: util.GetLogger()}
}

// Options returns the public delivery options of cfg.
func (e *Engine) Options(cfg *Config) Options {
	return Options{
		Currency:                     cfg.Currency,
		InstallationBaseCost:         cfg.InstallationBaseCost,
		InstallationComplexNotice:    cfg.InstallationComplexNotice,
		UnsupportedPostalCodeMessage: cfg.UnsupportedPostalCodeMessage,
		FactoryPickup:                cfg.FactoryPickup,
		InstallationZonesLabel:       cfg.InstallationZones.Label,
	}
}

// QuotePostalCode prices shipping to a postal code and reports installation
// eligibility.
func (e *Engine) QuotePostalCode(rawPostalCode string, cfg *Config) (*ShippingQuote, error) {
	code, ok := NormalizePostalCode(rawPostalCode)
	if !ok {
		util.DeliveryQuotesTotal.WithLabelValues("invalid_postal_code").Inc()
		return nil, &apperror.ErrValidation{
			Code:    apperror.CodeInvalidPostalCode,
			Message: "El código postal debe tener exactamente 4 dígitos.",
			Fields:  map[string]string{"postalCode": "must be 4 digits"},
		}
	}

	rule, ok := MatchShippingRule(code, cfg.ShippingRules)
	if !ok {
		util.DeliveryQuotesTotal.WithLabelValues("unsupported").Inc()
		return nil, &apperror.ErrUnsupportedZone{PostalCode: code, Message: cfg.UnsupportedPostalCodeMessage}
	}

	cost, ok := rule.Cost.WholeAmount()
	if !ok {
		util.DeliveryQuotesTotal.WithLabelValues("misconfigured").Inc()
		e.logger.Error("Shipping rule has an invalid cost",
			zap.String("label", rule.Label),
			zap.String("cost", string(rule.Cost)),
			zap.String("postal_code", code))
		return nil, &apperror.ErrConfiguration{
			Message: fmt.Sprintf("shipping rule %q has cost %q, expected a non-negative integer", rule.Label, rule.Cost),
		}
	}

	util.DeliveryQuotesTotal.WithLabelValues("ok").Inc()
	return &ShippingQuote{
		PostalCode:                code,
		ShippingLabel:             rule.Label,
		ShippingCost:              cost,
		InstallationAvailable:     IsInstallationAvailable(code, cfg.InstallationZones),
		InstallationBaseCost:      cfg.InstallationBaseCost,
		InstallationComplexNotice: cfg.InstallationComplexNotice,
	}, nil
}

// Quote turns a raw delivery request into a priced decision.
func (e *Engine) Quote(req DeliveryRequest, cfg *Config) (*models.DeliveryDecision, error) {
	switch strings.ToLower(strings.TrimSpace(req.Method)) {
	case models.DeliveryMethodPickup:
		return &models.DeliveryDecision{
			Method:        models.DeliveryMethodPickup,
			ShippingLabel: PickupLabel,
		}, nil
	case models.DeliveryMethodShipping:
	default:
		return nil, &apperror.ErrValidation{
			Code:    apperror.CodeInvalidMethod,
			Message: "Elegí un método de entrega válido: envío o retiro en fábrica.",
			Fields:  map[string]string{"method": "must be shipping or pickup"},
		}
	}

	quote, err := e.QuotePostalCode(req.PostalCode, cfg)
	if err != nil {
		return nil, err
	}

	decision := &models.DeliveryDecision{
		Method:                models.DeliveryMethodShipping,
		PostalCode:            &quote.PostalCode,
		ShippingLabel:         quote.ShippingLabel,
		ShippingCost:          quote.ShippingCost,
		InstallationAvailable: quote.InstallationAvailable,
		InstallationRequested: req.InstallationRequested,
	}

	if req.InstallationRequested {
		if !quote.InstallationAvailable {
			return nil, &apperror.ErrValidation{
				Code: apperror.CodeInstallationUnavailable,
				Message: "La instalación no está disponible para tu código postal. " +
					"Podés continuar con envío sin instalación o elegir retiro en fábrica.",
				Fields: map[string]string{"installationRequested": "not available for this postal code"},
			}
		}
		if cfg.InstallationBaseCost < 0 {
			return nil, &apperror.ErrConfiguration{Message: "installationBaseCost is negative"}
		}
		decision.InstallationCost = cfg.InstallationBaseCost
	}

	return decision, nil
}
