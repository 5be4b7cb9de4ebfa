package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/csrf"
	"storefront/internal/delivery"
	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	genericErrorMessage  = "Ocurrió un error inesperado. Intentá de nuevo en unos minutos."
	providerErrorMessage = "El servicio de pagos no está disponible. Intentá de nuevo en unos minutos."
	maxIdempotencyKeyLen = 128
)

// IdempotencyCache stores checkout responses by idempotency key.
type IdempotencyCache interface {
	GetCachedResponse(ctx context.Context, key string) ([]byte, bool, error)
	SetCachedResponse(ctx context.Context, key string, body []byte, ttl time.Duration) error
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Options tunes request protections.
type Options struct {
	CookieName     string
	SecureCookie   bool
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	IdempotencyTTL time.Duration

	// IdempotencyLockTTL must outlast the slowest checkout, retries included.
	IdempotencyLockTTL time.Duration
}

// Deps are the services the handler serves.
type Deps struct {
	Checkout  *service.CheckoutService
	Details   *service.DeliveryDetailsService
	Contact   *service.ContactService
	Engine    *delivery.Engine
	Source    delivery.Source
	Orders    store.OrderRepository
	Sessions  *csrf.Registry
	Cache     IdempotencyCache
	Readiness map[string]ReadinessCheck
}

// Handler contains HTTP handlers
type Handler struct {
	Deps
	opts    Options
	limiter *rateLimiter
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps, opts Options) *Handler {
	if opts.CookieName == "" {
		opts.CookieName = "zm_sid"
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.IdempotencyLockTTL <= 0 {
		opts.IdempotencyLockTTL = time.Minute
	}
	return &Handler{
		Deps:    deps,
		opts:    opts,
		limiter: newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		logger:  util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api", limitBody(), h.limiter.middleware(), h.originCheck())
	{
		api.GET("/csrf-token", h.csrfToken)
		api.GET("/delivery/options", h.deliveryOptions)
		api.GET("/delivery/quote", h.deliveryQuote)
		api.GET("/orders/:orderId", h.getOrder)
		api.GET("/orders/by-preference/:preferenceId", h.getOrderByPreference)

		protected := api.Group("", h.requireCSRF())
		protected.POST("/mp/create-preference", h.createPreference)
		protected.POST("/orders/:orderId/delivery-details", h.deliveryDetails)
		protected.POST("/contact", h.contact)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck runs every registered dependency check
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := gin.H{}
	status := http.StatusOK
	for name, check := range h.Readiness {
		if err := check(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// csrfToken hands out the token of the caller's session, minting the session
// cookie when needed.
func (h *Handler) csrfToken(c *gin.Context) {
	cookie, _ := c.Cookie(h.opts.CookieName)
	sess, created, err := h.Sessions.GetOrCreate(cookie)
	if err != nil {
		h.fail(c, err)
		return
	}
	if created || cookie != sess.SessionID {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(h.opts.CookieName, sess.SessionID, 0, "/", "", h.opts.SecureCookie, true)
	}
	util.CSRFSessions.Set(float64(h.Sessions.Len()))

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"csrfToken": sess.CSRFToken})
}

func (h *Handler) deliveryOptions(c *gin.Context) {
	c.JSON(http.StatusOK, h.Engine.Options(h.Source.Snapshot()))
}

func (h *Handler) deliveryQuote(c *gin.Context) {
	quote, err := h.Engine.QuotePostalCode(c.Query("postalCode"), h.Source.Snapshot())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// createPreference starts a checkout. With an Idempotency-Key and a cache, a
// repeated request replays the first response instead of creating an order.
func (h *Handler) createPreference(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperror.Validation("El pedido enviado no es válido."))
		return
	}

	ctx := c.Request.Context()
	cacheKey, ok := h.beginIdempotent(c)
	if !ok {
		return
	}
	if cacheKey != "" {
		defer func() {
			if err := h.Cache.ReleaseLock(context.Background(), cacheKey); err != nil {
				h.logger.Warn("Failed to release idempotency lock", zap.Error(err))
			}
		}()
	}

	res, err := h.Checkout.CreateCheckout(ctx, &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	body, err := json.Marshal(res)
	if err != nil {
		h.fail(c, err)
		return
	}
	if cacheKey != "" {
		if err := h.Cache.SetCachedResponse(ctx, cacheKey, body, h.opts.IdempotencyTTL); err != nil {
			h.logger.Warn("Failed to cache checkout response", zap.String("order_id", res.OrderID), zap.Error(err))
		}
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// beginIdempotent returns the scoped cache key to use, or "" when the request
// runs uncached. ok is false when a response was already written.
func (h *Handler) beginIdempotent(c *gin.Context) (key string, ok bool) {
	raw := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if raw == "" || h.Cache == nil {
		return "", true
	}
	if len(raw) > maxIdempotencyKeyLen {
		h.fail(c, apperror.Validation("Idempotency-Key demasiado larga."))
		return "", false
	}

	sid, _ := c.Cookie(h.opts.CookieName)
	key = sid + ":" + raw
	ctx := c.Request.Context()

	body, found, err := h.Cache.GetCachedResponse(ctx, key)
	if err != nil {
		h.logger.Warn("Idempotency cache unavailable", zap.Error(err))
		return "", true
	}
	if found {
		c.Header("Idempotent-Replayed", "true")
		c.Data(http.StatusOK, "application/json; charset=utf-8", body)
		return "", false
	}

	acquired, err := h.Cache.AcquireLock(ctx, key, h.opts.IdempotencyLockTTL)
	if err != nil {
		h.logger.Warn("Idempotency lock unavailable", zap.Error(err))
		return "", true
	}
	if !acquired {
		h.fail(c, &apperror.ErrConflict{Message: "Ya estamos procesando este pedido."})
		return "", false
	}
	return key, true
}

func (h *Handler) getOrder(c *gin.Context) {
	id := c.Param("orderId")
	if !models.IsValidOrderID(id) {
		h.fail(c, &apperror.ErrValidation{Code: apperror.CodeInvalidOrderID, Message: "Número de pedido inválido."})
		return
	}

	order, err := h.Orders.FindByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if order == nil {
		h.fail(c, &apperror.ErrNotFound{Resource: "order", ID: id})
		return
	}
	c.JSON(http.StatusOK, order.Public())
}

func (h *Handler) getOrderByPreference(c *gin.Context) {
	pref := strings.TrimSpace(c.Param("preferenceId"))
	if pref == "" || len(pref) > 128 {
		h.fail(c, apperror.Validation("Referencia de pago inválida."))
		return
	}

	order, err := h.Orders.FindByPreferenceID(c.Request.Context(), pref)
	if err != nil {
		h.fail(c, err)
		return
	}
	if order == nil {
		h.fail(c, &apperror.ErrNotFound{Resource: "order", ID: pref})
		return
	}
	c.JSON(http.StatusOK, order.Public())
}

func (h *Handler) deliveryDetails(c *gin.Context) {
	var req service.DeliveryDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperror.Validation("Los datos enviados no son válidos."))
		return
	}

	order, err := h.Details.AttachDeliveryDetails(c.Request.Context(), c.Param("orderId"), &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"message": "Recibimos tus datos de entrega. Te contactaremos para coordinar.",
		"order":   order.Public(),
	})
}

func (h *Handler) contact(c *gin.Context) {
	var req service.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperror.Validation("Los datos enviados no son válidos."))
		return
	}
	if err := h.Contact.Submit(c.Request.Context(), &req); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// fail writes err as {error, code}. Errors the user cannot act on are logged
// and replaced by a generic message.
func (h *Handler) fail(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	body := gin.H{"code": apperror.Code(err)}

	var provider *apperror.ErrProviderUnavailable
	switch {
	case apperror.IsClientVisible(err):
		body["error"] = err.Error()
		var validation *apperror.ErrValidation
		if errors.As(err, &validation) && len(validation.Fields) > 0 {
			body["fields"] = validation.Fields
		}
	case errors.As(err, &provider):
		body["error"] = providerErrorMessage
	default:
		body["error"] = genericErrorMessage
	}

	if !apperror.IsClientVisible(err) {
		h.logger.Error("Request failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}

	c.AbortWithStatusJSON(status, body)
}
