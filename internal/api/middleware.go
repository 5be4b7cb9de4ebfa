package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	requestIDHeader = "X-Request-ID"
	csrfHeader      = "X-CSRF-Token"
	maxBodyBytes    = 1 << 20
)

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Inc()
	}
}

// requestLogger tags each request with an id and logs it once it completes.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("Request completed", fields...)
			return
		}
		logger.Info("Request completed", fields...)
	}
}

func limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		}
		c.Next()
	}
}

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rps       rate.Limit
	burst     int
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		visitors:  make(map[string]*visitor),
		rps:       rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) > time.Minute {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > 3*time.Minute {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.Allow()
}

func (rl *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rps <= 0 {
			c.Next()
			return
		}
		if !rl.allow(c.ClientIP()) {
			util.RateLimitedTotal.Inc()
			c.Header("Retry-After", "5")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Demasiadas solicitudes. Esperá unos segundos e intentá de nuevo.",
				"code":  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

func isStateChanging(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// originCheck rejects state-changing requests sent from an origin outside the
// allow list. Requests without an Origin header pass; the CSRF token still
// guards them.
func (h *Handler) originCheck() gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(h.opts.AllowedOrigins))
	for _, o := range h.opts.AllowedOrigins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if len(allowed) == 0 || origin == "" || !isStateChanging(c.Request.Method) {
			c.Next()
			return
		}
		if _, ok := allowed[strings.TrimRight(origin, "/")]; !ok {
			util.CSRFRejectionsTotal.WithLabelValues("origin").Inc()
			h.fail(c, &apperror.ErrForbidden{Message: "Origen no permitido."})
			return
		}
		c.Next()
	}
}

// requireCSRF checks the token from the X-CSRF-Token header, or the csrfToken
// field of a JSON body, against the session cookie.
func (h *Handler) requireCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, _ := c.Cookie(h.opts.CookieName)
		token := c.GetHeader(csrfHeader)
		if token == "" {
			var err error
			if token, err = tokenFromBody(c); err != nil {
				abortUnreadableBody(c, err)
				return
			}
		}

		if !h.Sessions.Validate(sid, token) {
			reason := "invalid_token"
			if sid == "" {
				reason = "missing_session"
			} else if token == "" {
				reason = "missing_token"
			}
			util.CSRFRejectionsTotal.WithLabelValues(reason).Inc()
			h.fail(c, &apperror.ErrForbidden{
				Message: "Token de seguridad inválido o vencido. Recargá la página e intentá de nuevo.",
			})
			return
		}
		c.Next()
	}
}

// tokenFromBody peeks at a JSON body and puts it back for the handler. A body
// that cannot be read is an error; one that is not JSON just has no token.
func tokenFromBody(c *gin.Context) (string, error) {
	if c.Request.Body == nil || !strings.Contains(c.ContentType(), "json") {
		return "", nil
	}
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(data))

	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	if json.Unmarshal(data, &body) != nil {
		return "", nil
	}
	return body.CSRFToken, nil
}

func abortUnreadableBody(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "El pedido enviado es demasiado grande.",
			"code":  "PAYLOAD_TOO_LARGE",
		})
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error": "No pudimos leer el pedido enviado.",
		"code":  apperror.CodeValidation,
	})
}
