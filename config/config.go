package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Delivery  DeliveryConfig
	Payment   PaymentConfig
	CSRF      CSRFConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	FormRelay FormRelayConfig
	Observ    ObservabilityConfig
}

type ServerConfig struct {
	Port                string
	Env                 string
	PublicBaseURL       string
	DeliveryDetailsPath string
	CheckoutFailurePath string
	AllowedOrigins      []string
}

type StorageConfig struct {
	Driver      string
	OrdersFile  string
	DatabaseURL string
}

type DeliveryConfig struct {
	ConfigFile string
}

type PaymentConfig struct {
	AccessToken     string
	APIBaseURL      string
	Timeout         time.Duration
	MaxAttempts     int
	BaseDelay       time.Duration
	OfflineFallback bool
	UseSandbox      bool
	NotificationURL string
}

type CSRFConfig struct {
	MaxSessions  int
	CookieName   string
	SecureCookie bool
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// RedisConfig is optional: an empty Addr disables the idempotency cache.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	IdempotencyTTL time.Duration
}

// KafkaConfig is optional: no brokers disables order events.
type KafkaConfig struct {
	Brokers       []string
	TopicOrder    string
	ConsumerGroup string
}

type FormRelayConfig struct {
	URL     string
	Timeout time.Duration
}

type ObservabilityConfig struct {
	JaegerEndpoint string
	LogLevel       string
}

// Production reports whether the service runs in production.
func (c *Config) Production() bool {
	return c.Server.Env == "production"
}

func Load() *Config {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")
	production := env == "production"

	cfg := &Config{
		Server: ServerConfig{
			Port:                getEnv("PORT", "8080"),
			Env:                 env,
			PublicBaseURL:       getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
			DeliveryDetailsPath: getEnv("DELIVERY_DETAILS_PATH", "/datos-entrega"),
			CheckoutFailurePath: getEnv("CHECKOUT_FAILURE_PATH", "/carrito"),
			AllowedOrigins:      getEnvList("ALLOWED_ORIGINS", ""),
		},
		Storage: StorageConfig{
			Driver:      getEnv("ORDER_STORE", "file"),
			OrdersFile:  getEnv("ORDERS_FILE", "data/orders.json"),
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
		Delivery: DeliveryConfig{
			ConfigFile: getEnv("DELIVERY_CONFIG_FILE", "data/delivery-config.json"),
		},
		Payment: PaymentConfig{
			AccessToken:     getEnv("MP_ACCESS_TOKEN", ""),
			APIBaseURL:      getEnv("MP_API_BASE_URL", "https://api.mercadopago.com"),
			Timeout:         getEnvDuration("MP_TIMEOUT", 10*time.Second),
			MaxAttempts:     getEnvInt("MP_MAX_ATTEMPTS", 3),
			BaseDelay:       getEnvDuration("MP_RETRY_BASE_DELAY", 400*time.Millisecond),
			OfflineFallback: getEnvBool("OFFLINE_FALLBACK_ENABLED", !production),
			UseSandbox:      getEnvBool("MP_USE_SANDBOX", !production),
			NotificationURL: getEnv("MP_NOTIFICATION_URL", ""),
		},
		CSRF: CSRFConfig{
			MaxSessions:  getEnvInt("CSRF_MAX_SESSIONS", 5000),
			CookieName:   getEnv("CSRF_COOKIE_NAME", "zm_sid"),
			SecureCookie: getEnvBool("CSRF_SECURE_COOKIE", production),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
			Burst: getEnvInt("RATE_LIMIT_BURST", 20),
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", ""),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvInt("REDIS_DB", 0),
			IdempotencyTTL: getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers:       getEnvList("KAFKA_BROKERS", ""),
			TopicOrder:    getEnv("KAFKA_TOPIC_ORDER_EVENTS", "storefront-order-events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "storefront-leads"),
		},
		FormRelay: FormRelayConfig{
			URL:     getEnv("FORM_RELAY_URL", ""),
			Timeout: getEnvDuration("FORM_RELAY_TIMEOUT", 10*time.Second),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
			LogLevel:       getEnv("LOG_LEVEL", ""),
		},
	}

	log.Printf("Config loaded: env=%s, port=%s, store=%s", cfg.Server.Env, cfg.Server.Port, cfg.Storage.Driver)
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("400ms") or plain milliseconds.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}

func getEnvList(key, defaultVal string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultVal), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
