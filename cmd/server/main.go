package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/catalog"
	"storefront/internal/csrf"
	"storefront/internal/delivery"
	"storefront/internal/formrelay"
	"storefront/internal/payment"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	readiness := map[string]api.ReadinessCheck{}

	var orders store.OrderRepository
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := store.NewPostgresStore(cfg.Storage.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		orders = db
		logger.Info("Database connected")
	default:
		orders = store.NewFileStore(cfg.Storage.OrdersFile)
		logger.Info("Using file order store", zap.String("path", cfg.Storage.OrdersFile))
	}
	readiness["orders"] = func(ctx context.Context) error {
		_, err := orders.Count(ctx)
		return err
	}

	source, err := delivery.NewFileSource(cfg.Delivery.ConfigFile)
	if err != nil {
		logger.Fatal("Failed to load delivery config", zap.String("path", cfg.Delivery.ConfigFile), zap.Error(err))
	}
	engine := delivery.NewEngine()
	cat := catalog.Default()

	if cfg.Payment.AccessToken == "" {
		logger.Warn("MP_ACCESS_TOKEN is not set; checkouts will use the offline fallback when enabled")
	}
	mp := payment.NewClient(cfg.Payment.APIBaseURL, cfg.Payment.AccessToken, cfg.Payment.Timeout)
	relay := formrelay.NewClient(cfg.FormRelay.URL, cfg.FormRelay.Timeout)

	var cache api.IdempotencyCache
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		cache = redisClient
		readiness["redis"] = redisClient.Ping
		logger.Info("Redis connected")
	}

	var events service.EventPublisher = service.NoopPublisher{}
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var leadWorker *worker.LeadWorker
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		events = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

		if cfg.FormRelay.URL != "" {
			consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
			leadWorker = worker.NewLeadWorker(consumer, relay)
			go func() {
				if err := leadWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Lead worker stopped", zap.Error(err))
				}
			}()
		}
	}

	policy := payment.Policy{
		MaxAttempts:     cfg.Payment.MaxAttempts,
		BaseDelay:       cfg.Payment.BaseDelay,
		FallbackEnabled: cfg.Payment.OfflineFallback,
	}

	checkout := service.NewCheckoutService(cat, engine, source, orders, mp, events, service.CheckoutOptions{
		PublicBaseURL:       cfg.Server.PublicBaseURL,
		DeliveryDetailsPath: cfg.Server.DeliveryDetailsPath,
		FailurePath:         cfg.Server.CheckoutFailurePath,
		NotificationURL:     cfg.Payment.NotificationURL,
		UseSandbox:          cfg.Payment.UseSandbox,
		Policy:              policy,
	})

	// Worst-case checkout plus room for persisting and publishing.
	lockTTL := policy.Budget(cfg.Payment.Timeout) + 15*time.Second

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Deps{
		Checkout:  checkout,
		Details:   service.NewDeliveryDetailsService(orders, events),
		Contact:   service.NewContactService(relay, cat),
		Engine:    engine,
		Source:    source,
		Orders:    orders,
		Sessions:  csrf.NewRegistry(cfg.CSRF.MaxSessions),
		Cache:     cache,
		Readiness: readiness,
	}, api.Options{
		CookieName:         cfg.CSRF.CookieName,
		SecureCookie:       cfg.CSRF.SecureCookie,
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		RateLimitRPS:       cfg.RateLimit.RPS,
		RateLimitBurst:     cfg.RateLimit.Burst,
		IdempotencyTTL:     cfg.Redis.IdempotencyTTL,
		IdempotencyLockTTL: lockTTL,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if leadWorker != nil {
		if err := leadWorker.Stop(); err != nil {
			logger.Warn("Failed to stop lead worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
