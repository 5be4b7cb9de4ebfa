package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_created_total",
		Help: "Total number of draft orders created, by payment mode",
	}, []string{"payment_mode"})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_failed_total",
		Help: "Total number of rejected or failed checkouts",
	}, []string{"reason"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_latency_seconds",
		Help:    "End to end latency of checkout creation",
		Buckets: prometheus.DefBuckets,
	})

	DeliveryQuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_quotes_total",
		Help: "Total number of postal code quotes, by outcome",
	}, []string{"outcome"})

	DeliveryConfigReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_config_reloads_total",
		Help: "Total number of delivery config reloads",
	}, []string{"result"})

	DeliveryDetailsReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delivery_details_received_total",
		Help: "Total number of delivery detail submissions accepted",
	})

	PaymentProviderAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_provider_attempts_total",
		Help: "Total number of payment preference attempts, by outcome",
	}, []string{"outcome"})

	PaymentProviderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_provider_latency_seconds",
		Help:    "Latency of payment preference calls",
		Buckets: prometheus.DefBuckets,
	})

	CSRFRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csrf_rejections_total",
		Help: "Total number of requests rejected by request protections",
	}, []string{"reason"})

	CSRFSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csrf_sessions",
		Help: "Number of live CSRF sessions",
	})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rate_limited_requests_total",
		Help: "Total number of requests rejected by the rate limiter",
	})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Total number of order events published",
	}, []string{"event_type", "result"})

	LeadsRelayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leads_relayed_total",
		Help: "Total number of leads forwarded to the form relay",
	}, []string{"source", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
