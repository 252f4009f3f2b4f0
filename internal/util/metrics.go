package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of committed orders",
	})

	OrdersRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_rejected_total",
		Help: "Total number of order submissions rejected by validation",
	}, []string{"kind"})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of order writes rolled back",
	}, []string{"reason"})

	OrderLinesWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_lines_written_total",
		Help: "Total number of committed order lines",
	})

	StockWarningsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_warnings_total",
		Help: "Total number of stock warnings raised by committed orders",
	})

	OrderEventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_events_consumed_total",
		Help: "Total number of order events handled by the stock warning worker",
	}, []string{"event_type"})

	OrderValidationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_validation_latency_seconds",
		Help:    "Latency of order validation",
		Buckets: prometheus.DefBuckets,
	})

	OrderWriteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_write_latency_seconds",
		Help:    "Latency of the order creation transaction",
		Buckets: prometheus.DefBuckets,
	})

	CatalogQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_query_duration_seconds",
		Help:    "Latency of catalog queries against the database",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	CatalogCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_total",
		Help: "Catalog cache lookups by result",
	}, []string{"query", "result"})

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
