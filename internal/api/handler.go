package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"order-desk/internal/catalog"
	"order-desk/internal/models"
	"order-desk/internal/service"
	"order-desk/internal/store"
	"order-desk/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const maxOrderBodyBytes = 1 << 20

// OrderSubmitter accepts order submissions and reads persisted orders
type OrderSubmitter interface {
	Submit(ctx context.Context, payload []byte, idempotencyKey string) (models.Outcome, error)
	GetOrder(ctx context.Context, orderID int64) (*service.OrderDetails, error)
}

// CatalogReader runs named read-only queries
type CatalogReader interface {
	Execute(ctx context.Context, name string, params map[string]string) ([]byte, error)
}

// StockBoardReader lists the current stock warnings
type StockBoardReader interface {
	ListStockWarnings(ctx context.Context) ([]models.StockWarning, error)
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	orders  OrderSubmitter
	catalog CatalogReader
	board   StockBoardReader
	db      Pinger
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(orders OrderSubmitter, catalog CatalogReader, board StockBoardReader, db Pinger) *Handler {
	return &Handler{
		orders:  orders,
		catalog: catalog,
		board:   board,
		db:      db,
		logger:  util.GetLogger(),
	}
}

// catalogRoutes maps read endpoints to catalog query names
var catalogRoutes = map[string]string{
	"/orders":       "orders",
	"/customers":    "customers",
	"/case-workers": "caseWorkers",
	"/shippers":     "shippers",
	"/date-range":   "dateRange",
	"/articles":     "articles",
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine, serviceName string) {
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(prometheusMiddleware())
	router.Use(requestLogger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/createOrder", h.createOrder)
	for path, name := range catalogRoutes {
		router.GET(path, h.catalogQuery(name))
	}
	router.GET("/order-details", h.orderDetails)
	router.GET("/stock-warnings", h.stockWarnings)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:id", h.getOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once the database answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createOrder handles order submission
func (h *Handler) createOrder(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxOrderBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.Failed("Could not read the request body: "+err.Error()))
		return
	}

	outcome, err := h.orders.Submit(c.Request.Context(), unwrapOrder(body), c.GetHeader("Idempotency-Key"))
	c.JSON(submitStatus(err), outcome)
}

// unwrapOrder accepts both a bare order and {"order": order}
func unwrapOrder(body []byte) []byte {
	var envelope struct {
		Order json.RawMessage `json:"order"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return body
	}
	if len(envelope.Order) == 0 || string(envelope.Order) == "null" {
		return body
	}
	return envelope.Order
}

func submitStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusCreated
	case service.IsRejection(err):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrSubmissionInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrOrderTimeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *Handler) catalogQuery(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := h.catalog.Execute(c.Request.Context(), name, nil)
		if err != nil {
			h.logger.Error("Catalog query failed", zap.String("query", name), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": fmt.Sprintf("Could not fetch %s: %v", name, err),
			})
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
	}
}

// orderDetails handles the lines of one order
func (h *Handler) orderDetails(c *gin.Context) {
	orderID := c.Query("orderId")
	if orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Could not fetch order details: No order id specified",
		})
		return
	}

	payload, err := h.catalog.Execute(c.Request.Context(), "orderDetails", map[string]string{"orderId": orderID})
	if errors.Is(err, catalog.ErrMissingParameter) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Could not fetch order details: The order id is not an integer",
		})
		return
	}
	if err != nil {
		h.logger.Error("Order details query failed", zap.String("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Could not fetch order details: %v", err),
		})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

// stockWarnings handles the stock-warning board
func (h *Handler) stockWarnings(c *gin.Context) {
	warnings, err := h.board.ListStockWarnings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Could not fetch stock warnings: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, warnings)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	idStr := c.Param("id")
	orderID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid order ID",
		})
		return
	}

	details, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if errors.Is(err, store.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Order not found",
			"details": err.Error(),
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load order",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, details)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// requestLogger writes one structured line per request
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		logger := util.LoggerFromContext(c.Request.Context())
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("Request failed", fields...)
			return
		}
		logger.Debug("Request served", fields...)
	}
}
