package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"order-desk/internal/models"
	"order-desk/internal/store"
	"order-desk/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher publishes domain events after an order is committed
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishStockBelowMinimum(ctx context.Context, event *models.StockBelowMinimumEvent) error
}

// CacheInvalidator drops read caches that a committed order makes stale
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// IdempotencyStore remembers outcomes per idempotency key
type IdempotencyStore interface {
	GetIdempotencyRecord(ctx context.Context, key string) ([]byte, bool, error)
	SetIdempotencyRecord(ctx context.Context, key string, value []byte, ttl time.Duration) error
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

type Options struct {
	WriteTimeout   time.Duration
	IdempotencyTTL time.Duration
	LockTTL        time.Duration
}

// OrderService handles order submissions
type OrderService struct {
	store       *store.Store
	validator   *OrderValidator
	writer      *OrderWriter
	events      EventPublisher
	cache       CacheInvalidator
	idempotency IdempotencyStore
	opts        Options
	logger      *zap.Logger
}

// NewOrderService creates a new order service. events, cache and idempotency
// may be nil.
func NewOrderService(
	s *store.Store,
	writer *OrderWriter,
	events EventPublisher,
	cache CacheInvalidator,
	idempotency IdempotencyStore,
	opts Options,
) *OrderService {
	if opts.LockTTL == 0 {
		opts.LockTTL = 2*opts.WriteTimeout + 5*time.Second
	}
	return &OrderService{
		store:       s,
		validator:   NewOrderValidator(s),
		writer:      writer,
		events:      events,
		cache:       cache,
		idempotency: idempotency,
		opts:        opts,
		logger:      util.GetLogger(),
	}
}

// Submit validates and writes an order. The returned outcome is always
// filled; err classifies a failure as *RejectionError, *StoreError,
// ErrOrderTimeout or ErrSubmissionInProgress.
func (s *OrderService) Submit(ctx context.Context, payload []byte, idempotencyKey string) (models.Outcome, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Submit")
	defer span.End()

	if idempotencyKey == "" || s.idempotency == nil {
		return s.submit(ctx, payload)
	}

	if outcome, ok := s.recorded(ctx, idempotencyKey); ok {
		return outcome, nil
	}

	lockKey := "submit:" + idempotencyKey
	acquired, err := s.idempotency.AcquireLock(ctx, lockKey, s.opts.LockTTL)
	if err != nil {
		s.logger.Warn("Idempotency lock unavailable, submitting without it",
			zap.String("idempotency_key", idempotencyKey), zap.Error(err))
		return s.submit(ctx, payload)
	}
	if !acquired {
		return models.Failed(ErrSubmissionInProgress.Error()), ErrSubmissionInProgress
	}
	defer func() {
		if err := s.idempotency.ReleaseLock(context.Background(), lockKey); err != nil {
			s.logger.Warn("Failed to release idempotency lock", zap.String("idempotency_key", idempotencyKey), zap.Error(err))
		}
	}()

	// another submission may have finished between the lookup and the lock
	if outcome, ok := s.recorded(ctx, idempotencyKey); ok {
		return outcome, nil
	}

	outcome, err := s.submit(ctx, payload)
	if err == nil {
		s.record(ctx, idempotencyKey, outcome)
	}
	return outcome, err
}

func (s *OrderService) submit(ctx context.Context, payload []byte) (models.Outcome, error) {
	if s.opts.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.WriteTimeout)
		defer cancel()
	}

	req, err := s.validator.Validate(ctx, payload)
	if err != nil {
		return s.fail(ctx, err)
	}

	result, err := s.writer.CreateOrder(ctx, req)
	if err != nil {
		return s.fail(ctx, err)
	}

	s.afterCommit(context.WithoutCancel(ctx), req, result)
	return models.Succeeded(result), nil
}

func (s *OrderService) fail(ctx context.Context, err error) (models.Outcome, error) {
	logger := util.LoggerFromContext(ctx)
	var rej *RejectionError
	switch {
	case errors.As(err, &rej):
		util.OrdersRejectedTotal.WithLabelValues(string(rej.Kind)).Inc()
		logger.Info("Order rejected",
			zap.String("kind", string(rej.Kind)),
			zap.String("field", rej.Field),
			zap.Int("line", rej.Line),
			zap.String("reason", rej.Message))
		return models.Failed(rej.Message), rej
	case errors.Is(err, ErrOrderTimeout) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		util.OrdersFailedTotal.WithLabelValues("timeout").Inc()
		return models.Failed(ErrOrderTimeout.Error()), ErrOrderTimeout
	}

	util.OrdersFailedTotal.WithLabelValues("store_error").Inc()
	logger.Error("Order submission failed", zap.Error(err))
	return models.Failed(err.Error()), err
}

func (s *OrderService) afterCommit(ctx context.Context, req *models.OrderRequest, result *models.OrderResult) {
	logger := util.LoggerFromContext(ctx)
	util.OrdersCreatedTotal.Inc()
	util.OrderLinesWrittenTotal.Add(float64(len(result.Lines)))
	util.StockWarningsTotal.Add(float64(len(result.StockWarnings)))

	logger.Info("Order created",
		zap.Int64("order_id", result.OrderID),
		zap.String("customer_code", req.CustomerID),
		zap.String("total", result.Total.StringFixed(2)),
		zap.Int("stock_warnings", len(result.StockWarnings)))

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			logger.Warn("Failed to invalidate catalog cache", zap.Error(err))
		}
	}

	if s.events == nil {
		return
	}

	lines := make([]models.OrderLineData, 0, len(result.Lines))
	for _, l := range result.Lines {
		lines = append(lines, models.OrderLineData{
			ArticleID: l.ArticleID,
			Amount:    l.Amount,
			UnitPrice: l.UnitPrice,
			Discount:  l.Discount,
		})
	}

	created := &models.OrderCreatedEvent{
		BaseEvent:    newBaseEvent(models.EventTypeOrderCreated),
		OrderID:      result.OrderID,
		CustomerCode: req.CustomerID,
		CaseWorkerID: req.CaseWorkerID,
		ShipperID:    req.ShipperID,
		Total:        result.Total,
		Lines:        lines,
	}
	if err := s.events.PublishOrderCreated(ctx, created); err != nil {
		logger.Error("Failed to publish OrderCreated event", zap.Int64("order_id", result.OrderID), zap.Error(err))
	}

	for _, w := range result.StockWarnings {
		event := &models.StockBelowMinimumEvent{
			BaseEvent:    newBaseEvent(models.EventTypeStockBelowMinimum),
			OrderID:      result.OrderID,
			ArticleID:    w.ArticleID,
			ArticleName:  w.ArticleName,
			NewStock:     w.NewStock,
			MinimumStock: w.MinimumStock,
		}
		if err := s.events.PublishStockBelowMinimum(ctx, event); err != nil {
			logger.Error("Failed to publish StockBelowMinimum event",
				zap.Int64("article_id", w.ArticleID), zap.Error(err))
		}
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func (s *OrderService) recorded(ctx context.Context, key string) (models.Outcome, bool) {
	raw, ok, err := s.idempotency.GetIdempotencyRecord(ctx, key)
	if err != nil {
		s.logger.Warn("Failed to read idempotency record", zap.String("idempotency_key", key), zap.Error(err))
		return models.Outcome{}, false
	}
	if !ok {
		return models.Outcome{}, false
	}

	var outcome models.Outcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		s.logger.Warn("Corrupt idempotency record", zap.String("idempotency_key", key), zap.Error(err))
		return models.Outcome{}, false
	}

	s.logger.Info("Duplicate order submission detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", outcome.OrderID))
	return outcome, true
}

func (s *OrderService) record(ctx context.Context, key string, outcome models.Outcome) {
	raw, err := json.Marshal(outcome)
	if err != nil {
		s.logger.Error("Failed to encode outcome", zap.Error(err))
		return
	}
	if err := s.idempotency.SetIdempotencyRecord(ctx, key, raw, s.opts.IdempotencyTTL); err != nil {
		s.logger.Warn("Failed to record idempotency outcome", zap.String("idempotency_key", key), zap.Error(err))
	}
}

// OrderDetails is a persisted order together with its lines
type OrderDetails struct {
	Order *models.Order      `json:"order"`
	Lines []models.OrderLine `json:"lines"`
}

// GetOrder retrieves an order with its lines
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*OrderDetails, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	lines, err := s.store.GetOrderLines(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lines of order %d: %w", orderID, err)
	}
	return &OrderDetails{Order: order, Lines: lines}, nil
}
