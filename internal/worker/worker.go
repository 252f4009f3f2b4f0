package worker

import (
	"context"
	"fmt"

	"order-desk/internal/broker"
	"order-desk/internal/models"
	"order-desk/internal/util"

	"go.uber.org/zap"
)

// StockBoard keeps the latest stock warning per article
type StockBoard interface {
	RecordStockWarning(ctx context.Context, warning models.StockWarning) error
}

// StockWarningWorker maintains the stock-warning board from order events
type StockWarningWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	board        StockBoard
	logger       *zap.Logger
}

// NewStockWarningWorker creates a new stock warning worker
func NewStockWarningWorker(consumer *broker.Consumer, board StockBoard) *StockWarningWorker {
	w := &StockWarningWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		board:        board,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnOrderCreated(w.HandleOrderCreated)
	w.eventHandler.OnStockBelowMinimum(w.HandleStockBelowMinimum)
	return w
}

// Start starts the worker
func (w *StockWarningWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock warning worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockWarningWorker) Stop() error {
	w.logger.Info("Stopping stock warning worker")
	return w.consumer.Close()
}

// HandleOrderCreated logs the committed order. Events without an order id
// or lines are malformed and returned as errors.
func (w *StockWarningWorker) HandleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	ctx, span := util.StartSpan(ctx, "StockWarningWorker.HandleOrderCreated")
	defer span.End()

	if event.OrderID <= 0 || len(event.Lines) == 0 {
		err := fmt.Errorf("malformed %s event %q", event.EventType, event.EventID)
		util.FailSpan(span, err)
		return err
	}

	util.OrderEventsConsumedTotal.WithLabelValues(models.EventTypeOrderCreated).Inc()
	util.LoggerFromContext(ctx).Info("Order committed",
		zap.Int64("order_id", event.OrderID),
		zap.String("customer_code", event.CustomerCode),
		zap.Int("lines", len(event.Lines)),
		zap.String("total", event.Total.StringFixed(2)))
	return nil
}

// HandleStockBelowMinimum records the warning carried by the event
func (w *StockWarningWorker) HandleStockBelowMinimum(ctx context.Context, event *models.StockBelowMinimumEvent) error {
	ctx, span := util.StartSpan(ctx, "StockWarningWorker.HandleStockBelowMinimum")
	defer span.End()

	warning := models.StockWarning{
		ArticleID:    event.ArticleID,
		ArticleName:  event.ArticleName,
		NewStock:     event.NewStock,
		MinimumStock: event.MinimumStock,
	}
	if err := w.board.RecordStockWarning(ctx, warning); err != nil {
		util.FailSpan(span, err)
		return err
	}

	util.OrderEventsConsumedTotal.WithLabelValues(models.EventTypeStockBelowMinimum).Inc()
	w.logger.Info("Stock below minimum",
		zap.Int64("order_id", event.OrderID),
		zap.Int64("article_id", event.ArticleID),
		zap.Int("new_stock", event.NewStock),
		zap.Int("minimum_stock", event.MinimumStock))
	return nil
}
