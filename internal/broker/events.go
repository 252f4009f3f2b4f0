package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"order-desk/internal/models"
	"order-desk/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes order-desk domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderCreated publishes an ORDER_CREATED event keyed by order
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event.EventType, event)
}

// PublishStockBelowMinimum publishes a STOCK_BELOW_MINIMUM event keyed by
// article so warnings for one article stay ordered
func (ep *EventPublisher) PublishStockBelowMinimum(ctx context.Context, event *models.StockBelowMinimumEvent) error {
	key := fmt.Sprintf("article-%d", event.ArticleID)
	return ep.producer.PublishEvent(ctx, key, event.EventType, event)
}

// EventHandler routes incoming events to registered callbacks
type EventHandler struct {
	onOrderCreated      func(context.Context, *models.OrderCreatedEvent) error
	onStockBelowMinimum func(context.Context, *models.StockBelowMinimumEvent) error
	logger              *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderCreated registers a handler for ORDER_CREATED events
func (eh *EventHandler) OnOrderCreated(handler func(context.Context, *models.OrderCreatedEvent) error) {
	eh.onOrderCreated = handler
}

// OnStockBelowMinimum registers a handler for STOCK_BELOW_MINIMUM events
func (eh *EventHandler) OnStockBelowMinimum(handler func(context.Context, *models.StockBelowMinimumEvent) error) {
	eh.onStockBelowMinimum = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderCreated:
		if eh.onOrderCreated != nil {
			var event models.OrderCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderCreated event: %w", err)
			}
			return eh.onOrderCreated(ctx, &event)
		}

	case models.EventTypeStockBelowMinimum:
		if eh.onStockBelowMinimum != nil {
			var event models.StockBelowMinimumEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal StockBelowMinimum event: %w", err)
			}
			return eh.onStockBelowMinimum(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
