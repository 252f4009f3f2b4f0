package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"order-desk/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: value}
}

func TestHandleMessageRoutesStockBelowMinimum(t *testing.T) {
	h := NewEventHandler()

	var got *models.StockBelowMinimumEvent
	h.OnStockBelowMinimum(func(_ context.Context, e *models.StockBelowMinimumEvent) error {
		got = e
		return nil
	})

	err := h.HandleMessage(context.Background(), message(t, models.StockBelowMinimumEvent{
		BaseEvent:    models.BaseEvent{EventID: "e-1", EventType: models.EventTypeStockBelowMinimum, Timestamp: time.Now()},
		OrderID:      10249,
		ArticleID:    11,
		ArticleName:  "Queso Cabrales",
		NewStock:     3,
		MinimumStock: 30,
	}))

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(11), got.ArticleID)
	assert.Equal(t, 3, got.NewStock)
}

func TestHandleMessageRoutesOrderCreated(t *testing.T) {
	h := NewEventHandler()

	var got *models.OrderCreatedEvent
	h.OnOrderCreated(func(_ context.Context, e *models.OrderCreatedEvent) error {
		got = e
		return nil
	})

	err := h.HandleMessage(context.Background(), message(t, models.OrderCreatedEvent{
		BaseEvent:    models.BaseEvent{EventID: "e-3", EventType: models.EventTypeOrderCreated},
		OrderID:      10249,
		CustomerCode: "ALFKI",
		Lines:        []models.OrderLineData{{ArticleID: 7, Amount: 1}},
	}))

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(10249), got.OrderID)
	assert.Len(t, got.Lines, 1)
}

func TestHandleMessageIgnoresUnregisteredTypes(t *testing.T) {
	h := NewEventHandler()
	called := false
	h.OnStockBelowMinimum(func(context.Context, *models.StockBelowMinimumEvent) error {
		called = true
		return nil
	})

	err := h.HandleMessage(context.Background(), message(t, models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{EventID: "e-2", EventType: models.EventTypeOrderCreated},
		OrderID:   10249,
	}))

	assert.NoError(t, err)
	assert.False(t, called)
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	h := NewEventHandler()

	err := h.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})

	assert.Error(t, err)
}

func TestHeaderCarrierRoundTrip(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{{Key: eventTypeHeader, Value: []byte(models.EventTypeOrderCreated)}}}
	carrier := headerCarrier{msg: &msg}

	carrier.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	carrier.Set(eventTypeHeader, models.EventTypeStockBelowMinimum)

	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", carrier.Get("traceparent"))
	assert.Equal(t, models.EventTypeStockBelowMinimum, carrier.Get(eventTypeHeader))
	assert.ElementsMatch(t, []string{eventTypeHeader, "traceparent"}, carrier.Keys())
	assert.Empty(t, carrier.Get("missing"))
}
