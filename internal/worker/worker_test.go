package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"order-desk/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBoard struct {
	warnings []models.StockWarning
	err      error
}

func (b *recordingBoard) RecordStockWarning(_ context.Context, warning models.StockWarning) error {
	if b.err != nil {
		return b.err
	}
	b.warnings = append(b.warnings, warning)
	return nil
}

func TestHandleStockBelowMinimumRecordsWarning(t *testing.T) {
	board := &recordingBoard{}
	w := NewStockWarningWorker(nil, board)

	err := w.HandleStockBelowMinimum(context.Background(), &models.StockBelowMinimumEvent{
		OrderID:      10249,
		ArticleID:    11,
		ArticleName:  "Queso Cabrales",
		NewStock:     3,
		MinimumStock: 30,
	})

	require.NoError(t, err)
	assert.Equal(t, []models.StockWarning{
		{ArticleID: 11, ArticleName: "Queso Cabrales", NewStock: 3, MinimumStock: 30},
	}, board.warnings)
}

func TestHandleStockBelowMinimumPropagatesBoardError(t *testing.T) {
	board := &recordingBoard{err: errors.New("redis down")}
	w := NewStockWarningWorker(nil, board)

	err := w.HandleStockBelowMinimum(context.Background(), &models.StockBelowMinimumEvent{ArticleID: 7})

	assert.EqualError(t, err, "redis down")
}

func orderCreatedMessage(t *testing.T, event models.OrderCreatedEvent) kafka.Message {
	t.Helper()
	event.EventType = models.EventTypeOrderCreated
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: value}
}

func TestWorkerHandlesOrderCreatedMessages(t *testing.T) {
	board := &recordingBoard{}
	w := NewStockWarningWorker(nil, board)

	err := w.eventHandler.HandleMessage(context.Background(), orderCreatedMessage(t, models.OrderCreatedEvent{
		BaseEvent:    models.BaseEvent{EventID: "e-1"},
		OrderID:      10249,
		CustomerCode: "ALFKI",
		Total:        decimal.RequireFromString("49.30"),
		Lines:        []models.OrderLineData{{ArticleID: 7, Amount: 1, UnitPrice: decimal.RequireFromString("10.00")}},
	}))

	assert.NoError(t, err)
	assert.Empty(t, board.warnings)
}

func TestWorkerRejectsOrderCreatedWithoutLines(t *testing.T) {
	w := NewStockWarningWorker(nil, &recordingBoard{})

	err := w.eventHandler.HandleMessage(context.Background(), orderCreatedMessage(t, models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{EventID: "e-2"},
		OrderID:   10249,
	}))

	assert.EqualError(t, err, `malformed ORDER_CREATED event "e-2"`)
}
