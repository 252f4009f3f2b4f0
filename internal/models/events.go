package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated      = "ORDER_CREATED"
	EventTypeStockBelowMinimum = "STOCK_BELOW_MINIMUM"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is committed
type OrderCreatedEvent struct {
	BaseEvent
	OrderID      int64           `json:"order_id"`
	CustomerCode string          `json:"customer_code"`
	CaseWorkerID int64           `json:"case_worker_id"`
	ShipperID    int64           `json:"shipper_id"`
	Total        decimal.Decimal `json:"total"`
	Lines        []OrderLineData `json:"lines"`
}

// StockBelowMinimumEvent published for every stock warning of a committed order
type StockBelowMinimumEvent struct {
	BaseEvent
	OrderID      int64  `json:"order_id"`
	ArticleID    int64  `json:"article_id"`
	ArticleName  string `json:"article_name"`
	NewStock     int    `json:"new_stock"`
	MinimumStock int    `json:"minimum_stock"`
}

// OrderLineData represents line data in events
type OrderLineData struct {
	ArticleID int64           `json:"article_id"`
	Amount    int             `json:"amount"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  float64         `json:"discount"`
}
