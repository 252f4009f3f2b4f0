package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Article represents an inventory article
type Article struct {
	ID           int64           `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	DeliveryUnit string          `db:"delivery_unit" json:"delivery_unit"`
	UnitPrice    decimal.Decimal `db:"unit_price" json:"unit_price"`
	Stock        int             `db:"stock" json:"stock"`
	MinimumStock int             `db:"minimum_stock" json:"minimum_stock"`
}

// Customer represents a customer, identified by its customer code
type Customer struct {
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

// CaseWorker represents the employee handling an order
type CaseWorker struct {
	ID        int64  `db:"id" json:"id"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
}

// Shipper represents a shipping company
type Shipper struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Order represents a persisted order header
type Order struct {
	ID                 int64           `db:"id" json:"id"`
	CustomerCode       string          `db:"customer_code" json:"customer_code"`
	CaseWorkerID       int64           `db:"case_worker_id" json:"case_worker_id"`
	ShipperID          int64           `db:"shipper_id" json:"shipper_id"`
	OrderedAt          time.Time       `db:"ordered_at" json:"ordered_at"`
	DeliveryDate       time.Time       `db:"delivery_date" json:"delivery_date"`
	ShippedAt          time.Time       `db:"shipped_at" json:"shipped_at"`
	ShippingCost       decimal.Decimal `db:"shipping_cost" json:"shipping_cost"`
	AdditionalDiscount decimal.Decimal `db:"additional_discount" json:"additional_discount"`
	Recipient          string          `db:"recipient" json:"recipient"`
	Street             string          `db:"street" json:"street"`
	City               string          `db:"city" json:"city"`
	Region             string          `db:"region" json:"region"`
	PostalCode         string          `db:"postal_code" json:"postal_code"`
	Country            string          `db:"country" json:"country"`
}

// OrderLine represents one article entry of a persisted order
type OrderLine struct {
	OrderID   int64           `db:"order_id" json:"order_id"`
	ArticleID int64           `db:"article_id" json:"article_id"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	Amount    int             `db:"amount" json:"amount"`
	Discount  float64         `db:"discount" json:"discount"`
}

// Total returns amount × unit price × (1 − discount)
func (l OrderLine) Total() decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(l.Discount))
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Amount))).Mul(factor)
}

// OrderLineRequest is one validated line of an order submission
type OrderLineRequest struct {
	ArticleID       int64   `json:"articleId"`
	Amount          int     `json:"amount" validate:"gt=0,lte=2147483647"`
	DiscountPercent float64 `json:"discountPercent" validate:"gte=0,lte=1"`
}

// OrderRequest is a validated order submission
type OrderRequest struct {
	CustomerID         string             `json:"customerId"`
	CaseWorkerID       int64              `json:"caseWorkerId"`
	ShipperID          int64              `json:"shipperId"`
	OrderLines         []OrderLineRequest `json:"orderLines" validate:"min=1,dive"`
	AdditionalDiscount decimal.Decimal    `json:"additionalDiscount" validate:"gte=0"`
}

// ArticleIDs returns the article ids of all lines in request order
func (r *OrderRequest) ArticleIDs() []int64 {
	ids := make([]int64, len(r.OrderLines))
	for i, line := range r.OrderLines {
		ids[i] = line.ArticleID
	}
	return ids
}

// StockWarning reports an article whose stock fell below its minimum
type StockWarning struct {
	ArticleID    int64  `json:"articleId"`
	ArticleName  string `json:"articleName"`
	NewStock     int    `json:"newStock"`
	MinimumStock int    `json:"minimumStock"`
}

// OrderResult is the outcome of a committed order
type OrderResult struct {
	OrderID       int64           `json:"orderId"`
	Total         decimal.Decimal `json:"total"`
	StockWarnings []StockWarning  `json:"stockWarnings"`
	Lines         []OrderLine     `json:"-"`
}

// Outcome is the answer to an order submission
type Outcome struct {
	Success       bool            `json:"success"`
	OrderID       int64           `json:"orderId"`
	Total         decimal.Decimal `json:"total"`
	StockWarnings []StockWarning  `json:"stockWarnings"`
	ErrorMessage  string          `json:"errorMessage"`
}

// Succeeded builds the outcome of a committed order
func Succeeded(result *OrderResult) Outcome {
	return Outcome{
		Success:       true,
		OrderID:       result.OrderID,
		Total:         result.Total,
		StockWarnings: result.StockWarnings,
	}
}

// Failed builds the outcome of a rejected or failed order
func Failed(message string) Outcome {
	return Outcome{Success: false, ErrorMessage: message}
}

// MarshalJSON writes only the fields that belong to the outcome's shape
func (o Outcome) MarshalJSON() ([]byte, error) {
	if !o.Success {
		return json.Marshal(struct {
			Success      bool   `json:"success"`
			ErrorMessage string `json:"errorMessage"`
		}{false, o.ErrorMessage})
	}

	warnings := o.StockWarnings
	if warnings == nil {
		warnings = []StockWarning{}
	}
	return json.Marshal(struct {
		Success       bool            `json:"success"`
		OrderID       int64           `json:"orderId"`
		Total         decimal.Decimal `json:"total"`
		StockWarnings []StockWarning  `json:"stockWarnings"`
	}{true, o.OrderID, o.Total, warnings})
}
