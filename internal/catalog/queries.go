package catalog

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type ArticleRow struct {
	ArticleID    int64           `db:"article_id" json:"article_id"`
	ArticleName  string          `db:"article_name" json:"article_name"`
	DeliveryUnit string          `db:"delivery_unit" json:"delivery_unit"`
	UnitPrice    decimal.Decimal `db:"unit_price" json:"unit_price"`
}

type CaseWorkerRow struct {
	CaseWorkerID   int64  `db:"case_worker_id" json:"case_worker_id"`
	CaseWorkerName string `db:"case_worker_name" json:"case_worker_name"`
}

type CustomerRow struct {
	CustomerCode string `db:"customer_code" json:"customer_code"`
	CustomerName string `db:"customer_name" json:"customer_name"`
}

// OrderSummaryRow is one order with its computed totals. OrderDate is epoch milliseconds.
type OrderSummaryRow struct {
	OrderID            int64           `db:"order_id" json:"order_id"`
	CustomerName       string          `db:"customer_name" json:"customer_name"`
	CaseWorkerName     string          `db:"case_worker_name" json:"case_worker_name"`
	OrderDate          int64           `db:"order_date" json:"order_date"`
	ShipperName        string          `db:"shipper_name" json:"shipper_name"`
	ShippingCosts      decimal.Decimal `db:"shipping_costs" json:"shipping_costs"`
	AdditionalDiscount decimal.Decimal `db:"additional_discount" json:"additional_discount"`
	ItemsTotal         decimal.Decimal `db:"total_order_items_price" json:"total_order_items_price"`
	TotalPrice         decimal.Decimal `db:"total_price" json:"total_price"`
}

type ShipperRow struct {
	ShipperID   int64  `db:"shipper_id" json:"shipper_id"`
	ShipperName string `db:"shipper_name" json:"shipper_name"`
}

// DateRangeRow holds nil bounds while no order exists
type DateRangeRow struct {
	MinimumOrderDate *int64 `db:"minimum_order_date" json:"minimum_order_date"`
	MaximumOrderDate *int64 `db:"maximum_order_date" json:"maximum_order_date"`
}

type OrderDetailRow struct {
	ArticleID          int64           `db:"article_id" json:"article_id"`
	ArticleName        string          `db:"article_name" json:"article_name"`
	Amount             int             `db:"amount" json:"amount"`
	UnitPrice          decimal.Decimal `db:"unit_price" json:"unit_price"`
	DiscountPercentage float64         `db:"discount_percentage" json:"discount_percentage"`
	LineTotal          decimal.Decimal `db:"total_order_item_price" json:"total_order_item_price"`
}

type loader func(ctx context.Context, db *sqlx.DB, query string, args ...interface{}) (interface{}, error)

type namedQuery struct {
	sql string
	// param names the required integer parameter, empty when the query takes none
	param string
	load  loader
}

func selectInto[T any](ctx context.Context, db *sqlx.DB, query string, args ...interface{}) (interface{}, error) {
	rows := []T{}
	if err := db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

var queries = map[string]namedQuery{
	"articles": {
		sql: `
			SELECT id AS article_id, name AS article_name, delivery_unit, unit_price
			FROM articles
			ORDER BY article_name ASC`,
		load: selectInto[ArticleRow],
	},
	"caseWorkers": {
		sql: `
			SELECT id AS case_worker_id, first_name || ' ' || last_name AS case_worker_name
			FROM case_workers
			ORDER BY case_worker_name ASC`,
		load: selectInto[CaseWorkerRow],
	},
	"customers": {
		sql: `
			SELECT code AS customer_code, name AS customer_name
			FROM customers
			ORDER BY customer_code ASC`,
		load: selectInto[CustomerRow],
	},
	"orders": {
		sql: `
			SELECT s.*, ROUND(s.total_order_items_price + s.shipping_costs - s.additional_discount, 2) AS total_price
			FROM (
				SELECT
					o.id AS order_id,
					c.name AS customer_name,
					cw.first_name || ' ' || cw.last_name AS case_worker_name,
					(EXTRACT(EPOCH FROM o.ordered_at) * 1000)::BIGINT AS order_date,
					sh.name AS shipper_name,
					o.shipping_cost AS shipping_costs,
					o.additional_discount,
					ROUND(SUM(ol.unit_price * ol.amount * (1 - ol.discount::NUMERIC)), 2) AS total_order_items_price
				FROM orders o
				JOIN order_lines ol ON ol.order_id = o.id
				JOIN customers c ON c.code = o.customer_code
				JOIN case_workers cw ON cw.id = o.case_worker_id
				JOIN shippers sh ON sh.id = o.shipper_id
				GROUP BY o.id, c.name, cw.first_name, cw.last_name, sh.name
			) s
			ORDER BY s.order_id ASC`,
		load: selectInto[OrderSummaryRow],
	},
	"shippers": {
		sql: `
			SELECT id AS shipper_id, name AS shipper_name
			FROM shippers
			ORDER BY shipper_name ASC`,
		load: selectInto[ShipperRow],
	},
	"dateRange": {
		sql: `
			SELECT
				(EXTRACT(EPOCH FROM MIN(ordered_at)) * 1000)::BIGINT AS minimum_order_date,
				(EXTRACT(EPOCH FROM MAX(ordered_at)) * 1000)::BIGINT AS maximum_order_date
			FROM orders`,
		load: selectInto[DateRangeRow],
	},
	"orderDetails": {
		sql: `
			SELECT
				a.id AS article_id,
				a.name AS article_name,
				ol.amount,
				ol.unit_price,
				ol.discount AS discount_percentage,
				ROUND(ol.unit_price * ol.amount * (1 - ol.discount::NUMERIC), 2) AS total_order_item_price
			FROM order_lines ol
			JOIN articles a ON a.id = ol.article_id
			WHERE ol.order_id = $1
			ORDER BY article_name ASC`,
		param: "orderId",
		load:  selectInto[OrderDetailRow],
	},
}
