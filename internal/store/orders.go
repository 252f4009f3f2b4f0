package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"order-desk/internal/models"
)

// orderIDLockKey is the advisory lock serializing order id allocation
const orderIDLockKey int64 = 0x6f726465

var (
	ErrArticleNotFound = errors.New("article not found")
	ErrOrderNotFound   = errors.New("order not found")
)

// LockOrderIDs takes the transaction-scoped order id lock. It is released by
// COMMIT or ROLLBACK.
func (t *Tx) LockOrderIDs(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", orderIDLockKey)
	if err != nil {
		return fmt.Errorf("failed to lock order ids: %w", err)
	}
	return nil
}

// NextOrderID returns the highest order id plus one, or 1 for an empty table
func (t *Tx) NextOrderID(ctx context.Context) (int64, error) {
	var id int64
	err := t.tx.GetContext(ctx, &id, "SELECT COALESCE(MAX(id), 0) + 1 FROM orders")
	if err != nil {
		return 0, fmt.Errorf("failed to allocate order id: %w", err)
	}
	return id, nil
}

// InsertOrder inserts an order header
func (t *Tx) InsertOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (id, customer_code, case_worker_id, shipper_id, ordered_at, delivery_date, shipped_at,
			shipping_cost, additional_discount, recipient, street, city, region, postal_code, country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := t.tx.ExecContext(ctx, query,
		order.ID, order.CustomerCode, order.CaseWorkerID, order.ShipperID,
		order.OrderedAt, order.DeliveryDate, order.ShippedAt,
		order.ShippingCost, order.AdditionalDiscount,
		order.Recipient, order.Street, order.City, order.Region, order.PostalCode, order.Country)
	if err != nil {
		return fmt.Errorf("failed to insert order %d: %w", order.ID, err)
	}
	return nil
}

// GetArticleForUpdate reads an article and locks its row until the transaction ends
func (t *Tx) GetArticleForUpdate(ctx context.Context, id int64) (*models.Article, error) {
	var article models.Article
	err := t.tx.GetContext(ctx, &article, `
		SELECT id, name, delivery_unit, unit_price, stock, minimum_stock
		FROM articles
		WHERE id = $1
		FOR UPDATE`, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrArticleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock article %d: %w", id, err)
	}
	return &article, nil
}

// InsertOrderLine inserts one order line
func (t *Tx) InsertOrderLine(ctx context.Context, line *models.OrderLine) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO order_lines (order_id, article_id, unit_price, amount, discount)
		VALUES ($1, $2, $3, $4, $5)`,
		line.OrderID, line.ArticleID, line.UnitPrice, line.Amount, line.Discount)
	if err != nil {
		return fmt.Errorf("failed to insert line for article %d: %w", line.ArticleID, err)
	}
	return nil
}

// UpdateArticleStock sets the stock of an article
func (t *Tx) UpdateArticleStock(ctx context.Context, articleID int64, stock int) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE articles SET stock = $1 WHERE id = $2",
		stock, articleID)
	if err != nil {
		return fmt.Errorf("failed to update stock of article %d: %w", articleID, err)
	}
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderLines retrieves all lines of an order
func (s *Store) GetOrderLines(ctx context.Context, orderID int64) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := s.db.SelectContext(ctx, &lines,
		"SELECT * FROM order_lines WHERE order_id = $1 ORDER BY article_id", orderID)
	return lines, err
}

// GetArticle retrieves an article by ID
func (s *Store) GetArticle(ctx context.Context, id int64) (*models.Article, error) {
	var article models.Article
	err := s.db.GetContext(ctx, &article,
		"SELECT id, name, delivery_unit, unit_price, stock, minimum_stock FROM articles WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrArticleNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &article, nil
}
