package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"order-desk/internal/models"
	"order-desk/internal/store"
	"order-desk/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderPolicy holds the values every new order header is stamped with
type OrderPolicy struct {
	ShippingCost decimal.Decimal
	Recipient    string
	Street       string
	City         string
	Region       string
	PostalCode   string
	Country      string
}

// OrderWriter persists validated orders in a single transaction
type OrderWriter struct {
	store  *store.Store
	policy OrderPolicy
	now    func() time.Time
	logger *zap.Logger
}

func NewOrderWriter(s *store.Store, policy OrderPolicy) *OrderWriter {
	return &OrderWriter{
		store:  s,
		policy: policy,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// CreateOrder allocates the order id, writes header and lines and decrements
// stock. Either everything is committed or nothing is.
func (w *OrderWriter) CreateOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderWriter.CreateOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.OrderWriteLatency.Observe(time.Since(start).Seconds())
	}()

	// lines are written and locked in article id order so concurrent
	// orders always take row locks in the same sequence
	lines := make([]models.OrderLineRequest, len(req.OrderLines))
	copy(lines, req.OrderLines)
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].ArticleID < lines[j].ArticleID
	})

	var result *models.OrderResult
	err := w.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.LockOrderIDs(ctx); err != nil {
			return err
		}
		orderID, err := tx.NextOrderID(ctx)
		if err != nil {
			return err
		}

		now := w.now()
		order := &models.Order{
			ID:                 orderID,
			CustomerCode:       req.CustomerID,
			CaseWorkerID:       req.CaseWorkerID,
			ShipperID:          req.ShipperID,
			OrderedAt:          now,
			DeliveryDate:       now,
			ShippedAt:          now,
			ShippingCost:       w.policy.ShippingCost,
			AdditionalDiscount: req.AdditionalDiscount,
			Recipient:          w.policy.Recipient,
			Street:             w.policy.Street,
			City:               w.policy.City,
			Region:             w.policy.Region,
			PostalCode:         w.policy.PostalCode,
			Country:            w.policy.Country,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		itemsTotal := decimal.Zero
		written := make([]models.OrderLine, 0, len(lines))
		warnings := []models.StockWarning{}
		for _, l := range lines {
			article, err := tx.GetArticleForUpdate(ctx, l.ArticleID)
			if err != nil {
				return err
			}

			line := models.OrderLine{
				OrderID:   orderID,
				ArticleID: article.ID,
				UnitPrice: article.UnitPrice,
				Amount:    l.Amount,
				Discount:  l.DiscountPercent,
			}
			if err := tx.InsertOrderLine(ctx, &line); err != nil {
				return err
			}

			outcome := ComputeLineOutcome(article, l.Amount)
			if outcome.NewStock < math.MinInt32 {
				i := lineIndex(req, article.ID)
				return reject(RejectValueRange, "amount", i,
					"the amount of order line #%d would take the stock of article %d below %d", i, article.ID, math.MinInt32)
			}
			if err := tx.UpdateArticleStock(ctx, article.ID, outcome.NewStock); err != nil {
				return err
			}
			if outcome.Warning != nil {
				warnings = append(warnings, *outcome.Warning)
			}

			itemsTotal = itemsTotal.Add(line.Total())
			written = append(written, line)
		}

		net := itemsTotal.Sub(req.AdditionalDiscount)
		if net.IsNegative() {
			return reject(RejectValueRange, "additionalDiscount", -1, "the additional discount exceeds the order value")
		}

		result = &models.OrderResult{
			OrderID:       orderID,
			Total:         net.Add(w.policy.ShippingCost).Round(2),
			StockWarnings: warnings,
			Lines:         written,
		}
		return nil
	})
	if err != nil {
		err = w.classify(ctx, err)
		if !IsRejection(err) {
			util.FailSpan(span, err)
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("order.id", result.OrderID),
		attribute.Int("order.lines", len(result.Lines)),
	)
	return result, nil
}

// lineIndex returns the request position of the line for articleID
func lineIndex(req *models.OrderRequest, articleID int64) int {
	for i, l := range req.OrderLines {
		if l.ArticleID == articleID {
			return i
		}
	}
	return -1
}

func (w *OrderWriter) classify(ctx context.Context, err error) error {
	var rej *RejectionError
	switch {
	case errors.As(err, &rej):
		return rej
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		w.logger.Warn("Order write timed out", zap.Error(err))
		return ErrOrderTimeout
	case errors.Is(err, store.ErrArticleNotFound):
		return reject(RejectReferential, "articleId", -1, "Could not save the order: %v", err)
	}
	w.logger.Error("Order write rolled back", zap.Error(err))
	return &StoreError{Op: "Could not save the order", Err: err}
}
