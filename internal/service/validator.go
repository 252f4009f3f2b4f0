package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"order-desk/internal/models"
	"order-desk/internal/util"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReferenceChecker is the read access needed to resolve order references
type ReferenceChecker interface {
	CountCustomers(ctx context.Context, code string) (int, error)
	CountCaseWorkers(ctx context.Context, id int64) (int, error)
	CountShippers(ctx context.Context, id int64) (int, error)
	ExistingArticleIDs(ctx context.Context, ids []int64) ([]int64, error)
}

// OrderValidator turns a raw submission into a checked OrderRequest
type OrderValidator struct {
	refs     ReferenceChecker
	validate *validator.Validate
	logger   *zap.Logger
}

func NewOrderValidator(refs ReferenceChecker) *OrderValidator {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return &OrderValidator{
		refs:     refs,
		validate: v,
		logger:   util.GetLogger(),
	}
}

// Validate runs the structural and value checks, then resolves every reference
// against the store. The first failure is returned as a *RejectionError; store
// failures are returned as *StoreError.
func (v *OrderValidator) Validate(ctx context.Context, payload []byte) (*models.OrderRequest, error) {
	ctx, span := util.StartSpan(ctx, "OrderValidator.Validate")
	defer span.End()

	start := time.Now()
	defer func() {
		util.OrderValidationLatency.Observe(time.Since(start).Seconds())
	}()

	req, err := v.Check(payload)
	if err != nil {
		return nil, err
	}

	if err := v.checkReferences(ctx, req); err != nil {
		if !IsRejection(err) {
			util.FailSpan(span, err)
		}
		return nil, err
	}
	return req, nil
}

// Check performs the checks that need no store access
func (v *OrderValidator) Check(payload []byte) (*models.OrderRequest, error) {
	req, err := parseOrder(payload)
	if err != nil {
		return nil, err
	}

	if err := v.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return nil, valueRejection(fieldErrs[0])
		}
		return nil, err
	}

	seen := make(map[int64]struct{}, len(req.OrderLines))
	for i, line := range req.OrderLines {
		if _, dup := seen[line.ArticleID]; dup {
			return nil, reject(RejectValueRange, "articleId", i,
				"order line #%d repeats article id %d", i, line.ArticleID)
		}
		seen[line.ArticleID] = struct{}{}
	}
	return req, nil
}

var lineIndexPattern = regexp.MustCompile(`OrderLines\[(\d+)\]`)

func valueRejection(fe validator.FieldError) *RejectionError {
	line := -1
	if m := lineIndexPattern.FindStringSubmatch(fe.Namespace()); m != nil {
		line, _ = strconv.Atoi(m[1])
	}

	switch fe.Field() {
	case "Amount":
		if fe.Tag() == "lte" {
			return reject(RejectValueRange, "amount", line,
				"the amount of order line #%d must not exceed %d", line, math.MaxInt32)
		}
		return reject(RejectValueRange, "amount", line,
			"the amount of order line #%d must be greater than zero", line)
	case "DiscountPercent":
		return reject(RejectValueRange, "discountPercent", line,
			"the discount percent of order line #%d must be between 0 and 1", line)
	case "AdditionalDiscount":
		return reject(RejectValueRange, "additionalDiscount", -1,
			"the additional discount of the order must not be negative")
	case "OrderLines":
		return reject(RejectStructural, "orderLines", -1, "the order contains no line items")
	}
	return reject(RejectValueRange, fe.Field(), line, "the field %s failed the %s check", fe.Namespace(), fe.Tag())
}

func parseOrder(payload []byte) (*models.OrderRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return nil, reject(RejectStructural, "", -1, "the order is not a JSON object")
	}

	req := &models.OrderRequest{}

	raw, ok := present(fields, "customerId")
	if !ok {
		return nil, reject(RejectStructural, "customerId", -1, "the order contains no customer id field")
	}
	if err := json.Unmarshal(raw, &req.CustomerID); err != nil {
		return nil, reject(RejectStructural, "customerId", -1, "the customer id of the order is not a string")
	}

	var err error
	if req.CaseWorkerID, err = requireInt(fields, "caseWorkerId", "case worker id"); err != nil {
		return nil, err
	}
	if req.ShipperID, err = requireInt(fields, "shipperId", "shipper id"); err != nil {
		return nil, err
	}

	if raw, ok := present(fields, "additionalDiscount"); ok {
		d, ok := parseDecimal(raw)
		if !ok {
			return nil, reject(RejectStructural, "additionalDiscount", -1,
				"the additional discount of the order is not a number")
		}
		req.AdditionalDiscount = d
	}

	raw, ok = present(fields, "orderLines")
	if !ok {
		return nil, reject(RejectStructural, "orderLines", -1, "the order contains no order lines field")
	}
	var lines []json.RawMessage
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, reject(RejectStructural, "orderLines", -1, "the order lines field of the order is not an array")
	}
	if len(lines) == 0 {
		return nil, reject(RejectStructural, "orderLines", -1, "the order contains no line items")
	}

	req.OrderLines = make([]models.OrderLineRequest, len(lines))
	for i, rawLine := range lines {
		line, err := parseLine(i, rawLine)
		if err != nil {
			return nil, err
		}
		req.OrderLines[i] = *line
	}
	return req, nil
}

func parseLine(i int, raw json.RawMessage) (*models.OrderLineRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, reject(RejectStructural, "orderLines", i, "order line #%d is not an object", i)
	}

	line := &models.OrderLineRequest{}

	rawID, ok := present(fields, "articleId")
	if !ok {
		return nil, reject(RejectStructural, "articleId", i, "order line #%d contains no article id field", i)
	}
	if line.ArticleID, ok = parseInt(rawID); !ok {
		return nil, reject(RejectStructural, "articleId", i, "the article id of order line #%d is not an integer", i)
	}

	rawAmount, ok := present(fields, "amount")
	if !ok {
		return nil, reject(RejectStructural, "amount", i, "order line #%d contains no amount field", i)
	}
	amount, ok := parseInt(rawAmount)
	if !ok {
		return nil, reject(RejectStructural, "amount", i, "the amount of order line #%d is not an integer", i)
	}
	line.Amount = int(amount)

	rawDiscount, ok := present(fields, "discountPercent")
	if !ok {
		return nil, reject(RejectStructural, "discountPercent", i, "order line #%d contains no discount percent field", i)
	}
	if line.DiscountPercent, ok = parseFloat(rawDiscount); !ok {
		return nil, reject(RejectStructural, "discountPercent", i, "the discount percent of order line #%d is not a number", i)
	}
	return line, nil
}

func requireInt(fields map[string]json.RawMessage, key, label string) (int64, error) {
	raw, ok := present(fields, key)
	if !ok {
		return 0, reject(RejectStructural, key, -1, "the order contains no %s field", label)
	}
	n, ok := parseInt(raw)
	if !ok {
		return 0, reject(RejectStructural, key, -1, "the %s of the order is not an integer", label)
	}
	return n, nil
}

// present treats an explicit null like a missing key
func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

// scalar returns the text of a JSON number or string
func scalar(raw json.RawMessage) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	switch t := v.(type) {
	case json.Number:
		return t.String(), true
	case string:
		return t, true
	}
	return "", false
}

func parseInt(raw json.RawMessage) (int64, bool) {
	text, ok := scalar(raw)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(text, 10, 64)
	return n, err == nil
}

func parseFloat(raw json.RawMessage) (float64, bool) {
	text, ok := scalar(raw)
	if !ok || strings.TrimSpace(text) != text {
		return 0, false
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	text, ok := scalar(raw)
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(text)
	return d, err == nil
}

type referenceResult struct {
	customers, caseWorkers, shippers int
	foundArticles                    []int64
}

// checkReferences runs the four lookups concurrently and reports failures in
// a fixed order so the message does not depend on scheduling.
func (v *OrderValidator) checkReferences(ctx context.Context, req *models.OrderRequest) error {
	var res referenceResult
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := v.refs.CountCustomers(gctx, req.CustomerID)
		res.customers = n
		return wrapLookup("customers", err)
	})
	g.Go(func() error {
		n, err := v.refs.CountCaseWorkers(gctx, req.CaseWorkerID)
		res.caseWorkers = n
		return wrapLookup("case workers", err)
	})
	g.Go(func() error {
		n, err := v.refs.CountShippers(gctx, req.ShipperID)
		res.shippers = n
		return wrapLookup("shippers", err)
	})
	g.Go(func() error {
		found, err := v.refs.ExistingArticleIDs(gctx, req.ArticleIDs())
		res.foundArticles = found
		return wrapLookup("articles", err)
	})

	if err := g.Wait(); err != nil {
		v.logger.Error("Reference lookup failed", zap.Error(err))
		return err
	}

	if err := expectOne(res.customers, "customerId", "customer", fmt.Sprintf("customer code %q", req.CustomerID)); err != nil {
		return err
	}
	if err := expectOne(res.caseWorkers, "caseWorkerId", "case worker", fmt.Sprintf("case worker id %d", req.CaseWorkerID)); err != nil {
		return err
	}
	if err := expectOne(res.shippers, "shipperId", "shipper", fmt.Sprintf("shipper id %d", req.ShipperID)); err != nil {
		return err
	}

	found := make(map[int64]struct{}, len(res.foundArticles))
	for _, id := range res.foundArticles {
		found[id] = struct{}{}
	}
	var missing []string
	for _, id := range req.ArticleIDs() {
		if _, ok := found[id]; !ok {
			missing = append(missing, strconv.FormatInt(id, 10))
		}
	}
	if len(missing) > 0 {
		return reject(RejectReferential, "articleId", -1,
			"Could not find the articles with the id(s) %s", strings.Join(missing, ","))
	}
	return nil
}

func wrapLookup(what string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: "failed to look up " + what, Err: err}
}

func expectOne(count int, field, entity, key string) error {
	switch {
	case count == 0:
		return reject(RejectReferential, field, -1, "Could not find %s with %s", entity, key)
	case count > 1:
		return reject(RejectReferential, field, -1, "Found multiple %ss with %s", entity, key)
	}
	return nil
}
