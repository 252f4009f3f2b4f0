package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRefs struct {
	mock.Mock
}

func (m *mockRefs) CountCustomers(ctx context.Context, code string) (int, error) {
	args := m.Called(ctx, code)
	return args.Int(0), args.Error(1)
}

func (m *mockRefs) CountCaseWorkers(ctx context.Context, id int64) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *mockRefs) CountShippers(ctx context.Context, id int64) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *mockRefs) ExistingArticleIDs(ctx context.Context, ids []int64) ([]int64, error) {
	args := m.Called(ctx, ids)
	found, _ := args.Get(0).([]int64)
	return found, args.Error(1)
}

// validRefs answers every lookup with exactly one match
func validRefs() *mockRefs {
	refs := &mockRefs{}
	refs.On("CountCustomers", mock.Anything, "ALFKI").Return(1, nil)
	refs.On("CountCaseWorkers", mock.Anything, int64(3)).Return(1, nil)
	refs.On("CountShippers", mock.Anything, int64(1)).Return(1, nil)
	return refs
}

const validOrder = `{
	"customerId": "ALFKI",
	"caseWorkerId": 3,
	"shipperId": "1",
	"orderLines": [
		{"articleId": 11, "amount": 2, "discountPercent": 0.1},
		{"articleId": "7", "amount": "1", "discountPercent": "0"}
	]
}`

func requireRejection(t *testing.T, err error, kind RejectionKind, message string) *RejectionError {
	t.Helper()
	var rej *RejectionError
	require.True(t, errors.As(err, &rej), "expected a rejection, got %v", err)
	assert.Equal(t, kind, rej.Kind)
	assert.Equal(t, message, rej.Message)
	return rej
}

func TestValidateAcceptsNumbersAndNumericStrings(t *testing.T) {
	refs := validRefs()
	refs.On("ExistingArticleIDs", mock.Anything, []int64{11, 7}).Return([]int64{7, 11}, nil)
	v := NewOrderValidator(refs)

	req, err := v.Validate(context.Background(), []byte(validOrder))

	require.NoError(t, err)
	assert.Equal(t, "ALFKI", req.CustomerID)
	assert.Equal(t, int64(3), req.CaseWorkerID)
	assert.Equal(t, int64(1), req.ShipperID)
	require.Len(t, req.OrderLines, 2)
	assert.Equal(t, int64(11), req.OrderLines[0].ArticleID)
	assert.Equal(t, 0.1, req.OrderLines[0].DiscountPercent)
	assert.Equal(t, 1, req.OrderLines[1].Amount)
	assert.True(t, req.AdditionalDiscount.IsZero())
	refs.AssertExpectations(t)
}

func TestCheckStructuralRejections(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		message string
	}{
		{"not an object", `[1,2]`, "the order is not a JSON object"},
		{"missing customer", `{"caseWorkerId":3,"shipperId":1,"orderLines":[]}`, "the order contains no customer id field"},
		{"customer not a string", `{"customerId":17,"caseWorkerId":3,"shipperId":1,"orderLines":[]}`, "the customer id of the order is not a string"},
		{"null case worker", `{"customerId":"ALFKI","caseWorkerId":null,"shipperId":1,"orderLines":[]}`, "the order contains no case worker id field"},
		{"fractional shipper", `{"customerId":"ALFKI","caseWorkerId":3,"shipperId":1.5,"orderLines":[]}`, "the shipper id of the order is not an integer"},
		{"missing lines", `{"customerId":"ALFKI","caseWorkerId":3,"shipperId":1}`, "the order contains no order lines field"},
		{"lines not an array", `{"customerId":"ALFKI","caseWorkerId":3,"shipperId":1,"orderLines":{}}`, "the order lines field of the order is not an array"},
		{"empty lines", `{"customerId":"ALFKI","caseWorkerId":3,"shipperId":1,"orderLines":[]}`, "the order contains no line items"},
		{"line not an object", `{"customerId":"ALFKI","caseWorkerId":3,"shipperId":1,"orderLines":["7"]}`, "order line #0 is not an object"},
		{"article id text", `{"customerId":"ALFKI","caseWorkerId":3,"shipperId":1,"orderLines":[{"articleId":7,"amount":1,"discountPercent":0},{"articleId":"seven","amount":1,"discountPercent":0}]}`, "the article id of order line #1 is not an integer"},
		{"missing amount", `{"customerId":"ALFKI","caseWorkerId":3,"shipperId":1,"orderLines":[{"articleId":7,"discountPercent":0}]}`, "order line #0 contains no amount field"},
		{"discount not a number", `{"customerId":"ALFKI","caseWorkerId":3,"shipperId":1,"orderLines":[{"articleId":7,"amount":1,"discountPercent":true}]}`, "the discount percent of order line #0 is not a number"},
		{"additional discount text", `{"customerId":"ALFKI","caseWorkerId":3,"shipperId":1,"additionalDiscount":"a lot","orderLines":[{"articleId":7,"amount":1,"discountPercent":0}]}`, "the additional discount of the order is not a number"},
	}

	v := NewOrderValidator(&mockRefs{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Check([]byte(tt.payload))
			requireRejection(t, err, RejectStructural, tt.message)
		})
	}
}

func TestCheckValueRangeRejections(t *testing.T) {
	tests := []struct {
		name    string
		lines   string
		extra   string
		message string
		line    int
	}{
		{"zero amount", `[{"articleId":7,"amount":1,"discountPercent":0},{"articleId":11,"amount":0,"discountPercent":0}]`, "", "the amount of order line #1 must be greater than zero", 1},
		{"negative amount", `[{"articleId":7,"amount":-4,"discountPercent":0}]`, "", "the amount of order line #0 must be greater than zero", 0},
		{"amount beyond int32", `[{"articleId":7,"amount":1,"discountPercent":0},{"articleId":11,"amount":3000000000,"discountPercent":0}]`, "", "the amount of order line #1 must not exceed 2147483647", 1},
		{"discount above one", `[{"articleId":7,"amount":1,"discountPercent":1.5}]`, "", "the discount percent of order line #0 must be between 0 and 1", 0},
		{"negative discount", `[{"articleId":7,"amount":1,"discountPercent":-0.1}]`, "", "the discount percent of order line #0 must be between 0 and 1", 0},
		{"duplicate article", `[{"articleId":7,"amount":1,"discountPercent":0},{"articleId":11,"amount":1,"discountPercent":0},{"articleId":7,"amount":2,"discountPercent":0}]`, "", "order line #2 repeats article id 7", 2},
		{"negative additional discount", `[{"articleId":7,"amount":1,"discountPercent":0}]`, `,"additionalDiscount":-5`, "the additional discount of the order must not be negative", -1},
	}

	v := NewOrderValidator(&mockRefs{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := `{"customerId":"ALFKI","caseWorkerId":3,"shipperId":1,"orderLines":` + tt.lines + tt.extra + `}`
			_, err := v.Check([]byte(payload))
			rej := requireRejection(t, err, RejectValueRange, tt.message)
			assert.Equal(t, tt.line, rej.Line)
		})
	}
}

func TestCheckAcceptsBoundaryDiscounts(t *testing.T) {
	v := NewOrderValidator(&mockRefs{})

	req, err := v.Check([]byte(`{"customerId":"ALFKI","caseWorkerId":3,"shipperId":1,"additionalDiscount":"2.50",
		"orderLines":[{"articleId":7,"amount":1,"discountPercent":0},{"articleId":11,"amount":1,"discountPercent":1}]}`))

	require.NoError(t, err)
	assert.Equal(t, "2.5", req.AdditionalDiscount.String())
}

func TestValidateReferentialRejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(refs *mockRefs)
		message string
	}{
		{
			name: "unknown customer",
			setup: func(refs *mockRefs) {
				refs.On("CountCustomers", mock.Anything, "ALFKI").Return(0, nil)
				refs.On("CountCaseWorkers", mock.Anything, int64(3)).Return(1, nil)
				refs.On("CountShippers", mock.Anything, int64(1)).Return(1, nil)
				refs.On("ExistingArticleIDs", mock.Anything, mock.Anything).Return([]int64{7, 11}, nil)
			},
			message: `Could not find customer with customer code "ALFKI"`,
		},
		{
			name: "ambiguous case worker",
			setup: func(refs *mockRefs) {
				refs.On("CountCustomers", mock.Anything, "ALFKI").Return(1, nil)
				refs.On("CountCaseWorkers", mock.Anything, int64(3)).Return(2, nil)
				refs.On("CountShippers", mock.Anything, int64(1)).Return(1, nil)
				refs.On("ExistingArticleIDs", mock.Anything, mock.Anything).Return([]int64{7, 11}, nil)
			},
			message: "Found multiple case workers with case worker id 3",
		},
		{
			name: "customer reported before shipper",
			setup: func(refs *mockRefs) {
				refs.On("CountCustomers", mock.Anything, "ALFKI").Return(0, nil)
				refs.On("CountCaseWorkers", mock.Anything, int64(3)).Return(1, nil)
				refs.On("CountShippers", mock.Anything, int64(1)).Return(0, nil)
				refs.On("ExistingArticleIDs", mock.Anything, mock.Anything).Return([]int64{7, 11}, nil)
			},
			message: `Could not find customer with customer code "ALFKI"`,
		},
		{
			name: "missing articles",
			setup: func(refs *mockRefs) {
				refs.On("CountCustomers", mock.Anything, "ALFKI").Return(1, nil)
				refs.On("CountCaseWorkers", mock.Anything, int64(3)).Return(1, nil)
				refs.On("CountShippers", mock.Anything, int64(1)).Return(1, nil)
				refs.On("ExistingArticleIDs", mock.Anything, []int64{11, 7}).Return([]int64{}, nil)
			},
			message: "Could not find the articles with the id(s) 11,7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := &mockRefs{}
			tt.setup(refs)
			v := NewOrderValidator(refs)

			_, err := v.Validate(context.Background(), []byte(validOrder))

			requireRejection(t, err, RejectReferential, tt.message)
		})
	}
}

func TestValidateSkipsLookupsOnStructuralFailure(t *testing.T) {
	refs := &mockRefs{}
	v := NewOrderValidator(refs)

	_, err := v.Validate(context.Background(), []byte(`{"customerId":"ALFKI","caseWorkerId":3,"shipperId":1,"orderLines":[]}`))

	assert.True(t, IsRejection(err))
	refs.AssertNotCalled(t, "CountCustomers", mock.Anything, mock.Anything)
	refs.AssertNotCalled(t, "ExistingArticleIDs", mock.Anything, mock.Anything)
}

func TestValidateStoreFailure(t *testing.T) {
	refs := validRefs()
	refs.On("ExistingArticleIDs", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))
	v := NewOrderValidator(refs)

	_, err := v.Validate(context.Background(), []byte(validOrder))

	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.False(t, IsRejection(err))
	assert.Contains(t, err.Error(), "failed to look up articles")
}
