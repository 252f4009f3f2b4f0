package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"order-desk/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentSubmissionsIntegration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - requires TEST_DATABASE_URL")
	}

	s, err := store.NewStore(url, 20, 5)
	require.NoError(t, err)
	defer s.Close()

	schema, err := os.ReadFile("../store/testdata/schema.sql")
	require.NoError(t, err)
	_, err = s.GetDB().Exec(string(schema))
	require.NoError(t, err)

	svc := NewOrderService(s, NewOrderWriter(s, testPolicy), nil, nil, nil, Options{WriteTimeout: 30 * time.Second})

	const submissions = 12
	payload := []byte(`{"customerId":"ALFKI","caseWorkerId":3,"shipperId":1,
		"orderLines":[{"articleId":11,"amount":5,"discountPercent":0},{"articleId":7,"amount":1,"discountPercent":0.5}]}`)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids []int64
	)
	for i := 0; i < submissions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := svc.Submit(context.Background(), payload, "")
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, "111.50", outcome.Total.StringFixed(2))
			mu.Lock()
			ids = append(ids, outcome.OrderID)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, ids, submissions)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i, id := range ids {
		assert.Equal(t, int64(i+1), id, fmt.Sprintf("ids %v are not contiguous", ids))
	}

	article, err := s.GetArticle(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, 1000-5*submissions, article.Stock)

	details, err := svc.GetOrder(context.Background(), ids[0])
	require.NoError(t, err)
	require.Len(t, details.Lines, 2)
	assert.True(t, decimal.RequireFromString("21").Equal(details.Lines[1].UnitPrice))
}
