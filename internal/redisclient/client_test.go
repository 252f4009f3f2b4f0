package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"order-desk/internal/models"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)

	mock.ExpectGet("catalog:articles").RedisNil()

	value, ok, err := c.Get(context.Background(), "catalog:articles")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)

	mock.ExpectGet("catalog:shippers").SetVal(`[{"shipper_id":1}]`)

	value, ok, err := c.Get(context.Background(), "catalog:shippers")

	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `[{"shipper_id":1}]`, string(value))
}

func TestGetError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)

	mock.ExpectGet("catalog:orders").SetErr(errors.New("connection refused"))

	_, ok, err := c.Get(context.Background(), "catalog:orders")

	assert.Error(t, err)
	assert.False(t, ok)
}

func TestSetWithTTL(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)

	mock.ExpectSet("catalog:customers", []byte(`[]`), 30*time.Second).SetVal("OK")

	err := c.Set(context.Background(), "catalog:customers", []byte(`[]`), 30*time.Second)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)

	mock.ExpectSetNX("lock:submit:abc", "1", time.Minute).SetVal(true)
	mock.ExpectSetNX("lock:submit:abc", "1", time.Minute).SetVal(false)

	first, err := c.AcquireLock(context.Background(), "submit:abc", time.Minute)
	require.NoError(t, err)
	second, err := c.AcquireLock(context.Background(), "submit:abc", time.Minute)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}

func TestListStockWarningsSorted(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)

	mock.ExpectHGetAll(stockWarningsKey).SetVal(map[string]string{
		"11": `{"articleId":11,"articleName":"Queso Cabrales","newStock":4,"minimumStock":30}`,
		"7":  `{"articleId":7,"articleName":"Dried Pears","newStock":1,"minimumStock":2}`,
	})

	warnings, err := c.ListStockWarnings(context.Background())

	require.NoError(t, err)
	require.Len(t, warnings, 2)
	assert.Equal(t, models.StockWarning{ArticleID: 7, ArticleName: "Dried Pears", NewStock: 1, MinimumStock: 2}, warnings[0])
	assert.Equal(t, int64(11), warnings[1].ArticleID)
}

func TestRecordStockWarning(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)

	warning := models.StockWarning{ArticleID: 7, ArticleName: "Dried Pears", NewStock: 1, MinimumStock: 2}
	mock.ExpectHSet(stockWarningsKey, "7", []byte(`{"articleId":7,"articleName":"Dried Pears","newStock":1,"minimumStock":2}`)).SetVal(1)

	err := c.RecordStockWarning(context.Background(), warning)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
