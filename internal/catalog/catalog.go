package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"order-desk/internal/util"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "catalog:"

var (
	ErrUnknownQuery     = errors.New("unknown query")
	ErrMissingParameter = errors.New("missing parameter")
)

// Cache is the key/value store catalog results are kept in
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Catalog answers the fixed set of named read-only queries
type Catalog struct {
	db     *sqlx.DB
	cache  Cache
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

// New creates a catalog. cache may be nil, in which case every call hits the database.
func New(db *sqlx.DB, cache Cache, ttl time.Duration) *Catalog {
	return &Catalog{
		db:     db,
		cache:  cache,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// Names lists the registered query names
func Names() []string {
	names := make([]string, 0, len(queries))
	for name := range queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named query and returns its rows as a JSON array
func (c *Catalog) Execute(ctx context.Context, name string, params map[string]string) ([]byte, error) {
	ctx, span := util.StartSpan(ctx, "Catalog.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("catalog.query", name))

	q, ok := queries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuery, name)
	}

	key := cacheKeyPrefix + name
	var args []interface{}
	if q.param != "" {
		raw, ok := params[q.param]
		if !ok || raw == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingParameter, q.param)
		}
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer", ErrMissingParameter, q.param)
		}
		args = append(args, value)
		key = fmt.Sprintf("%s:%d", key, value)
	}

	if cached, ok := c.lookup(ctx, name, key); ok {
		return cached, nil
	}

	// the shared load outlives any single caller so a cancelled request
	// does not fail the callers waiting on it. A load that started before
	// Invalidate can still write its result and serve it for up to one TTL.
	loadCtx := context.WithoutCancel(ctx)
	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.load(loadCtx, name, key, q, args)
	})
	if err != nil {
		util.FailSpan(span, err)
		return nil, err
	}
	return result.([]byte), nil
}

// Invalidate drops every cached catalog result
func (c *Catalog) Invalidate(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.DeletePrefix(ctx, cacheKeyPrefix)
}

func (c *Catalog) lookup(ctx context.Context, name, key string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}

	value, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Catalog cache read failed", zap.String("key", key), zap.Error(err))
		util.CatalogCacheTotal.WithLabelValues(name, "error").Inc()
		return nil, false
	}
	if !ok {
		util.CatalogCacheTotal.WithLabelValues(name, "miss").Inc()
		return nil, false
	}

	util.CatalogCacheTotal.WithLabelValues(name, "hit").Inc()
	return value, true
}

func (c *Catalog) load(ctx context.Context, name, key string, q namedQuery, args []interface{}) ([]byte, error) {
	start := time.Now()
	rows, err := q.load(ctx, c.db, q.sql, args...)
	util.CatalogQueryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("query %s failed: %w", name, err)
	}

	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", name, err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, payload, c.ttl); err != nil {
			c.logger.Warn("Catalog cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return payload, nil
}
