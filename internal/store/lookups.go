package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// CountCustomers counts the customers with the given customer code
func (s *Store) CountCustomers(ctx context.Context, code string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM customers WHERE code = $1", code)
	return n, err
}

// CountCaseWorkers counts the case workers with the given id
func (s *Store) CountCaseWorkers(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM case_workers WHERE id = $1", id)
	return n, err
}

// CountShippers counts the shippers with the given id
func (s *Store) CountShippers(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM shippers WHERE id = $1", id)
	return n, err
}

// ExistingArticleIDs returns the subset of ids that exist in the articles table
func (s *Store) ExistingArticleIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return []int64{}, nil
	}

	query, args, err := sqlx.In("SELECT id FROM articles WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var found []int64
	err = s.db.SelectContext(ctx, &found, query, args...)
	return found, err
}
