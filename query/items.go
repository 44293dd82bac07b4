package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/datastax/custom-tables/cache"
	"github.com/datastax/custom-tables/db"
	"github.com/datastax/custom-tables/metrics"
	"github.com/datastax/custom-tables/schema"
	"github.com/datastax/custom-tables/types"
)

// ErrNotFound is returned when the addressed item does not exist.
var ErrNotFound = errors.New("item not found")

func itemKey(id interface{}) string {
	s, _ := types.ToString(id)
	return s
}

// GetItem returns the row whose primary key is id, from the item cache when
// primed.
func (q *Query) GetItem(ctx context.Context, id interface{}) (types.Row, error) {
	key := itemKey(id)
	if key == "" {
		return nil, ErrNotFound
	}
	if cached, ok := q.cachedItem(key); ok {
		return cached, nil
	}

	item, err := q.rawItem(ctx, q.primary, id)
	if err != nil {
		return nil, err
	}
	q.primeItem(item)
	return item.Copy(), nil
}

// GetItemBy returns the first row whose column equals value. Only the
// primary column and cache_key columns may be used.
func (q *Query) GetItemBy(ctx context.Context, column string, value interface{}) (types.Row, error) {
	if column == q.primary {
		return q.GetItem(ctx, value)
	}
	definition, ok := q.schema.Column(column)
	if !ok || !definition.CacheKey {
		return nil, fmt.Errorf("column %q cannot address items of %s", column, q.cfg.Table)
	}

	key := itemKey(value)
	group := q.cfg.CacheGroup.By(column)
	if id, ok := q.cache.Get(group, key); ok {
		metrics.CacheHit(group.String())
		return q.GetItem(ctx, id)
	}
	metrics.CacheMiss(group.String())

	item, err := q.rawItem(ctx, column, bindValue(definition, value))
	if err != nil {
		return nil, err
	}
	q.primeItem(item)
	return item.Copy(), nil
}

func (q *Query) cachedItem(key string) (types.Row, bool) {
	group := q.cfg.CacheGroup
	cached, ok := q.cache.Get(group, key)
	if ok {
		if row, isRow := cached.(types.Row); isRow {
			metrics.CacheHit(group.String())
			return row.Copy(), true
		}
	}
	metrics.CacheMiss(group.String())
	return nil, false
}

// rawItem reads one row from the database, bypassing the cache.
func (q *Query) rawItem(ctx context.Context, column string, value interface{}) (types.Row, error) {
	rows, err := q.timed(ctx, "select", func(ctx context.Context) (interface{}, error) {
		rs, err := q.db.Select(ctx, &db.SelectInfo{
			Table: q.cfg.Table,
			Where: []db.ConditionItem{{Column: column, Operator: "=", Value: value}},
			Limit: 1,
		})
		if err != nil {
			return nil, err
		}
		return rs.Values(), nil
	})
	if err != nil {
		return nil, err
	}
	values := rows.([]map[string]interface{})
	if len(values) == 0 {
		return nil, ErrNotFound
	}
	return types.FromStorage(values[0], q.schema.ColumnTypes()), nil
}

// getItems hydrates ids in order. Uncached rows are read with one
// statement and, when prime is set, stored in the item cache.
func (q *Query) getItems(ctx context.Context, ids []interface{}, prime bool) ([]types.Row, error) {
	items := make([]types.Row, len(ids))
	var missing []interface{}
	missingAt := make(map[string][]int)

	for i, id := range ids {
		key := itemKey(id)
		if cached, ok := q.cachedItem(key); ok {
			items[i] = cached
			continue
		}
		if _, seen := missingAt[key]; !seen {
			missing = append(missing, id)
		}
		missingAt[key] = append(missingAt[key], i)
	}

	if len(missing) > 0 {
		statement := fmt.Sprintf("SELECT * FROM %s WHERE %s IN (%s)",
			db.QuoteIdentifier(q.cfg.Table), db.QuoteIdentifier(q.primary), placeholders(len(missing)))
		rows, err := q.timed(ctx, "select", func(ctx context.Context) (interface{}, error) {
			return q.db.Rows(ctx, statement, missing...)
		})
		if err != nil {
			return nil, err
		}
		for _, raw := range rows.([]map[string]interface{}) {
			item := types.FromStorage(raw, q.schema.ColumnTypes())
			if prime {
				q.primeItem(item)
			}
			for _, i := range missingAt[itemKey(item[q.primary])] {
				items[i] = item.Copy()
			}
		}
	}

	// Rows deleted between the id query and hydration are skipped
	out := items[:0]
	for _, item := range items {
		if item != nil {
			out = append(out, item)
		}
	}
	return out, nil
}

// primeItem caches item by primary key and maps each cache_key value to it.
func (q *Query) primeItem(item types.Row) {
	if q.cache.WritesSuspended() {
		return
	}
	id := item[q.primary]
	key := itemKey(id)
	if key == "" {
		return
	}
	q.cache.Set(q.cfg.CacheGroup, key, item.Copy())
	for _, name := range q.cacheKeyColumns() {
		if value := itemKey(item[name]); value != "" {
			q.cache.Set(q.cfg.CacheGroup.By(name), value, id)
		}
	}
}

// evictItem removes the cache entries of every row state in rows.
func (q *Query) evictItem(rows ...types.Row) {
	if q.cache.DeletesSuspended() {
		return
	}
	for _, row := range rows {
		if row == nil {
			continue
		}
		if key := itemKey(row[q.primary]); key != "" {
			q.cache.Delete(q.cfg.CacheGroup, key)
		}
		for _, name := range q.cacheKeyColumns() {
			if value := itemKey(row[name]); value != "" {
				q.cache.Delete(q.cfg.CacheGroup.By(name), value)
			}
		}
	}
}

func (q *Query) cacheKeyColumns() []string {
	return q.schema.Names(schema.Filter{"cache_key": true}, schema.And)
}

// bump invalidates every cached query of the table's group.
func (q *Query) bump() string {
	return cache.BumpLastChanged(q.cache, q.cfg.CacheGroup)
}
