package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/datastax/custom-tables/cache"
	"github.com/datastax/custom-tables/db"
	"github.com/datastax/custom-tables/internal/testutil"
	"github.com/datastax/custom-tables/meta"
	"github.com/datastax/custom-tables/schema"
	"github.com/datastax/custom-tables/types"
)

func ordersConfig() Config {
	return Config{
		Name:     "orders",
		Table:    "wp_orders",
		Alias:    "o",
		ItemName: "order",
		Schema:   schema.New(testutil.OrdersColumns()...),
	}
}

func newMockQuery(t *testing.T, opts ...Option) (*Query, *db.SessionMock) {
	session := &db.SessionMock{}
	opts = append([]Option{WithLogger(testutil.TestLogger()), WithClock(func() time.Time { return fixedNow })}, opts...)
	q, err := New(ordersConfig(), db.NewDb(session, db.MySQL), cache.NewMemoryCache(), opts...)
	require.NoError(t, err)
	return q, session
}

func idRows(ids ...int64) *db.ResultMock {
	rows := make([]map[string]interface{}, len(ids))
	for i, id := range ids {
		rows[i] = map[string]interface{}{"id": id}
	}
	return db.NewResultMock([]string{"id"}, rows...)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	session := &db.SessionMock{}
	database := db.NewDb(session, db.MySQL)

	_, err := New(Config{Table: "wp_orders"}, database, cache.NewMemoryCache())
	assert.Error(t, err)

	_, err = New(Config{Table: "wp_orders", Schema: schema.New(schema.ColumnDefinition{Name: "a", Type: "int"})},
		database, cache.NewMemoryCache())
	assert.Error(t, err)

	cfg := ordersConfig()
	cfg.Table = "wp_orders; DROP"
	_, err = New(cfg, database, cache.NewMemoryCache())
	assert.Error(t, err)
}

func TestQuerySQL(t *testing.T) {
	items := []struct {
		name string
		vars Vars
		sql  string
		args []interface{}
	}{
		{"defaults", Vars{},
			"SELECT o.id FROM `wp_orders` o ORDER BY o.id DESC LIMIT 100", nil},
		{"equality", Vars{"status": "active"},
			"SELECT o.id FROM `wp_orders` o WHERE o.status = ? ORDER BY o.id DESC LIMIT 100",
			[]interface{}{"active"}},
		{"empty value is applied", Vars{"status": ""},
			"SELECT o.id FROM `wp_orders` o WHERE o.status = ? ORDER BY o.id DESC LIMIT 100",
			[]interface{}{""}},
		{"null value", Vars{"status": nil},
			"SELECT o.id FROM `wp_orders` o WHERE o.status IS NULL ORDER BY o.id DESC LIMIT 100", nil},
		{"equality list", Vars{"status": []string{"active", "pending"}},
			"SELECT o.id FROM `wp_orders` o WHERE o.status IN (?, ?) ORDER BY o.id DESC LIMIT 100",
			[]interface{}{"active", "pending"}},
		{"single member in collapses", Vars{"status__in": []interface{}{"active"}},
			"SELECT o.id FROM `wp_orders` o WHERE o.status = ? ORDER BY o.id DESC LIMIT 100",
			[]interface{}{"active"}},
		{"empty in is skipped", Vars{"status__in": []interface{}{}},
			"SELECT o.id FROM `wp_orders` o ORDER BY o.id DESC LIMIT 100", nil},
		{"not in", Vars{"status__not_in": []interface{}{"refunded", "pending"}},
			"SELECT o.id FROM `wp_orders` o WHERE o.status NOT IN (?, ?) ORDER BY o.id DESC LIMIT 100",
			[]interface{}{"refunded", "pending"}},
		{"single member not in collapses", Vars{"status__not_in": "refunded"},
			"SELECT o.id FROM `wp_orders` o WHERE o.status != ? ORDER BY o.id DESC LIMIT 100",
			[]interface{}{"refunded"}},
		{"ordinal order", Vars{"id__in": []interface{}{3, "1", 2}, "orderby": "id__in"},
			"SELECT o.id FROM `wp_orders` o WHERE o.id IN (?, ?, ?) ORDER BY FIELD(o.id, ?, ?, ?) LIMIT 100",
			[]interface{}{int64(3), int64(1), int64(2), int64(3), int64(1), int64(2)}},
		{"column compare", Vars{"total__compare": map[string]interface{}{"value": 50, "compare": ">"}},
			"SELECT o.id FROM `wp_orders` o WHERE (o.total > ?) ORDER BY o.id DESC LIMIT 100",
			[]interface{}{int64(50)}},
		{"column date query shorthand", Vars{"date_created_query": "2024-03-01"},
			"SELECT o.id FROM `wp_orders` o WHERE (o.date_created <= ?) ORDER BY o.id DESC LIMIT 100",
			[]interface{}{"2024-03-01 23:59:59"}},
		{"date query", Vars{"date_query": map[string]interface{}{"year": 2024}},
			"SELECT o.id FROM `wp_orders` o WHERE (YEAR(o.date_created) = ?) ORDER BY o.id DESC LIMIT 100",
			[]interface{}{int64(2024)}},
		{"compare query", Vars{"compare_query": map[string]interface{}{"key": "subtotal", "value": "total", "compare": "<"}},
			"SELECT o.id FROM `wp_orders` o WHERE (o.subtotal < o.total) ORDER BY o.id DESC LIMIT 100", nil},
		{"search", Vars{"search": "*smith"},
			"SELECT o.id FROM `wp_orders` o WHERE (o.status LIKE ? ESCAPE '!' OR o.email LIKE ? ESCAPE '!') ORDER BY o.id DESC LIMIT 100",
			[]interface{}{"%smith", "%smith"}},
		{"search columns", Vars{"search": "50%_off", "search_columns": "email,total"},
			"SELECT o.id FROM `wp_orders` o WHERE (o.email LIKE ? ESCAPE '!') ORDER BY o.id DESC LIMIT 100",
			[]interface{}{"%50!%!_off%"}},
		{"prefix search", Vars{"search": "cust*", "search_columns": []string{"email"}},
			"SELECT o.id FROM `wp_orders` o WHERE (o.email LIKE ? ESCAPE '!') ORDER BY o.id DESC LIMIT 100",
			[]interface{}{"cust%"}},
		{"paging and order", Vars{"number": "10", "offset": 20, "orderby": "total", "order": "asc"},
			"SELECT o.id FROM `wp_orders` o ORDER BY o.total ASC LIMIT 20, 10", nil},
		{"unsortable orderby falls back to primary", Vars{"orderby": "email"},
			"SELECT o.id FROM `wp_orders` o ORDER BY o.id DESC LIMIT 100", nil},
		{"several orderby columns", Vars{"orderby": []string{"status", "total"}},
			"SELECT o.id FROM `wp_orders` o ORDER BY o.status DESC, o.total DESC LIMIT 100", nil},
		{"unlimited", Vars{"number": 0},
			"SELECT o.id FROM `wp_orders` o ORDER BY o.id DESC", nil},
		{"unknown vars are ignored", Vars{"colour": "red"},
			"SELECT o.id FROM `wp_orders` o ORDER BY o.id DESC LIMIT 100", nil},
		{"fragments are anded", Vars{"status": "active", "total__compare": map[string]interface{}{"value": 5, "compare": ">="}},
			"SELECT o.id FROM `wp_orders` o WHERE o.status = ? AND (o.total >= ?) ORDER BY o.id DESC LIMIT 100",
			[]interface{}{"active", int64(5)}},
	}

	for _, item := range items {
		t.Run(item.name, func(t *testing.T) {
			q, session := newMockQuery(t)
			session.On("ExecuteIter", mock.Anything, mock.Anything).Return(idRows(), nil)

			vars := item.vars.Copy()
			vars["fields"] = FieldsIDs
			result, err := q.Query(context.Background(), vars)
			require.NoError(t, err)

			testutil.AssertSQL(t, item.sql, result.Request)
			session.AssertCalled(t, "ExecuteIter", item.sql, item.args)
		})
	}
}

func TestQueryCountMode(t *testing.T) {
	q, session := newMockQuery(t)
	session.
		On("ExecuteIter", "SELECT COUNT(o.id) FROM `wp_orders` o WHERE o.status = ?", []interface{}{"active"}).
		Return(db.NewResultMock([]string{"COUNT(o.id)"}, map[string]interface{}{"COUNT(o.id)": int64(34)}), nil)

	count, err := q.Count(context.Background(), Vars{"status": "active", "orderby": "total", "number": 5})
	require.NoError(t, err)
	assert.Equal(t, int64(34), count)
	session.AssertExpectations(t)
}

func TestQueryGroupedCount(t *testing.T) {
	q, session := newMockQuery(t)
	session.
		On("ExecuteIter", "SELECT o.status, COUNT(o.id) AS count FROM `wp_orders` o GROUP BY o.status", []interface{}(nil)).
		Return(db.NewResultMock([]string{"status", "count"},
			map[string]interface{}{"status": "active", "count": int64(2)},
			map[string]interface{}{"status": "pending", "count": int64(3)},
		), nil)

	result, err := q.Query(context.Background(), Vars{"count": true, "groupby": "status"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Count)
	assert.Equal(t, []types.Row{
		{"status": "active", "count": int64(2)},
		{"status": "pending", "count": int64(3)},
	}, result.Groups)
	assert.Nil(t, result.Items)
}

func TestQueryFoundRowsAndPages(t *testing.T) {
	q, session := newMockQuery(t)
	session.
		On("ExecuteIter", "SELECT o.id FROM `wp_orders` o WHERE o.status = ? ORDER BY o.id DESC LIMIT 10", []interface{}{"active"}).
		Return(idRows(1, 2, 3, 4, 5, 6, 7, 8, 9, 10), nil)
	session.
		On("ExecuteIter", "SELECT COUNT(*) FROM (SELECT o.id FROM `wp_orders` o WHERE o.status = ?) AS found_items", []interface{}{"active"}).
		Return(db.NewResultMock([]string{"COUNT(*)"}, map[string]interface{}{"COUNT(*)": int64(25)}), nil)

	result, err := q.Query(context.Background(), Vars{"status": "active", "number": 10, "no_found_rows": false, "fields": "ids"})
	require.NoError(t, err)
	assert.Equal(t, int64(25), result.FoundItems)
	assert.Equal(t, int64(3), result.MaxNumPages)
	assert.Len(t, result.IDs, 10)
	session.AssertExpectations(t)
}

func TestMaxNumPages(t *testing.T) {
	assert.Equal(t, int64(3), maxNumPages(25, 10))
	assert.Equal(t, int64(2), maxNumPages(20, 10))
	assert.Equal(t, int64(0), maxNumPages(0, 10))
	assert.Equal(t, int64(1), maxNumPages(7, 0))
}

func TestQueryMetaQuery(t *testing.T) {
	querier := &meta.QuerierMock{}
	metaQuery := map[string]interface{}{"key": "gift", "compare": "EXISTS"}
	querier.On("GetSQL", mock.MatchedBy(func(req meta.Request) bool {
		return req.ObjectType == "order" && req.TableAlias == "o" && req.PrimaryColumn == "id"
	})).Return(meta.Fragments{
		Join:  types.NewFragment("INNER JOIN wp_ordermeta mt0 ON o.id = mt0.order_id"),
		Where: types.NewFragment("mt0.meta_key = ?", "gift"),
	}, true)

	q, session := newMockQuery(t, WithMetaQuerier(querier))
	expected := "SELECT DISTINCT o.id FROM `wp_orders` o INNER JOIN wp_ordermeta mt0 ON o.id = mt0.order_id " +
		"WHERE o.status = ? AND (mt0.meta_key = ?) ORDER BY o.id DESC LIMIT 100"
	session.On("ExecuteIter", expected, []interface{}{"active", "gift"}).Return(idRows(4), nil)

	result, err := q.Query(context.Background(), Vars{"status": "active", "meta_query": metaQuery, "fields": "ids"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(4)}, result.IDs)
	querier.AssertExpectations(t)
}

func TestQueryHooks(t *testing.T) {
	var stages []string
	hooks := Hooks{
		PreParse: func(q *Query, vars Vars) Vars {
			stages = append(stages, "pre_parse")
			vars["status"] = "active"
			return vars
		},
		PostParse: func(q *Query, vars Vars) Vars {
			stages = append(stages, "post_parse")
			assert.Equal(t, DefaultNumber, vars["number"])
			return vars
		},
		PreGetItems: func(q *Query, vars Vars) Vars {
			stages = append(stages, "pre_get_items")
			return vars
		},
		ClauseFilter: func(q *Query, clauses Clauses) Clauses {
			stages = append(stages, "clause_filter")
			clauses.Where = append(clauses.Where, types.NewFragment("o.total > ?", 10))
			clauses.Limits = "LIMIT 1"
			return clauses
		},
		PostGetItems: func(q *Query, items []types.Row) []types.Row {
			stages = append(stages, "post_get_items")
			return items[:0]
		},
	}
	q, session := newMockQuery(t, WithHooks(hooks))
	session.
		On("ExecuteIter", "SELECT o.id FROM `wp_orders` o WHERE o.status = ? AND o.total > ? ORDER BY o.id DESC LIMIT 1",
			[]interface{}{"active", 10}).
		Return(idRows(), nil)

	result, err := q.Query(context.Background(), Vars{})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Equal(t, []string{"pre_parse", "post_parse", "pre_get_items", "clause_filter", "post_get_items"}, stages)
}

func TestQueryCachesIDs(t *testing.T) {
	q, session := newMockQuery(t)
	session.On("ExecuteIter", mock.Anything, mock.Anything).Return(idRows(1, 2), nil)

	vars := Vars{"status": "active", "fields": "ids"}
	first, err := q.Query(context.Background(), vars)
	require.NoError(t, err)
	second, err := q.Query(context.Background(), Vars{"status": "active", "fields": []string{"ids"}})
	require.NoError(t, err)

	assert.Equal(t, first.IDs, second.IDs)
	assert.Empty(t, second.Request)
	session.AssertNumberOfCalls(t, "ExecuteIter", 1)

	_, err = q.Query(context.Background(), Vars{"status": "pending", "fields": "ids"})
	require.NoError(t, err)
	session.AssertNumberOfCalls(t, "ExecuteIter", 2)
}

func TestQuerySkipsCacheWritesWhenSuspended(t *testing.T) {
	c := cache.NewMemoryCache()
	c.SuspendWrites(true)
	session := &db.SessionMock{}
	q, err := New(ordersConfig(), db.NewDb(session, db.MySQL), c)
	require.NoError(t, err)
	session.On("ExecuteIter", mock.Anything, mock.Anything).Return(idRows(1), nil)

	for i := 0; i < 2; i++ {
		_, err := q.Query(context.Background(), Vars{"fields": "ids"})
		require.NoError(t, err)
	}
	session.AssertNumberOfCalls(t, "ExecuteIter", 2)
}

func TestQueryHydratesAndProjectsItems(t *testing.T) {
	q, session := newMockQuery(t)
	session.
		On("ExecuteIter", "SELECT o.id FROM `wp_orders` o ORDER BY o.id DESC LIMIT 100", []interface{}(nil)).
		Return(idRows(2, 1), nil)
	session.
		On("ExecuteIter", "SELECT * FROM `wp_orders` WHERE `id` IN (?, ?)", []interface{}{int64(2), int64(1)}).
		Return(db.NewResultMock([]string{"id", "status", "total", "date_created"},
			map[string]interface{}{"id": []byte("1"), "status": []byte("active"), "total": []byte("10.500000000"), "date_created": []byte("2024-01-01 00:00:00")},
			map[string]interface{}{"id": []byte("2"), "status": []byte("pending"), "total": []byte("3.000000000"), "date_created": []byte("2024-02-01 08:00:00")},
		), nil).Once()

	result, err := q.Query(context.Background(), Vars{})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, int64(2), result.Items[0]["id"])
	assert.Equal(t, "pending", result.Items[0].String("status"))
	assert.Equal(t, "10.500000000", result.Items[1].Decimal("total").String())
	assert.Equal(t, time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC), result.Items[0].Time("date_created"))

	// Items are primed, so hydration is not repeated
	projected, err := q.Query(context.Background(), Vars{"fields": "status"})
	require.NoError(t, err)
	assert.Equal(t, []types.Row{{"status": "pending"}, {"status": "active"}}, projected.Items)
	session.AssertNumberOfCalls(t, "ExecuteIter", 2)
}
