// Package query builds, runs and caches item queries against one custom
// table, and writes items back with cache invalidation.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/datastax/custom-tables/cache"
	"github.com/datastax/custom-tables/db"
	"github.com/datastax/custom-tables/log"
	"github.com/datastax/custom-tables/meta"
	"github.com/datastax/custom-tables/metrics"
	"github.com/datastax/custom-tables/schema"
	"github.com/datastax/custom-tables/types"
)

// Config describes the table a Query reads and writes.
type Config struct {
	// Name is the logical table name, e.g. "orders"
	Name string
	// Table is the physical table name, e.g. "wp_orders"
	Table string
	// Alias qualifies columns in generated SQL
	Alias string
	// ItemName is the singular name of a row, e.g. "order"
	ItemName string
	// MetaType is the object type handed to the metadata querier,
	// ItemName when empty
	MetaType   string
	CacheGroup cache.Group
	Schema     *schema.Schema
}

// Clauses are the pieces of the SELECT statement of a call, handed to the
// ClauseFilter hook before the statement is assembled.
type Clauses struct {
	Fields  string
	Join    []types.Fragment
	Where   []types.Fragment
	GroupBy string
	OrderBy types.Fragment
	Limits  string
}

// Hooks are extension points. A nil hook is skipped; a hook's return value
// is used as-is.
type Hooks struct {
	PreParse     func(q *Query, vars Vars) Vars
	PostParse    func(q *Query, vars Vars) Vars
	PreGetItems  func(q *Query, vars Vars) Vars
	ClauseFilter func(q *Query, clauses Clauses) Clauses
	PostGetItems func(q *Query, items []types.Row) []types.Row
	// FilterItemData runs before a row is written or deleted. Returning an
	// error cancels the write.
	FilterItemData func(ctx context.Context, op schema.Operation, data types.Row) (types.Row, error)
}

// CapabilityChecker grants the per-column capabilities required by writes.
type CapabilityChecker interface {
	Can(ctx context.Context, capability string) bool
}

type Option func(q *Query)

func WithLogger(logger log.Logger) Option {
	return func(q *Query) {
		q.logger = logger
	}
}

func WithMetaQuerier(querier meta.Querier) Option {
	return func(q *Query) {
		q.metaQuerier = querier
	}
}

func WithCapabilityChecker(checker CapabilityChecker) Option {
	return func(q *Query) {
		q.caps = checker
	}
}

func WithClock(now func() time.Time) Option {
	return func(q *Query) {
		q.now = now
	}
}

func WithHooks(hooks Hooks) Option {
	return func(q *Query) {
		q.hooks = hooks
	}
}

type Query struct {
	cfg     Config
	db      *db.Db
	cache   cache.Cache
	schema  *schema.Schema
	primary string

	defaults Vars
	known    map[string]bool

	logger      log.Logger
	metaQuerier meta.Querier
	caps        CapabilityChecker
	now         func() time.Time
	hooks       Hooks
}

// Result is the outcome of one Query call.
type Result struct {
	// Items are the hydrated rows, nil when only ids were requested or in
	// count mode
	Items []types.Row
	IDs   []interface{}
	// Count and Groups are set in count mode
	Count  int64
	Groups []types.Row

	FoundItems  int64
	MaxNumPages int64
	// Request is the SELECT statement of the call; empty on a cache hit
	Request string
	Vars    Vars
}

// cachedResult is what a query cache entry holds.
type cachedResult struct {
	IDs        []interface{}
	FoundItems int64
	Count      int64
	Groups     []types.Row
}

func New(cfg Config, database *db.Db, c cache.Cache, opts ...Option) (*Query, error) {
	if cfg.Schema == nil {
		return nil, errors.New("query config requires a schema")
	}
	primary, ok := cfg.Schema.Primary()
	if !ok {
		return nil, fmt.Errorf("table %s has no primary column", cfg.Table)
	}
	if cfg.Alias == "" {
		cfg.Alias = "t"
	}
	if !schema.IsIdentifier(cfg.Table) || !schema.IsIdentifier(cfg.Alias) {
		return nil, fmt.Errorf("invalid table name %q or alias %q", cfg.Table, cfg.Alias)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Table
	}
	if cfg.ItemName == "" {
		cfg.ItemName = cfg.Name
	}
	if cfg.CacheGroup.IsZero() {
		cfg.CacheGroup = cache.NewGroup(cfg.Name)
	}

	q := &Query{
		cfg:     cfg,
		db:      database,
		cache:   c,
		schema:  cfg.Schema,
		primary: primary.Name,
		logger:  log.NewNopLogger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With("table", cfg.Table)
	q.defaults, q.known = defaultVars(cfg.Schema)
	return q, nil
}

func (q *Query) Config() Config {
	return q.cfg
}

func (q *Query) Schema() *schema.Schema {
	return q.schema
}

// Defaults returns a copy of the default vars.
func (q *Query) Defaults() Vars {
	return q.defaults.Copy()
}

func (q *Query) metaType() string {
	if q.cfg.MetaType != "" {
		return q.cfg.MetaType
	}
	return q.cfg.ItemName
}

func (q *Query) clauseContext() ClauseContext {
	return ClauseContext{
		Alias:   q.cfg.Alias,
		Primary: q.primary,
		Schema:  q.schema,
		Logger:  q.logger,
		Now:     q.now,
	}
}

// call is the state of one Query invocation.
type call struct {
	ctx  context.Context
	q    *Query
	cc   ClauseContext
	vars Vars
	opts options
}

// Query parses vars, serves the matching ids from the query cache or the
// database, and shapes them into the result.
func (q *Query) Query(ctx context.Context, vars Vars) (*Result, error) {
	vars = vars.Copy()
	if q.hooks.PreParse != nil {
		vars = q.hooks.PreParse(q, vars)
	}
	merged := mergeVars(q.defaults, vars)
	if q.hooks.PostParse != nil {
		merged = q.hooks.PostParse(q, merged)
	}
	if q.hooks.PreGetItems != nil {
		merged = q.hooks.PreGetItems(q, merged)
	}

	opts, err := decodeOptions(merged)
	if err != nil {
		return nil, err
	}
	c := &call{ctx: ctx, q: q, cc: q.clauseContext(), vars: merged, opts: opts}

	result := &Result{Vars: merged}
	entry, err := c.lookup(result)
	if err != nil {
		return nil, err
	}

	if opts.Count {
		result.Count = entry.Count
		result.Groups = copyRows(entry.Groups)
		return result, nil
	}

	result.IDs = append([]interface{}(nil), entry.IDs...)
	result.FoundItems = entry.FoundItems
	result.MaxNumPages = maxNumPages(result.FoundItems, opts.Number)

	if opts.idsOnly() {
		return result, nil
	}

	items, err := q.getItems(ctx, result.IDs, opts.UpdateCache)
	if err != nil {
		return nil, err
	}
	if len(opts.Fields) > 0 {
		fields := make([]string, 0, len(opts.Fields))
		for _, f := range opts.Fields {
			if q.schema.Has(f) {
				fields = append(fields, f)
			}
		}
		for i, item := range items {
			items[i] = item.Project(fields)
		}
	}
	if q.hooks.PostGetItems != nil {
		items = q.hooks.PostGetItems(q, items)
	}
	result.Items = items
	return result, nil
}

// Count runs vars in count mode.
func (q *Query) Count(ctx context.Context, vars Vars) (int64, error) {
	vars = vars.Copy()
	vars["count"] = true
	result, err := q.Query(ctx, vars)
	if err != nil {
		return 0, err
	}
	return result.Count, nil
}

// maxNumPages is ceil(found / number); an unlimited query is one page.
func maxNumPages(found int64, number int) int64 {
	if found <= 0 {
		return 0
	}
	if number <= 0 {
		return 1
	}
	return (found + int64(number) - 1) / int64(number)
}

// lookup serves the call from the query cache, or runs it and caches the
// outcome. The key covers the known vars and the group's LastChanged token.
func (c *call) lookup(result *Result) (*cachedResult, error) {
	q := c.q
	group := q.cfg.CacheGroup

	key, err := cache.Key("get_items", cacheVars(c.vars, q.known), cache.LastChanged(q.cache, group))
	if err != nil {
		q.logger.Warn("query not cacheable", "error", err)
		key = ""
	}

	if key != "" {
		if cached, ok := q.cache.Get(group, key); ok {
			if entry, isEntry := cached.(*cachedResult); isEntry {
				metrics.CacheHit(group.String())
				return entry, nil
			}
		}
		metrics.CacheMiss(group.String())
		q.logger.Debug("query cache miss", "key", key)
	}

	entry, request, err := c.execute()
	result.Request = request
	if err != nil {
		return nil, err
	}

	if key != "" && !q.cache.WritesSuspended() {
		q.cache.Add(group, key, entry)
	}
	return entry, nil
}

func (c *call) execute() (*cachedResult, string, error) {
	q := c.q
	clauses := c.clauses()
	statement := q.render(clauses)
	entry := &cachedResult{}

	if c.opts.Count {
		if clauses.GroupBy != "" {
			rows, err := q.timed(c.ctx, "count", func(ctx context.Context) (interface{}, error) {
				return q.db.Rows(ctx, statement.SQL, statement.Args...)
			})
			if err != nil {
				return nil, statement.SQL, err
			}
			for _, row := range rows.([]map[string]interface{}) {
				group := types.FromStorage(row, q.schema.ColumnTypes())
				count, _ := types.ToInt64(row["count"])
				group["count"] = count
				entry.Groups = append(entry.Groups, group)
				entry.Count += count
			}
			return entry, statement.SQL, nil
		}

		value, err := q.timed(c.ctx, "count", func(ctx context.Context) (interface{}, error) {
			return q.db.Scalar(ctx, statement.SQL, statement.Args...)
		})
		if err != nil {
			return nil, statement.SQL, err
		}
		entry.Count, _ = types.ToInt64(value)
		return entry, statement.SQL, nil
	}

	ids, err := q.timed(c.ctx, "select", func(ctx context.Context) (interface{}, error) {
		return q.db.Column(ctx, statement.SQL, statement.Args...)
	})
	if err != nil {
		return nil, statement.SQL, err
	}
	entry.IDs = ids.([]interface{})
	entry.FoundItems = int64(len(entry.IDs))

	if !c.opts.NoFoundRows {
		found := clauses
		found.OrderBy = types.Fragment{}
		found.Limits = ""
		inner := q.render(found)
		value, err := q.timed(c.ctx, "count", func(ctx context.Context) (interface{}, error) {
			return q.db.Scalar(ctx, "SELECT COUNT(*) FROM ("+inner.SQL+") AS found_items", inner.Args...)
		})
		if err != nil {
			return nil, statement.SQL, err
		}
		entry.FoundItems, _ = types.ToInt64(value)
	}
	return entry, statement.SQL, nil
}

// clauses assembles the statement pieces. Count mode selects COUNT(*),
// grouped by the groupby columns when given, and never orders or limits.
func (c *call) clauses() Clauses {
	join, where := c.whereClauses()
	clauses := Clauses{Join: join, Where: where}

	groupBy := c.groupByColumns()
	qualifiedGroupBy := make([]string, len(groupBy))
	for i, name := range groupBy {
		qualifiedGroupBy[i] = c.cc.Qualify(name)
	}
	clauses.GroupBy = strings.Join(qualifiedGroupBy, ", ")

	distinct := ""
	if len(join) > 0 {
		distinct = "DISTINCT "
	}
	primary := c.cc.Qualify(c.q.primary)

	switch {
	case c.opts.Count && len(groupBy) > 0:
		fields := append(qualifiedGroupBy[:len(qualifiedGroupBy):len(qualifiedGroupBy)], "COUNT("+distinct+primary+") AS count")
		clauses.Fields = strings.Join(fields, ", ")
	case c.opts.Count:
		clauses.Fields = "COUNT(" + distinct + primary + ")"
	default:
		clauses.Fields = distinct + primary
		clauses.OrderBy = c.orderByClause()
		clauses.Limits = c.limitClause()
	}

	if c.q.hooks.ClauseFilter != nil {
		clauses = c.q.hooks.ClauseFilter(c.q, clauses)
	}
	return clauses
}

func (q *Query) render(clauses Clauses) types.Fragment {
	parts := []types.Fragment{
		types.NewFragment("SELECT " + clauses.Fields + " FROM " + db.QuoteIdentifier(q.cfg.Table) + " " + q.cfg.Alias),
	}
	parts = append(parts, clauses.Join...)

	if where := types.JoinFragments(" AND ", clauses.Where...); !where.IsEmpty() {
		parts = append(parts, types.NewFragment("WHERE "+where.SQL, where.Args...))
	}
	if clauses.GroupBy != "" {
		parts = append(parts, types.NewFragment("GROUP BY "+clauses.GroupBy))
	}
	if !clauses.OrderBy.IsEmpty() {
		parts = append(parts, types.NewFragment("ORDER BY "+clauses.OrderBy.SQL, clauses.OrderBy.Args...))
	}
	if clauses.Limits != "" {
		parts = append(parts, types.NewFragment(clauses.Limits))
	}
	return types.JoinFragments(" ", parts...)
}

// timed runs a statement, recording it in the statement metrics.
func (q *Query) timed(ctx context.Context, kind string, run func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	start := time.Now()
	value, err := run(ctx)
	metrics.Statements.WithLabelValues(q.cfg.Table, kind).Inc()
	metrics.StatementDuration.WithLabelValues(q.cfg.Table, kind).Observe(time.Since(start).Seconds())
	if err != nil {
		q.logger.Error("statement failed", "kind", kind, "error", err)
		return nil, fmt.Errorf("failed to run %s on %s: %w", kind, q.cfg.Table, err)
	}
	return value, nil
}

func copyRows(rows []types.Row) []types.Row {
	if rows == nil {
		return nil
	}
	out := make([]types.Row, len(rows))
	for i, row := range rows {
		out[i] = row.Copy()
	}
	return out
}
