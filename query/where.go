package query

import (
	"fmt"
	"strings"

	"github.com/datastax/custom-tables/db"
	"github.com/datastax/custom-tables/schema"
	"github.com/datastax/custom-tables/types"
)

// whereClauses builds the JOIN and WHERE fragments of a call in one pass
// over the registered columns, then the top-level sub-queries and search.
func (c *call) whereClauses() (join []types.Fragment, where []types.Fragment) {
	for _, column := range c.q.schema.Columns(nil, schema.And) {
		where = append(where, c.columnClauses(column)...)
	}

	if raw := c.vars["date_query"]; raw != nil {
		if column, ok := c.defaultDateColumn(); ok {
			where = append(where, NewDateQuery(c.cc, column, raw).SQL().Wrap())
		}
	}
	if raw := c.vars["compare_query"]; raw != nil {
		where = append(where, NewCompareQuery(c.cc, "", raw).SQL().Wrap())
	}
	if raw := c.vars["meta_query"]; raw != nil {
		if f, ok := NewMetaQuery(c.cc, c.q.metaQuerier, c.q.metaType()).SQL(c.ctx, raw, c.vars); ok {
			mergeMetaFragments(&join, &where, f)
		}
	}

	if c.opts.Search != "" {
		where = append(where, c.searchClause(c.opts.Search, c.opts.SearchColumns))
	}
	return join, where
}

// columnClauses emits, for one column, the equality, __in, __not_in,
// __compare and _query fragments that were passed.
func (c *call) columnClauses(column schema.ColumnDefinition) []types.Fragment {
	var out []types.Fragment
	qualified := c.cc.Qualify(column.Name)

	if value, ok := c.vars.Option(column.Name).Get(); ok {
		out = append(out, c.equality(column, qualified, value, "=", "IN"))
	}
	if column.In {
		if value, ok := c.vars.Option(column.Name + suffixIn).Get(); ok {
			out = append(out, c.equality(column, qualified, value, "=", "IN"))
		}
	}
	if column.NotIn {
		if value, ok := c.vars.Option(column.Name + suffixNotIn).Get(); ok {
			out = append(out, c.equality(column, qualified, value, "!=", "NOT IN"))
		}
	}
	if column.Compare {
		if raw, ok := c.vars.Option(column.Name + suffixCompare).Get(); ok && raw != nil {
			out = append(out, NewCompareQuery(c.cc, column.Name, raw).SQL().Wrap())
		}
	}
	if column.DateQuery {
		if raw, ok := c.vars.Option(column.Name + suffixQuery).Get(); ok && raw != nil {
			if s, isString := raw.(string); isString {
				raw = map[string]interface{}{"before": s, "inclusive": true}
			}
			out = append(out, NewDateQuery(c.cc, column.Name, raw).SQL().Wrap())
		}
	}
	return out
}

// equality compares column with one value or a list. A single-member list
// collapses to the scalar operator; an empty list contributes nothing.
func (c *call) equality(column schema.ColumnDefinition, qualified string, value interface{}, scalarOp, listOp string) types.Fragment {
	if value == nil {
		if scalarOp == "=" {
			return types.NewFragment(qualified + " IS NULL")
		}
		return types.NewFragment(qualified + " IS NOT NULL")
	}

	members, isList := types.ToSlice(value)
	if !isList {
		return types.NewFragment(qualified+" "+scalarOp+" ?", bindValue(column, value))
	}
	switch len(members) {
	case 0:
		return types.Fragment{}
	case 1:
		return types.NewFragment(qualified+" "+scalarOp+" ?", bindValue(column, members[0]))
	}

	args := make([]interface{}, len(members))
	for i, member := range members {
		args[i] = bindValue(column, member)
	}
	return types.NewFragment(fmt.Sprintf("%s %s (%s)", qualified, listOp, placeholders(len(args))), args...)
}

// bindValue coerces value to the column's bind pattern, keeping it as
// passed when it does not convert.
func bindValue(column schema.ColumnDefinition, value interface{}) interface{} {
	if column.Kind() == types.KindDateTime {
		if t, ok := types.ParseDateTime(value); ok {
			return types.FormatDateTime(t)
		}
	}
	if coerced, ok := types.Coerce(column.Pattern, value); ok {
		return coerced
	}
	return value
}

func (c *call) defaultDateColumn() (string, bool) {
	if created, ok := c.q.schema.ColumnBy(schema.Filter{"created": true}); ok {
		return created.Name, true
	}
	if first, ok := c.q.schema.ColumnBy(schema.Filter{"date_query": true}); ok {
		return first.Name, true
	}
	return "", false
}

// searchClause ORs one LIKE per searchable column. When columns is not
// empty only the searchable columns it names are used. Leading and trailing
// "*" anchor the term; without them it matches anywhere.
func (c *call) searchClause(search string, columns []string) types.Fragment {
	searchable := c.q.schema.Names(schema.Filter{"searchable": true}, schema.And)
	if len(columns) > 0 {
		allowed := make(map[string]bool, len(columns))
		for _, name := range columns {
			allowed[name] = true
		}
		filtered := searchable[:0:0]
		for _, name := range searchable {
			if allowed[name] {
				filtered = append(filtered, name)
			}
		}
		searchable = filtered
	}
	if len(searchable) == 0 {
		c.cc.debug("search ignored, no searchable columns", "search", search)
		return types.Fragment{}
	}

	pattern := searchPattern(search)
	parts := make([]types.Fragment, len(searchable))
	for i, name := range searchable {
		parts[i] = types.NewFragment(fmt.Sprintf("%s LIKE ? ESCAPE '%c'", c.cc.Qualify(name), db.LikeEscape), pattern)
	}
	return types.JoinFragments(" OR ", parts...).Wrap()
}

func searchPattern(search string) string {
	leading := strings.HasPrefix(search, "*")
	trailing := strings.HasSuffix(search, "*") && len(search) > 1
	term := db.EscapeLike(strings.Trim(search, "*"))

	switch {
	case leading && !trailing:
		return "%" + term
	case trailing && !leading:
		return term + "%"
	}
	return "%" + term + "%"
}
