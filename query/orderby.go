package query

import (
	"fmt"
	"strings"

	"github.com/datastax/custom-tables/types"
)

// orderByClause resolves orderby members to sortable columns. "{col}__in"
// orders by the position of each row's value in the {col}__in list.
// Unknown members are skipped; with none left the primary key is used.
func (c *call) orderByClause() types.Fragment {
	parts := make([]types.Fragment, 0, len(c.opts.OrderBy))
	seen := make(map[string]bool, len(c.opts.OrderBy))

	for _, member := range c.opts.OrderBy {
		if seen[member] {
			continue
		}
		seen[member] = true

		if strings.HasSuffix(member, suffixIn) {
			if f, ok := c.orderByField(strings.TrimSuffix(member, suffixIn)); ok {
				parts = append(parts, f)
			}
			continue
		}

		column, ok := c.q.schema.Column(member)
		if !ok || !column.Sortable {
			c.cc.debug("orderby ignored, not a sortable column", "orderby", member)
			continue
		}
		parts = append(parts, types.NewFragment(c.cc.Qualify(column.Name)+" "+c.opts.Order))
	}

	if len(parts) == 0 {
		return types.NewFragment(c.cc.Qualify(c.cc.Primary) + " " + c.opts.Order)
	}
	return types.JoinFragments(", ", parts...)
}

func (c *call) orderByField(name string) (types.Fragment, bool) {
	column, ok := c.q.schema.Column(name)
	if !ok || !column.In {
		return types.Fragment{}, false
	}
	members, ok := types.ToSlice(c.vars[name+suffixIn])
	if !ok || len(members) == 0 {
		return types.Fragment{}, false
	}
	args := make([]interface{}, len(members))
	for i, member := range members {
		args[i] = bindValue(column, member)
	}
	return types.NewFragment(fmt.Sprintf("FIELD(%s, %s)", c.cc.Qualify(column.Name), placeholders(len(args))), args...), true
}

// groupByColumns keeps the registered groupby members.
func (c *call) groupByColumns() []string {
	columns := make([]string, 0, len(c.opts.GroupBy))
	for _, name := range c.opts.GroupBy {
		if c.q.schema.Has(name) {
			columns = append(columns, name)
		}
	}
	return columns
}

func (c *call) limitClause() string {
	if !c.opts.limited() {
		return ""
	}
	if c.opts.Offset > 0 {
		return fmt.Sprintf("LIMIT %d, %d", c.opts.Offset, c.opts.Number)
	}
	return fmt.Sprintf("LIMIT %d", c.opts.Number)
}
