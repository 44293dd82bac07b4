package query

import (
	"sort"
	"strings"

	"github.com/datastax/custom-tables/schema"
	"github.com/datastax/custom-tables/types"
)

var compareOperators = map[string]bool{
	"=": true, "!=": true, ">": true, ">=": true, "<": true, "<=": true,
	"BETWEEN": true, "NOT BETWEEN": true,
}

func isCompareColumn(c schema.ColumnDefinition) bool {
	return c.Compare
}

// CompareQuery renders numeric comparisons between compare columns and
// literals or other compare columns.
type CompareQuery struct {
	cc            ClauseContext
	defaultColumn string
	root          types.Clause
}

// NewCompareQuery sanitizes raw. Leaves without a "key" or "column"
// compare defaultColumn.
func NewCompareQuery(cc ClauseContext, defaultColumn string, raw interface{}) *CompareQuery {
	q := &CompareQuery{cc: cc, defaultColumn: defaultColumn}
	q.root = q.sanitize(raw, types.Group{Column: defaultColumn, Operator: "="}, 0)
	return q
}

// Root is the sanitized clause tree.
func (q *CompareQuery) Root() types.Clause {
	return q.root
}

// A map holding "value" is a leaf. Any other map or slice is a group whose
// members are combined only under an explicit relation; a group of two or
// more members without one is dropped.
func (q *CompareQuery) sanitize(raw interface{}, parent types.Group, depth int) types.Clause {
	if depth > maxClauseDepth {
		return nil
	}

	column, operator := parent.Column, parent.Operator
	var relation types.Relation
	var members []interface{}

	if m, ok := toStringMap(raw); ok {
		for _, k := range []string{"key", "column"} {
			if name, ok := m[k].(string); ok && strings.TrimSpace(name) != "" {
				column = strings.TrimSpace(name)
				break
			}
		}
		if compare, ok := m["compare"].(string); ok {
			compare = strings.ToUpper(strings.Join(strings.Fields(compare), " "))
			if compareOperators[compare] {
				operator = compare
			} else {
				q.cc.debug("compare clause dropped, operator not allowed", "compare", compare)
				return nil
			}
		}

		if value, isLeaf := m["value"]; isLeaf {
			return types.Leaf{Column: column, Operator: operator, Value: value}
		}

		if r, ok := types.ParseRelation(m["relation"]); ok {
			relation = r
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			switch k {
			case "key", "column", "compare", "relation":
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			members = append(members, m[k])
		}
	} else if s, ok := types.ToSlice(raw); ok {
		members = s
	} else {
		return nil
	}

	inherited := types.Group{Column: column, Operator: operator}
	group := types.Group{Relation: relation, Column: column, Operator: operator}
	for _, member := range members {
		if child := q.sanitize(member, inherited, depth+1); child != nil {
			group.Children = append(group.Children, child)
		}
	}

	switch {
	case len(group.Children) == 0:
		return nil
	case len(group.Children) == 1:
		return group.Children[0]
	case relation == "":
		q.cc.debug("compare group dropped, no relation", "column", column)
		return nil
	}
	return group
}

// SQL renders the sanitized tree.
func (q *CompareQuery) SQL() types.Fragment {
	return q.render(q.root)
}

func (q *CompareQuery) render(clause types.Clause) types.Fragment {
	switch c := clause.(type) {
	case types.Leaf:
		return q.leafSQL(c)
	case types.Group:
		fragments := make([]types.Fragment, 0, len(c.Children))
		for _, child := range c.Children {
			fragments = append(fragments, q.render(child).Wrap())
		}
		return types.JoinFragments(" "+string(c.Relation)+" ", fragments...)
	}
	return types.Fragment{}
}

func (q *CompareQuery) leafSQL(leaf types.Leaf) types.Fragment {
	definition, ok := q.cc.resolve(leaf.Column, isCompareColumn)
	if !ok {
		q.cc.debug("compare clause dropped, not a compare column", "column", leaf.Column)
		return types.Fragment{}
	}
	column := q.cc.Qualify(definition.Name)

	switch leaf.Operator {
	case "BETWEEN", "NOT BETWEEN":
		bounds, ok := types.ToSlice(leaf.Value)
		if !ok || len(bounds) != 2 {
			return types.Fragment{}
		}
		from, okFrom := q.operand(bounds[0])
		to, okTo := q.operand(bounds[1])
		if !okFrom || !okTo {
			return types.Fragment{}
		}
		return types.JoinFragments(" ",
			types.NewFragment(column+" "+leaf.Operator), from, types.NewFragment("AND"), to)
	}

	rhs, ok := q.operand(leaf.Value)
	if !ok {
		return types.Fragment{}
	}
	return types.JoinFragments(" ", types.NewFragment(column+" "+leaf.Operator), rhs)
}

// operand binds numbers and resolves other strings to compare columns.
func (q *CompareQuery) operand(value interface{}) (types.Fragment, bool) {
	if _, isSlice := types.ToSlice(value); isSlice {
		return types.Fragment{}, false
	}
	if _, isBool := value.(bool); isBool {
		return types.Fragment{}, false
	}
	if types.IsNumeric(value) {
		if types.IsIntegral(value) {
			i, _ := types.ToInt64(value)
			return types.NewFragment("?", i), true
		}
		f, _ := types.ToFloat64(value)
		return types.NewFragment("?", f), true
	}
	name, ok := value.(string)
	if !ok {
		return types.Fragment{}, false
	}
	other, ok := q.cc.resolve(name, isCompareColumn)
	if !ok {
		q.cc.debug("compare operand dropped, not a compare column", "operand", name)
		return types.Fragment{}, false
	}
	return types.NewFragment(q.cc.Qualify(other.Name)), true
}
