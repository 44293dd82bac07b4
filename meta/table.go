package meta

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/datastax/custom-tables/db"
	"github.com/datastax/custom-tables/log"
	"github.com/datastax/custom-tables/schema"
	"github.com/datastax/custom-tables/types"
)

var compareOperators = map[string]bool{
	"=": true, "!=": true, ">": true, ">=": true, "<": true, "<=": true,
	"LIKE": true, "NOT LIKE": true, "IN": true, "NOT IN": true,
	"EXISTS": true, "NOT EXISTS": true,
}

// TableQuerier queries metadata stored in "{prefix}{object type}meta" tables
// with meta_id, {object type}_id, meta_key and meta_value columns.
type TableQuerier struct {
	prefix string
	logger log.Logger
}

func NewTableQuerier(prefix string, logger log.Logger) *TableQuerier {
	return &TableQuerier{prefix: prefix, logger: logger}
}

// TableName is the metadata table of objectType.
func (q *TableQuerier) TableName(objectType string) string {
	return q.prefix + objectType + "meta"
}

// ObjectColumn is the column referencing the object's primary key.
func (q *TableQuerier) ObjectColumn(objectType string) string {
	return objectType + "_id"
}

type metaBuilder struct {
	req     Request
	table   string
	column  string
	aliases int
	joins   []types.Fragment
}

func (q *TableQuerier) GetSQL(ctx context.Context, req Request) (Fragments, bool) {
	table := q.TableName(req.ObjectType)
	column := q.ObjectColumn(req.ObjectType)
	if !schema.IsIdentifier(table) || !schema.IsIdentifier(req.TableAlias) || !schema.IsIdentifier(req.PrimaryColumn) {
		q.logger.Debug("meta query skipped, invalid identifiers", "objectType", req.ObjectType, "alias", req.TableAlias)
		return Fragments{}, false
	}

	b := &metaBuilder{req: req, table: table, column: column}
	where := b.group(req.Query, 0)
	if where.IsEmpty() {
		return Fragments{}, false
	}
	return Fragments{
		Join:  types.JoinFragments(" ", b.joins...),
		Where: where,
	}, true
}

const maxDepth = 5

func (b *metaBuilder) group(query interface{}, depth int) types.Fragment {
	if depth > maxDepth {
		return types.Fragment{}
	}

	relation := types.RelationAnd
	var children []interface{}
	switch v := query.(type) {
	case map[string]interface{}:
		if _, isLeaf := v["key"]; isLeaf {
			return b.leaf(v)
		}
		if r, ok := types.ParseRelation(v["relation"]); ok {
			relation = r
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			if k != "relation" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			children = append(children, v[k])
		}
	case []interface{}:
		children = v
	case []map[string]interface{}:
		for _, child := range v {
			children = append(children, child)
		}
	default:
		return types.Fragment{}
	}

	fragments := make([]types.Fragment, 0, len(children))
	for _, child := range children {
		if r, ok := types.ParseRelation(child); ok {
			relation = r
			continue
		}
		fragments = append(fragments, b.group(child, depth+1).Wrap())
	}
	return types.JoinFragments(" "+string(relation)+" ", fragments...)
}

func (b *metaBuilder) leaf(clause map[string]interface{}) types.Fragment {
	key, ok := types.ToString(clause["key"])
	if !ok || key == "" {
		return types.Fragment{}
	}

	operator := "="
	if compare, ok := clause["compare"].(string); ok && compare != "" {
		operator = strings.ToUpper(strings.TrimSpace(compare))
	}
	if !compareOperators[operator] {
		return types.Fragment{}
	}
	value, hasValue := clause["value"]
	if !hasValue && operator == "=" {
		operator = "EXISTS"
	}

	alias := fmt.Sprintf("mt%d", b.aliases+1)
	on := fmt.Sprintf("%s.%s = %s.%s", b.req.TableAlias, b.req.PrimaryColumn, alias, b.column)

	if operator == "NOT EXISTS" {
		b.join(types.NewFragment(
			fmt.Sprintf("LEFT JOIN %s AS %s ON (%s AND %s.meta_key = ?)", b.table, alias, on, alias), key))
		return types.NewFragment(alias + ".meta_id IS NULL")
	}

	keyFragment := types.NewFragment(alias+".meta_key = ?", key)
	valueColumn := alias + ".meta_value"
	var valueFragment types.Fragment
	switch operator {
	case "EXISTS":
	case "IN", "NOT IN":
		values, ok := types.ToSlice(value)
		if !ok {
			values = []interface{}{value}
		}
		if len(values) == 0 {
			return types.Fragment{}
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		valueFragment = types.NewFragment(fmt.Sprintf("%s %s (%s)", valueColumn, operator, placeholders), values...)
	case "LIKE", "NOT LIKE":
		s, _ := types.ToString(value)
		valueFragment = types.NewFragment(
			fmt.Sprintf("%s %s ? ESCAPE '%c'", valueColumn, operator, db.LikeEscape), "%"+db.EscapeLike(s)+"%")
	default:
		s, ok := types.ToString(value)
		if !ok {
			return types.Fragment{}
		}
		valueFragment = types.NewFragment(fmt.Sprintf("%s %s ?", valueColumn, operator), s)
	}

	b.join(types.NewFragment(fmt.Sprintf("INNER JOIN %s AS %s ON (%s)", b.table, alias, on)))
	return types.JoinFragments(" AND ", keyFragment, valueFragment)
}

func (b *metaBuilder) join(f types.Fragment) {
	b.aliases++
	b.joins = append(b.joins, f)
}
