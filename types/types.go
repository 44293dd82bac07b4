// types package contains the value types shared by the schema, query, and
// table packages: rows, clauses, SQL fragments, and optional values.
package types

import (
	"strings"
	"time"

	"gopkg.in/inf.v0"
)

type ModificationResult struct {
	Applied      bool  `json:"applied"`
	RowsAffected int64 `json:"rowsAffected"`
	LastInsertID int64 `json:"lastInsertId"`
}

// Row is a single table row keyed by column name. Values are hydrated to Go
// types by column type: int64, float64, *inf.Dec, time.Time, bool, or string.
type Row map[string]interface{}

func (r Row) Has(column string) bool {
	_, ok := r[column]
	return ok
}

func (r Row) Get(column string) interface{} {
	return r[column]
}

func (r Row) String(column string) string {
	s, _ := ToString(r[column])
	return s
}

func (r Row) Int64(column string) int64 {
	i, _ := ToInt64(r[column])
	return i
}

func (r Row) Float64(column string) float64 {
	f, _ := ToFloat64(r[column])
	return f
}

func (r Row) Bool(column string) bool {
	b, _ := ToBool(r[column])
	return b
}

func (r Row) Time(column string) time.Time {
	t, _ := ParseDateTime(r[column])
	return t
}

func (r Row) Decimal(column string) *inf.Dec {
	d, _ := ToDecimal(r[column])
	return d
}

// Project returns a copy holding only the given columns.
func (r Row) Project(columns []string) Row {
	projected := make(Row, len(columns))
	for _, c := range columns {
		if v, ok := r[c]; ok {
			projected[c] = v
		}
	}
	return projected
}

func (r Row) Copy() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

type Relation string

const (
	RelationAnd Relation = "AND"
	RelationOr  Relation = "OR"
)

// ParseRelation accepts "and"/"or" in any case.
func ParseRelation(value interface{}) (Relation, bool) {
	s, ok := value.(string)
	if !ok {
		if r, isRelation := value.(Relation); isRelation {
			s = string(r)
		} else {
			return "", false
		}
	}
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AND":
		return RelationAnd, true
	case "OR":
		return RelationOr, true
	}
	return "", false
}

// Clause is either a Leaf or a Group.
type Clause interface {
	isClause()
}

// Leaf compares one column with a value.
type Leaf struct {
	Column   string
	Operator string
	Value    interface{}
}

// Group combines its children with Relation. Column and Operator are
// inherited by children that leave them empty.
type Group struct {
	Relation Relation
	Column   string
	Operator string
	Children []Clause
}

func (Leaf) isClause()  {}
func (Group) isClause() {}

// Fragment is a piece of SQL with its bound arguments, in placeholder order.
type Fragment struct {
	SQL  string
	Args []interface{}
}

func NewFragment(sql string, args ...interface{}) Fragment {
	return Fragment{SQL: sql, Args: args}
}

func (f Fragment) IsEmpty() bool {
	return strings.TrimSpace(f.SQL) == ""
}

// Wrap parenthesizes a non-empty fragment.
func (f Fragment) Wrap() Fragment {
	if f.IsEmpty() {
		return f
	}
	return Fragment{SQL: "(" + f.SQL + ")", Args: f.Args}
}

// JoinFragments joins the non-empty fragments with sep, keeping argument order.
func JoinFragments(sep string, fragments ...Fragment) Fragment {
	parts := make([]string, 0, len(fragments))
	var args []interface{}
	for _, f := range fragments {
		if f.IsEmpty() {
			continue
		}
		parts = append(parts, f.SQL)
		args = append(args, f.Args...)
	}
	return Fragment{SQL: strings.Join(parts, sep), Args: args}
}
