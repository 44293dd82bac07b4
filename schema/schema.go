package schema

import (
	"fmt"
	"strings"

	"github.com/datastax/custom-tables/types"
)

// Operator composes the field tests of a Filter.
type Operator string

const (
	And Operator = "and"
	Or  Operator = "or"
	Not Operator = "not"
)

// Filter maps definition field names (as in the mapstructure tags, e.g.
// "searchable" or "name") to the exact value a column must hold.
type Filter map[string]interface{}

// Schema is the immutable set of column definitions of one table.
type Schema struct {
	columns  []ColumnDefinition
	byName   map[string]int
	primary  int
	rejected []error
}

// New validates and stores column definitions. Malformed definitions,
// duplicate names, and extra primary columns are skipped and reported by
// Rejected; New never fails.
func New(columns ...ColumnDefinition) *Schema {
	s := &Schema{
		columns: make([]ColumnDefinition, 0, len(columns)),
		byName:  make(map[string]int, len(columns)),
		primary: -1,
	}

	for _, column := range columns {
		column = normalize(column)

		if err := validateDefinition(column); err != nil {
			s.reject(column.Name, err)
			continue
		}
		if _, exists := s.byName[column.Name]; exists {
			s.reject(column.Name, fmt.Errorf("duplicate column name"))
			continue
		}
		if column.Primary && s.primary >= 0 {
			s.reject(column.Name, fmt.Errorf("primary column already defined as %q", s.columns[s.primary].Name))
			continue
		}

		if column.Primary {
			s.primary = len(s.columns)
		}
		s.byName[column.Name] = len(s.columns)
		s.columns = append(s.columns, column.copy())
	}

	return s
}

func normalize(column ColumnDefinition) ColumnDefinition {
	column.Name = strings.TrimSpace(column.Name)
	column.Type = strings.ToLower(strings.TrimSpace(column.Type))
	if column.Pattern == "" && column.Type != "" {
		column.Pattern = types.PatternForType(column.Type)
	}
	if column.Primary {
		column.In = true
		column.NotIn = true
		column.Sortable = true
	}
	if column.Created || column.Modified {
		column.DateQuery = true
		column.Sortable = true
	}
	return column
}

func (s *Schema) reject(name string, err error) {
	s.rejected = append(s.rejected, fmt.Errorf("column %q: %w", name, err))
}

// Rejected lists why definitions passed to New were skipped.
func (s *Schema) Rejected() []error {
	return s.rejected
}

func (s *Schema) Len() int {
	return len(s.columns)
}

// Columns returns copies of the columns matching filter under op. An empty
// filter matches every column.
func (s *Schema) Columns(filter Filter, op Operator) []ColumnDefinition {
	matched := make([]ColumnDefinition, 0, len(s.columns))
	for _, column := range s.columns {
		if matchFilter(column, filter, op) {
			matched = append(matched, column.copy())
		}
	}
	return matched
}

// Names is Columns projected to column names.
func (s *Schema) Names(filter Filter, op Operator) []string {
	columns := s.Columns(filter, op)
	names := make([]string, len(columns))
	for i, column := range columns {
		names[i] = column.Name
	}
	return names
}

// Project is Columns projected to a single definition field.
func (s *Schema) Project(filter Filter, op Operator, field string) []interface{} {
	columns := s.Columns(filter, op)
	values := make([]interface{}, 0, len(columns))
	for _, column := range columns {
		if v, ok := column.field(field); ok {
			values = append(values, v)
		}
	}
	return values
}

// ColumnBy returns the first column matching every field of filter.
func (s *Schema) ColumnBy(filter Filter) (ColumnDefinition, bool) {
	for _, column := range s.columns {
		if len(filter) > 0 && matchFilter(column, filter, And) {
			return column.copy(), true
		}
	}
	return ColumnDefinition{}, false
}

func (s *Schema) Column(name string) (ColumnDefinition, bool) {
	i, ok := s.byName[name]
	if !ok {
		return ColumnDefinition{}, false
	}
	return s.columns[i].copy(), true
}

func (s *Schema) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

func (s *Schema) Primary() (ColumnDefinition, bool) {
	if s.primary < 0 {
		return ColumnDefinition{}, false
	}
	return s.columns[s.primary].copy(), true
}

// ColumnTypes maps column names to their SQL types, for row hydration.
func (s *Schema) ColumnTypes() map[string]string {
	columnTypes := make(map[string]string, len(s.columns))
	for _, column := range s.columns {
		columnTypes[column.Name] = column.Type
	}
	return columnTypes
}

func matchFilter(column ColumnDefinition, filter Filter, op Operator) bool {
	if len(filter) == 0 {
		return true
	}

	matched := 0
	for field, expected := range filter {
		if column.matches(field, expected) {
			matched++
		}
	}

	switch op {
	case Or:
		return matched > 0
	case Not:
		return matched == 0
	default:
		return matched == len(filter)
	}
}
