package schema

import (
	"reflect"

	"github.com/datastax/custom-tables/types"
)

// Operation names a kind of access used by per-column capability requirements.
type Operation string

const (
	OpSelect Operation = "select"
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ColumnDefinition describes one column of a custom table and what queries
// may do with it.
type ColumnDefinition struct {
	Name      string      `mapstructure:"name" validate:"required,max=64,identifier"`
	Type      string      `mapstructure:"type" validate:"required,columntype"`
	Length    string      `mapstructure:"length" validate:"omitempty,columnlength"`
	Unsigned  bool        `mapstructure:"unsigned"`
	AllowNull bool        `mapstructure:"allow_null"`
	Default   interface{} `mapstructure:"default"`
	Extra     string      `mapstructure:"extra"`
	Pattern   string      `mapstructure:"pattern" validate:"omitempty,oneof=%d %f %s"`

	Primary    bool `mapstructure:"primary"`
	Created    bool `mapstructure:"created"`
	Modified   bool `mapstructure:"modified"`
	Searchable bool `mapstructure:"searchable"`
	Sortable   bool `mapstructure:"sortable"`
	In         bool `mapstructure:"in"`
	NotIn      bool `mapstructure:"not_in"`
	Compare    bool `mapstructure:"compare"`
	DateQuery  bool `mapstructure:"date_query"`
	CacheKey   bool `mapstructure:"cache_key"`

	// Validate is a go-playground/validator tag applied to written values.
	Validate string `mapstructure:"validate"`
	// Validator may rewrite a written value or reject it.
	Validator func(value interface{}) (interface{}, error) `mapstructure:"-"`
	// Caps holds the capability required to touch this column per operation.
	Caps map[Operation]string `mapstructure:"caps"`
}

// Kind classifies the column type.
func (c ColumnDefinition) Kind() types.TypeKind {
	return types.KindOf(c.Type)
}

// SQLType is the type as written in DDL, e.g. "bigint(20) unsigned".
func (c ColumnDefinition) SQLType() string {
	t := c.Type
	if c.Length != "" {
		t += "(" + c.Length + ")"
	}
	if c.Unsigned {
		t += " unsigned"
	}
	return t
}

// Cap returns the capability required for op, if any.
func (c ColumnDefinition) Cap(op Operation) (string, bool) {
	required, ok := c.Caps[op]
	return required, ok && required != ""
}

func (c ColumnDefinition) copy() ColumnDefinition {
	if c.Caps != nil {
		caps := make(map[Operation]string, len(c.Caps))
		for k, v := range c.Caps {
			caps[k] = v
		}
		c.Caps = caps
	}
	return c
}

// field returns the value of a definition field by its mapstructure name.
func (c ColumnDefinition) field(name string) (interface{}, bool) {
	switch name {
	case "name":
		return c.Name, true
	case "type":
		return c.Type, true
	case "length":
		return c.Length, true
	case "unsigned":
		return c.Unsigned, true
	case "allow_null":
		return c.AllowNull, true
	case "default":
		return c.Default, true
	case "extra":
		return c.Extra, true
	case "pattern":
		return c.Pattern, true
	case "primary":
		return c.Primary, true
	case "created":
		return c.Created, true
	case "modified":
		return c.Modified, true
	case "searchable":
		return c.Searchable, true
	case "sortable":
		return c.Sortable, true
	case "in":
		return c.In, true
	case "not_in":
		return c.NotIn, true
	case "compare":
		return c.Compare, true
	case "date_query":
		return c.DateQuery, true
	case "cache_key":
		return c.CacheKey, true
	case "validate":
		return c.Validate, true
	}
	return nil, false
}

func (c ColumnDefinition) matches(name string, expected interface{}) bool {
	actual, ok := c.field(name)
	if !ok {
		return false
	}
	return reflect.DeepEqual(actual, expected)
}
