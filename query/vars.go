package query

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/datastax/custom-tables/schema"
	"github.com/datastax/custom-tables/types"
)

// Vars are the options of one query call. A key that is absent is
// unspecified, which differs from a key passed with an empty value.
type Vars map[string]interface{}

// Option reads key, telling apart "not passed" and "passed empty".
func (v Vars) Option(key string) types.Option[interface{}] {
	value, ok := v[key]
	if !ok {
		return types.None[interface{}]()
	}
	return types.Some(value)
}

func (v Vars) Copy() Vars {
	out := make(Vars, len(v))
	for k, value := range v {
		out[k] = value
	}
	return out
}

const (
	FieldsIDs = "ids"

	OrderAsc  = "ASC"
	OrderDesc = "DESC"

	// DefaultNumber caps a page when the caller does not set number.
	DefaultNumber = 100
)

// Suffixes of per-column vars.
const (
	suffixIn      = "__in"
	suffixNotIn   = "__not_in"
	suffixCompare = "__compare"
	suffixQuery   = "_query"
)

// options are the typed, non-column vars.
type options struct {
	Fields        []string `mapstructure:"fields"`
	Number        int      `mapstructure:"number"`
	Offset        int      `mapstructure:"offset"`
	NoFoundRows   bool     `mapstructure:"no_found_rows"`
	OrderBy       []string `mapstructure:"orderby"`
	Order         string   `mapstructure:"order"`
	GroupBy       []string `mapstructure:"groupby"`
	Search        string   `mapstructure:"search"`
	SearchColumns []string `mapstructure:"search_columns"`
	Count         bool     `mapstructure:"count"`
	UpdateCache   bool     `mapstructure:"update_cache"`
}

// idsOnly reports whether only primary keys were asked for.
func (o options) idsOnly() bool {
	return len(o.Fields) == 1 && o.Fields[0] == FieldsIDs
}

func (o options) limited() bool {
	return o.Number > 0
}

// defaultVars lists every known var with its default. Per-column equality
// vars are known but have no default entry, so they stay unspecified.
func defaultVars(s *schema.Schema) (Vars, map[string]bool) {
	primary := ""
	if p, ok := s.Primary(); ok {
		primary = p.Name
	}

	defaults := Vars{
		"fields":         "",
		"number":         DefaultNumber,
		"offset":         0,
		"no_found_rows":  true,
		"orderby":        primary,
		"order":          OrderDesc,
		"groupby":        "",
		"search":         "",
		"search_columns": []string{},
		"count":          false,
		"update_cache":   true,
		"date_query":     nil,
		"compare_query":  nil,
		"meta_query":     nil,
	}
	known := make(map[string]bool, len(defaults)+s.Len()*3)
	for k := range defaults {
		known[k] = true
	}

	for _, column := range s.Columns(nil, schema.And) {
		known[column.Name] = true
		if column.In {
			known[column.Name+suffixIn] = true
		}
		if column.NotIn {
			known[column.Name+suffixNotIn] = true
		}
		if column.Compare {
			known[column.Name+suffixCompare] = true
		}
		if column.DateQuery {
			known[column.Name+suffixQuery] = true
		}
	}
	return defaults, known
}

// mergeVars overlays the caller's vars on the defaults.
func mergeVars(defaults Vars, vars Vars) Vars {
	merged := defaults.Copy()
	for k, v := range vars {
		merged[k] = v
	}
	return merged
}

// cacheVars is the subset of known vars a result depends on. fields only
// shapes the returned items and is left out.
func cacheVars(vars Vars, known map[string]bool) Vars {
	out := make(Vars, len(vars))
	for k, v := range vars {
		if known[k] && k != "fields" {
			out[k] = v
		}
	}
	return out
}

func decodeOptions(vars Vars) (options, error) {
	var o options
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
		WeaklyTypedInput: true,
		Result:           &o,
	})
	if err != nil {
		return o, err
	}

	input := make(map[string]interface{}, 11)
	for _, k := range []string{"fields", "number", "offset", "no_found_rows", "orderby", "order",
		"groupby", "search", "search_columns", "count", "update_cache"} {
		if v, ok := vars[k]; ok && v != nil {
			input[k] = v
		}
	}
	if err := decoder.Decode(input); err != nil {
		return o, fmt.Errorf("invalid query options: %w", err)
	}

	o.Fields = trimAll(o.Fields)
	o.OrderBy = trimAll(o.OrderBy)
	o.GroupBy = trimAll(o.GroupBy)
	o.SearchColumns = trimAll(o.SearchColumns)
	o.Search = strings.TrimSpace(o.Search)
	if o.Offset < 0 {
		o.Offset = 0
	}
	o.Order = strings.ToUpper(strings.TrimSpace(o.Order))
	if o.Order != OrderAsc {
		o.Order = OrderDesc
	}
	return o, nil
}

// trimAll drops blank members.
func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
