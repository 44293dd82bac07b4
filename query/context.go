package query

import (
	"strconv"
	"strings"
	"time"

	"github.com/datastax/custom-tables/log"
	"github.com/datastax/custom-tables/schema"
)

// Clause trees nested deeper than this are cut off.
const maxClauseDepth = 8

// ClauseContext is the read-only view of the owning query handed to the
// clause builders of one call.
type ClauseContext struct {
	Alias   string
	Primary string
	Schema  *schema.Schema
	Logger  log.Logger
	Now     func() time.Time
}

// Qualify prefixes a column with the table alias.
func (cc ClauseContext) Qualify(column string) string {
	if cc.Alias == "" {
		return column
	}
	return cc.Alias + "." + column
}

// resolve returns the registered column named name, accepting an
// alias-qualified name, when it satisfies eligible.
func (cc ClauseContext) resolve(name string, eligible func(schema.ColumnDefinition) bool) (schema.ColumnDefinition, bool) {
	name = strings.TrimSpace(name)
	if cc.Alias != "" {
		name = strings.TrimPrefix(name, cc.Alias+".")
	}
	column, ok := cc.Schema.Column(name)
	if !ok || !eligible(column) {
		return schema.ColumnDefinition{}, false
	}
	return column, true
}

func (cc ClauseContext) now() time.Time {
	if cc.Now != nil {
		return cc.Now()
	}
	return time.Now().UTC()
}

func (cc ClauseContext) debug(msg string, keyAndValues ...interface{}) {
	if cc.Logger != nil {
		cc.Logger.Debug(msg, keyAndValues...)
	}
}

// toStringMap accepts the map shapes produced by JSON and YAML decoders.
func toStringMap(value interface{}) (map[string]interface{}, bool) {
	switch v := value.(type) {
	case map[string]interface{}:
		return v, true
	case Vars:
		return v, true
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, val := range v {
			switch key := k.(type) {
			case string:
				m[key] = val
			case int:
				m[strconv.Itoa(key)] = val
			default:
				return nil, false
			}
		}
		return m, true
	}
	return nil, false
}
