package schema

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// FromMaps decodes loosely typed column definitions, as read from YAML or
// JSON, and builds a Schema. Entries that cannot be decoded are skipped.
func FromMaps(definitions []map[string]interface{}) *Schema {
	columns := make([]ColumnDefinition, 0, len(definitions))
	var rejected []error

	for i, definition := range definitions {
		var column ColumnDefinition
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &column,
		})
		if err == nil {
			err = decoder.Decode(definition)
		}
		if err != nil {
			rejected = append(rejected, fmt.Errorf("column definition %d: %w", i, err))
			continue
		}
		columns = append(columns, column)
	}

	s := New(columns...)
	s.rejected = append(rejected, s.rejected...)
	return s
}
