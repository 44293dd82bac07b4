package table

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-version"
	"github.com/mitchellh/mapstructure"

	"github.com/datastax/custom-tables/db"
	"github.com/datastax/custom-tables/schema"
	"github.com/datastax/custom-tables/versions"
)

// Definition is the code-declared shape of a custom table.
type Definition struct {
	Name    string                    `mapstructure:"name"`
	Version string                    `mapstructure:"version"`
	Scope   versions.Scope            `mapstructure:"scope"`
	Columns []schema.ColumnDefinition `mapstructure:"columns"`
	Indexes []db.IndexInfo            `mapstructure:"indexes"`
	// Upgrades migrate an installed table to their version. Steps above
	// Version are never run.
	Upgrades []UpgradeStep `mapstructure:"upgrades"`
}

// UpgradeStep is one versioned migration. Its parts run in field order;
// column and index additions are skipped when already present, so a step
// that failed half way can be retried.
type UpgradeStep struct {
	Version string `mapstructure:"version"`
	// AddColumns names columns of the definition to add
	AddColumns  []string       `mapstructure:"add_columns"`
	DropColumns []string       `mapstructure:"drop_columns"`
	AddIndexes  []db.IndexInfo `mapstructure:"add_indexes"`
	// Statements run as-is, with {table} replaced by the quoted table name
	Statements []string `mapstructure:"statements"`
	// Apply runs last, for migrations that need code
	Apply func(ctx context.Context, t *Table) error `mapstructure:"-"`
}

// DecodeDefinition builds a Definition from loosely typed input, such as a
// parsed YAML document.
func DecodeDefinition(input map[string]interface{}) (Definition, error) {
	var def Definition
	columns, _ := input["columns"].([]interface{})

	rest := make(map[string]interface{}, len(input))
	for k, v := range input {
		if k != "columns" {
			rest[k] = v
		}
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &def,
	})
	if err != nil {
		return def, err
	}
	if err := decoder.Decode(rest); err != nil {
		return def, fmt.Errorf("invalid table definition: %w", err)
	}

	maps := make([]map[string]interface{}, 0, len(columns))
	for _, c := range columns {
		if m, ok := c.(map[string]interface{}); ok {
			maps = append(maps, m)
		}
	}
	s := schema.FromMaps(maps)
	if rejected := s.Rejected(); len(rejected) > 0 {
		return def, fmt.Errorf("table %s: %w", def.Name, rejected[0])
	}
	def.Columns = s.Columns(nil, schema.And)
	return def, nil
}

func (d Definition) validate() error {
	if !schema.IsIdentifier(d.Name) {
		return fmt.Errorf("invalid table name %q", d.Name)
	}
	if _, err := version.NewVersion(d.Version); err != nil {
		return fmt.Errorf("table %s has invalid version %q: %w", d.Name, d.Version, err)
	}
	if _, err := versions.ParseScope(string(d.Scope)); err != nil {
		return fmt.Errorf("table %s: %w", d.Name, err)
	}
	for _, step := range d.Upgrades {
		if _, err := version.NewVersion(step.Version); err != nil {
			return fmt.Errorf("table %s has invalid upgrade version %q: %w", d.Name, step.Version, err)
		}
	}
	return nil
}

// sortedUpgrades returns the steps in ascending version order.
func (d Definition) sortedUpgrades() []UpgradeStep {
	steps := append([]UpgradeStep(nil), d.Upgrades...)
	sort.SliceStable(steps, func(i, j int) bool {
		c, _ := versions.Compare(steps[i].Version, steps[j].Version)
		return c < 0
	})
	return steps
}
