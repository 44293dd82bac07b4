package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/datastax/custom-tables/table"
)

type definitionsFile struct {
	Tables []map[string]interface{} `yaml:"tables"`
}

// LoadDefinitions reads table definitions from a YAML file, or from every
// .yaml and .yml file of a directory in name order.
func LoadDefinitions(path string) ([]table.Definition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	files := []string{path}
	if info.IsDir() {
		files = nil
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, _ := filepath.Glob(filepath.Join(path, pattern))
			files = append(files, matches...)
		}
		sort.Strings(files)
	}

	var defs []table.Definition
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		parsed, err := ParseDefinitions(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		defs = append(defs, parsed...)
	}
	return defs, nil
}

// ParseDefinitions decodes a YAML document with a "tables" list.
func ParseDefinitions(data []byte) ([]table.Definition, error) {
	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid definitions: %w", err)
	}

	defs := make([]table.Definition, 0, len(file.Tables))
	for i, raw := range file.Tables {
		def, err := table.DecodeDefinition(raw)
		if err != nil {
			return nil, fmt.Errorf("table definition %d: %w", i, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
