package config

import (
	"fmt"
)

// TableOperations is the set of lifecycle operations a deployment allows.
type TableOperations int

const (
	TableInstall TableOperations = 1 << iota
	TableUpgrade
	TableDrop
	TableTruncate
	TableDeleteAll
)

// DefaultOperations are the operations allowed when none are configured.
const DefaultOperations = TableInstall | TableUpgrade

func Ops(ops ...string) (TableOperations, error) {
	var o TableOperations
	err := o.Add(ops...)
	return o, err
}

func (o *TableOperations) Set(ops TableOperations)             { *o |= ops }
func (o *TableOperations) Clear(ops TableOperations)           { *o &= ^ops }
func (o TableOperations) IsSupported(ops TableOperations) bool { return o&ops != 0 }

func (o *TableOperations) Add(ops ...string) error {
	for _, op := range ops {
		switch op {
		case "TableInstall":
			o.Set(TableInstall)
		case "TableUpgrade":
			o.Set(TableUpgrade)
		case "TableDrop":
			o.Set(TableDrop)
		case "TableTruncate":
			o.Set(TableTruncate)
		case "TableDeleteAll":
			o.Set(TableDeleteAll)
		default:
			return fmt.Errorf("invalid operation: %s", op)
		}
	}
	return nil
}
