package config

import (
	"strings"

	"github.com/iancoleman/strcase"
)

type NamingConvention interface {
	// ToTableName returns the physical table name of a logical table
	ToTableName(prefix string, name string) string
	// ToCacheGroup returns the cache group name of a logical table
	ToCacheGroup(name string) string
	// ToItemName returns the singular item name used by meta tables
	ToItemName(name string) string
}

type defaultNaming struct {
}

func NewDefaultNaming() NamingConvention {
	return &defaultNaming{}
}

func (n *defaultNaming) ToTableName(prefix string, name string) string {
	return prefix + strcase.ToSnake(name)
}

func (n *defaultNaming) ToCacheGroup(name string) string {
	return strcase.ToSnake(name)
}

func (n *defaultNaming) ToItemName(name string) string {
	item := strcase.ToSnake(name)
	switch {
	case strings.HasSuffix(item, "ies"):
		return strings.TrimSuffix(item, "ies") + "y"
	case strings.HasSuffix(item, "sses"):
		return strings.TrimSuffix(item, "es")
	case strings.HasSuffix(item, "s") && !strings.HasSuffix(item, "ss"):
		return strings.TrimSuffix(item, "s")
	}
	return item
}
