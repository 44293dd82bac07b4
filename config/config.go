package config

import (
	"github.com/datastax/custom-tables/log"
)

type Config interface {
	// TablePrefix is prepended to every physical table name
	TablePrefix() string
	Naming() NamingConvention
	SupportedOperations() TableOperations
	Logger() log.Logger
}
