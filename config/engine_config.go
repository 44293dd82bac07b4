package config

import (
	"go.uber.org/zap"

	"github.com/datastax/custom-tables/log"
)

// EngineConfig is the Config of an engine, plus what it needs to connect.
type EngineConfig struct {
	driver        string
	dsn           string
	tablePrefix   string
	naming        NamingConvention
	supportedOps  TableOperations
	versionStore  string
	versionsTable string
	cassandra     CassandraSettings
	logger        log.Logger
}

type CassandraSettings struct {
	Hosts    []string
	Keyspace string
	Username string
	Password string
}

func NewEngineConfig(driver, dsn string) (*EngineConfig, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return NewEngineConfigWithLogger(log.NewZapLogger(logger), driver, dsn), nil
}

func NewEngineConfigWithLogger(logger log.Logger, driver, dsn string) *EngineConfig {
	return &EngineConfig{
		driver:       driver,
		dsn:          dsn,
		naming:       NewDefaultNaming(),
		supportedOps: DefaultOperations,
		versionStore: "sql",
		logger:       logger,
	}
}

// NewEngineConfigFromSettings applies loaded settings to a new config.
func NewEngineConfigFromSettings(settings *Settings, logger log.Logger) (*EngineConfig, error) {
	ops, err := settings.SupportedOperations()
	if err != nil {
		return nil, err
	}
	cfg := NewEngineConfigWithLogger(logger, settings.Driver, settings.DSN).
		WithTablePrefix(settings.TablePrefix).
		WithSupportedOperations(ops).
		WithVersionStore(settings.VersionStore, settings.VersionsTable).
		WithCassandra(CassandraSettings{
			Hosts:    settings.CassandraHosts,
			Keyspace: settings.CassandraKeyspace,
			Username: settings.CassandraUsername,
			Password: settings.CassandraPassword,
		})
	return cfg, nil
}

func (cfg EngineConfig) Driver() string {
	return cfg.driver
}

func (cfg EngineConfig) DSN() string {
	return cfg.dsn
}

func (cfg EngineConfig) TablePrefix() string {
	return cfg.tablePrefix
}

func (cfg EngineConfig) Naming() NamingConvention {
	return cfg.naming
}

func (cfg EngineConfig) SupportedOperations() TableOperations {
	return cfg.supportedOps
}

// VersionStore is "sql" or "cql".
func (cfg EngineConfig) VersionStore() string {
	return cfg.versionStore
}

func (cfg EngineConfig) VersionsTable() string {
	return cfg.versionsTable
}

func (cfg EngineConfig) Cassandra() CassandraSettings {
	return cfg.cassandra
}

func (cfg EngineConfig) Logger() log.Logger {
	return cfg.logger
}

func (cfg *EngineConfig) WithTablePrefix(prefix string) *EngineConfig {
	cfg.tablePrefix = prefix
	return cfg
}

func (cfg *EngineConfig) WithNaming(naming NamingConvention) *EngineConfig {
	cfg.naming = naming
	return cfg
}

func (cfg *EngineConfig) WithSupportedOperations(supportedOps TableOperations) *EngineConfig {
	cfg.supportedOps = supportedOps
	return cfg
}

func (cfg *EngineConfig) WithVersionStore(store, table string) *EngineConfig {
	if store != "" {
		cfg.versionStore = store
	}
	cfg.versionsTable = table
	return cfg
}

func (cfg *EngineConfig) WithCassandra(cassandra CassandraSettings) *EngineConfig {
	cfg.cassandra = cassandra
	return cfg
}

func (cfg *EngineConfig) WithLogger(logger log.Logger) *EngineConfig {
	cfg.logger = logger
	return cfg
}
