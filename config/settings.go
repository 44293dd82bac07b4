package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/datastax/custom-tables/schema"
)

// Environment variables prefixed with "TABLES_" can override settings e.g. "TABLES_DSN"
const EnvVarPrefix = "tables"

// Settings are the process level options of the tables command.
type Settings struct {
	Driver        string   `mapstructure:"driver" validate:"required,oneof=sqlite3 sqlite mysql mariadb"`
	DSN           string   `mapstructure:"dsn" validate:"required"`
	TablePrefix   string   `mapstructure:"table-prefix" validate:"omitempty,identifier"`
	LogLevel      string   `mapstructure:"log-level" validate:"omitempty,oneof=debug info warn error"`
	Operations    []string `mapstructure:"operations"`
	Definitions   string   `mapstructure:"definitions"`
	VersionStore  string   `mapstructure:"version-store" validate:"oneof=sql cql"`
	VersionsTable string   `mapstructure:"versions-table" validate:"omitempty,identifier"`

	CassandraHosts    []string `mapstructure:"cassandra-hosts"`
	CassandraKeyspace string   `mapstructure:"cassandra-keyspace" validate:"omitempty,identifier"`
	CassandraUsername string   `mapstructure:"cassandra-username"`
	CassandraPassword string   `mapstructure:"cassandra-password"`
}

var settingsDefaults = map[string]interface{}{
	"driver":             "sqlite3",
	"dsn":                "",
	"table-prefix":       "",
	"log-level":          "info",
	"operations":         []string{"TableInstall", "TableUpgrade"},
	"definitions":        "",
	"version-store":      "sql",
	"versions-table":     "table_versions",
	"cassandra-hosts":    []string{},
	"cassandra-keyspace": "",
	"cassandra-username": "",
	"cassandra-password": "",
}

var settingsValidator = newSettingsValidator()

func newSettingsValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return schema.IsIdentifier(fl.Field().String())
	})
	return v
}

// NewViper returns a viper instance with every setting defaulted and bound
// to its environment variable.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, value := range settingsDefaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvVarPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadSettings reads the optional config file and decodes the settings.
func LoadSettings(v *viper.Viper, configFile string) (*Settings, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("unable to read config file %s: %w", configFile, err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("unable to decode settings: %w", err)
	}
	settings.Driver = strings.ToLower(strings.TrimSpace(settings.Driver))
	settings.VersionStore = strings.ToLower(strings.TrimSpace(settings.VersionStore))

	if err := settingsValidator.Struct(settings); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if settings.VersionStore == "cql" && (len(settings.CassandraHosts) == 0 || settings.CassandraKeyspace == "") {
		return nil, errors.New("invalid settings: the cql version store requires cassandra-hosts and cassandra-keyspace")
	}
	return &settings, nil
}

// SupportedOperations parses the configured operation names.
func (s *Settings) SupportedOperations() (TableOperations, error) {
	if len(s.Operations) == 0 {
		return DefaultOperations, nil
	}
	return Ops(s.Operations...)
}
