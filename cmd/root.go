package cmd

import (
	"context"
	"errors"
	"fmt"
	log2 "log"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/datastax/custom-tables/config"
	"github.com/datastax/custom-tables/engine"
	"github.com/datastax/custom-tables/log"
)

var ctx = context.Background()

var cfgFile string
var logger log.Logger
var settings = config.NewViper()

var rootCmd = &cobra.Command{
	Use:           "tables",
	Short:         "Install, upgrade and maintain custom tables",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var installCmd = &cobra.Command{
	Use:   "install [TABLE...]",
	Short: "Install missing tables and upgrade outdated ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *engine.Engine) error {
			return e.MaybeUpgrade(ctx, args...)
		})
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade [TABLE...]",
	Short: "Run the pending upgrade steps of installed tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *engine.Engine) error {
			return e.Upgrade(ctx, args...)
		})
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop TABLE...",
	Short: "Drop tables and forget their versions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *engine.Engine) error {
			return e.Drop(ctx, args...)
		})
	},
}

var truncateCmd = &cobra.Command{
	Use:   "truncate TABLE...",
	Short: "Delete every row of tables",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *engine.Engine) error {
			return e.Truncate(ctx, args...)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the installed and declared version of every table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *engine.Engine) error {
			statuses, err := e.Status(ctx)
			if err != nil {
				return err
			}
			printStatus(cmd, statuses)
			return nil
		})
	},
}

// Execute runs the tables command
func Execute() {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		log2.Fatalf("unable to initialize logger: %v", err)
	}
	logger = log.NewZapLogger(zapLogger)

	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCommand registers the flags and subcommands on the root command.
func NewRootCommand() *cobra.Command {
	if rootCmd.HasSubCommands() {
		return rootCmd
	}
	flags := rootCmd.PersistentFlags()

	flags.StringVarP(&cfgFile, "config", "c", "", "config file")
	flags.String("driver", "sqlite3", "database driver. options: sqlite3,mysql,mariadb")
	flags.String("dsn", "", "database data source name")
	flags.String("table-prefix", "", "prefix of every physical table name")
	flags.String("log-level", "info", "log level. options: debug,info,warn,error")
	flags.StringP("definitions", "d", "", "YAML file or directory of table definitions")
	flags.StringSlice("operations", []string{
		"TableInstall",
		"TableUpgrade",
	}, "list of supported table operations. options: TableInstall,TableUpgrade,TableDrop,TableTruncate,TableDeleteAll")
	flags.String("version-store", "sql", "where table versions are persisted. options: sql,cql")
	flags.String("versions-table", "table_versions", "table holding versions in the sql store")
	flags.StringSlice("cassandra-hosts", nil, "hosts of the cql version store")
	flags.String("cassandra-keyspace", "", "keyspace of the cql version store")
	flags.String("cassandra-username", "", "username of the cql version store")
	flags.String("cassandra-password", "", "password of the cql version store")

	flags.VisitAll(func(flag *pflag.Flag) {
		if flag.Name != "config" {
			settings.BindPFlag(flag.Name, flags.Lookup(flag.Name))
		}
	})

	rootCmd.AddCommand(installCmd, upgradeCmd, dropCmd, truncateCmd, statusCmd)
	return rootCmd
}

func withEngine(run func(e *engine.Engine) error) error {
	e, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	return run(e)
}

func openEngine(ctx context.Context) (*engine.Engine, error) {
	loaded, err := config.LoadSettings(settings, cfgFile)
	if err != nil {
		return nil, err
	}
	if loaded.Definitions == "" {
		return nil, errors.New("definitions are required")
	}

	engineLogger := logger
	if loaded.LogLevel != "" {
		if leveled, err := log.NewLevelLogger(loaded.LogLevel); err == nil {
			engineLogger = leveled
		}
	}
	if engineLogger == nil {
		engineLogger = log.NewNopLogger()
	}

	defs, err := engine.LoadDefinitions(loaded.Definitions)
	if err != nil {
		return nil, fmt.Errorf("unable to load table definitions: %w", err)
	}

	cfg, err := config.NewEngineConfigFromSettings(loaded, engineLogger)
	if err != nil {
		return nil, err
	}
	e, err := engine.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if n := e.RegisterAll(defs); n < len(defs) {
		engineLogger.Warn("some table definitions were skipped", "registered", n, "defined", len(defs))
	}
	return e, nil
}

func printStatus(cmd *cobra.Command, statuses []engine.Status) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTABLE\tVERSION\tINSTALLED\tROWS\tSTATE")
	for _, s := range statuses {
		state := "ok"
		switch {
		case !s.Exists:
			state = "missing"
		case s.NeedsUpgrade:
			state = "outdated"
		}
		installed := s.DBVersion
		if installed == "" {
			installed = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", s.Name, s.Table, s.Version, installed, s.Rows, state)
	}
	w.Flush()
}
