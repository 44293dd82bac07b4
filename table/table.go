// Package table manages the physical lifecycle of custom tables: install,
// versioned upgrades, and destructive maintenance.
package table

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/datastax/custom-tables/config"
	"github.com/datastax/custom-tables/db"
	"github.com/datastax/custom-tables/log"
	"github.com/datastax/custom-tables/metrics"
	"github.com/datastax/custom-tables/schema"
	"github.com/datastax/custom-tables/versions"
)

// ErrNotSupported is returned for lifecycle operations the configuration
// does not allow.
var ErrNotSupported = errors.New("operation not supported")

// UpgradeError reports the step that stopped an upgrade. The persisted
// version is the one of the last step that succeeded.
type UpgradeError struct {
	Table   string
	Version string
	Err     error
}

func (e *UpgradeError) Error() string {
	return fmt.Sprintf("upgrade of %s to %s failed: %v", e.Table, e.Version, e.Err)
}

func (e *UpgradeError) Unwrap() error {
	return e.Err
}

type Table struct {
	def    Definition
	name   string
	prefix string
	schema *schema.Schema
	db     *db.Db
	store  versions.Store
	cfg    config.Config
	logger log.Logger
}

func New(def Definition, database *db.Db, store versions.Store, cfg config.Config) (*Table, error) {
	if err := def.validate(); err != nil {
		return nil, err
	}
	scope, _ := versions.ParseScope(string(def.Scope))
	def.Scope = scope

	s := schema.New(def.Columns...)
	if rejected := s.Rejected(); len(rejected) > 0 {
		return nil, fmt.Errorf("table %s: %w", def.Name, rejected[0])
	}
	if _, ok := s.Primary(); !ok {
		return nil, fmt.Errorf("table %s has no primary column", def.Name)
	}

	name := cfg.Naming().ToTableName(cfg.TablePrefix(), def.Name)
	if !schema.IsIdentifier(name) {
		return nil, fmt.Errorf("invalid table name %q", name)
	}

	return &Table{
		def:    def,
		name:   name,
		prefix: cfg.TablePrefix(),
		schema: s,
		db:     database,
		store:  store,
		cfg:    cfg,
		logger: cfg.Logger().With("table", name),
	}, nil
}

// Name is the physical table name.
func (t *Table) Name() string {
	return t.name
}

func (t *Table) Definition() Definition {
	return t.def
}

func (t *Table) Schema() *schema.Schema {
	return t.schema
}

// Db exposes the database to upgrade steps.
func (t *Table) Db() *db.Db {
	return t.db
}

func (t *Table) supports(op config.TableOperations, name string) error {
	if !t.cfg.SupportedOperations().IsSupported(op) {
		return fmt.Errorf("%s of %s: %w", name, t.name, ErrNotSupported)
	}
	return nil
}

// DBVersion is the persisted version, empty when none was persisted.
func (t *Table) DBVersion(ctx context.Context) (string, error) {
	v, err := t.store.Get(ctx, t.def.Scope, t.name)
	if errors.Is(err, versions.ErrNotFound) {
		return "", nil
	}
	return v, err
}

// NeedsUpgrade reports whether the persisted version is below the declared
// one.
func (t *Table) NeedsUpgrade(ctx context.Context) (bool, error) {
	current, err := t.DBVersion(ctx)
	if err != nil {
		return false, err
	}
	c, err := versions.Compare(current, t.def.Version)
	if err != nil {
		return false, err
	}
	return c < 0, nil
}

// MaybeUpgrade installs the table when it does not exist physically, and
// upgrades it when its persisted version is behind.
func (t *Table) MaybeUpgrade(ctx context.Context) error {
	exists, err := t.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return t.Install(ctx)
	}

	needsUpgrade, err := t.NeedsUpgrade(ctx)
	if err != nil {
		return err
	}
	if !needsUpgrade {
		t.logger.Debug("table is up to date", "version", t.def.Version)
		return nil
	}
	return t.Upgrade(ctx)
}

// Install creates the table and its indexes, then persists the declared
// version.
func (t *Table) Install(ctx context.Context) error {
	if err := t.supports(config.TableInstall, "install"); err != nil {
		return err
	}
	_, err := t.db.CreateTable(ctx, &db.CreateTableInfo{
		Table:       t.name,
		Columns:     t.schema.Columns(nil, schema.And),
		Indexes:     t.def.Indexes,
		IfNotExists: true,
	})
	metrics.Statements.WithLabelValues(t.name, "ddl").Inc()
	if err != nil {
		t.logger.Error("install failed", "error", err)
		return fmt.Errorf("failed to install %s: %w", t.name, err)
	}
	if err := t.store.Set(ctx, t.def.Scope, t.name, t.def.Version); err != nil {
		return fmt.Errorf("failed to persist version of %s: %w", t.name, err)
	}
	t.logger.Info("table installed", "version", t.def.Version)
	return nil
}

// Upgrade runs, in ascending order, every step above the persisted version
// and up to the declared one. The version is persisted after each step;
// the first failure stops the batch.
func (t *Table) Upgrade(ctx context.Context) error {
	if err := t.supports(config.TableUpgrade, "upgrade"); err != nil {
		return err
	}
	current, err := t.DBVersion(ctx)
	if err != nil {
		return err
	}
	if _, err := versions.Compare(current, t.def.Version); err != nil {
		return fmt.Errorf("persisted version of %s: %w", t.name, err)
	}

	for _, step := range t.def.sortedUpgrades() {
		above, _ := versions.Compare(step.Version, current)
		within, _ := versions.Compare(step.Version, t.def.Version)
		if above <= 0 || within > 0 {
			continue
		}

		if err := t.applyStep(ctx, step); err != nil {
			metrics.UpgradeSteps.WithLabelValues(t.name, "failed").Inc()
			t.logger.Error("upgrade step failed", "version", step.Version, "persisted", current, "error", err)
			return &UpgradeError{Table: t.name, Version: step.Version, Err: err}
		}
		if err := t.store.Set(ctx, t.def.Scope, t.name, step.Version); err != nil {
			return &UpgradeError{Table: t.name, Version: step.Version, Err: err}
		}
		metrics.UpgradeSteps.WithLabelValues(t.name, "applied").Inc()
		t.logger.Info("upgrade step applied", "version", step.Version)
		current = step.Version
	}

	if c, _ := versions.Compare(current, t.def.Version); c < 0 {
		if err := t.store.Set(ctx, t.def.Scope, t.name, t.def.Version); err != nil {
			return &UpgradeError{Table: t.name, Version: t.def.Version, Err: err}
		}
	}
	return nil
}

func (t *Table) applyStep(ctx context.Context, step UpgradeStep) error {
	var toAdd []schema.ColumnDefinition
	for _, name := range step.AddColumns {
		column, ok := t.schema.Column(name)
		if !ok {
			return fmt.Errorf("column %s is not part of the definition", name)
		}
		exists, err := t.ColumnExists(ctx, name)
		if err != nil {
			return err
		}
		if !exists {
			toAdd = append(toAdd, column)
		}
	}
	if len(toAdd) > 0 {
		if _, err := t.db.AlterTableAdd(ctx, &db.AlterTableAddInfo{Table: t.name, ToAdd: toAdd}); err != nil {
			return err
		}
	}

	var toDrop []string
	for _, name := range step.DropColumns {
		exists, err := t.ColumnExists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			toDrop = append(toDrop, name)
		}
	}
	if len(toDrop) > 0 {
		if _, err := t.db.AlterTableDrop(ctx, &db.AlterTableDropInfo{Table: t.name, ToDrop: toDrop}); err != nil {
			return err
		}
	}

	for _, index := range step.AddIndexes {
		exists, err := t.IndexExists(ctx, index.Name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := t.db.CreateIndex(ctx, t.name, index); err != nil {
			return err
		}
	}

	for _, statement := range step.Statements {
		statement = strings.ReplaceAll(statement, "{table}", db.QuoteIdentifier(t.name))
		if _, err := t.db.Execute(ctx, statement); err != nil {
			return err
		}
	}

	if step.Apply != nil {
		return step.Apply(ctx, t)
	}
	return nil
}

func (t *Table) Exists(ctx context.Context) (bool, error) {
	return t.db.TableExists(ctx, t.name)
}

func (t *Table) ColumnExists(ctx context.Context, column string) (bool, error) {
	return t.db.ColumnExists(ctx, t.name, column)
}

func (t *Table) IndexExists(ctx context.Context, index string) (bool, error) {
	return t.db.IndexExists(ctx, t.name, index)
}

// Drop removes the table. The persisted version is kept; see Uninstall.
func (t *Table) Drop(ctx context.Context) error {
	if err := t.supports(config.TableDrop, "drop"); err != nil {
		return err
	}
	if _, err := t.db.DropTable(ctx, &db.DropTableInfo{Table: t.name, IfExists: true}); err != nil {
		return fmt.Errorf("failed to drop %s: %w", t.name, err)
	}
	t.logger.Info("table dropped")
	return nil
}

// Uninstall drops the table and forgets its version.
func (t *Table) Uninstall(ctx context.Context) error {
	if err := t.Drop(ctx); err != nil {
		return err
	}
	if err := t.store.Delete(ctx, t.def.Scope, t.name); err != nil && !errors.Is(err, versions.ErrNotFound) {
		return fmt.Errorf("failed to delete version of %s: %w", t.name, err)
	}
	return nil
}

func (t *Table) Truncate(ctx context.Context) error {
	if err := t.supports(config.TableTruncate, "truncate"); err != nil {
		return err
	}
	if _, err := t.db.TruncateTable(ctx, t.name); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", t.name, err)
	}
	return nil
}

// DeleteAll deletes every row and returns how many were deleted.
func (t *Table) DeleteAll(ctx context.Context) (int64, error) {
	if err := t.supports(config.TableDeleteAll, "delete all"); err != nil {
		return 0, err
	}
	n, err := t.db.DeleteAll(ctx, t.name)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rows of %s: %w", t.name, err)
	}
	return n, nil
}

func (t *Table) Count(ctx context.Context) (int64, error) {
	return t.db.CountRows(ctx, t.name)
}

// Clone creates the empty table newName (prefixed like this one) with this
// table's structure.
func (t *Table) Clone(ctx context.Context, newName string) error {
	if err := t.supports(config.TableInstall, "clone"); err != nil {
		return err
	}
	target := t.cfg.Naming().ToTableName(t.prefix, newName)
	if _, err := t.db.CloneTable(ctx, t.name, target); err != nil {
		return fmt.Errorf("failed to clone %s to %s: %w", t.name, target, err)
	}
	return nil
}

// Copy inserts every row of this table into newName and returns how many
// rows were copied.
func (t *Table) Copy(ctx context.Context, newName string) (int64, error) {
	if err := t.supports(config.TableInstall, "copy"); err != nil {
		return 0, err
	}
	target := t.cfg.Naming().ToTableName(t.prefix, newName)
	n, err := t.db.CopyTable(ctx, t.name, target)
	if err != nil {
		return 0, fmt.Errorf("failed to copy %s to %s: %w", t.name, target, err)
	}
	return n, nil
}
