// Package engine wires a database, a cache and a version store to the
// query engine and lifecycle manager of every registered table.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/datastax/custom-tables/auth"
	"github.com/datastax/custom-tables/cache"
	"github.com/datastax/custom-tables/config"
	"github.com/datastax/custom-tables/db"
	"github.com/datastax/custom-tables/log"
	"github.com/datastax/custom-tables/meta"
	"github.com/datastax/custom-tables/query"
	"github.com/datastax/custom-tables/table"
	"github.com/datastax/custom-tables/versions"
)

type registered struct {
	table *table.Table
	query *query.Query
}

type Engine struct {
	cfg    config.Config
	db     *db.Db
	cache  *cache.MemoryCache
	store  versions.Store
	meta   *meta.TableQuerier
	logger log.Logger

	mutex   sync.RWMutex
	tables  map[string]registered
	order   []string
	closers []func()
}

// New connects to the configured database and version store.
func New(ctx context.Context, cfg *config.EngineConfig) (*Engine, error) {
	database, err := db.Open(cfg.Driver(), cfg.DSN())
	if err != nil {
		return nil, err
	}

	store, closer, err := openStore(ctx, cfg, database)
	if err != nil {
		database.Close()
		return nil, err
	}

	e := NewWithDb(cfg, database, store)
	e.closers = append(e.closers, func() { database.Close() })
	if closer != nil {
		e.closers = append(e.closers, closer)
	}
	return e, nil
}

func openStore(ctx context.Context, cfg *config.EngineConfig, database *db.Db) (versions.Store, func(), error) {
	switch cfg.VersionStore() {
	case "", "sql":
		store := versions.NewSQLStore(database, cfg.VersionsTable())
		if err := store.Install(ctx); err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case "cql":
		c := cfg.Cassandra()
		session, err := versions.NewGoCqlSession(c.Username, c.Password, c.Hosts...)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to connect to cassandra: %w", err)
		}
		store, err := versions.NewCQLStore(session, c.Keyspace)
		if err == nil {
			err = store.Install(ctx)
		}
		if err != nil {
			session.Close()
			return nil, nil, err
		}
		return store, session.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown version store %q", cfg.VersionStore())
}

// NewWithDb builds an engine over an open database. Closing the engine
// does not close database.
func NewWithDb(cfg config.Config, database *db.Db, store versions.Store) *Engine {
	return &Engine{
		cfg:    cfg,
		db:     database,
		cache:  cache.NewMemoryCache(),
		store:  store,
		meta:   meta.NewTableQuerier(cfg.TablePrefix(), cfg.Logger()),
		logger: cfg.Logger(),
		tables: make(map[string]registered),
	}
}

func (e *Engine) Db() *db.Db {
	return e.db
}

func (e *Engine) Cache() *cache.MemoryCache {
	return e.cache
}

// Register adds a table. The query is built with the engine's logger,
// metadata querier and cache, and checks write capabilities against the
// context user; opts may override them.
func (e *Engine) Register(def table.Definition, opts ...query.Option) (*table.Table, *query.Query, error) {
	t, err := table.New(def, e.db, e.store, e.cfg)
	if err != nil {
		return nil, nil, err
	}

	naming := e.cfg.Naming()
	options := append([]query.Option{
		query.WithLogger(e.logger),
		query.WithMetaQuerier(e.meta),
		query.WithCapabilityChecker(auth.ContextChecker{}),
	}, opts...)
	q, err := query.New(query.Config{
		Name:       def.Name,
		Table:      t.Name(),
		ItemName:   naming.ToItemName(def.Name),
		CacheGroup: cache.NewGroup(naming.ToCacheGroup(def.Name)),
		Schema:     t.Schema(),
	}, e.db, e.cache, options...)
	if err != nil {
		return nil, nil, err
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()
	if _, ok := e.tables[def.Name]; ok {
		return nil, nil, fmt.Errorf("table %s is already registered", def.Name)
	}
	e.tables[def.Name] = registered{table: t, query: q}
	e.order = append(e.order, def.Name)
	e.logger.Debug("registered table", "name", def.Name, "table", t.Name(), "version", def.Version)
	return t, q, nil
}

// RegisterAll registers every definition, skipping and logging the invalid
// ones. It returns the number of registered tables.
func (e *Engine) RegisterAll(defs []table.Definition) int {
	n := 0
	for _, def := range defs {
		if _, _, err := e.Register(def); err != nil {
			e.logger.Warn("skipping table definition", "name", def.Name, "error", err)
			continue
		}
		n++
	}
	return n
}

func (e *Engine) Table(name string) (*table.Table, bool) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	r, ok := e.tables[name]
	return r.table, ok
}

func (e *Engine) Query(name string) (*query.Query, bool) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	r, ok := e.tables[name]
	return r.query, ok
}

// Names returns the registered table names in registration order.
func (e *Engine) Names() []string {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return append([]string(nil), e.order...)
}

func (e *Engine) each(names []string, fn func(name string, t *table.Table) error) error {
	if len(names) == 0 {
		names = e.Names()
	}
	var errs []error
	for _, name := range names {
		t, ok := e.Table(name)
		if !ok {
			errs = append(errs, fmt.Errorf("unknown table %s", name))
			continue
		}
		if err := fn(name, t); err != nil {
			e.logger.Error("table operation failed", "name", name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MaybeUpgrade installs or upgrades the named tables, or every table when
// no name is given. A failing table does not stop the others.
func (e *Engine) MaybeUpgrade(ctx context.Context, names ...string) error {
	return e.each(names, func(_ string, t *table.Table) error {
		return t.MaybeUpgrade(ctx)
	})
}

// Upgrade runs the pending steps of the named installed tables, or of every
// table when no name is given.
func (e *Engine) Upgrade(ctx context.Context, names ...string) error {
	return e.each(names, func(_ string, t *table.Table) error {
		exists, err := t.Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("table %s is not installed", t.Name())
		}
		needsUpgrade, err := t.NeedsUpgrade(ctx)
		if err != nil || !needsUpgrade {
			return err
		}
		return t.Upgrade(ctx)
	})
}

// Drop uninstalls the named tables and invalidates their cached queries.
func (e *Engine) Drop(ctx context.Context, names ...string) error {
	return e.each(names, func(name string, t *table.Table) error {
		if err := t.Uninstall(ctx); err != nil {
			return err
		}
		e.invalidate(name)
		return nil
	})
}

func (e *Engine) Truncate(ctx context.Context, names ...string) error {
	return e.each(names, func(name string, t *table.Table) error {
		if err := t.Truncate(ctx); err != nil {
			return err
		}
		e.invalidate(name)
		return nil
	})
}

func (e *Engine) invalidate(name string) {
	if q, ok := e.Query(name); ok {
		cache.BumpLastChanged(e.cache, q.Config().CacheGroup)
	}
}

type Status struct {
	Name         string
	Table        string
	Version      string
	DBVersion    string
	Exists       bool
	NeedsUpgrade bool
	Rows         int64
}

// Status reports every registered table, sorted by name.
func (e *Engine) Status(ctx context.Context) ([]Status, error) {
	names := e.Names()
	sort.Strings(names)

	statuses := make([]Status, 0, len(names))
	for _, name := range names {
		t, _ := e.Table(name)
		s := Status{Name: name, Table: t.Name(), Version: t.Definition().Version}

		var err error
		if s.Exists, err = t.Exists(ctx); err != nil {
			return nil, err
		}
		if s.DBVersion, err = t.DBVersion(ctx); err != nil {
			return nil, err
		}
		if s.NeedsUpgrade, err = t.NeedsUpgrade(ctx); err != nil {
			return nil, err
		}
		if s.Exists {
			if s.Rows, err = t.Count(ctx); err != nil {
				return nil, err
			}
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}
