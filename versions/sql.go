package versions

import (
	"context"
	"errors"
	"fmt"

	"github.com/datastax/custom-tables/db"
	"github.com/datastax/custom-tables/schema"
	"github.com/datastax/custom-tables/types"
)

// DefaultTableName is where SQLStore keeps versions unless told otherwise.
const DefaultTableName = "table_versions"

// SQLStore keeps versions in a (scope, name, version) table.
type SQLStore struct {
	db    *db.Db
	table string
}

func NewSQLStore(database *db.Db, table string) *SQLStore {
	if table == "" {
		table = DefaultTableName
	}
	return &SQLStore{db: database, table: table}
}

// Install creates the versions table when missing.
func (s *SQLStore) Install(ctx context.Context) error {
	_, err := s.db.CreateTable(ctx, &db.CreateTableInfo{
		Table:       s.table,
		IfNotExists: true,
		Columns: []schema.ColumnDefinition{
			{Name: "scope", Type: "varchar", Length: "20", Primary: true},
			{Name: "name", Type: "varchar", Length: "191", Primary: true},
			{Name: "version", Type: "varchar", Length: "20"},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", s.table, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, scope Scope, name string) (string, error) {
	rs, err := s.db.Select(ctx, &db.SelectInfo{
		Table:   s.table,
		Columns: []string{"version"},
		Where:   s.key(scope, name),
		Limit:   1,
	})
	if err != nil {
		return "", err
	}
	rows := rs.Values()
	if len(rows) == 0 {
		return "", ErrNotFound
	}
	v, _ := types.ToString(rows[0]["version"])
	return v, nil
}

func (s *SQLStore) Set(ctx context.Context, scope Scope, name string, version string) error {
	result, err := s.db.Update(ctx, &db.UpdateInfo{
		Table:       s.table,
		Columns:     []string{"version"},
		QueryParams: []interface{}{version},
		Where:       s.key(scope, name),
	})
	if err != nil {
		return err
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// Unchanged rows also report zero affected rows on MySQL
	if _, err := s.Get(ctx, scope, name); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	_, err = s.db.Insert(ctx, &db.InsertInfo{
		Table:       s.table,
		Columns:     []string{"scope", "name", "version"},
		QueryParams: []interface{}{string(scope), name, version},
	})
	return err
}

func (s *SQLStore) Delete(ctx context.Context, scope Scope, name string) error {
	_, err := s.db.Delete(ctx, &db.DeleteInfo{
		Table: s.table,
		Where: s.key(scope, name),
	})
	return err
}

func (s *SQLStore) key(scope Scope, name string) []db.ConditionItem {
	return []db.ConditionItem{
		{Column: "scope", Operator: "=", Value: string(scope)},
		{Column: "name", Operator: "=", Value: name},
	}
}
