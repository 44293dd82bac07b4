package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/datastax/custom-tables/schema"
	"github.com/datastax/custom-tables/types"
)

type IndexInfo struct {
	Name    string   `mapstructure:"name"`
	Columns []string `mapstructure:"columns"`
	Unique  bool     `mapstructure:"unique"`
}

type CreateTableInfo struct {
	Table       string
	Columns     []schema.ColumnDefinition
	Indexes     []IndexInfo
	IfNotExists bool
}

type AlterTableAddInfo struct {
	Table string
	ToAdd []schema.ColumnDefinition
}

type AlterTableDropInfo struct {
	Table  string
	ToDrop []string
}

type DropTableInfo struct {
	Table    string
	IfExists bool
}

func (db *Db) CreateTable(ctx context.Context, info *CreateTableInfo) (bool, error) {
	if len(info.Columns) == 0 {
		return false, errors.New("table must have at least one column")
	}
	if err := checkIdentifiers(info.Table); err != nil {
		return false, err
	}

	columns := ""
	primaryKeys := ""
	for _, c := range info.Columns {
		definition, inlinePrimary, err := db.columnDefinition(c)
		if err != nil {
			return false, err
		}
		columns += ", " + definition
		if c.Primary && !inlinePrimary {
			primaryKeys += ", " + QuoteIdentifier(c.Name)
		}
	}

	if primaryKeys != "" {
		columns += fmt.Sprintf(", PRIMARY KEY (%s)", primaryKeys[2:])
	}

	ifNotExists := ""
	if info.IfNotExists {
		ifNotExists = "IF NOT EXISTS "
	}

	query := fmt.Sprintf("CREATE TABLE %s%s (%s)", ifNotExists, QuoteIdentifier(info.Table), columns[2:])
	if _, err := db.session.Execute(ctx, query); err != nil {
		return false, err
	}

	for _, index := range info.Indexes {
		if _, err := db.CreateIndex(ctx, info.Table, index); err != nil {
			return false, err
		}
	}
	return true, nil
}

// columnDefinition renders one column of a CREATE or ALTER statement. The
// second result reports whether the primary key was declared inline.
func (db *Db) columnDefinition(c schema.ColumnDefinition) (string, bool, error) {
	if err := checkIdentifiers(c.Name); err != nil {
		return "", false, err
	}

	autoIncrement := strings.Contains(strings.ToLower(c.Extra), "auto_increment")
	if db.flavor == SQLite && c.Primary && autoIncrement && c.Kind() == types.KindInt {
		return QuoteIdentifier(c.Name) + " INTEGER PRIMARY KEY AUTOINCREMENT", true, nil
	}

	sqlType := c.SQLType()
	if db.flavor == SQLite {
		sqlType = c.Type
		if c.Length != "" {
			sqlType += "(" + c.Length + ")"
		}
	}

	definition := QuoteIdentifier(c.Name) + " " + sqlType
	if !c.AllowNull {
		definition += " NOT NULL"
	}
	if c.Default != nil {
		literal, err := defaultLiteral(c.Default)
		if err != nil {
			return "", false, fmt.Errorf("column %s: %w", c.Name, err)
		}
		definition += " DEFAULT " + literal
	}
	if db.flavor == MySQL && c.Extra != "" {
		definition += " " + c.Extra
	}
	return definition, false, nil
}

// defaultLiteral renders a DEFAULT value; DDL cannot bind parameters.
func defaultLiteral(value interface{}) (string, error) {
	if s, ok := value.(string); ok {
		if strings.EqualFold(s, "CURRENT_TIMESTAMP") || strings.EqualFold(s, "NULL") {
			return strings.ToUpper(s), nil
		}
		return "'" + strings.ReplaceAll(s, "'", "''") + "'", nil
	}
	if b, ok := value.(bool); ok {
		if b {
			return "1", nil
		}
		return "0", nil
	}
	if types.IsNumeric(value) {
		s, _ := types.ToString(value)
		return s, nil
	}
	if s, ok := types.ToString(value); ok {
		return "'" + strings.ReplaceAll(s, "'", "''") + "'", nil
	}
	return "", fmt.Errorf("unsupported default value %v", value)
}

func (db *Db) CreateIndex(ctx context.Context, table string, index IndexInfo) (bool, error) {
	if len(index.Columns) == 0 {
		return false, fmt.Errorf("index %s has no columns", index.Name)
	}
	if err := checkIdentifiers(append([]string{table, index.Name}, index.Columns...)...); err != nil {
		return false, err
	}

	unique := ""
	if index.Unique {
		unique = "UNIQUE "
	}
	query := fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, QuoteIdentifier(db.flavor.indexName(table, index.Name)), QuoteIdentifier(table), quoteAll(index.Columns))
	_, err := db.session.Execute(ctx, query)
	return err == nil, err
}

func (db *Db) AlterTableAdd(ctx context.Context, info *AlterTableAddInfo) (bool, error) {
	if err := checkIdentifiers(info.Table); err != nil {
		return false, err
	}
	// SQLite only adds one column per statement
	for _, c := range info.ToAdd {
		definition, _, err := db.columnDefinition(c)
		if err != nil {
			return false, err
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", QuoteIdentifier(info.Table), definition)
		if _, err := db.session.Execute(ctx, query); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (db *Db) AlterTableDrop(ctx context.Context, info *AlterTableDropInfo) (bool, error) {
	if err := checkIdentifiers(append([]string{info.Table}, info.ToDrop...)...); err != nil {
		return false, err
	}
	for _, column := range info.ToDrop {
		query := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", QuoteIdentifier(info.Table), QuoteIdentifier(column))
		if _, err := db.session.Execute(ctx, query); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (db *Db) DropTable(ctx context.Context, info *DropTableInfo) (bool, error) {
	if err := checkIdentifiers(info.Table); err != nil {
		return false, err
	}
	ifExists := ""
	if info.IfExists {
		ifExists = "IF EXISTS "
	}
	_, err := db.session.Execute(ctx, fmt.Sprintf("DROP TABLE %s%s", ifExists, QuoteIdentifier(info.Table)))
	return err == nil, err
}

func (db *Db) TruncateTable(ctx context.Context, table string) (bool, error) {
	if err := checkIdentifiers(table); err != nil {
		return false, err
	}
	_, err := db.session.Execute(ctx, db.flavor.truncateStatement(table))
	return err == nil, err
}

// DeleteAll removes every row and reports how many were deleted.
func (db *Db) DeleteAll(ctx context.Context, table string) (int64, error) {
	if err := checkIdentifiers(table); err != nil {
		return 0, err
	}
	result, err := db.session.Execute(ctx, "DELETE FROM "+QuoteIdentifier(table))
	return result.RowsAffected, err
}

func (db *Db) CountRows(ctx context.Context, table string) (int64, error) {
	if err := checkIdentifiers(table); err != nil {
		return 0, err
	}
	return db.count(ctx, "SELECT COUNT(*) FROM "+QuoteIdentifier(table))
}

func (db *Db) TableExists(ctx context.Context, table string) (bool, error) {
	n, err := db.count(ctx, db.flavor.tableExistsQuery(), table)
	return n > 0, err
}

func (db *Db) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	n, err := db.count(ctx, db.flavor.columnExistsQuery(), table, column)
	return n > 0, err
}

func (db *Db) IndexExists(ctx context.Context, table, index string) (bool, error) {
	n, err := db.count(ctx, db.flavor.indexExistsQuery(), table, db.flavor.indexName(table, index))
	return n > 0, err
}

// CloneTable creates target with the structure of source, without rows.
func (db *Db) CloneTable(ctx context.Context, source, target string) (bool, error) {
	if err := checkIdentifiers(source, target); err != nil {
		return false, err
	}

	if db.flavor == MySQL {
		_, err := db.session.Execute(ctx, fmt.Sprintf("CREATE TABLE %s LIKE %s", QuoteIdentifier(target), QuoteIdentifier(source)))
		return err == nil, err
	}

	ddl, err := db.Scalar(ctx, "SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", source)
	if err != nil {
		return false, fmt.Errorf("failed to read definition of %s: %w", source, err)
	}
	statement, _ := types.ToString(ddl)
	if !strings.Contains(statement, QuoteIdentifier(source)) {
		return false, fmt.Errorf("unexpected definition of %s", source)
	}
	statement = strings.Replace(statement, QuoteIdentifier(source), QuoteIdentifier(target), 1)
	_, err = db.session.Execute(ctx, statement)
	return err == nil, err
}

// CopyTable inserts every row of source into target.
func (db *Db) CopyTable(ctx context.Context, source, target string) (int64, error) {
	if err := checkIdentifiers(source, target); err != nil {
		return 0, err
	}
	result, err := db.session.Execute(ctx, fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", QuoteIdentifier(target), QuoteIdentifier(source)))
	return result.RowsAffected, err
}

func (db *Db) count(ctx context.Context, query string, values ...interface{}) (int64, error) {
	value, err := db.Scalar(ctx, query, values...)
	if err != nil {
		return 0, err
	}
	n, ok := types.ToInt64(value)
	if !ok {
		return 0, fmt.Errorf("unexpected count value %v", value)
	}
	return n, nil
}
