package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastax/custom-tables/schema"
)

func openTestDb(t *testing.T) *Db {
	t.Helper()
	database, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func booksTable() *CreateTableInfo {
	return &CreateTableInfo{
		Table: "books",
		Columns: []schema.ColumnDefinition{
			{Name: "id", Type: "bigint", Length: "20", Unsigned: true, Extra: "auto_increment", Primary: true},
			{Name: "title", Type: "varchar", Length: "100", Default: ""},
			{Name: "pages", Type: "int", Default: 0},
			{Name: "published", Type: "datetime", Default: "0000-00-00 00:00:00"},
		},
		Indexes: []IndexInfo{{Name: "title", Columns: []string{"title"}}},
	}
}

func TestSQLiteTableLifecycle(t *testing.T) {
	database := openTestDb(t)
	ctx := context.Background()

	created, err := database.CreateTable(ctx, booksTable())
	require.NoError(t, err)
	assert.True(t, created)

	exists, err := database.TableExists(ctx, "books")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = database.ColumnExists(ctx, "books", "pages")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = database.ColumnExists(ctx, "books", "author")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = database.IndexExists(ctx, "books", "title")
	require.NoError(t, err)
	assert.True(t, exists)

	result, err := database.Insert(ctx, &InsertInfo{
		Table:       "books",
		Columns:     []string{"title", "pages", "published"},
		QueryParams: []interface{}{"Dune", 412, "1965-08-01 00:00:00"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.LastInsertID)

	_, err = database.AlterTableAdd(ctx, &AlterTableAddInfo{
		Table: "books",
		ToAdd: []schema.ColumnDefinition{{Name: "author", Type: "varchar", Length: "50", AllowNull: true}},
	})
	require.NoError(t, err)
	exists, _ = database.ColumnExists(ctx, "books", "author")
	assert.True(t, exists)

	_, err = database.CloneTable(ctx, "books", "books_copy")
	require.NoError(t, err)
	copied, err := database.CopyTable(ctx, "books", "books_copy")
	require.NoError(t, err)
	assert.Equal(t, int64(1), copied)

	n, err := database.CountRows(ctx, "books_copy")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = database.TruncateTable(ctx, "books_copy")
	require.NoError(t, err)
	n, _ = database.CountRows(ctx, "books_copy")
	assert.Equal(t, int64(0), n)

	deleted, err := database.DeleteAll(ctx, "books")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = database.DropTable(ctx, &DropTableInfo{Table: "books_copy"})
	require.NoError(t, err)
	exists, _ = database.TableExists(ctx, "books_copy")
	assert.False(t, exists)

	_, err = database.DropTable(ctx, &DropTableInfo{Table: "books_copy", IfExists: true})
	assert.NoError(t, err)
}

func TestSQLiteMySQLFunctions(t *testing.T) {
	database := openTestDb(t)
	ctx := context.Background()

	// 2024-03-05 was a Tuesday in ISO week 10
	row, err := database.Row(ctx, `SELECT
		YEAR(?) AS y, MONTH(?) AS m, DAYOFMONTH(?) AS d, DAYOFYEAR(?) AS doy,
		DAYOFWEEK(?) AS dow, WEEKDAY(?) + 1 AS iso, WEEK(?, 3) AS w,
		HOUR(?) AS h, MINUTE(?) AS mi, SECOND(?) AS s,
		CAST(DATE_FORMAT(?, ?) AS DECIMAL(10,6)) AS t,
		FIELD(?, ?, ?, ?) AS f, YEAR(NULL) AS n`,
		"2024-03-05 14:30:15", "2024-03-05 14:30:15", "2024-03-05 14:30:15", "2024-03-05 14:30:15",
		"2024-03-05 14:30:15", "2024-03-05 14:30:15", "2024-03-05 14:30:15",
		"2024-03-05 14:30:15", "2024-03-05 14:30:15", "2024-03-05 14:30:15",
		"2024-03-05 14:30:15", "%H.%i%s",
		3, 5, 3, 1,
	)
	require.NoError(t, err)

	assert.Equal(t, int64(2024), row["y"])
	assert.Equal(t, int64(3), row["m"])
	assert.Equal(t, int64(5), row["d"])
	assert.Equal(t, int64(65), row["doy"])
	assert.Equal(t, int64(3), row["dow"])
	assert.Equal(t, int64(2), row["iso"])
	assert.Equal(t, int64(10), row["w"])
	assert.Equal(t, int64(14), row["h"])
	assert.Equal(t, int64(30), row["mi"])
	assert.Equal(t, int64(15), row["s"])
	assert.InDelta(t, 14.3015, row["t"], 1e-9)
	assert.Equal(t, int64(2), row["f"])
	assert.Nil(t, row["n"])
}

func TestScalarWithoutRows(t *testing.T) {
	database := openTestDb(t)
	ctx := context.Background()

	_, err := database.CreateTable(ctx, booksTable())
	require.NoError(t, err)

	_, err = database.Scalar(ctx, "SELECT id FROM books WHERE id = ?", 99)
	assert.Equal(t, ErrNoRows, err)

	column, err := database.Column(ctx, "SELECT id FROM books")
	require.NoError(t, err)
	assert.Empty(t, column)
}
