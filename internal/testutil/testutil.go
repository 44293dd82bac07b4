package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/datastax/custom-tables/db"
	"github.com/datastax/custom-tables/log"
	"github.com/datastax/custom-tables/schema"
)

func PanicIfError(err error) {
	if err != nil {
		panic(err)
	}
}

func TestLogger() log.Logger {
	if strings.ToUpper(os.Getenv("TEST_TRACE")) == "ON" {
		logger, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return log.NewZapLogger(logger)
	}

	return log.NewNopLogger()
}

// OpenSQLite opens a fresh database file under dir.
func OpenSQLite(dir string) *db.Db {
	database, err := db.OpenSQLite(filepath.Join(dir, "tables.db"))
	PanicIfError(err)
	return database
}

// AssertSQL fails t when actual differs from expected, printing a diff.
func AssertSQL(t *testing.T, expected, actual string) bool {
	t.Helper()
	if expected == actual {
		return true
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(expected, actual, false)
	t.Errorf("unexpected SQL\n got: %s\nwant: %s\ndiff: %s", actual, expected, dmp.DiffPrettyText(diffs))
	return false
}

// OrdersColumns is the column set of the orders fixture table.
func OrdersColumns() []schema.ColumnDefinition {
	return []schema.ColumnDefinition{
		{Name: "id", Type: "bigint", Length: "20", Unsigned: true, Extra: "auto_increment", Primary: true},
		{Name: "status", Type: "varchar", Length: "20", Default: "pending", Searchable: true, Sortable: true, In: true, NotIn: true},
		{Name: "email", Type: "varchar", Length: "100", Default: "", Searchable: true, CacheKey: true, Validate: "omitempty,email"},
		{Name: "total", Type: "decimal", Length: "18,9", Default: "0", Sortable: true, Compare: true},
		{Name: "subtotal", Type: "decimal", Length: "18,9", Default: "0", Compare: true},
		{Name: "date_created", Type: "datetime", Default: "0000-00-00 00:00:00", Created: true},
		{Name: "date_modified", Type: "datetime", Default: "0000-00-00 00:00:00", Modified: true},
	}
}

// OrderStatus is the status of the fixture order with 1-based index i.
func OrderStatus(i int) string {
	switch i % 3 {
	case 0:
		return "active"
	case 1:
		return "pending"
	}
	return "refunded"
}

// OrderDate spreads n fixture orders over 2024, one every 3 days and
// 7 hours starting at 2024-01-01 00:00:00.
func OrderDate(i int) time.Time {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration(i-1) * (72*time.Hour + 7*time.Hour))
}

// CreateOrders creates table and fills it with n orders.
func CreateOrders(ctx context.Context, database *db.Db, table string, n int) {
	_, err := database.CreateTable(ctx, &db.CreateTableInfo{
		Table:   table,
		Columns: OrdersColumns(),
		Indexes: []db.IndexInfo{{Name: "status", Columns: []string{"status"}}},
	})
	PanicIfError(err)
	InsertOrders(ctx, database, table, 1, n)
}

// InsertOrders inserts the fixture orders first through last.
func InsertOrders(ctx context.Context, database *db.Db, table string, first, last int) {
	for i := first; i <= last; i++ {
		_, err := database.Insert(ctx, &db.InsertInfo{
			Table:   table,
			Columns: []string{"status", "email", "total", "subtotal", "date_created", "date_modified"},
			QueryParams: []interface{}{
				OrderStatus(i),
				fmt.Sprintf("customer%d@example.com", i),
				fmt.Sprintf("%d.50", i),
				fmt.Sprintf("%d.00", i),
				OrderDate(i).Format("2006-01-02 15:04:05"),
				OrderDate(i).Format("2006-01-02 15:04:05"),
			},
		})
		PanicIfError(err)
	}
}

// CountingSession counts the statements run through a session.
type CountingSession struct {
	db.Session
	queries  atomic.Int64
	commands atomic.Int64
}

func NewCountingSession(session db.Session) *CountingSession {
	return &CountingSession{Session: session}
}

func (s *CountingSession) Execute(ctx context.Context, query string, values ...interface{}) (db.ExecResult, error) {
	s.commands.Inc()
	return s.Session.Execute(ctx, query, values...)
}

func (s *CountingSession) ExecuteIter(ctx context.Context, query string, values ...interface{}) (db.ResultSet, error) {
	s.queries.Inc()
	return s.Session.ExecuteIter(ctx, query, values...)
}

// Queries is the number of statements that returned rows.
func (s *CountingSession) Queries() int64 {
	return s.queries.Load()
}

func (s *CountingSession) Commands() int64 {
	return s.commands.Load()
}
