package db

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/datastax/custom-tables/types"
)

// SQLiteDriverName is a go-sqlite3 driver whose connections understand the
// MySQL date and ordering functions emitted by the query builders.
const SQLiteDriverName = "sqlite3_mysql"

var registerSQLite sync.Once

func RegisterSQLiteDriver() {
	registerSQLite.Do(func() {
		sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
			ConnectHook: registerMySQLFunctions,
		})
	})
}

// OpenSQLite opens (creating when missing) the database file at path.
func OpenSQLite(path string) (*Db, error) {
	RegisterSQLiteDriver()

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_foreign_keys=on"
	}
	ref, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, err
	}
	if strings.Contains(path, ":memory:") {
		// Every pooled connection would get its own empty database
		ref.SetMaxOpenConns(1)
	}
	if err := ref.Ping(); err != nil {
		ref.Close()
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	return NewDb(NewSQLSession(ref), SQLite), nil
}

type sqliteFunction struct {
	name string
	impl interface{}
}

var mysqlFunctions = []sqliteFunction{
	{"YEAR", datePart(func(t time.Time) int64 { return int64(t.Year()) })},
	{"MONTH", datePart(func(t time.Time) int64 { return int64(t.Month()) })},
	{"DAYOFMONTH", datePart(func(t time.Time) int64 { return int64(t.Day()) })},
	{"DAYOFYEAR", datePart(func(t time.Time) int64 { return int64(t.YearDay()) })},
	// 1 = Sunday
	{"DAYOFWEEK", datePart(func(t time.Time) int64 { return int64(t.Weekday()) + 1 })},
	// 0 = Monday
	{"WEEKDAY", datePart(func(t time.Time) int64 { return int64((t.Weekday() + 6) % 7) })},
	{"HOUR", datePart(func(t time.Time) int64 { return int64(t.Hour()) })},
	{"MINUTE", datePart(func(t time.Time) int64 { return int64(t.Minute()) })},
	{"SECOND", datePart(func(t time.Time) int64 { return int64(t.Second()) })},
	{"WEEK", week},
	{"DATE_FORMAT", dateFormat},
	{"FIELD", field},
}

func registerMySQLFunctions(conn *sqlite3.SQLiteConn) error {
	for _, f := range mysqlFunctions {
		if err := conn.RegisterFunc(f.name, f.impl, true); err != nil {
			return fmt.Errorf("failed to register %s: %w", f.name, err)
		}
	}
	return nil
}

func datePart(part func(time.Time) int64) func(interface{}) interface{} {
	return func(value interface{}) interface{} {
		t, ok := types.ParseDateTime(value)
		if !ok {
			return nil
		}
		return part(t)
	}
}

// week implements WEEK(date, mode) for the modes used here: 3 is the ISO
// 8601 week, every other mode falls back to weeks starting on Sunday.
func week(value interface{}, mode int64) interface{} {
	t, ok := types.ParseDateTime(value)
	if !ok {
		return nil
	}
	if mode == 3 {
		_, w := t.ISOWeek()
		return int64(w)
	}
	firstSunday := (7 - int(time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC).Weekday())) % 7
	return int64((t.YearDay() - 1 - firstSunday + 7) / 7)
}

var dateFormatSpecifiers = map[byte]func(time.Time) string{
	'Y': func(t time.Time) string { return fmt.Sprintf("%04d", t.Year()) },
	'y': func(t time.Time) string { return fmt.Sprintf("%02d", t.Year()%100) },
	'm': func(t time.Time) string { return fmt.Sprintf("%02d", int(t.Month())) },
	'c': func(t time.Time) string { return fmt.Sprint(int(t.Month())) },
	'd': func(t time.Time) string { return fmt.Sprintf("%02d", t.Day()) },
	'e': func(t time.Time) string { return fmt.Sprint(t.Day()) },
	'j': func(t time.Time) string { return fmt.Sprintf("%03d", t.YearDay()) },
	'H': func(t time.Time) string { return fmt.Sprintf("%02d", t.Hour()) },
	'k': func(t time.Time) string { return fmt.Sprint(t.Hour()) },
	'i': func(t time.Time) string { return fmt.Sprintf("%02d", t.Minute()) },
	's': func(t time.Time) string { return fmt.Sprintf("%02d", t.Second()) },
	'S': func(t time.Time) string { return fmt.Sprintf("%02d", t.Second()) },
	'%': func(time.Time) string { return "%" },
}

func dateFormat(value interface{}, format string) interface{} {
	t, ok := types.ParseDateTime(value)
	if !ok {
		return nil
	}

	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i == len(format)-1 {
			b.WriteByte(format[i])
			continue
		}
		i++
		if specifier, ok := dateFormatSpecifiers[format[i]]; ok {
			b.WriteString(specifier(t))
		} else {
			b.WriteByte(format[i])
		}
	}
	return b.String()
}

// field implements FIELD(value, candidates...): the 1-based position of
// value among candidates, 0 when absent.
func field(value interface{}, candidates ...interface{}) int64 {
	if value == nil {
		return 0
	}
	needle, _ := types.ToString(value)
	numeric := types.IsNumeric(value)
	for i, candidate := range candidates {
		if candidate == nil {
			continue
		}
		if numeric && types.IsNumeric(candidate) {
			a, _ := types.ToFloat64(value)
			b, _ := types.ToFloat64(candidate)
			if a == b {
				return int64(i + 1)
			}
			continue
		}
		if s, _ := types.ToString(candidate); strings.EqualFold(s, needle) {
			return int64(i + 1)
		}
	}
	return 0
}
