package db

import (
	"fmt"
	"strings"
)

// Flavor selects the dialect of catalog and maintenance statements. Query
// statements are the same MySQL-style SQL for every flavor.
type Flavor int

const (
	MySQL Flavor = iota
	SQLite
)

func (f Flavor) String() string {
	switch f {
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite3"
	}
	return fmt.Sprintf("Flavor(%d)", int(f))
}

func ParseFlavor(name string) (Flavor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return 0, fmt.Errorf("unknown database flavor %q", name)
}

func (f Flavor) tableExistsQuery() string {
	if f == SQLite {
		return "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	}
	return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
}

func (f Flavor) columnExistsQuery() string {
	if f == SQLite {
		return "SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?"
	}
	return "SELECT COUNT(*) FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?"
}

func (f Flavor) indexExistsQuery() string {
	if f == SQLite {
		return "SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND name = ?"
	}
	return "SELECT COUNT(*) FROM information_schema.statistics WHERE table_schema = DATABASE() AND table_name = ? AND index_name = ?"
}

// indexName is the physical name of a table index. SQLite index names are
// global to the database so they are prefixed with the table name.
func (f Flavor) indexName(table, index string) string {
	if f == SQLite {
		return table + "__" + index
	}
	return index
}

func (f Flavor) truncateStatement(table string) string {
	if f == SQLite {
		return "DELETE FROM " + QuoteIdentifier(table)
	}
	return "TRUNCATE TABLE " + QuoteIdentifier(table)
}
