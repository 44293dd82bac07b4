package db

import (
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// OpenMySQL connects to a MySQL or MariaDB server. Datetime columns are
// always scanned into time.Time.
func OpenMySQL(dsn string) (*Db, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true

	ref, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	if err := ref.Ping(); err != nil {
		ref.Close()
		return nil, fmt.Errorf("failed to connect to mysql database %s: %w", cfg.Addr, err)
	}
	return NewDb(NewSQLSession(ref), MySQL), nil
}

// Open connects with the driver named by a Flavor ("sqlite3", "mysql", ...).
func Open(driver, dsn string) (*Db, error) {
	flavor, err := ParseFlavor(driver)
	if err != nil {
		return nil, err
	}
	if flavor == MySQL {
		return OpenMySQL(dsn)
	}
	return OpenSQLite(dsn)
}
