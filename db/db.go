package db

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoRows is returned by Row and Scalar when the statement matched nothing.
var ErrNoRows = errors.New("no rows in result set")

// Db represents a connection to a db
type Db struct {
	session Session
	flavor  Flavor
}

// NewDb wraps a session speaking the given SQL flavor.
func NewDb(session Session, flavor Flavor) *Db {
	return &Db{
		session: session,
		flavor:  flavor,
	}
}

func (db *Db) Session() Session {
	return db.session
}

func (db *Db) Flavor() Flavor {
	return db.flavor
}

// Close releases the underlying connection pool when the session owns one.
func (db *Db) Close() error {
	if closer, ok := db.session.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// Execute executes a statement without returning row results
func (db *Db) Execute(ctx context.Context, query string, values ...interface{}) (ExecResult, error) {
	return db.session.Execute(ctx, query, values...)
}

// Rows executes query and returns every row of the result set
func (db *Db) Rows(ctx context.Context, query string, values ...interface{}) ([]map[string]interface{}, error) {
	rs, err := db.session.ExecuteIter(ctx, query, values...)
	if err != nil {
		return nil, err
	}
	return rs.Values(), nil
}

// Row returns the first row of the result set.
func (db *Db) Row(ctx context.Context, query string, values ...interface{}) (map[string]interface{}, error) {
	rows, err := db.Rows(ctx, query, values...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows[0], nil
}

// Column returns the first column of every row.
func (db *Db) Column(ctx context.Context, query string, values ...interface{}) ([]interface{}, error) {
	rs, err := db.session.ExecuteIter(ctx, query, values...)
	if err != nil {
		return nil, err
	}

	columns := rs.Columns()
	if len(columns) == 0 {
		return nil, fmt.Errorf("statement returned no columns")
	}

	rows := rs.Values()
	result := make([]interface{}, len(rows))
	for i, row := range rows {
		result[i] = row[columns[0]]
	}
	return result, nil
}

// Scalar returns the first column of the first row.
func (db *Db) Scalar(ctx context.Context, query string, values ...interface{}) (interface{}, error) {
	column, err := db.Column(ctx, query, values...)
	if err != nil {
		return nil, err
	}
	if len(column) == 0 {
		return nil, ErrNoRows
	}
	return column[0], nil
}
