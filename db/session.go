package db

import (
	"context"
	"database/sql"
)

// ExecResult is what a statement without a result set reports back.
type ExecResult struct {
	RowsAffected int64
	LastInsertID int64
}

type Session interface {
	// Execute executes a statement without returning row results
	Execute(ctx context.Context, query string, values ...interface{}) (ExecResult, error)

	// ExecuteIter executes a statement and returns the materialized result set
	ExecuteIter(ctx context.Context, query string, values ...interface{}) (ResultSet, error)
}

type ResultSet interface {
	Columns() []string
	Values() []map[string]interface{}
}

type sqlResultSet struct {
	columns []string
	values  []map[string]interface{}
}

func (r *sqlResultSet) Columns() []string {
	return r.columns
}

func (r *sqlResultSet) Values() []map[string]interface{} {
	return r.values
}

func newResultSet(rows *sql.Rows) (*sqlResultSet, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	items := make([]map[string]interface{}, 0)
	for rows.Next() {
		row, err := mapScan(rows, columns)
		if err != nil {
			return nil, err
		}
		items = append(items, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &sqlResultSet{columns: columns, values: items}, nil
}

func mapScan(rows *sql.Rows, columns []string) (map[string]interface{}, error) {
	values := make([]interface{}, len(columns))
	pointers := make([]interface{}, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	if err := rows.Scan(pointers...); err != nil {
		return nil, err
	}

	mapped := make(map[string]interface{}, len(columns))
	for i, column := range columns {
		value := values[i]
		// Drivers may reuse byte buffers between rows
		if b, ok := value.([]byte); ok {
			value = string(b)
		}
		mapped[column] = value
	}
	return mapped, nil
}

// SQLSession is a Session over database/sql.
type SQLSession struct {
	ref *sql.DB
}

func NewSQLSession(ref *sql.DB) *SQLSession {
	return &SQLSession{ref: ref}
}

func (session *SQLSession) Execute(ctx context.Context, query string, values ...interface{}) (ExecResult, error) {
	result, err := session.ref.ExecContext(ctx, query, values...)
	if err != nil {
		return ExecResult{}, err
	}

	var execResult ExecResult
	// Not every driver or statement reports these
	execResult.RowsAffected, _ = result.RowsAffected()
	execResult.LastInsertID, _ = result.LastInsertId()
	return execResult, nil
}

func (session *SQLSession) ExecuteIter(ctx context.Context, query string, values ...interface{}) (ResultSet, error) {
	rows, err := session.ref.QueryContext(ctx, query, values...)
	if err != nil {
		return nil, err
	}
	return newResultSet(rows)
}

func (session *SQLSession) Close() error {
	return session.ref.Close()
}
