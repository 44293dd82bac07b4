package db

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type SessionMock struct {
	mock.Mock
}

func (o *SessionMock) Execute(ctx context.Context, query string, values ...interface{}) (ExecResult, error) {
	args := o.Called(query, values)
	return args.Get(0).(ExecResult), args.Error(1)
}

func (o *SessionMock) ExecuteIter(ctx context.Context, query string, values ...interface{}) (ResultSet, error) {
	args := o.Called(query, values)
	rs, _ := args.Get(0).(ResultSet)
	return rs, args.Error(1)
}

type ResultMock struct {
	mock.Mock
}

func (o *ResultMock) Columns() []string {
	return o.Called().Get(0).([]string)
}

func (o *ResultMock) Values() []map[string]interface{} {
	args := o.Called()
	return args.Get(0).([]map[string]interface{})
}

// NewResultMock returns a result set holding rows with the given column order.
func NewResultMock(columns []string, rows ...map[string]interface{}) *ResultMock {
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	resultMock := &ResultMock{}
	resultMock.On("Columns").Return(columns)
	resultMock.On("Values").Return(rows)
	return resultMock
}
