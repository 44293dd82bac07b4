// Package meta defines the metadata collaborator consumed by meta_query
// clauses, plus an adapter for metadata kept in a SQL key/value table.
package meta

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/datastax/custom-tables/types"
)

// Request identifies the object table a meta query is joined against.
type Request struct {
	ObjectType    string
	TableAlias    string
	PrimaryColumn string
	Query         interface{}
	// Context is passed through untouched, e.g. the calling query's vars.
	Context interface{}
}

// Fragments are the JOIN and WHERE pieces contributed to the outer query.
type Fragments struct {
	Join  types.Fragment
	Where types.Fragment
}

type Querier interface {
	// GetSQL returns false when the query contributes nothing.
	GetSQL(ctx context.Context, req Request) (Fragments, bool)
}

type QuerierMock struct {
	mock.Mock
}

func (o *QuerierMock) GetSQL(ctx context.Context, req Request) (Fragments, bool) {
	args := o.Called(req)
	return args.Get(0).(Fragments), args.Bool(1)
}
