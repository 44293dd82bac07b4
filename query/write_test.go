package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/datastax/custom-tables/db"
	"github.com/datastax/custom-tables/schema"
	"github.com/datastax/custom-tables/types"
)

func TestChangesetDiffComparesByColumnType(t *testing.T) {
	s := ordersConfig().Schema
	total, _ := types.ToDecimal("10.500000000")
	original := types.Row{
		"id":           int64(1),
		"status":       "active",
		"total":        total,
		"subtotal":     "10.50",
		"date_created": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	cs := NewChangeset(s, original).
		Set("status", "active").
		Set("total", 10.5).
		Set("subtotal", "10.5").
		Set("date_created", "2024-01-01 00:00:00").
		Set("not_a_column", "x")
	assert.True(t, cs.IsEmpty())

	cs.Set("status", "refunded").Set("date_created", "2024-01-02")
	assert.Equal(t, types.Row{"status": "refunded", "date_created": "2024-01-02"}, cs.Diff())
	assert.Equal(t, "refunded", cs.Updated()["status"])
	assert.Equal(t, "active", cs.Original()["status"])
}

func TestSameValue(t *testing.T) {
	items := []struct {
		kind types.TypeKind
		a, b interface{}
		same bool
	}{
		{types.KindInt, int64(3), "3", true},
		{types.KindInt, int64(3), 4, false},
		{types.KindFloat, 1.5, "1.50", true},
		{types.KindBool, int64(1), true, true},
		{types.KindString, "a", "b", false},
		{types.KindString, nil, "", false},
		{types.KindString, nil, nil, true},
		{types.KindDateTime, "2024-01-01", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
	}
	for _, item := range items {
		assert.Equal(t, item.same, sameValue(item.kind, item.a, item.b), "%v %v", item.a, item.b)
	}
}

func TestWriteErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := error(&WriteError{Op: schema.OpInsert, Table: "wp_orders", Err: cause})
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "failed to insert item in wp_orders: disk full", err.Error())

	err = &WriteError{Op: schema.OpDelete, Table: "wp_orders", ID: 7, Err: cause}
	assert.Equal(t, "failed to delete item 7 in wp_orders: disk full", err.Error())
}

func TestAddItemReportsStorageFailure(t *testing.T) {
	q, session := newMockQuery(t)
	session.On("Execute", mock.Anything, mock.Anything).Return(db.ExecResult{}, errors.New("read only"))

	id, err := q.AddItem(context.Background(), types.Row{"status": "active"})
	assert.Nil(t, id)
	var writeError *WriteError
	require.True(t, errors.As(err, &writeError))
	assert.Equal(t, schema.OpInsert, writeError.Op)
}

func TestAddItemBindsStorageValues(t *testing.T) {
	q, session := newMockQuery(t)
	session.
		On("Execute",
			"INSERT INTO `wp_orders` (`date_created`, `date_modified`, `email`, `status`, `subtotal`, `total`) VALUES (?, ?, ?, ?, ?, ?)",
			[]interface{}{"2025-06-15 12:00:00", "2025-06-15 12:00:00", "", "active", "0", "2024"}).
		Return(db.ExecResult{RowsAffected: 1, LastInsertID: 12}, nil)

	id, err := q.AddItem(context.Background(), types.Row{"id": 0, "status": "active", "total": "2024"})
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
	session.AssertExpectations(t)
}
