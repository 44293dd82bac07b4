package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestDeleteGeneration(t *testing.T) {
	items := []struct {
		where       []ConditionItem
		queryParams []interface{}
		query       string
	}{
		{[]ConditionItem{{"a", "=", "b"}}, []interface{}{"b"}, "DELETE FROM `tbl1` WHERE `a` = ?"},
		{[]ConditionItem{{"a", "", "A Value"}, {"b", ">", 2}}, []interface{}{"A Value", 2},
			"DELETE FROM `tbl1` WHERE `a` = ? AND `b` > ?"},
	}

	for _, item := range items {
		sessionMock := SessionMock{}
		db := &Db{
			session: &sessionMock,
		}

		sessionMock.On("Execute", mock.Anything, mock.Anything).Return(ExecResult{RowsAffected: 1}, nil)

		result, err := db.Delete(context.Background(), &DeleteInfo{
			Table: "tbl1",
			Where: item.where,
		})
		assert.Nil(t, err)
		assert.True(t, result.Applied)
		assert.Equal(t, int64(1), result.RowsAffected)
		sessionMock.AssertCalled(t, "Execute", item.query, item.queryParams)
		sessionMock.AssertExpectations(t)
	}
}

func TestDeleteRequiresWhere(t *testing.T) {
	db := &Db{session: &SessionMock{}}
	_, err := db.Delete(context.Background(), &DeleteInfo{Table: "tbl1"})
	assert.Error(t, err)
}

func TestInsertGeneration(t *testing.T) {
	items := []struct {
		columnNames []string
		queryParams []interface{}
		query       string
	}{
		{[]string{"a"}, []interface{}{100}, "INSERT INTO `tbl1` (`a`) VALUES (?)"},
		{[]string{"a", "b"}, []interface{}{100, 2}, "INSERT INTO `tbl1` (`a`, `b`) VALUES (?, ?)"},
	}

	for _, item := range items {
		sessionMock := SessionMock{}
		db := &Db{
			session: &sessionMock,
		}

		sessionMock.On("Execute", mock.Anything, mock.Anything).Return(ExecResult{RowsAffected: 1, LastInsertID: 7}, nil)

		result, err := db.Insert(context.Background(), &InsertInfo{
			Table:       "tbl1",
			Columns:     item.columnNames,
			QueryParams: item.queryParams,
		})
		assert.Nil(t, err)
		assert.Equal(t, int64(7), result.LastInsertID)
		sessionMock.AssertCalled(t, "Execute", item.query, item.queryParams)
		sessionMock.AssertExpectations(t)
	}
}

func TestUpdateGeneration(t *testing.T) {
	sessionMock := SessionMock{}
	db := &Db{
		session: &sessionMock,
	}
	sessionMock.On("Execute", mock.Anything, mock.Anything).Return(ExecResult{RowsAffected: 1}, nil)

	_, err := db.Update(context.Background(), &UpdateInfo{
		Table:       "tbl1",
		Columns:     []string{"b", "c"},
		QueryParams: []interface{}{"x", 3},
		Where:       []ConditionItem{{"a", "=", 1}},
	})
	assert.Nil(t, err)
	sessionMock.AssertCalled(t, "Execute", "UPDATE `tbl1` SET `b` = ?, `c` = ? WHERE `a` = ?", []interface{}{"x", 3, 1})

	_, err = db.Update(context.Background(), &UpdateInfo{
		Table: "tbl1",
		Where: []ConditionItem{{"a", "=", 1}},
	})
	assert.EqualError(t, err, "query must include columns to update")
}

func TestSelectGeneration(t *testing.T) {
	items := []struct {
		columns []string
		where   []ConditionItem
		orderBy []ColumnOrder
		limit   int
		query   string
		params  []interface{}
	}{
		{nil, []ConditionItem{{"a", "=", 1}}, nil, 0,
			"SELECT * FROM `tbl1` WHERE `a` = ?", []interface{}{1}},
		{[]string{"a", "b"}, []ConditionItem{{"a", "=", 1}, {"b", ">", 2}}, nil, 0,
			"SELECT `a`, `b` FROM `tbl1` WHERE `a` = ? AND `b` > ?", []interface{}{1, 2}},
		{nil, []ConditionItem{{"a", "=", 1}}, []ColumnOrder{{"c", "desc"}}, 0,
			"SELECT * FROM `tbl1` WHERE `a` = ? ORDER BY `c` DESC", []interface{}{1}},
		{nil, []ConditionItem{{"a", "like", "z%"}}, []ColumnOrder{{"c", "ASC"}}, 1,
			"SELECT * FROM `tbl1` WHERE `a` LIKE ? ESCAPE '!' ORDER BY `c` ASC LIMIT ?", []interface{}{"z%", 1}},
	}

	for _, item := range items {
		sessionMock := SessionMock{}
		db := &Db{
			session: &sessionMock,
		}
		sessionMock.On("ExecuteIter", mock.Anything, mock.Anything).Return(NewResultMock(nil), nil)

		_, err := db.Select(context.Background(), &SelectInfo{
			Table:   "tbl1",
			Columns: item.columns,
			Where:   item.where,
			OrderBy: item.orderBy,
			Limit:   item.limit,
		})
		assert.Nil(t, err)
		sessionMock.AssertCalled(t, "ExecuteIter", item.query, item.params)
		sessionMock.AssertExpectations(t)
	}
}

func TestGeneratorsRejectInvalidIdentifiers(t *testing.T) {
	sessionMock := &SessionMock{}
	db := &Db{session: sessionMock}
	ctx := context.Background()

	_, err := db.Insert(ctx, &InsertInfo{Table: "tbl1; DROP TABLE x", Columns: []string{"a"}, QueryParams: []interface{}{1}})
	assert.Error(t, err)

	_, err = db.Select(ctx, &SelectInfo{Table: "tbl1", Where: []ConditionItem{{"a) OR (1", "=", 1}}})
	assert.Error(t, err)

	_, err = db.Select(ctx, &SelectInfo{Table: "tbl1", Where: []ConditionItem{{"a", "IS NOT", 1}}})
	assert.Error(t, err)

	sessionMock.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	sessionMock.AssertNotCalled(t, "ExecuteIter", mock.Anything, mock.Anything)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, "50!% off", EscapeLike("50% off"))
	assert.Equal(t, "a!_b", EscapeLike("a_b"))
	assert.Equal(t, "wow!!", EscapeLike("wow!"))
	assert.Equal(t, "plain", EscapeLike("plain"))
}

func TestParseFlavor(t *testing.T) {
	f, err := ParseFlavor("SQLite3")
	assert.NoError(t, err)
	assert.Equal(t, SQLite, f)

	f, err = ParseFlavor("mariadb")
	assert.NoError(t, err)
	assert.Equal(t, MySQL, f)

	_, err = ParseFlavor("oracle")
	assert.Error(t, err)
}
