package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/datastax/custom-tables/schema"
	"github.com/datastax/custom-tables/types"
)

// ConditionItem is one `column operator ?` term of a WHERE clause.
type ConditionItem struct {
	Column   string
	Operator string
	Value    interface{}
}

type SelectInfo struct {
	Table   string
	Columns []string
	Where   []ConditionItem
	OrderBy []ColumnOrder
	Limit   int
}

type InsertInfo struct {
	Table       string
	Columns     []string
	QueryParams []interface{}
}

type DeleteInfo struct {
	Table string
	Where []ConditionItem
}

type UpdateInfo struct {
	Table       string
	Columns     []string
	QueryParams []interface{}
	Where       []ConditionItem
}

type ColumnOrder struct {
	Column string
	Order  string
}

var conditionOperators = map[string]bool{
	"=": true, "!=": true, "<>": true, ">": true, ">=": true, "<": true, "<=": true, "LIKE": true,
}

// QuoteIdentifier wraps a validated table or column name in backticks.
func QuoteIdentifier(name string) string {
	return "`" + name + "`"
}

func checkIdentifiers(names ...string) error {
	for _, name := range names {
		if !schema.IsIdentifier(name) {
			return fmt.Errorf("invalid identifier %q", name)
		}
	}
	return nil
}

func (db *Db) Select(ctx context.Context, info *SelectInfo) (ResultSet, error) {
	if err := checkIdentifiers(info.Table); err != nil {
		return nil, err
	}

	columns := "*"
	if len(info.Columns) > 0 {
		if err := checkIdentifiers(info.Columns...); err != nil {
			return nil, err
		}
		columns = quoteAll(info.Columns)
	}

	values := make([]interface{}, 0, len(info.Where))
	query := fmt.Sprintf("SELECT %s FROM %s", columns, QuoteIdentifier(info.Table))

	if len(info.Where) > 0 {
		whereClause, err := buildCondition(info.Where, &values)
		if err != nil {
			return nil, err
		}
		query += " WHERE " + whereClause
	}

	if len(info.OrderBy) > 0 {
		query += " ORDER BY "
		for i, order := range info.OrderBy {
			if err := checkIdentifiers(order.Column); err != nil {
				return nil, err
			}
			if i > 0 {
				query += ", "
			}
			direction := strings.ToUpper(order.Order)
			if direction != "DESC" {
				direction = "ASC"
			}
			query += QuoteIdentifier(order.Column) + " " + direction
		}
	}

	if info.Limit > 0 {
		query += " LIMIT ?"
		values = append(values, info.Limit)
	}

	return db.session.ExecuteIter(ctx, query, values...)
}

func (db *Db) Insert(ctx context.Context, info *InsertInfo) (*types.ModificationResult, error) {
	if len(info.Columns) == 0 {
		return nil, errors.New("insert must include at least one column")
	}
	if err := checkIdentifiers(append([]string{info.Table}, info.Columns...)...); err != nil {
		return nil, err
	}

	placeholders := "?"
	for i := 1; i < len(info.Columns); i++ {
		placeholders += ", ?"
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		QuoteIdentifier(info.Table), quoteAll(info.Columns), placeholders)

	result, err := db.session.Execute(ctx, query, info.QueryParams...)
	return modificationResult(result, err), err
}

func (db *Db) Delete(ctx context.Context, info *DeleteInfo) (*types.ModificationResult, error) {
	if err := checkIdentifiers(info.Table); err != nil {
		return nil, err
	}
	if len(info.Where) == 0 {
		return nil, errors.New("delete must include a where clause, use DeleteAll to empty a table")
	}

	queryParameters := make([]interface{}, 0, len(info.Where))
	whereClause, err := buildCondition(info.Where, &queryParameters)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", QuoteIdentifier(info.Table), whereClause)

	result, err := db.session.Execute(ctx, query, queryParameters...)
	return modificationResult(result, err), err
}

func (db *Db) Update(ctx context.Context, info *UpdateInfo) (*types.ModificationResult, error) {
	if len(info.Where) == 0 {
		return nil, errors.New("update must include a where clause")
	}
	if len(info.Columns) == 0 {
		return nil, errors.New("query must include columns to update")
	}
	if err := checkIdentifiers(append([]string{info.Table}, info.Columns...)...); err != nil {
		return nil, err
	}

	setClause := ""
	queryParameters := make([]interface{}, 0, len(info.QueryParams)+len(info.Where))
	for i, columnName := range info.Columns {
		setClause += fmt.Sprintf(", %s = ?", QuoteIdentifier(columnName))
		queryParameters = append(queryParameters, info.QueryParams[i])
	}

	whereClause, err := buildCondition(info.Where, &queryParameters)
	if err != nil {
		return nil, err
	}

	// Remove the initial , operator
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", QuoteIdentifier(info.Table), setClause[2:], whereClause)

	result, err := db.session.Execute(ctx, query, queryParameters...)
	return modificationResult(result, err), err
}

func modificationResult(result ExecResult, err error) *types.ModificationResult {
	return &types.ModificationResult{
		Applied:      err == nil,
		RowsAffected: result.RowsAffected,
		LastInsertID: result.LastInsertID,
	}
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = QuoteIdentifier(name)
	}
	return strings.Join(quoted, ", ")
}

func buildCondition(condition []ConditionItem, queryParameters *[]interface{}) (string, error) {
	conditionClause := ""
	for _, item := range condition {
		if err := checkIdentifiers(item.Column); err != nil {
			return "", err
		}
		operator := strings.ToUpper(strings.TrimSpace(item.Operator))
		if operator == "" {
			operator = "="
		}
		if !conditionOperators[operator] {
			return "", fmt.Errorf("unsupported operator %q", item.Operator)
		}

		if conditionClause != "" {
			conditionClause += " AND "
		}

		if operator == "LIKE" {
			conditionClause += fmt.Sprintf("%s LIKE ? ESCAPE '%c'", QuoteIdentifier(item.Column), LikeEscape)
		} else {
			conditionClause += fmt.Sprintf("%s %s ?", QuoteIdentifier(item.Column), operator)
		}
		*queryParameters = append(*queryParameters, item.Value)
	}
	return conditionClause, nil
}
