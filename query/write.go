package query

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/datastax/custom-tables/db"
	"github.com/datastax/custom-tables/schema"
	"github.com/datastax/custom-tables/types"
)

// ErrForbidden is wrapped by a WriteError when a required column
// capability was not granted.
var ErrForbidden = errors.New("capability not granted")

// WriteError reports a failed add, update or delete.
type WriteError struct {
	Op    schema.Operation
	Table string
	ID    interface{}
	Err   error
}

func (e *WriteError) Error() string {
	if e.ID == nil {
		return fmt.Sprintf("failed to %s item in %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("failed to %s item %v in %s: %v", e.Op, e.ID, e.Table, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Changeset holds the pending changes to one row. Only values that differ
// from the original row, compared by column type, are part of the diff.
type Changeset struct {
	schema   *schema.Schema
	original types.Row
	changes  types.Row
}

func NewChangeset(s *schema.Schema, original types.Row) *Changeset {
	return &Changeset{schema: s, original: original.Copy(), changes: types.Row{}}
}

// Set records a change to a registered column; other names are ignored.
func (cs *Changeset) Set(column string, value interface{}) *Changeset {
	if cs.schema.Has(column) {
		cs.changes[column] = value
	}
	return cs
}

func (cs *Changeset) Original() types.Row {
	return cs.original.Copy()
}

// Diff returns the changed columns with their new values.
func (cs *Changeset) Diff() types.Row {
	diff := make(types.Row, len(cs.changes))
	for name, value := range cs.changes {
		column, _ := cs.schema.Column(name)
		if !sameValue(column.Kind(), cs.original[name], value) {
			diff[name] = value
		}
	}
	return diff
}

func (cs *Changeset) IsEmpty() bool {
	return len(cs.Diff()) == 0
}

// Updated is the original row with the diff applied.
func (cs *Changeset) Updated() types.Row {
	updated := cs.original.Copy()
	for name, value := range cs.Diff() {
		updated[name] = value
	}
	return updated
}

func sameValue(kind types.TypeKind, a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch kind {
	case types.KindInt:
		x, okA := types.ToInt64(a)
		y, okB := types.ToInt64(b)
		if okA && okB {
			return x == y
		}
	case types.KindFloat:
		x, okA := types.ToFloat64(a)
		y, okB := types.ToFloat64(b)
		if okA && okB {
			return x == y
		}
	case types.KindDecimal:
		x, okA := types.ToDecimal(a)
		y, okB := types.ToDecimal(b)
		if okA && okB {
			return x.Cmp(y) == 0
		}
	case types.KindDateTime:
		x, okA := types.ParseDateTime(a)
		y, okB := types.ParseDateTime(b)
		if okA && okB {
			return x.Equal(y)
		}
	case types.KindBool:
		x, okA := types.ToBool(a)
		y, okB := types.ToBool(b)
		if okA && okB {
			return x == y
		}
	default:
		x, okA := types.ToString(a)
		y, okB := types.ToString(b)
		if okA && okB {
			return x == y
		}
	}
	return reflect.DeepEqual(a, b)
}

// AddItem inserts data and returns the new primary key. Unknown keys are
// dropped, column defaults applied, and empty created/modified columns set
// to now. Every value is validated before anything is written.
func (q *Query) AddItem(ctx context.Context, data types.Row) (interface{}, error) {
	item := q.knownColumns(data)

	var err error
	if item, err = q.filterItemData(ctx, schema.OpInsert, item); err != nil {
		return nil, &WriteError{Op: schema.OpInsert, Table: q.cfg.Table, Err: err}
	}

	now := types.FormatDateTime(q.now())
	for _, column := range q.schema.Columns(nil, schema.And) {
		if _, ok := item[column.Name]; !ok && column.Default != nil && !column.Primary {
			item[column.Name] = column.Default
		}
		if (column.Created || column.Modified) && isZeroDate(item[column.Name]) {
			item[column.Name] = now
		}
	}
	if isEmptyID(item[q.primary]) {
		delete(item, q.primary)
	}

	if item, err = q.validate(item); err != nil {
		return nil, err
	}
	if err := q.checkCaps(ctx, schema.OpInsert, item); err != nil {
		return nil, &WriteError{Op: schema.OpInsert, Table: q.cfg.Table, Err: err}
	}

	columns, params := q.storageValues(item)
	result, err := q.timedWrite(ctx, "insert", func(ctx context.Context) (*types.ModificationResult, error) {
		return q.db.Insert(ctx, &db.InsertInfo{Table: q.cfg.Table, Columns: columns, QueryParams: params})
	})
	if err != nil {
		return nil, &WriteError{Op: schema.OpInsert, Table: q.cfg.Table, Err: err}
	}

	id, ok := item[q.primary]
	if !ok {
		id = result.LastInsertID
		item[q.primary] = id
	}
	q.evictItem(item)
	q.bump()
	return id, nil
}

// UpdateItem applies the values of data that differ from the stored row.
// An update that changes nothing succeeds without writing.
func (q *Query) UpdateItem(ctx context.Context, id interface{}, data types.Row) (bool, error) {
	original, err := q.rawItem(ctx, q.primary, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, err
		}
		return false, &WriteError{Op: schema.OpUpdate, Table: q.cfg.Table, ID: id, Err: err}
	}

	changes := q.knownColumns(data)
	delete(changes, q.primary)
	if changes, err = q.filterItemData(ctx, schema.OpUpdate, changes); err != nil {
		return false, &WriteError{Op: schema.OpUpdate, Table: q.cfg.Table, ID: id, Err: err}
	}

	cs := NewChangeset(q.schema, original)
	for name, value := range changes {
		cs.Set(name, value)
	}
	return q.SaveChangeset(ctx, cs)
}

// SaveChangeset writes the diff of cs to the row it was built from.
func (q *Query) SaveChangeset(ctx context.Context, cs *Changeset) (bool, error) {
	id := cs.original[q.primary]
	diff := cs.Diff()
	delete(diff, q.primary)
	if len(diff) == 0 {
		q.logger.Debug("update skipped, nothing changed", "id", id)
		return true, nil
	}

	for _, column := range q.schema.Columns(schema.Filter{"modified": true}, schema.And) {
		if _, set := diff[column.Name]; !set {
			diff[column.Name] = types.FormatDateTime(q.now())
		}
	}

	diff, err := q.validate(diff)
	if err != nil {
		return false, err
	}
	if err := q.checkCaps(ctx, schema.OpUpdate, diff); err != nil {
		return false, &WriteError{Op: schema.OpUpdate, Table: q.cfg.Table, ID: id, Err: err}
	}

	columns, params := q.storageValues(diff)
	_, err = q.timedWrite(ctx, "update", func(ctx context.Context) (*types.ModificationResult, error) {
		return q.db.Update(ctx, &db.UpdateInfo{
			Table:       q.cfg.Table,
			Columns:     columns,
			QueryParams: params,
			Where:       []db.ConditionItem{{Column: q.primary, Operator: "=", Value: id}},
		})
	})
	if err != nil {
		return false, &WriteError{Op: schema.OpUpdate, Table: q.cfg.Table, ID: id, Err: err}
	}

	updated := cs.Original()
	for name, value := range diff {
		updated[name] = value
	}
	q.evictItem(cs.original, updated)
	q.bump()
	return true, nil
}

// DeleteItem removes the row whose primary key is id.
func (q *Query) DeleteItem(ctx context.Context, id interface{}) (bool, error) {
	original, err := q.rawItem(ctx, q.primary, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, err
		}
		return false, &WriteError{Op: schema.OpDelete, Table: q.cfg.Table, ID: id, Err: err}
	}

	if err := q.checkCaps(ctx, schema.OpDelete, original); err != nil {
		return false, &WriteError{Op: schema.OpDelete, Table: q.cfg.Table, ID: id, Err: err}
	}
	if _, err := q.filterItemData(ctx, schema.OpDelete, original.Copy()); err != nil {
		return false, &WriteError{Op: schema.OpDelete, Table: q.cfg.Table, ID: id, Err: err}
	}

	result, err := q.timedWrite(ctx, "delete", func(ctx context.Context) (*types.ModificationResult, error) {
		return q.db.Delete(ctx, &db.DeleteInfo{
			Table: q.cfg.Table,
			Where: []db.ConditionItem{{Column: q.primary, Operator: "=", Value: original[q.primary]}},
		})
	})
	if err != nil {
		return false, &WriteError{Op: schema.OpDelete, Table: q.cfg.Table, ID: id, Err: err}
	}
	if result.RowsAffected == 0 {
		return false, ErrNotFound
	}

	q.evictItem(original)
	q.bump()
	return true, nil
}

// knownColumns copies the registered columns of data.
func (q *Query) knownColumns(data types.Row) types.Row {
	item := make(types.Row, len(data))
	for name, value := range data {
		if !q.schema.Has(name) {
			q.logger.Debug("unknown column dropped from write", "column", name)
			continue
		}
		item[name] = value
	}
	return item
}

func (q *Query) filterItemData(ctx context.Context, op schema.Operation, data types.Row) (types.Row, error) {
	if q.hooks.FilterItemData == nil {
		return data, nil
	}
	filtered, err := q.hooks.FilterItemData(ctx, op, data)
	if err != nil {
		return nil, err
	}
	return q.knownColumns(filtered), nil
}

// validate checks every value, failing on the first invalid one without
// partial results.
func (q *Query) validate(data types.Row) (types.Row, error) {
	validated := make(types.Row, len(data))
	for _, name := range sortedKeys(data) {
		column, _ := q.schema.Column(name)
		value, err := schema.ValidateValue(column, data[name])
		if err != nil {
			q.logger.Warn("write rejected", "column", name, "error", err)
			return nil, err
		}
		validated[name] = value
	}
	return validated, nil
}

// checkCaps requires the capability of every touched column that declares
// one for op. Without a checker nothing is enforced.
func (q *Query) checkCaps(ctx context.Context, op schema.Operation, data types.Row) error {
	if q.caps == nil {
		return nil
	}
	for _, name := range sortedKeys(data) {
		column, _ := q.schema.Column(name)
		if required, ok := column.Cap(op); ok && !q.caps.Can(ctx, required) {
			return fmt.Errorf("%w: %s on column %s requires %q", ErrForbidden, op, name, required)
		}
	}
	return nil
}

func (q *Query) storageValues(data types.Row) ([]string, []interface{}) {
	columns := sortedKeys(data)
	params := make([]interface{}, len(columns))
	for i, name := range columns {
		column, _ := q.schema.Column(name)
		params[i] = types.ToStorage(data[name], column.Type)
	}
	return columns, params
}

func (q *Query) timedWrite(ctx context.Context, kind string, run func(ctx context.Context) (*types.ModificationResult, error)) (*types.ModificationResult, error) {
	value, err := q.timed(ctx, kind, func(ctx context.Context) (interface{}, error) {
		return run(ctx)
	})
	if err != nil {
		return nil, err
	}
	return value.(*types.ModificationResult), nil
}

func sortedKeys(row types.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isZeroDate(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == "" || v == "0000-00-00 00:00:00"
	}
	if t, ok := types.ParseDateTime(value); ok {
		return t.IsZero()
	}
	return false
}

func isEmptyID(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == "" || v == "0"
	}
	if i, ok := types.ToInt64(value); ok {
		return i == 0
	}
	return false
}
