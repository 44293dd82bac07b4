package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gopkg.in/inf.v0"
)

func TestKindOf(t *testing.T) {
	items := []struct {
		columnType string
		kind       TypeKind
		pattern    string
	}{
		{"bigint(20) unsigned", KindInt, PatternInt},
		{"TINYINT", KindInt, PatternInt},
		{"decimal(18,9)", KindDecimal, PatternFloat},
		{"double", KindFloat, PatternFloat},
		{"datetime", KindDateTime, PatternString},
		{"varchar(20)", KindString, PatternString},
		{"longtext", KindString, PatternString},
	}

	for _, item := range items {
		assert.Equal(t, item.kind, KindOf(item.columnType), item.columnType)
		assert.Equal(t, item.pattern, PatternForType(item.columnType), item.columnType)
	}
}

func TestNumericConversions(t *testing.T) {
	i, ok := ToInt64(" 42 ")
	assert.True(t, ok)
	assert.Equal(t, int64(42), i)

	i, ok = ToInt64("3.9")
	assert.True(t, ok)
	assert.Equal(t, int64(3), i)

	_, ok = ToInt64("abc")
	assert.False(t, ok)

	assert.True(t, IsIntegral("10"))
	assert.True(t, IsIntegral(10.0))
	assert.False(t, IsIntegral("10.5"))
	assert.False(t, IsIntegral("ten"))
	assert.True(t, IsNumeric("1e3"))
	assert.False(t, IsNumeric(nil))
}

func TestFromStorage(t *testing.T) {
	row := FromStorage(map[string]interface{}{
		"id":           []byte("7"),
		"total":        "19.990",
		"date_created": "2024-03-01 10:20:30",
		"status":       []byte("active"),
		"extra":        []byte("raw"),
		"note":         nil,
	}, map[string]string{
		"id":           "bigint(20)",
		"total":        "decimal(18,9)",
		"date_created": "datetime",
		"status":       "varchar(20)",
		"note":         "text",
	})

	assert.Equal(t, int64(7), row.Int64("id"))
	assert.Equal(t, inf.NewDec(19990, 3).String(), row.Decimal("total").String())
	assert.Equal(t, time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC), row.Time("date_created"))
	assert.Equal(t, "active", row.String("status"))
	assert.Equal(t, "raw", row["extra"])
	assert.True(t, row.Has("note"))
	assert.Nil(t, row.Get("note"))
}

func TestToStorage(t *testing.T) {
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "2024-01-02 03:04:05", ToStorage(when, "datetime"))
	assert.Equal(t, int64(1), ToStorage(true, "tinyint(1)"))
	assert.Equal(t, int64(12), ToStorage("12", "bigint"))
	assert.Equal(t, "1.50", ToStorage(inf.NewDec(150, 2), "decimal(18,2)"))
	assert.Equal(t, "x", ToStorage("x", "varchar(10)"))
	assert.Nil(t, ToStorage(nil, "text"))
}

func TestJoinFragments(t *testing.T) {
	joined := JoinFragments(" AND ",
		NewFragment("a = ?", 1),
		Fragment{},
		NewFragment("b IN (?, ?)", 2, 3))

	assert.Equal(t, "a = ? AND b IN (?, ?)", joined.SQL)
	assert.Equal(t, []interface{}{1, 2, 3}, joined.Args)
	assert.Equal(t, "(a = ? AND b IN (?, ?))", joined.Wrap().SQL)
	assert.True(t, JoinFragments(" OR ").IsEmpty())
}

func TestOption(t *testing.T) {
	none := None[interface{}]()
	assert.False(t, none.IsSet())
	assert.Equal(t, "x", none.OrElse("x"))

	empty := Some[interface{}]("")
	v, ok := empty.Get()
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestParseRelation(t *testing.T) {
	r, ok := ParseRelation("or")
	assert.True(t, ok)
	assert.Equal(t, RelationOr, r)

	_, ok = ParseRelation("XOR")
	assert.False(t, ok)

	_, ok = ParseRelation(1)
	assert.False(t, ok)
}
