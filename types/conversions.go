package types

import (
	"encoding"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/inf.v0"
)

// DateTimeFormat is the storage format of datetime columns.
const DateTimeFormat = "2006-01-02 15:04:05"

// Bind patterns of column definitions.
const (
	PatternInt    = "%d"
	PatternFloat  = "%f"
	PatternString = "%s"
)

var dateTimeLayouts = []string{
	DateTimeFormat,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

type fromStorageFn func(value interface{}) interface{}

// TypeKind groups SQL column types by how values are bound and hydrated.
type TypeKind int

const (
	KindString TypeKind = iota
	KindInt
	KindFloat
	KindDecimal
	KindDateTime
	KindBool
)

// KindOf classifies a SQL column type such as "bigint(20) unsigned",
// "decimal(18,9)", or "datetime".
func KindOf(columnType string) TypeKind {
	t := strings.ToLower(strings.TrimSpace(columnType))
	if i := strings.IndexAny(t, "( "); i >= 0 {
		t = t[:i]
	}
	switch t {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint":
		return KindInt
	case "float", "double", "real":
		return KindFloat
	case "decimal", "numeric":
		return KindDecimal
	case "datetime", "timestamp", "date":
		return KindDateTime
	case "bool", "boolean":
		return KindBool
	}
	return KindString
}

// PatternForType returns the bind pattern of a column type.
func PatternForType(columnType string) string {
	switch KindOf(columnType) {
	case KindInt, KindBool:
		return PatternInt
	case KindFloat, KindDecimal:
		return PatternFloat
	}
	return PatternString
}

// FromStorage converts raw driver values of a row to Go values per column type.
// Columns without a known type are left as returned by the driver, except
// that byte slices become strings.
func FromStorage(row map[string]interface{}, columnTypes map[string]string) Row {
	result := make(Row, len(row))
	for name, value := range row {
		if value == nil {
			result[name] = nil
			continue
		}
		columnType, ok := columnTypes[name]
		if !ok {
			result[name] = bytesToString(value)
			continue
		}
		result[name] = converterPerType(columnType)(value)
	}
	return result
}

func converterPerType(columnType string) fromStorageFn {
	switch KindOf(columnType) {
	case KindInt:
		return toInt64OrIdentity
	case KindFloat:
		return toFloat64OrIdentity
	case KindDecimal:
		return toDecimalOrIdentity
	case KindDateTime:
		return toTimeOrIdentity
	case KindBool:
		return toBoolOrIdentity
	}
	return bytesToString
}

func identityFn(value interface{}) interface{} {
	return value
}

func bytesToString(value interface{}) interface{} {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}

func toInt64OrIdentity(value interface{}) interface{} {
	if i, ok := ToInt64(value); ok {
		return i
	}
	return bytesToString(value)
}

func toFloat64OrIdentity(value interface{}) interface{} {
	if f, ok := ToFloat64(value); ok {
		return f
	}
	return bytesToString(value)
}

func toDecimalOrIdentity(value interface{}) interface{} {
	if d, ok := ToDecimal(value); ok {
		return d
	}
	return bytesToString(value)
}

func toTimeOrIdentity(value interface{}) interface{} {
	if t, ok := ParseDateTime(value); ok {
		return t
	}
	return bytesToString(value)
}

func toBoolOrIdentity(value interface{}) interface{} {
	if b, ok := ToBool(value); ok {
		return b
	}
	return bytesToString(value)
}

// ToStorage converts a Go value to what is bound for a column of columnType.
func ToStorage(value interface{}, columnType string) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		return FormatDateTime(v)
	case *time.Time:
		if v == nil {
			return nil
		}
		return FormatDateTime(*v)
	case *inf.Dec:
		if v == nil {
			return nil
		}
		return v.String()
	case bool:
		if v {
			return int64(1)
		}
		return int64(0)
	case []byte:
		return string(v)
	}
	switch KindOf(columnType) {
	case KindInt:
		if i, ok := ToInt64(value); ok {
			return i
		}
	case KindFloat:
		if f, ok := ToFloat64(value); ok {
			return f
		}
	case KindDateTime:
		if t, ok := ParseDateTime(value); ok {
			return FormatDateTime(t)
		}
	}
	return identityFn(value)
}

// Coerce converts value according to a bind pattern (%d, %f, %s).
func Coerce(pattern string, value interface{}) (interface{}, bool) {
	switch pattern {
	case PatternInt:
		return ToInt64(value)
	case PatternFloat:
		return ToFloat64(value)
	default:
		return ToString(value)
	}
}

func FormatDateTime(t time.Time) string {
	return t.Format(DateTimeFormat)
}

// ParseDateTime accepts time.Time values and the string layouts written by
// MySQL and the SQLite driver.
func ParseDateTime(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case []byte:
		return ParseDateTime(string(v))
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateTimeLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// IsNumeric reports whether value is a number or a string holding one.
func IsNumeric(value interface{}) bool {
	_, ok := ToFloat64(value)
	return ok
}

// IsIntegral reports whether value is numeric without a fractional part
// in its literal form ("10" and 10.0 are integral, "10.5" is not).
func IsIntegral(value interface{}) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float32:
		return float64(v) == math.Trunc(float64(v))
	case float64:
		return v == math.Trunc(v) && !math.IsInf(v, 0)
	case []byte:
		return IsIntegral(string(v))
	case string:
		_, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return err == nil
	}
	return false
}

// ToInt64 converts numeric values and numeric strings, truncating fractions.
func ToInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case []byte:
		return ToInt64(string(v))
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int64(f), true
		}
	case *inf.Dec:
		if v == nil {
			return 0, false
		}
		return ToInt64(v.String())
	}
	if f, ok := toFloat(value); ok {
		return int64(f), true
	}
	return 0, false
}

func ToFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case []byte:
		return ToFloat64(string(v))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case *inf.Dec:
		if v == nil {
			return 0, false
		}
		return ToFloat64(v.String())
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		i, _ := ToInt64(v)
		return float64(i), true
	}
	return toFloat(value)
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

func ToBool(value interface{}) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case []byte:
		return ToBool(string(v))
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	}
	if i, ok := ToInt64(value); ok {
		return i != 0, true
	}
	return false, false
}

// ToString renders scalars; datetimes use DateTimeFormat.
func ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case []byte:
		return string(v), true
	case time.Time:
		return FormatDateTime(v), true
	case *inf.Dec:
		if v == nil {
			return "", false
		}
		return v.String(), true
	case fmt.Stringer:
		return v.String(), true
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	}
	return "", false
}

func unmarshallerToText(factory func() encoding.TextUnmarshaler) func(string) (interface{}, error) {
	return func(value string) (interface{}, error) {
		t := factory()
		if err := t.UnmarshalText([]byte(value)); err != nil {
			return nil, err
		}
		return t, nil
	}
}

var stringToDecimal = unmarshallerToText(func() encoding.TextUnmarshaler {
	return &inf.Dec{}
})

// ToDecimal converts numbers and numeric strings to an exact decimal.
func ToDecimal(value interface{}) (*inf.Dec, bool) {
	switch v := value.(type) {
	case *inf.Dec:
		return v, v != nil
	case float32, float64:
		f, ok := toFloat(v)
		if !ok {
			return nil, false
		}
		value = strconv.FormatFloat(f, 'f', -1, 64)
	}
	s, ok := ToString(value)
	if !ok {
		return nil, false
	}
	d, err := stringToDecimal(strings.TrimSpace(s))
	if err != nil {
		return nil, false
	}
	return d.(*inf.Dec), true
}

// ToSlice returns the members of a slice value, or nil, false for scalars.
func ToSlice(value interface{}) ([]interface{}, bool) {
	switch v := value.(type) {
	case []interface{}:
		return v, true
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]interface{}, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, true
	case []int64:
		out := make([]interface{}, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}
