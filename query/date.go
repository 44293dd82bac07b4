package query

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/datastax/custom-tables/schema"
	"github.com/datastax/custom-tables/types"
)

var dateCompareOperators = map[string]bool{
	"=": true, "!=": true, ">": true, ">=": true, "<": true, "<=": true,
	"IN": true, "NOT IN": true, "BETWEEN": true, "NOT BETWEEN": true,
}

// Keys marking a map as a first-order clause rather than a nested group.
var dateTimeKeys = map[string]bool{
	"after": true, "before": true, "value": true,
	"year": true, "month": true, "monthnum": true, "week": true, "w": true,
	"dayofyear": true, "day": true, "dayofweek": true, "dayofweek_iso": true,
	"hour": true, "minute": true, "second": true,
}

var (
	yearPattern           = regexp.MustCompile(`^(\d{4})$`)
	yearMonthPattern      = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
	yearMonthDayPattern   = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	dateHourMinutePattern = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2}) (\d{2}):(\d{2})$`)
)

// DateValues are the time units of one first-order date clause. A nil unit
// is absent. Units hold a scalar or, for multi-value operators, a slice.
type DateValues struct {
	Year         interface{}
	Month        interface{}
	Week         interface{}
	DayOfYear    interface{}
	Day          interface{}
	DayOfWeek    interface{}
	DayOfWeekISO interface{}
	Hour         interface{}
	Minute       interface{}
	Second       interface{}

	Before    interface{}
	After     interface{}
	Value     interface{}
	Inclusive bool
}

func parseDateValues(m map[string]interface{}) DateValues {
	inclusive, _ := types.ToBool(m["inclusive"])
	return DateValues{
		Year:         m["year"],
		Month:        firstPresent(m, "month", "monthnum"),
		Week:         firstPresent(m, "week", "w"),
		DayOfYear:    m["dayofyear"],
		Day:          m["day"],
		DayOfWeek:    m["dayofweek"],
		DayOfWeekISO: m["dayofweek_iso"],
		Hour:         m["hour"],
		Minute:       m["minute"],
		Second:       m["second"],
		Before:       m["before"],
		After:        m["after"],
		Value:        m["value"],
		Inclusive:    inclusive,
	}
}

func firstPresent(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// DateQuery turns a date_query tree into SQL over date_query columns.
type DateQuery struct {
	cc            ClauseContext
	defaultColumn string
	root          types.Clause
}

// NewDateQuery sanitizes raw, resolving clauses without a column to
// defaultColumn.
func NewDateQuery(cc ClauseContext, defaultColumn string, raw interface{}) *DateQuery {
	d := &DateQuery{cc: cc, defaultColumn: defaultColumn}
	d.root = d.SanitizeQuery(raw)
	return d
}

// Root is the sanitized clause tree.
func (d *DateQuery) Root() types.Clause {
	return d.root
}

type dateInherited struct {
	column   string
	compare  string
	relation types.Relation
}

// SanitizeQuery walks raw into a clause tree. Maps holding a time unit key
// are leaves; other maps and slices are groups. Children inherit column,
// compare and relation from their parent when unset.
func (d *DateQuery) SanitizeQuery(raw interface{}) types.Clause {
	return d.sanitize(raw, dateInherited{column: d.defaultColumn, compare: "=", relation: types.RelationAnd}, 0)
}

func (d *DateQuery) sanitize(raw interface{}, parent dateInherited, depth int) types.Clause {
	current := parent
	group := types.Group{}

	if depth > maxClauseDepth {
		return nil
	}

	if m, ok := toStringMap(raw); ok {
		if column, ok := m["column"].(string); ok && strings.TrimSpace(column) != "" {
			current.column = strings.TrimSpace(column)
		}
		if compare, ok := dateCompare(m["compare"]); ok {
			current.compare = compare
		}
		if relation, ok := types.ParseRelation(m["relation"]); ok {
			current.relation = relation
		}

		if isFirstOrderDateClause(m) {
			return types.Leaf{Column: current.column, Operator: current.compare, Value: parseDateValues(m)}
		}

		keys := make([]string, 0, len(m))
		for k := range m {
			switch k {
			case "column", "compare", "relation", "inclusive":
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if child := d.sanitizeChild(m[k], current, depth); child != nil {
				group.Children = append(group.Children, child)
			}
		}
	} else if children, ok := types.ToSlice(raw); ok {
		for _, c := range children {
			if child := d.sanitizeChild(c, current, depth); child != nil {
				group.Children = append(group.Children, child)
			}
		}
	} else {
		return nil
	}

	group.Relation = current.relation
	group.Column = current.column
	group.Operator = current.compare
	return group
}

// sanitizeChild drops scalar members, which can be neither clause nor group.
func (d *DateQuery) sanitizeChild(raw interface{}, parent dateInherited, depth int) types.Clause {
	if _, isMap := toStringMap(raw); isMap {
		return d.sanitize(raw, parent, depth+1)
	}
	if _, isSlice := types.ToSlice(raw); isSlice {
		return d.sanitize(raw, parent, depth+1)
	}
	return nil
}

func isFirstOrderDateClause(m map[string]interface{}) bool {
	for k := range m {
		if dateTimeKeys[k] {
			return true
		}
	}
	return false
}

func dateCompare(value interface{}) (string, bool) {
	s, ok := value.(string)
	if !ok {
		return "", false
	}
	s = strings.ToUpper(strings.Join(strings.Fields(s), " "))
	return s, dateCompareOperators[s]
}

// SQL renders the sanitized tree. Siblings are parenthesized and joined by
// their group's relation.
func (d *DateQuery) SQL() types.Fragment {
	return d.render(d.root)
}

func (d *DateQuery) render(clause types.Clause) types.Fragment {
	switch c := clause.(type) {
	case types.Leaf:
		return d.leafSQL(c)
	case types.Group:
		fragments := make([]types.Fragment, 0, len(c.Children))
		for _, child := range c.Children {
			fragments = append(fragments, d.render(child).Wrap())
		}
		return types.JoinFragments(" "+string(c.Relation)+" ", fragments...)
	}
	return types.Fragment{}
}

var dateUnits = []struct {
	expr  string
	value func(DateValues) interface{}
}{
	{"YEAR(%s)", func(v DateValues) interface{} { return v.Year }},
	{"MONTH(%s)", func(v DateValues) interface{} { return v.Month }},
	{"WEEK(%s, 3)", func(v DateValues) interface{} { return v.Week }},
	{"DAYOFYEAR(%s)", func(v DateValues) interface{} { return v.DayOfYear }},
	{"DAYOFMONTH(%s)", func(v DateValues) interface{} { return v.Day }},
	{"DAYOFWEEK(%s)", func(v DateValues) interface{} { return v.DayOfWeek }},
	{"WEEKDAY(%s) + 1", func(v DateValues) interface{} { return v.DayOfWeekISO }},
}

func (d *DateQuery) leafSQL(leaf types.Leaf) types.Fragment {
	values, ok := leaf.Value.(DateValues)
	if !ok {
		return types.Fragment{}
	}

	definition, ok := d.cc.resolve(leaf.Column, func(c schema.ColumnDefinition) bool { return c.DateQuery })
	if !ok {
		d.cc.debug("date clause dropped, not a date column", "column", leaf.Column)
		return types.Fragment{}
	}
	column := d.cc.Qualify(definition.Name)

	if !ValidateDateValues(values) {
		d.cc.debug("date clause matches nothing, invalid values", "column", leaf.Column)
		return types.NewFragment("1 = 0")
	}

	operator := leaf.Operator
	lt, gt := "<", ">"
	if values.Inclusive {
		lt += "="
		gt += "="
	}

	parts := make([]types.Fragment, 0, 4)
	if !isEmptyDateValue(values.After) {
		if datetime, ok := d.BuildMySQLDateTime(values.After, !values.Inclusive); ok {
			parts = append(parts, types.NewFragment(column+" "+gt+" ?", datetime))
		}
	}
	if !isEmptyDateValue(values.Before) {
		if datetime, ok := d.BuildMySQLDateTime(values.Before, values.Inclusive); ok {
			parts = append(parts, types.NewFragment(column+" "+lt+" ?", datetime))
		}
	}
	if values.Value != nil {
		if f, ok := d.buildDateTimeValue(column, operator, values.Value); ok {
			parts = append(parts, f)
		}
	}

	for _, unit := range dateUnits {
		value := unit.value(values)
		if value == nil {
			continue
		}
		if rhs, ok := BuildNumericValue(operator, value); ok {
			parts = append(parts, types.NewFragment(fmt.Sprintf(unit.expr, column)+" "+operator+" "+rhs.SQL, rhs.Args...))
		}
	}

	if values.Hour != nil || values.Minute != nil || values.Second != nil {
		if f, ok := BuildTimeQuery(column, operator, values.Hour, values.Minute, values.Second); ok {
			parts = append(parts, f)
		}
	}

	return types.JoinFragments(" AND ", parts...)
}

// buildDateTimeValue compares the column itself with datetime values.
func (d *DateQuery) buildDateTimeValue(column, operator string, value interface{}) (types.Fragment, bool) {
	switch operator {
	case "IN", "NOT IN":
		members, ok := types.ToSlice(value)
		if !ok {
			members = []interface{}{value}
		}
		args := make([]interface{}, 0, len(members))
		for _, m := range members {
			if datetime, ok := d.BuildMySQLDateTime(m, false); ok {
				args = append(args, datetime)
			}
		}
		if len(args) == 0 {
			return types.Fragment{}, false
		}
		return types.NewFragment(fmt.Sprintf("%s %s (%s)", column, operator, placeholders(len(args))), args...), true
	case "BETWEEN", "NOT BETWEEN":
		bounds, ok := types.ToSlice(value)
		if !ok || len(bounds) != 2 {
			return types.Fragment{}, false
		}
		from, okFrom := d.BuildMySQLDateTime(bounds[0], false)
		to, okTo := d.BuildMySQLDateTime(bounds[1], true)
		if !okFrom || !okTo {
			return types.Fragment{}, false
		}
		return types.NewFragment(column+" "+operator+" ? AND ?", from, to), true
	}
	datetime, ok := d.BuildMySQLDateTime(value, false)
	if !ok {
		return types.Fragment{}, false
	}
	return types.NewFragment(column+" "+operator+" ?", datetime), true
}

func isEmptyDateValue(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == "" || v == "0"
	case bool:
		return !v
	}
	if members, ok := types.ToSlice(value); ok {
		return len(members) == 0
	}
	if m, ok := toStringMap(value); ok {
		return len(m) == 0
	}
	if i, ok := types.ToInt64(value); ok {
		return i == 0
	}
	return false
}

// BuildNumericValue renders the right-hand side of a numeric comparison.
// IN and NOT IN keep only numeric members, BETWEEN and NOT BETWEEN need
// exactly two numeric bounds, other operators one numeric scalar. Values
// are truncated to integers.
func BuildNumericValue(operator string, value interface{}) (types.Fragment, bool) {
	if value == nil {
		return types.Fragment{}, false
	}

	switch operator {
	case "IN", "NOT IN":
		members, ok := types.ToSlice(value)
		if !ok {
			members = []interface{}{value}
		}
		args := make([]interface{}, 0, len(members))
		for _, m := range members {
			if isNumericScalar(m) {
				i, _ := types.ToInt64(m)
				args = append(args, i)
			}
		}
		if len(args) == 0 {
			return types.Fragment{}, false
		}
		return types.NewFragment("("+placeholders(len(args))+")", args...), true

	case "BETWEEN", "NOT BETWEEN":
		bounds, ok := types.ToSlice(value)
		if !ok || len(bounds) != 2 || !isNumericScalar(bounds[0]) || !isNumericScalar(bounds[1]) {
			return types.Fragment{}, false
		}
		from, _ := types.ToInt64(bounds[0])
		to, _ := types.ToInt64(bounds[1])
		return types.NewFragment("? AND ?", from, to), true
	}

	if !isNumericScalar(value) {
		return types.Fragment{}, false
	}
	i, _ := types.ToInt64(value)
	return types.NewFragment("?", i), true
}

func isNumericScalar(value interface{}) bool {
	if _, isSlice := types.ToSlice(value); isSlice {
		return false
	}
	if _, isBool := value.(bool); isBool {
		return false
	}
	return types.IsNumeric(value)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// BuildMySQLDateTime resolves a full or partial date to "Y-m-d H:i:s".
// Partial input (Y, Y-m, Y-m-d, Y-m-d H:i or a map of units) is completed
// with the lowest value of each missing unit, or the highest when roundUp
// is set. A missing year is the current year.
func (d *DateQuery) BuildMySQLDateTime(value interface{}, roundUp bool) (string, bool) {
	return buildMySQLDateTime(value, roundUp, d.cc.now())
}

func buildMySQLDateTime(value interface{}, roundUp bool, now time.Time) (string, bool) {
	var units map[string]int64

	switch v := value.(type) {
	case time.Time:
		return types.FormatDateTime(v.UTC()), true
	case *time.Time:
		if v == nil {
			return "", false
		}
		return types.FormatDateTime(v.UTC()), true
	}

	if m, ok := toStringMap(value); ok {
		units = make(map[string]int64, len(m))
		for _, k := range []string{"year", "month", "day", "hour", "minute", "second"} {
			if raw, present := m[k]; present && raw != nil {
				i, ok := types.ToInt64(raw)
				if !ok {
					return "", false
				}
				if i < 0 {
					i = -i
				}
				units[k] = i
			}
		}
	} else {
		s, ok := types.ToString(value)
		if !ok {
			return "", false
		}
		s = strings.TrimSpace(s)
		units = partialDateUnits(s)
		if units == nil {
			t, ok := types.ParseDateTime(s)
			if !ok {
				return "", false
			}
			return types.FormatDateTime(t.UTC()), true
		}
	}

	year, ok := units["year"]
	if !ok {
		year = int64(now.Year())
	}
	month, ok := units["month"]
	if !ok {
		month = pick(roundUp, 12, 1)
	}
	day, ok := units["day"]
	if !ok {
		day = 1
		if roundUp {
			day = int64(daysIn(int(year), time.Month(month)))
		}
	}
	hour, ok := units["hour"]
	if !ok {
		hour = pick(roundUp, 23, 0)
	}
	minute, ok := units["minute"]
	if !ok {
		minute = pick(roundUp, 59, 0)
	}
	second, ok := units["second"]
	if !ok {
		second = pick(roundUp, 59, 0)
	}

	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", year, month, day, hour, minute, second), true
}

func partialDateUnits(s string) map[string]int64 {
	names := []string{"year", "month", "day", "hour", "minute"}
	for _, pattern := range []*regexp.Regexp{yearPattern, yearMonthPattern, yearMonthDayPattern, dateHourMinutePattern} {
		matches := pattern.FindStringSubmatch(s)
		if matches == nil {
			continue
		}
		units := make(map[string]int64, len(matches)-1)
		for i, match := range matches[1:] {
			n, _ := strconv.ParseInt(match, 10, 64)
			units[names[i]] = n
		}
		return units
	}
	return nil
}

func pick(roundUp bool, max, min int64) int64 {
	if roundUp {
		return max
	}
	return min
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// BuildTimeQuery compares hour, minute and second of column. Multi-value
// operators compare each present unit on its own; a single-value operator
// over several units compares one "H.MMSS" decimal. Hour with second but
// no minute cannot be expressed and yields nothing.
func BuildTimeQuery(column, operator string, hour, minute, second interface{}) (types.Fragment, bool) {
	if hour == nil && minute == nil && second == nil {
		return types.Fragment{}, false
	}

	units := []struct {
		name  string
		value interface{}
	}{{"HOUR", hour}, {"MINUTE", minute}, {"SECOND", second}}

	switch operator {
	case "IN", "NOT IN", "BETWEEN", "NOT BETWEEN":
		parts := make([]types.Fragment, 0, 3)
		for _, unit := range units {
			if unit.value == nil {
				continue
			}
			if rhs, ok := BuildNumericValue(operator, unit.value); ok {
				parts = append(parts, types.NewFragment(unit.name+"("+column+") "+operator+" "+rhs.SQL, rhs.Args...))
			}
		}
		f := types.JoinFragments(" AND ", parts...)
		return f, !f.IsEmpty()
	}

	present := 0
	for _, unit := range units {
		if unit.value != nil {
			present++
		}
	}
	if present == 1 {
		for _, unit := range units {
			if unit.value == nil {
				continue
			}
			rhs, ok := BuildNumericValue(operator, unit.value)
			if !ok {
				return types.Fragment{}, false
			}
			return types.NewFragment(unit.name+"("+column+") "+operator+" "+rhs.SQL, rhs.Args...), true
		}
	}

	if minute == nil {
		return types.Fragment{}, false
	}

	format, clock := "", ""
	if hour != nil {
		h, ok := numericUnit(hour)
		if !ok {
			return types.Fragment{}, false
		}
		format += "%H."
		clock += fmt.Sprintf("%02d.", h)
	} else {
		format += "0."
		clock += "0."
	}

	m, ok := numericUnit(minute)
	if !ok {
		return types.Fragment{}, false
	}
	format += "%i"
	clock += fmt.Sprintf("%02d", m)

	if second != nil {
		s, ok := numericUnit(second)
		if !ok {
			return types.Fragment{}, false
		}
		format += "%s"
		clock += fmt.Sprintf("%02d", s)
	}

	decimal, _ := strconv.ParseFloat(clock, 64)
	return types.NewFragment("CAST(DATE_FORMAT("+column+", ?) AS DECIMAL(10,6)) "+operator+" ?", format, decimal), true
}

func numericUnit(value interface{}) (int64, bool) {
	if !isNumericScalar(value) {
		return 0, false
	}
	return types.ToInt64(value)
}

type unitRange struct {
	name     string
	min, max int64
	value    interface{}
}

// ValidateDateValues range-checks the numeric members of every present
// unit, then the day/month(/year) combination. Day of year and week are
// bounded by the actual length of the year when one is given.
func ValidateDateValues(v DateValues) bool {
	valid := true

	for _, bound := range []interface{}{v.Before, v.After} {
		if m, ok := toStringMap(bound); ok {
			valid = ValidateDateValues(parseDateValues(m)) && valid
		}
	}

	maxDaysOfYear, weekCount := int64(366), int64(53)
	year, hasYear := firstMember(v.Year)
	if hasYear {
		if y, ok := numericUnit(year); ok {
			maxDaysOfYear = int64(time.Date(int(y), 12, 31, 0, 0, 0, 0, time.UTC).YearDay())
			_, w := time.Date(int(y), 12, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
			weekCount = int64(w)
		}
	}

	checks := []unitRange{
		{"dayofyear", 1, maxDaysOfYear, v.DayOfYear},
		{"dayofweek", 1, 7, v.DayOfWeek},
		{"dayofweek_iso", 1, 7, v.DayOfWeekISO},
		{"month", 1, 12, v.Month},
		{"week", 1, weekCount, v.Week},
		{"day", 1, 31, v.Day},
		{"hour", 0, 23, v.Hour},
		{"minute", 0, 59, v.Minute},
		{"second", 0, 59, v.Second},
	}
	for _, check := range checks {
		if check.value == nil {
			continue
		}
		members, ok := types.ToSlice(check.value)
		if !ok {
			members = []interface{}{check.value}
		}
		for _, member := range members {
			f, ok := types.ToFloat64(member)
			if !ok || !isNumericScalar(member) {
				continue
			}
			if f < float64(check.min) || f > float64(check.max) {
				valid = false
			}
		}
	}

	if !valid {
		return false
	}

	day, dayOK := numericUnit(v.Day)
	month, monthOK := numericUnit(v.Month)
	if dayOK && monthOK {
		checkYear := int64(2012)
		if y, ok := numericUnit(v.Year); ok {
			checkYear = y
		}
		if day > int64(daysIn(int(checkYear), time.Month(month))) {
			return false
		}
	}
	return true
}

func firstMember(value interface{}) (interface{}, bool) {
	if value == nil {
		return nil, false
	}
	if members, ok := types.ToSlice(value); ok {
		if len(members) == 0 {
			return nil, false
		}
		return members[0], true
	}
	return value, true
}
