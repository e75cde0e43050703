package querylang

import (
	"fmt"
	"strconv"
	"strings"
)

// QuoteIdentifier wraps a column name in backticks, doubling any embedded
// backticks so the result always parses as a single identifier.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// FormatValue renders a Go value as a ClickHouse SQL literal. Lists render
// as a parenthesized, comma separated sequence; anything outside the known
// scalar set is stringified and escaped as a string literal.
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if v {
			return "1"
		}
		return "0"
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return "'" + escapeString(v) + "'"
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, FormatValue(item))
		}
		return "(" + strings.Join(parts, ", ") + ")"
	default:
		return "'" + escapeString(fmt.Sprint(v)) + "'"
	}
}

// escapeString backslash-escapes single quotes for embedding in a
// single-quoted literal. The analytics store accepts backslash escapes.
func escapeString(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}

// escapeLikePattern backslash-escapes the LIKE metacharacters so user
// input matches literally inside an ILIKE pattern.
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
