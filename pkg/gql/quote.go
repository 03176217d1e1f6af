package gql

import (
	"fmt"
	"strconv"
	"strings"
)

// Null is the GraphQL null literal.
const Null = "null"

var stringEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// QuoteString renders s as a double-quoted GraphQL string literal,
// backslash-escaping embedded quotes, backslashes, and control whitespace.
func QuoteString(s string) string {
	return `"` + stringEscaper.Replace(s) + `"`
}

// FormatBool renders b as a lowercase GraphQL boolean literal.
func FormatBool(b bool) string {
	return strconv.FormatBool(b)
}

// FormatValue renders v as a GraphQL value literal. Strings are quoted,
// booleans lower-cased, numbers emitted bare, and nil becomes null.
// Query-provided values must never be interpolated without this.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return Null
	case string:
		return QuoteString(t)
	case bool:
		return FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return QuoteString(t.String())
	default:
		return QuoteString(fmt.Sprintf("%v", t))
	}
}
