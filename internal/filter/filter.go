// Package filter implements the small predicate language used to define
// dashboard aggregates and to filter list endpoints, e.g.
//
//	priority = 'Critical' AND status != 'Closed'
//	cpu_pct >= 85
package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// ErrSyntax is wrapped by every parse error.
var ErrSyntax = errors.New("filter syntax error")

// Record is anything whose named fields can be compared. Supported field
// values are strings, bools, time.Time and the built-in integer and float
// types.
type Record interface {
	Field(name string) (any, bool)
}

// Query is a parsed conjunction of comparisons.
type Query struct {
	Terms []*Term `parser:"@@ ( 'AND' @@ )*"`
}

// Term compares one field with a literal.
type Term struct {
	Field string `parser:"@Ident"`
	Op    string `parser:"@Operator"`
	Value *Value `parser:"@@"`
}

// Value is a quoted string or a number literal.
type Value struct {
	Str *string  `parser:"  @String"`
	Num *float64 `parser:"| @Number"`
}

var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `(?i)\bAND\b`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_.]*`},
	{Name: "String", Pattern: `'[^']*'|"[^"]*"`},
	{Name: "Number", Pattern: `[-+]?\d+(\.\d+)?`},
	{Name: "Operator", Pattern: `!=|>=|<=|=|>|<`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var parser = participle.MustBuild[Query](
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
	participle.CaseInsensitive("Keyword"),
	participle.Map(func(t lexer.Token) (lexer.Token, error) {
		t.Value = t.Value[1 : len(t.Value)-1]
		return t, nil
	}, "String"),
)

// Parse compiles an expression. An empty or blank expression matches every
// record.
func Parse(expr string) (*Query, error) {
	if strings.TrimSpace(expr) == "" {
		return &Query{}, nil
	}
	q, err := parser.ParseString("", expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	return q, nil
}

// MustParse is like Parse but panics on error. Use it for package-level
// expressions only.
func MustParse(expr string) *Query {
	q, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return q
}

// String renders the query in canonical form.
func (q *Query) String() string {
	if q == nil {
		return ""
	}
	parts := make([]string, len(q.Terms))
	for i, t := range q.Terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, " AND ")
}

func (t *Term) String() string {
	return t.Field + " " + t.Op + " " + t.Value.String()
}

func (v *Value) String() string {
	if v.Str != nil {
		return "'" + *v.Str + "'"
	}
	if v.Num != nil {
		return strconv.FormatFloat(*v.Num, 'f', -1, 64)
	}
	return ""
}

// Match reports whether r satisfies every term. A nil query matches all.
func (q *Query) Match(r Record) bool {
	if q == nil {
		return true
	}
	for _, t := range q.Terms {
		if !t.match(r) {
			return false
		}
	}
	return true
}

func (t *Term) match(r Record) bool {
	raw, ok := r.Field(t.Field)
	if !ok {
		return false
	}
	left, leftNum, leftIsNum := normalize(raw)

	var right string
	var rightNum float64
	var rightIsNum bool
	switch {
	case t.Value.Num != nil:
		rightNum, rightIsNum = *t.Value.Num, true
		right = t.Value.String()
	case t.Value.Str != nil:
		right = *t.Value.Str
		if n, err := strconv.ParseFloat(right, 64); err == nil {
			rightNum, rightIsNum = n, true
		}
	}

	if leftIsNum && rightIsNum {
		return compare(t.Op, cmpFloat(leftNum, rightNum))
	}
	return compare(t.Op, strings.Compare(left, right))
}

// normalize turns a field value into its string form and, when it is
// numeric, its float form. Times compare as unix seconds.
func normalize(v any) (string, float64, bool) {
	switch x := v.(type) {
	case string:
		if n, err := strconv.ParseFloat(x, 64); err == nil {
			return x, n, true
		}
		return x, 0, false
	case bool:
		return strconv.FormatBool(x), 0, false
	case int:
		return strconv.Itoa(x), float64(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), float64(x), true
	case int64:
		return strconv.FormatInt(x, 10), float64(x), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), float64(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), x, true
	case time.Time:
		return strconv.FormatInt(x.Unix(), 10), float64(x.Unix()), true
	case fmt.Stringer:
		return x.String(), 0, false
	default:
		return fmt.Sprint(v), 0, false
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compare(op string, c int) bool {
	switch op {
	case "=":
		return c == 0
	case "!=":
		return c != 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	}
	return false
}

// Count returns how many records match q.
func Count[T Record](records []T, q *Query) int {
	n := 0
	for _, r := range records {
		if q.Match(r) {
			n++
		}
	}
	return n
}

// Select returns the records matching q, preserving order.
func Select[T Record](records []T, q *Query) []T {
	out := make([]T, 0, len(records))
	for _, r := range records {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Sum adds up a numeric field across the records matching q. Records whose
// field is missing or not numeric contribute nothing.
func Sum[T Record](records []T, q *Query, field string) float64 {
	var total float64
	for _, r := range records {
		if !q.Match(r) {
			continue
		}
		raw, ok := r.Field(field)
		if !ok {
			continue
		}
		if _, n, isNum := normalize(raw); isNum {
			total += n
		}
	}
	return total
}

// Fields adapts a map to Record.
type Fields map[string]any

// Field implements Record.
func (f Fields) Field(name string) (any, bool) {
	v, ok := f[name]
	return v, ok
}
