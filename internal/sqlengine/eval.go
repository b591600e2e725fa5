package sqlengine

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tracewell/collector/internal/ids"
	"github.com/tracewell/collector/internal/store"
)

// EvalError marks an operator/type mismatch or invalid regex literal
// surfaced during evaluation rather than parsing (spec.md §4.2, §7).
type EvalError struct{ Message string }

func (e *EvalError) Error() string { return "sql: " + e.Message }

// matches evaluates stmt.Where against row, returning false for any
// expression that compares against a null value (spec.md §4.2's collapsed
// three-valued logic).
func matches(where Expr, row Row) (bool, error) {
	if where == nil {
		return true, nil
	}
	v, err := evalBool(where, row)
	return v, err
}

func evalBool(e Expr, row Row) (bool, error) {
	switch expr := e.(type) {
	case BinaryExpr:
		switch expr.Op {
		case "AND":
			l, err := evalBool(expr.Left, row)
			if err != nil {
				return false, err
			}
			if !l {
				return false, nil
			}
			return evalBool(expr.Right, row)
		case "OR":
			l, err := evalBool(expr.Left, row)
			if err != nil {
				return false, err
			}
			if l {
				return true, nil
			}
			return evalBool(expr.Right, row)
		default:
			return evalComparison(expr, row)
		}
	case UnaryNot:
		v, err := evalBool(expr.Expr, row)
		if err != nil {
			return false, err
		}
		return !v, nil
	case LikeExpr:
		return evalLike(expr, row)
	case RegexExpr:
		return evalRegex(expr, row)
	case InExpr:
		return evalIn(expr, row)
	case IsNullExpr:
		v, err := evalValue(expr.Left, row)
		if err != nil {
			return false, err
		}
		isNull := v.IsNull()
		if expr.Negate {
			return !isNull, nil
		}
		return isNull, nil
	default:
		return false, &EvalError{Message: fmt.Sprintf("expression of type %T is not a boolean predicate", e)}
	}
}

func evalValue(e Expr, row Row) (store.Attr, error) {
	switch expr := e.(type) {
	case ColumnRef:
		return row.Get(expr.Name), nil
	case BracketRef:
		return row.Bracket(expr.Base, expr.Key), nil
	case Literal:
		return expr.Value, nil
	default:
		return store.Attr{}, &EvalError{Message: fmt.Sprintf("expression of type %T does not have a scalar value", e)}
	}
}

// columnName extracts the plain column name driving coercion rules, or ""
// if the expression isn't a direct column reference (bracket access and
// literals never trigger the time/hex/severity special cases).
func columnName(e Expr) string {
	if c, ok := e.(ColumnRef); ok {
		return c.Name
	}
	return ""
}

func evalComparison(expr BinaryExpr, row Row) (bool, error) {
	left, err := evalValue(expr.Left, row)
	if err != nil {
		return false, err
	}
	right, err := evalValue(expr.Right, row)
	if err != nil {
		return false, err
	}
	if left.IsNull() || right.IsNull() {
		return false, nil
	}

	col := columnName(expr.Left)
	if col == "" {
		col = columnName(expr.Right)
	}

	cmp, err := compareAttrs(col, left, right)
	if err != nil {
		return false, err
	}

	switch expr.Op {
	case "=":
		return cmp == 0, nil
	case "!=":
		return cmp != 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	default:
		return false, &EvalError{Message: fmt.Sprintf("unsupported operator %q", expr.Op)}
	}
}

// compareAttrs returns <0, 0, >0 per the coercion rules in spec.md §4.2:
// hex identifiers compare as lowercase hex strings; time columns accept a
// string (ISO-8601) or numeric literal interchangeably; severity compares
// by OTLP rank; everything else compares by the richer of the two kinds.
func compareAttrs(col string, a, b store.Attr) (int, error) {
	switch {
	case hexColumns[col]:
		return strings.Compare(strings.ToLower(a.Str), strings.ToLower(b.Str)), nil

	case col == "severity":
		ra, oka := severityRankOf(a)
		rb, okb := severityRankOf(b)
		if !oka || !okb {
			return 0, &EvalError{Message: fmt.Sprintf("unrecognized severity name in comparison (%q, %q)", a.Str, b.Str)}
		}
		return ra - rb, nil

	case timeColumns[col]:
		na, err := coerceTimeNanos(a)
		if err != nil {
			return 0, err
		}
		nb, err := coerceTimeNanos(b)
		if err != nil {
			return 0, err
		}
		switch {
		case na < nb:
			return -1, nil
		case na > nb:
			return 1, nil
		default:
			return 0, nil
		}

	default:
		return compareGeneric(a, b)
	}
}

// severityRankOf resolves an OTLP severity rank for one side of a
// "severity" comparison. A recognized band name (TRACE/DEBUG/INFO/WARN/
// ERROR/FATAL, matching the literal side of an expression like
// `severity >= 'ERROR'`) takes precedence; otherwise falls back to the
// row's own severity number, so a granular or app-specific SeverityText
// (e.g. "WARN2") still ranks correctly instead of failing the query.
func severityRankOf(a store.Attr) (int, bool) {
	if r, ok := ids.SeverityRank(a.Str); ok {
		return r, true
	}
	if a.Int > 0 {
		return int(a.Int), true
	}
	return 0, false
}

func coerceTimeNanos(a store.Attr) (int64, error) {
	switch a.Kind {
	case store.AttrInt:
		return a.Int, nil
	case store.AttrFloat:
		return int64(a.Float), nil
	case store.AttrString:
		if t, err := time.Parse(time.RFC3339Nano, a.Str); err == nil {
			return t.UnixNano(), nil
		}
		if t, err := time.Parse(time.RFC3339, a.Str); err == nil {
			return t.UnixNano(), nil
		}
		return 0, &EvalError{Message: fmt.Sprintf("invalid time literal %q, want RFC-3339 or nanosecond integer", a.Str)}
	default:
		return 0, &EvalError{Message: "time column compared against a non-time, non-string value"}
	}
}

func compareGeneric(a, b store.Attr) (int, error) {
	if a.Kind == store.AttrString && b.Kind == store.AttrString {
		return strings.Compare(a.Str, b.Str), nil
	}
	if numericKind(a.Kind) && numericKind(b.Kind) {
		af, bf := asFloat(a), asFloat(b)
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	if a.Kind == store.AttrBool && b.Kind == store.AttrBool {
		switch {
		case a.Bool == b.Bool:
			return 0, nil
		case !a.Bool:
			return -1, nil
		default:
			return 1, nil
		}
	}
	return 0, &EvalError{Message: fmt.Sprintf("cannot compare values of kind %d and %d", a.Kind, b.Kind)}
}

func numericKind(k store.AttrKind) bool { return k == store.AttrInt || k == store.AttrFloat }

func asFloat(a store.Attr) float64 {
	if a.Kind == store.AttrInt {
		return float64(a.Int)
	}
	return a.Float
}

func evalLike(expr LikeExpr, row Row) (bool, error) {
	v, err := evalValue(expr.Left, row)
	if err != nil {
		return false, err
	}
	if v.IsNull() {
		return false, nil
	}
	if v.Kind != store.AttrString {
		return false, &EvalError{Message: "LIKE applied to a non-string column"}
	}
	re, err := likeToRegexp(expr.Pattern)
	if err != nil {
		return false, err
	}
	matched := re.MatchString(v.Str)
	if expr.Negate {
		return !matched, nil
	}
	return matched, nil
}

// likeToRegexp translates SQL LIKE wildcards (% = any run, _ = single
// char) into an anchored regular expression.
func likeToRegexp(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteByte('$')
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, &EvalError{Message: fmt.Sprintf("invalid LIKE pattern %q: %v", pattern, err)}
	}
	return re, nil
}

func evalRegex(expr RegexExpr, row Row) (bool, error) {
	v, err := evalValue(expr.Left, row)
	if err != nil {
		return false, err
	}
	if v.IsNull() {
		return false, nil
	}
	if v.Kind != store.AttrString {
		return false, &EvalError{Message: "regex operator applied to a non-string column"}
	}
	re, err := regexp.Compile(expr.Pattern)
	if err != nil {
		return false, &EvalError{Message: fmt.Sprintf("invalid regex literal %q: %v", expr.Pattern, err)}
	}
	matched := re.MatchString(v.Str)
	if expr.Negate {
		return !matched, nil
	}
	return matched, nil
}

func evalIn(expr InExpr, row Row) (bool, error) {
	left, err := evalValue(expr.Left, row)
	if err != nil {
		return false, err
	}
	if left.IsNull() {
		return false, nil
	}
	col := columnName(expr.Left)
	found := false
	for _, ve := range expr.Values {
		v, err := evalValue(ve, row)
		if err != nil {
			return false, err
		}
		cmp, err := compareAttrs(col, left, v)
		if err != nil {
			return false, err
		}
		if cmp == 0 {
			found = true
			break
		}
	}
	if expr.Negate {
		return !found, nil
	}
	return found, nil
}
