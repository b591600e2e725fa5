// Package filterlower compiles the legacy CLI filter flags into the
// canonical SQL string the SQL evaluator already knows how to run
// (spec.md §4.3, C4), so flag-based and SQL-based queries share exactly
// one execution path.
package filterlower

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tracewell/collector/internal/ids"
	"github.com/tracewell/collector/internal/sqlengine"
)

// Flags mirrors the documented CLI filter surface (spec.md §4.3, §6).
type Flags struct {
	Service    string
	Attributes map[string]string // repeated --attribute K=V
	Severity   string
	TraceID    string
	MetricName string
	Since      string
	Until      string
	Limit      int
}

// timeColumn names the start/end column pair a table uses for
// --since/--until; logs and metrics have a single "timestamp" column.
var timeColumn = map[sqlengine.Table]struct{ since, until string }{
	sqlengine.TableTraces:  {since: "start_time", until: "end_time"},
	sqlengine.TableLogs:    {since: "timestamp", until: "timestamp"},
	sqlengine.TableMetrics: {since: "timestamp", until: "timestamp"},
}

// Lower compiles Flags into a SELECT statement over the given table,
// concatenating AND clauses in the fixed order documented in spec.md
// §4.3: service, attributes, severity, trace-id, metric name, time range,
// limit. The returned string is valid input to sqlengine.Parse.
func Lower(table sqlengine.Table, f Flags) (string, error) {
	var clauses []string

	if f.Service != "" {
		clauses = append(clauses, fmt.Sprintf("service_name = %s", quote(f.Service)))
	}

	if len(f.Attributes) > 0 {
		keys := make([]string, 0, len(f.Attributes))
		for k := range f.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			clauses = append(clauses, fmt.Sprintf("attributes[%s] = %s", quote(k), quote(f.Attributes[k])))
		}
	}

	if f.Severity != "" {
		if table != sqlengine.TableLogs {
			return "", fmt.Errorf("filterlower: --severity only applies to logs")
		}
		clauses = append(clauses, fmt.Sprintf("severity >= %s", quote(strings.ToUpper(f.Severity))))
	}

	if f.TraceID != "" {
		if table != sqlengine.TableTraces {
			return "", fmt.Errorf("filterlower: --trace-id only applies to traces")
		}
		clauses = append(clauses, fmt.Sprintf("trace_id = %s", quote(strings.ToLower(f.TraceID))))
	}

	if f.MetricName != "" {
		if table != sqlengine.TableMetrics {
			return "", fmt.Errorf("filterlower: --name only applies to metrics")
		}
		clauses = append(clauses, fmt.Sprintf("metric_name = %s", quote(f.MetricName)))
	}

	cols, ok := timeColumn[table]
	if !ok {
		return "", fmt.Errorf("filterlower: unknown table %q", table)
	}
	if f.Since != "" {
		clause, err := lowerTimeBound(cols.since, ">=", f.Since)
		if err != nil {
			return "", fmt.Errorf("filterlower: --since: %w", err)
		}
		clauses = append(clauses, clause)
	}
	if f.Until != "" {
		clause, err := lowerTimeBound(cols.until, "<=", f.Until)
		if err != nil {
			return "", fmt.Errorf("filterlower: --until: %w", err)
		}
		clauses = append(clauses, clause)
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(string(table))
	if len(clauses) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(clauses, " AND "))
	}
	if f.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(f.Limit))
	}
	return sb.String(), nil
}

// lowerTimeBound renders one --since/--until bound. Per spec.md §4.3 the
// two accepted spellings lower differently: an RFC-3339 literal lowers
// verbatim as a quoted string comparison, while a relative duration
// (Ns/Nm/Nh/Nd) is resolved against now and lowers to a computed
// nanosecond comparison.
func lowerTimeBound(column, op, spec string) (string, error) {
	if isRFC3339(spec) {
		return fmt.Sprintf("%s %s %s", column, op, quote(spec)), nil
	}

	ns, err := ids.ParseTimeSpec(spec)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %d", column, op, ns), nil
}

func isRFC3339(spec string) bool {
	if _, err := time.Parse(time.RFC3339Nano, spec); err == nil {
		return true
	}
	_, err := time.Parse(time.RFC3339, spec)
	return err == nil
}

// quote renders a string literal for embedding in the lowered SQL,
// escaping backslashes and embedded single quotes the way the lexer's
// backslash-escape handling expects on the way back in (sqlengine's
// lexer unescapes any backslash-prefixed character).
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", `\'`)
	return "'" + s + "'"
}
