package sqlengine

import (
	"fmt"
	"sort"

	"github.com/tracewell/collector/internal/store"
)

// Engine binds the parser and evaluator to a live store, implementing
// spec.md §4.2's five-step execution pipeline.
type Engine struct {
	store *store.Store
}

// New returns an Engine reading from the given store.
func New(s *store.Store) *Engine {
	return &Engine{store: s}
}

// Result is the typed output of a query: a fixed column order plus the
// matched, projected, sorted, and limited rows. Row values are rendered
// through Attr.AsAny so a formatter can marshal them directly; resource
// and attributes columns render as nested maps rather than scalars.
type Result struct {
	Table   Table            `json:"table"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// Query parses, validates, and evaluates sql against the current store
// snapshot. Nothing about the store is mutated; a parse or validation
// error leaves it untouched, per spec.md §4.2/§7.
func (e *Engine) Query(sql string) (*Result, error) {
	stmt, err := Parse(sql)
	if err != nil {
		return nil, err
	}
	return e.Eval(stmt)
}

// Eval runs an already-parsed statement. Exposed separately so the
// query/follow service can reuse one parsed AST across repeated
// evaluations of a Follow subscription's predicate.
func (e *Engine) Eval(stmt *SelectStmt) (*Result, error) {
	allColumns, ok := Columns[stmt.Table]
	if !ok {
		return nil, &ParseError{Message: fmt.Sprintf("unknown table %q", stmt.Table)}
	}
	projected := stmt.Columns
	if len(projected) == 0 {
		projected = allColumns
	} else {
		known := make(map[string]bool, len(allColumns))
		for _, c := range allColumns {
			known[c] = true
		}
		for _, c := range projected {
			if !known[c] {
				return nil, &ParseError{Message: fmt.Sprintf("unknown column %q for table %q", c, stmt.Table)}
			}
		}
	}
	for _, ok := range stmt.OrderBy {
		found := false
		for _, c := range allColumns {
			if c == ok.Column {
				found = true
				break
			}
		}
		if !found {
			return nil, &ParseError{Message: fmt.Sprintf("unknown ORDER BY column %q", ok.Column)}
		}
	}

	rows, err := e.tableRows(stmt.Table)
	if err != nil {
		return nil, err
	}

	var matched []Row
	earlyLimit := stmt.Limit > 0 && len(stmt.OrderBy) == 0

	for _, row := range rows {
		ok, err := matches(stmt.Where, row)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		matched = append(matched, row)
		if earlyLimit && len(matched) >= stmt.Limit {
			break
		}
	}

	if len(stmt.OrderBy) > 0 {
		sortRows(matched, stmt.OrderBy)
	}
	if stmt.Limit > 0 && len(matched) > stmt.Limit {
		matched = matched[:stmt.Limit]
	}

	result := &Result{Table: stmt.Table, Columns: projected}
	for _, row := range matched {
		result.Rows = append(result.Rows, project(row, projected))
	}
	return result, nil
}

func project(row Row, columns []string) map[string]any {
	out := make(map[string]any, len(columns))
	for _, c := range columns {
		switch c {
		case "resource":
			out[c] = mapAsAny(row.Resource)
		case "attributes":
			out[c] = mapAsAny(row.Attributes)
		default:
			out[c] = row.Get(c).AsAny()
		}
	}
	return out
}

func mapAsAny(m store.AttrMap) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.AsAny()
	}
	return out
}

// sortRows performs a stable, lexicographic multi-key sort, per spec.md
// §4.2 step 4.
func sortRows(rows []Row, keys []OrderKey) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			cmp, err := compareAttrs(k.Column, rows[i].Get(k.Column), rows[j].Get(k.Column))
			if err != nil {
				cmp = 0
			}
			if cmp == 0 {
				continue
			}
			if k.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func (e *Engine) tableRows(t Table) ([]Row, error) {
	switch t {
	case TableTraces:
		snap := e.store.SnapshotTraces()
		var rows []Row
		for _, key := range snap.Order {
			group := snap.Groups[key]
			for _, span := range group.Spans {
				rows = append(rows, SpanRow(group.TraceID, span))
			}
		}
		return rows, nil
	case TableLogs:
		logs := e.store.SnapshotLogs()
		rows := make([]Row, len(logs))
		for i, l := range logs {
			rows[i] = LogRow(l)
		}
		return rows, nil
	case TableMetrics:
		metrics := e.store.SnapshotMetrics()
		rows := make([]Row, len(metrics))
		for i, m := range metrics {
			rows[i] = MetricRow(m)
		}
		return rows, nil
	default:
		return nil, &ParseError{Message: fmt.Sprintf("unknown table %q", t)}
	}
}

// Matches reports whether a single already-built Row satisfies a parsed
// statement's WHERE clause, used by the follow service to post-filter
// delta rows against the same predicate a Query would apply (spec.md
// §4.4's "all frames are post-filtered by the same sql predicate").
func Matches(stmt *SelectStmt, row Row) (bool, error) {
	return matches(stmt.Where, row)
}
