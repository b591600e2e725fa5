package sqlengine

import (
	"github.com/tracewell/collector/internal/ids"
	"github.com/tracewell/collector/internal/store"
)

// Row is one materialized row: named plain columns plus the two bracket-
// addressable maps every table carries (spec.md §4.2).
type Row struct {
	Columns    map[string]store.Attr
	Resource   store.AttrMap
	Attributes store.AttrMap
}

// Get resolves a column reference, returning a null Attr for an unknown
// column. Engine.Eval rejects unknown columns in the select list and
// ORDER BY; column names in WHERE are not checked against the schema, so
// an unknown one there reaches this path and compares as null.
func (r Row) Get(name string) store.Attr {
	if v, ok := r.Columns[name]; ok {
		return v
	}
	return store.Attr{Kind: store.AttrNull}
}

// Bracket resolves attributes['k'] / resource['k']; a missing key is null
// per spec.md §3.
func (r Row) Bracket(base, key string) store.Attr {
	var m store.AttrMap
	switch base {
	case "attributes":
		m = r.Attributes
	case "resource":
		m = r.Resource
	}
	if v, ok := m[key]; ok {
		return v
	}
	return store.Attr{Kind: store.AttrNull}
}

// Columns lists the documented column set for each table (spec.md §4.2),
// in the order a bare "SELECT *" projects them.
var Columns = map[Table][]string{
	TableTraces: {
		"trace_id", "span_id", "parent_span_id", "service_name", "span_name",
		"kind", "status_code", "start_time", "end_time", "duration_ns",
		"resource", "attributes",
	},
	TableLogs: {
		"timestamp", "severity", "severity_number", "body", "service_name",
		"resource", "attributes",
	},
	TableMetrics: {
		"timestamp", "metric_name", "type", "value", "count", "sum",
		"service_name", "resource", "attributes",
	},
}

// timeColumns names the columns that carry nanosecond epoch time and so
// accept either an ISO-8601 string literal or a numeric literal (spec.md
// §4.2's time coercion rule).
var timeColumns = map[string]bool{
	"start_time": true, "end_time": true, "timestamp": true,
}

// hexColumns names the columns compared as lowercase hex strings.
var hexColumns = map[string]bool{
	"trace_id": true, "span_id": true, "parent_span_id": true,
}

// SpanRow projects one Span (plus its enclosing trace id) into a traces
// row. Exported so the query/follow service can build delta rows without
// a full re-query.
func SpanRow(traceID [16]byte, s store.Span) Row {
	return Row{
		Resource:   s.Resource,
		Attributes: s.Attributes,
		Columns: map[string]store.Attr{
			"trace_id":        store.StringAttr(ids.HexEncode(traceID[:])),
			"span_id":         store.StringAttr(ids.HexEncode(s.SpanID[:])),
			"parent_span_id":  store.StringAttr(ids.HexEncode(s.ParentSpanID[:])),
			"service_name":    store.StringAttr(s.ServiceName),
			"span_name":       store.StringAttr(s.SpanName),
			"kind":            store.StringAttr(s.Kind.String()),
			"status_code":     store.StringAttr(s.StatusCode.String()),
			"start_time":      store.IntAttr(s.StartTimeNS),
			"end_time":        store.IntAttr(s.EndTimeNS),
			"duration_ns":     store.IntAttr(s.DurationNS()),
		},
	}
}

// LogRow projects one LogRecord into a logs row.
func LogRow(l store.LogRecord) Row {
	return Row{
		Resource:   l.Resource,
		Attributes: l.Attributes,
		Columns: map[string]store.Attr{
			"timestamp": store.IntAttr(l.TimestampNS),
			// severity keeps the display text in Str but also carries the
			// row's OTLP severity number in Int, so ranking can fall back
			// to it when SeverityText isn't one of the canonical band
			// names (spec.md §4.2: comparisons rank by OTLP severity
			// number).
			"severity":        store.Attr{Kind: store.AttrString, Str: l.SeverityText, Int: int64(l.SeverityNumber)},
			"severity_number": store.IntAttr(int64(l.SeverityNumber)),
			"body":            store.StringAttr(l.Body),
			"service_name":    store.StringAttr(l.ServiceName),
		},
	}
}

// MetricRow projects one MetricPoint into a metrics row.
func MetricRow(m store.MetricPoint) Row {
	row := Row{
		Resource:   m.Resource,
		Attributes: m.Attributes,
		Columns: map[string]store.Attr{
			"timestamp":    store.IntAttr(m.TimestampNS),
			"metric_name":  store.StringAttr(m.MetricName),
			"type":         store.StringAttr(string(m.MetricType)),
			"service_name": store.StringAttr(m.ServiceName),
		},
	}
	if m.HasValue {
		row.Columns["value"] = store.FloatAttr(m.Value)
	} else {
		row.Columns["value"] = store.Attr{Kind: store.AttrNull}
	}
	row.Columns["count"] = store.IntAttr(int64(m.Count))
	if m.HasSum {
		row.Columns["sum"] = store.FloatAttr(m.Sum)
	} else {
		row.Columns["sum"] = store.Attr{Kind: store.AttrNull}
	}
	return row
}
