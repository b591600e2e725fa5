package sqlengine

import (
	"testing"

	"github.com/tracewell/collector/internal/store"
)

func traceID(last byte) [16]byte {
	var id [16]byte
	id[15] = last
	return id
}

func newStoreWithSpan(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(store.Config{MaxItems: 100}, nil)
	s.InsertSpans([]store.SpanInsert{
		{TraceID: traceID(1), Span: store.Span{
			SpanID:      [8]byte{0, 0, 0, 0, 0, 0, 0, 0x0A},
			ServiceName: "svcA",
		}},
	})
	return s
}

// TestQueryScenarioS1 covers spec scenario S1.
func TestQueryScenarioS1(t *testing.T) {
	eng := New(newStoreWithSpan(t))

	res, err := eng.Query("SELECT trace_id, service_name FROM traces")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(res.Rows))
	}
	row := res.Rows[0]
	if row["service_name"] != "svcA" {
		t.Fatalf("service_name = %v, want svcA", row["service_name"])
	}
	traceIDHex, ok := row["trace_id"].(string)
	if !ok || len(traceIDHex) != 32 {
		t.Fatalf("trace_id = %v, want 32-char hex string", row["trace_id"])
	}
}

// TestQueryScenarioS4 covers severity-rank comparison, not lexicographic.
func TestQueryScenarioS4(t *testing.T) {
	s := store.New(store.Config{MaxItems: 100}, nil)
	s.InsertLogs([]store.LogRecord{
		{SeverityText: "WARN", SeverityNumber: 13, Body: "w"},
		{SeverityText: "ERROR", SeverityNumber: 17, Body: "e"},
		{SeverityText: "FATAL", SeverityNumber: 21, Body: "f"},
	})

	eng := New(s)
	res, err := eng.Query("SELECT body FROM logs WHERE severity >= 'ERROR'")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(res.Rows))
	}
	bodies := map[string]bool{}
	for _, r := range res.Rows {
		bodies[r["body"].(string)] = true
	}
	if !bodies["e"] || !bodies["f"] {
		t.Fatalf("unexpected bodies: %v", bodies)
	}
}

// TestSeverityComparisonFallsBackToNumber covers a SeverityText that isn't
// one of the canonical OTLP band names: ranking must still succeed using
// the row's own severity number instead of failing the whole query.
func TestSeverityComparisonFallsBackToNumber(t *testing.T) {
	s := store.New(store.Config{MaxItems: 100}, nil)
	s.InsertLogs([]store.LogRecord{
		{SeverityText: "WARN2", SeverityNumber: 14, Body: "granular-warn"},
		{SeverityText: "INFO", SeverityNumber: 9, Body: "info"},
	})

	eng := New(s)
	res, err := eng.Query("SELECT body FROM logs WHERE severity >= 'WARN'")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(res.Rows))
	}
	if res.Rows[0]["body"] != "granular-warn" {
		t.Fatalf("body = %v, want granular-warn", res.Rows[0]["body"])
	}
}

// TestQueryScenarioS6 covers bracket attribute access, with missing
// attributes excluded.
func TestQueryScenarioS6(t *testing.T) {
	s := store.New(store.Config{MaxItems: 100}, nil)
	s.InsertSpans([]store.SpanInsert{
		{TraceID: traceID(1), Span: store.Span{
			SpanID:     [8]byte{1},
			Attributes: store.AttrMap{"http.method": store.StringAttr("GET")},
		}},
		{TraceID: traceID(2), Span: store.Span{
			SpanID:     [8]byte{2},
			Attributes: store.AttrMap{"http.method": store.StringAttr("POST")},
		}},
		{TraceID: traceID(3), Span: store.Span{
			SpanID: [8]byte{3},
		}},
	})

	eng := New(s)
	res, err := eng.Query("SELECT span_id FROM traces WHERE attributes['http.method'] = 'GET'")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(res.Rows))
	}
}

// TestQueryRoundTripByServiceName is property 4 (§8).
func TestQueryRoundTripByServiceName(t *testing.T) {
	s := store.New(store.Config{MaxItems: 100}, nil)
	batch := []store.LogRecord{
		{Body: "one", ServiceName: "s"},
		{Body: "two", ServiceName: "s"},
		{Body: "three", ServiceName: "other"},
	}
	s.InsertLogs(batch)

	eng := New(s)
	res, err := eng.Query("SELECT * FROM logs WHERE service_name = 's'")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(res.Rows))
	}
	if res.Rows[0]["body"] != "one" || res.Rows[1]["body"] != "two" {
		t.Fatalf("rows not in insertion order: %#v", res.Rows)
	}
}

func TestQueryOrderByAndLimit(t *testing.T) {
	s := store.New(store.Config{MaxItems: 100}, nil)
	s.InsertLogs([]store.LogRecord{
		{Body: "c", TimestampNS: 3},
		{Body: "a", TimestampNS: 1},
		{Body: "b", TimestampNS: 2},
	})

	eng := New(s)
	res, err := eng.Query("SELECT body FROM logs ORDER BY timestamp DESC LIMIT 2")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Rows) != 2 || res.Rows[0]["body"] != "c" || res.Rows[1]["body"] != "b" {
		t.Fatalf("unexpected rows: %#v", res.Rows)
	}
}

func TestQueryLikeAndIn(t *testing.T) {
	s := store.New(store.Config{MaxItems: 100}, nil)
	s.InsertLogs([]store.LogRecord{
		{Body: "hello world", ServiceName: "a"},
		{Body: "goodbye", ServiceName: "b"},
		{Body: "hello again", ServiceName: "c"},
	})
	eng := New(s)

	res, err := eng.Query("SELECT body FROM logs WHERE body LIKE 'hello%'")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("LIKE: got %d rows, want 2", len(res.Rows))
	}

	res, err = eng.Query("SELECT body FROM logs WHERE service_name IN ('a', 'c')")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("IN: got %d rows, want 2", len(res.Rows))
	}
}

func TestQueryRejectsUnknownColumn(t *testing.T) {
	eng := New(store.New(store.Config{MaxItems: 10}, nil))
	if _, err := eng.Query("SELECT nope FROM logs"); err == nil {
		t.Fatal("expected error for unknown column")
	}
}

func TestQueryRejectsWriteStatements(t *testing.T) {
	eng := New(store.New(store.Config{MaxItems: 10}, nil))
	if _, err := eng.Query("DELETE FROM logs"); err == nil {
		t.Fatal("expected parse error for non-SELECT statement")
	}
}

func TestQueryComparisonAgainstNullIsFalse(t *testing.T) {
	s := store.New(store.Config{MaxItems: 10}, nil)
	s.InsertSpans([]store.SpanInsert{{TraceID: traceID(1), Span: store.Span{SpanID: [8]byte{1}}}})
	eng := New(s)

	res, err := eng.Query("SELECT span_id FROM traces WHERE attributes['missing'] = 'x'")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("got %d rows, want 0", len(res.Rows))
	}
}
