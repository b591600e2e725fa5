package store

import (
	"testing"

	"github.com/tracewell/collector/internal/ids"
	"github.com/tracewell/collector/internal/notify"
)

func traceID(last byte) [16]byte {
	var id [16]byte
	id[15] = last
	return id
}

func spanID(last byte) [8]byte {
	var id [8]byte
	id[7] = last
	return id
}

// TestInsertSpansSingleTrace covers scenario S1: a single span under a
// fresh trace id is retrievable from a snapshot with the expected hex ids.
func TestInsertSpansSingleTrace(t *testing.T) {
	s := New(Config{MaxItems: 10}, nil)

	tid := traceID(1)
	s.InsertSpans([]SpanInsert{
		{TraceID: tid, Span: Span{SpanID: spanID(0x0A), ServiceName: "svcA"}},
	})

	snap := s.SnapshotTraces()
	if len(snap.Order) != 1 {
		t.Fatalf("got %d trace groups, want 1", len(snap.Order))
	}
	group := snap.Groups[snap.Order[0]]
	if got, want := ids.HexEncode(group.TraceID[:]), ids.HexEncode(tid[:]); got != want {
		t.Fatalf("trace id hex = %q, want %q", got, want)
	}
	if len(group.Spans) != 1 || group.Spans[0].ServiceName != "svcA" {
		t.Fatalf("unexpected spans: %#v", group.Spans)
	}
	if group.Version != 1 {
		t.Fatalf("version = %d, want 1", group.Version)
	}
}

// TestInsertLogsFIFOEviction covers scenario S2: with max_items=2 and three
// inserted logs, only the last two survive, in insertion order.
func TestInsertLogsFIFOEviction(t *testing.T) {
	s := New(Config{MaxItems: 2}, nil)

	s.InsertLogs([]LogRecord{{Body: "a"}})
	s.InsertLogs([]LogRecord{{Body: "b"}})
	s.InsertLogs([]LogRecord{{Body: "c"}})

	got := s.SnapshotLogs()
	if len(got) != 2 {
		t.Fatalf("got %d logs, want 2", len(got))
	}
	if got[0].Body != "b" || got[1].Body != "c" {
		t.Fatalf("got bodies %q, %q; want b, c", got[0].Body, got[1].Body)
	}
}

// TestInsertSpansVersionBumpsOncePerBatch covers scenario S3: a two-span
// batch on one trace bumps version once; a later one-span batch on the same
// trace bumps it again, publishing TracesAdded both times.
func TestInsertSpansVersionBumpsOncePerBatch(t *testing.T) {
	s := New(Config{MaxItems: 10}, nil)
	sub := s.Subscribe()
	defer sub.Close()

	tid := traceID(7)
	s.InsertSpans([]SpanInsert{
		{TraceID: tid, Span: Span{SpanID: spanID(1)}},
		{TraceID: tid, Span: Span{SpanID: spanID(2)}},
	})

	snap := s.SnapshotTraces()
	group := snap.Groups[TraceIDKey(tid)]
	if group.Version != 1 {
		t.Fatalf("version after first batch = %d, want 1", group.Version)
	}
	if len(group.Spans) != 2 {
		t.Fatalf("spans after first batch = %d, want 2", len(group.Spans))
	}

	s.InsertSpans([]SpanInsert{
		{TraceID: tid, Span: Span{SpanID: spanID(3)}},
	})

	snap = s.SnapshotTraces()
	group = snap.Groups[TraceIDKey(tid)]
	if group.Version != 2 {
		t.Fatalf("version after second batch = %d, want 2", group.Version)
	}

	var published []notify.TracesAdded
	for i := 0; i < 2; i++ {
		ev := <-sub.Events()
		ta, ok := ev.(notify.TracesAdded)
		if !ok {
			t.Fatalf("event %d is %#v, want TracesAdded", i, ev)
		}
		published = append(published, ta)
	}
	if len(published) != 2 {
		t.Fatalf("got %d TracesAdded events, want 2", len(published))
	}
	if published[0].Versions[0].Version != 1 || published[1].Versions[0].Version != 2 {
		t.Fatalf("unexpected published versions: %#v", published)
	}
}

// TestCapacityBoundHolds is property 1 (§8): after every insert the trace
// group count never exceeds max_items.
func TestCapacityBoundHolds(t *testing.T) {
	s := New(Config{MaxItems: 3}, nil)

	for i := 0; i < 10; i++ {
		s.InsertSpans([]SpanInsert{{TraceID: traceID(byte(i)), Span: Span{}}})
		snap := s.SnapshotTraces()
		if len(snap.Order) > 3 {
			t.Fatalf("after insert %d: %d trace groups, want <= 3", i, len(snap.Order))
		}
	}
}

// TestTraceGroupEvictionIsFIFO is property 2 (§8) applied to trace groups:
// the retained set is exactly the last K created.
func TestTraceGroupEvictionIsFIFO(t *testing.T) {
	s := New(Config{MaxItems: 2}, nil)

	for i := byte(1); i <= 4; i++ {
		s.InsertSpans([]SpanInsert{{TraceID: traceID(i), Span: Span{}}})
	}

	snap := s.SnapshotTraces()
	if len(snap.Order) != 2 {
		t.Fatalf("got %d trace groups, want 2", len(snap.Order))
	}
	want := []TraceIDKey{TraceIDKey(traceID(3)), TraceIDKey(traceID(4))}
	for i, key := range snap.Order {
		if key != want[i] {
			t.Fatalf("order[%d] = %x, want %x", i, key, want[i])
		}
	}
}

// TestClearScopesToSelectedKinds is property 7 (§8): clearing logs leaves
// traces and metrics untouched.
func TestClearScopesToSelectedKinds(t *testing.T) {
	s := New(Config{MaxItems: 10}, nil)

	s.InsertSpans([]SpanInsert{{TraceID: traceID(1), Span: Span{}}})
	s.InsertLogs([]LogRecord{{Body: "x"}})
	s.InsertMetrics([]MetricPoint{{MetricName: "m"}})

	s.Clear(KindLogs)

	if len(s.SnapshotLogs()) != 0 {
		t.Fatalf("logs not cleared")
	}
	if len(s.SnapshotTraces().Order) != 1 {
		t.Fatalf("traces should be unaffected by clearing logs")
	}
	if len(s.SnapshotMetrics()) != 1 {
		t.Fatalf("metrics should be unaffected by clearing logs")
	}
}

// TestClearPublishesPerKind checks that Clear emits one Cleared event per
// requested kind.
func TestClearPublishesPerKind(t *testing.T) {
	s := New(Config{MaxItems: 10}, nil)
	sub := s.Subscribe()
	defer sub.Close()

	s.Clear(KindLogs, KindMetrics)

	for i := 0; i < 2; i++ {
		ev := <-sub.Events()
		if _, ok := ev.(notify.Cleared); !ok {
			t.Fatalf("event %d = %#v, want Cleared", i, ev)
		}
	}
}

func TestStatsReflectsInsertedRows(t *testing.T) {
	s := New(Config{MaxItems: 10}, nil)
	s.InsertSpans([]SpanInsert{
		{TraceID: traceID(1), Span: Span{}},
		{TraceID: traceID(1), Span: Span{}},
	})
	s.InsertLogs([]LogRecord{{Body: "x"}})

	stats := s.Stats()
	if stats.TraceGroups != 1 || stats.Spans != 2 || stats.Logs != 1 || stats.Metrics != 0 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}
