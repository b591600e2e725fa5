package ingest

import (
	"testing"

	"go.opentelemetry.io/collector/pdata/plog"
	"go.opentelemetry.io/collector/pdata/pmetric"
	"go.opentelemetry.io/collector/pdata/ptrace"

	"github.com/tracewell/collector/internal/store"
)

func TestPushTracesAttachesServiceNameAndAttributes(t *testing.T) {
	td := ptrace.NewTraces()
	rs := td.ResourceSpans().AppendEmpty()
	rs.Resource().Attributes().PutStr("service.name", "svcA")

	span := rs.ScopeSpans().AppendEmpty().Spans().AppendEmpty()
	span.SetName("do-work")
	span.SetTraceID([16]byte{1})
	span.SetSpanID([8]byte{2})
	span.Attributes().PutStr("http.method", "GET")

	s := store.New(store.Config{MaxItems: 10}, nil)
	New(s).PushTraces(td)

	snap := s.SnapshotTraces()
	if len(snap.Order) != 1 {
		t.Fatalf("got %d trace groups, want 1", len(snap.Order))
	}
	group := snap.Groups[snap.Order[0]]
	if len(group.Spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(group.Spans))
	}
	got := group.Spans[0]
	if got.ServiceName != "svcA" || got.SpanName != "do-work" {
		t.Fatalf("unexpected span: %#v", got)
	}
	if got.Attributes["http.method"].Str != "GET" {
		t.Fatalf("unexpected attributes: %#v", got.Attributes)
	}
}

func TestPushLogsFallsBackToSeverityNumberText(t *testing.T) {
	ld := plog.NewLogs()
	rl := ld.ResourceLogs().AppendEmpty()
	record := rl.ScopeLogs().AppendEmpty().LogRecords().AppendEmpty()
	record.SetSeverityNumber(plog.SeverityNumber(17)) // ERROR
	record.Body().SetStr("boom")

	s := store.New(store.Config{MaxItems: 10}, nil)
	New(s).PushLogs(ld)

	logs := s.SnapshotLogs()
	if len(logs) != 1 {
		t.Fatalf("got %d logs, want 1", len(logs))
	}
	if logs[0].SeverityText != "ERROR" {
		t.Fatalf("severity text = %q, want ERROR", logs[0].SeverityText)
	}
}

func TestPushMetricsFlattensGaugeAndHistogram(t *testing.T) {
	md := pmetric.NewMetrics()
	rm := md.ResourceMetrics().AppendEmpty()
	rm.Resource().Attributes().PutStr("service.name", "svcA")
	sm := rm.ScopeMetrics().AppendEmpty()

	gauge := sm.Metrics().AppendEmpty()
	gauge.SetName("cpu.load")
	gauge.SetEmptyGauge().DataPoints().AppendEmpty().SetDoubleValue(1.5)

	hist := sm.Metrics().AppendEmpty()
	hist.SetName("request.duration")
	hp := hist.SetEmptyHistogram().DataPoints().AppendEmpty()
	hp.SetCount(3)
	hp.SetSum(9.0)

	s := store.New(store.Config{MaxItems: 10}, nil)
	New(s).PushMetrics(md)

	points := s.SnapshotMetrics()
	if len(points) != 2 {
		t.Fatalf("got %d metric points, want 2", len(points))
	}

	byName := map[string]store.MetricPoint{}
	for _, p := range points {
		byName[p.MetricName] = p
	}
	if !byName["cpu.load"].HasValue || byName["cpu.load"].Value != 1.5 {
		t.Fatalf("unexpected gauge point: %#v", byName["cpu.load"])
	}
	if byName["request.duration"].Count != 3 || byName["request.duration"].Sum != 9.0 {
		t.Fatalf("unexpected histogram point: %#v", byName["request.duration"])
	}
}
