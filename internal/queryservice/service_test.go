package queryservice

import (
	"context"
	"testing"
	"time"

	"github.com/tracewell/collector/internal/store"
)

func traceID(last byte) [16]byte {
	var id [16]byte
	id[15] = last
	return id
}

func recvFrame(t *testing.T, stream *FollowStream) Frame {
	t.Helper()
	select {
	case f, ok := <-stream.Frames:
		if !ok {
			t.Fatal("frame channel closed unexpectedly")
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

// TestFollowScenarioS5 covers spec scenario S5: full-group vs
// new-spans-only follow semantics on the same store.
func TestFollowScenarioS5(t *testing.T) {
	s := store.New(store.Config{MaxItems: 100}, nil)
	svc := New(s)

	t1 := traceID(1)
	s.InsertSpans([]store.SpanInsert{{TraceID: t1, Span: store.Span{SpanID: [8]byte{1}}}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fullGroup, err := svc.Follow(ctx, "SELECT * FROM traces", FullGroup)
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	defer fullGroup.Close()

	snapshot := recvFrame(t, fullGroup)
	if !snapshot.Snapshot || len(snapshot.Rows) != 1 {
		t.Fatalf("unexpected initial frame: %#v", snapshot)
	}

	s.InsertSpans([]store.SpanInsert{{TraceID: t1, Span: store.Span{SpanID: [8]byte{2}}}})

	frame := recvFrame(t, fullGroup)
	if frame.Snapshot || len(frame.Rows) != 2 {
		t.Fatalf("full-group frame should contain both spans: %#v", frame)
	}

	newSpansOnly, err := svc.Follow(ctx, "SELECT * FROM traces", NewSpansOnly)
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	defer newSpansOnly.Close()

	snap2 := recvFrame(t, newSpansOnly)
	if !snap2.Snapshot || len(snap2.Rows) != 2 {
		t.Fatalf("unexpected second subscriber's initial snapshot: %#v", snap2)
	}

	s.InsertSpans([]store.SpanInsert{{TraceID: t1, Span: store.Span{SpanID: [8]byte{3}}}})

	delta := recvFrame(t, newSpansOnly)
	if delta.Snapshot || len(delta.Rows) != 1 {
		t.Fatalf("new-spans-only frame should contain exactly the new span: %#v", delta)
	}
}

func TestFollowFiltersByPredicate(t *testing.T) {
	s := store.New(store.Config{MaxItems: 100}, nil)
	svc := New(s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := svc.Follow(ctx, "SELECT * FROM logs WHERE service_name = 'x'", NewSpansOnly)
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	defer stream.Close()

	initial := recvFrame(t, stream)
	if len(initial.Rows) != 0 {
		t.Fatalf("expected empty initial snapshot, got %#v", initial)
	}

	s.InsertLogs([]store.LogRecord{
		{ServiceName: "y", Body: "ignored"},
		{ServiceName: "x", Body: "matched"},
	})

	delta := recvFrame(t, stream)
	if len(delta.Rows) != 1 || delta.Rows[0]["body"] != "matched" {
		t.Fatalf("unexpected delta: %#v", delta)
	}
}

func TestFollowLaggedDisconnect(t *testing.T) {
	s := store.New(store.Config{MaxItems: 100}, nil)
	svc := New(s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := svc.Follow(ctx, "SELECT * FROM logs", NewSpansOnly)
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	recvFrame(t, stream) // drain initial snapshot

	// Don't drain the frames channel: enough inserts should eventually
	// overflow the subscriber's internal buffer and trigger a lagged
	// disconnect surfaced through Err().
	for i := 0; i < 200; i++ {
		s.InsertLogs([]store.LogRecord{{Body: "x", ServiceName: "spam"}})
	}

	select {
	case err := <-errAsChan(stream):
		if _, ok := err.(*LaggedError); !ok {
			t.Fatalf("Err() = %v, want *LaggedError", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for lagged disconnect")
	}
}

func errAsChan(f *FollowStream) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- f.Err() }()
	return ch
}

func TestClearResetsTrackedTable(t *testing.T) {
	s := store.New(store.Config{MaxItems: 100}, nil)
	svc := New(s)

	s.InsertLogs([]store.LogRecord{{Body: "a"}})
	res := svc.Clear(store.KindLogs)
	if res.Stats.Logs != 0 {
		t.Fatalf("stats.Logs = %d, want 0", res.Stats.Logs)
	}
}
