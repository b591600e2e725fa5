// Package queryservice implements the Query & Follow Service (spec.md
// §4.4, C5): snapshot queries, clear, and streaming follow subscriptions
// with delta semantics, all driven through the SQL evaluator against the
// live store. It is deliberately transport-free — see http.go and ws.go
// for the two concrete transports this core is exposed over.
package queryservice

import (
	"context"

	"github.com/tracewell/collector/internal/notify"
	"github.com/tracewell/collector/internal/sqlengine"
	"github.com/tracewell/collector/internal/store"
)

// Service binds the SQL evaluator and the store's change notifications
// into the four operations spec.md §4.4 documents.
type Service struct {
	store  *store.Store
	engine *sqlengine.Engine
}

// New returns a Service reading from and subscribing to s.
func New(s *store.Store) *Service {
	return &Service{store: s, engine: sqlengine.New(s)}
}

// Query evaluates sql once against the current snapshot (spec.md §4.4's
// unary Query operation).
func (s *Service) Query(sql string) (*sqlengine.Result, error) {
	return s.engine.Query(sql)
}

// ClearResult reports the table sizes immediately after a Clear.
type ClearResult struct {
	Stats store.Stats
}

// Clear drops all entries for the given kinds and returns the resulting
// table sizes (spec.md §4.4's unary Clear operation).
func (s *Service) Clear(kinds ...store.Kind) ClearResult {
	s.store.Clear(kinds...)
	return ClearResult{Stats: s.store.Stats()}
}

// Schema returns the fixed column descriptor for a table, backing the
// implicit ListTables/Schema operation (spec.md §4.4).
func (s *Service) Schema(table sqlengine.Table) ([]string, bool) {
	cols, ok := sqlengine.Columns[table]
	return cols, ok
}

// Stats exposes the store's current table sizes.
func (s *Service) Stats() store.Stats {
	return s.store.Stats()
}

// FollowMode selects how trace deltas are framed; it has no effect on
// logs or metrics (spec.md §4.4).
type FollowMode int

const (
	// NewSpansOnly is the default: each frame carries only the spans
	// appended since the previous frame.
	NewSpansOnly FollowMode = iota
	// FullGroup frames carry the complete span list of every trace group
	// whose version changed since the previous frame.
	FullGroup
)

// Frame is one message on a Follow stream: either the initial snapshot or
// an incremental delta, already projected and filtered by the
// subscription's own predicate (spec.md §4.4, §6's wire shape).
type Frame struct {
	Table    sqlengine.Table  `json:"table"`
	Snapshot bool             `json:"snapshot"`
	Seq      uint64           `json:"seq"`
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
}

// FollowStream is a live handle to a Follow subscription.
type FollowStream struct {
	Frames <-chan Frame
	cancel context.CancelFunc
	errCh  chan error
}

// Err blocks until the stream ends, returning the terminal error: nil on
// clean cancellation, or a *LaggedError if the subscriber fell behind
// (spec.md §4.4, §7).
func (f *FollowStream) Err() error {
	return <-f.errCh
}

// Close cancels the subscription and releases its resources immediately
// (spec.md §4.4's cancellation guarantee).
func (f *FollowStream) Close() {
	f.cancel()
}

// followFrameBuffer is the per-stream frame buffer depth before a slow
// consumer is disconnected as lagged (spec.md §6: "should be at least 64
// frames").
const followFrameBuffer = 64

// LaggedError is returned by FollowStream.Err when the subscriber's
// buffer overflowed (spec.md §7's distinct "lagged" status).
type LaggedError struct{}

func (*LaggedError) Error() string { return "follow stream lagged: consumer too slow, reconnect" }

// Follow begins a streaming subscription: an initial snapshot frame, then
// one delta frame per subsequent change event on the requested table,
// until ctx is canceled or the stream lags (spec.md §4.4).
func (s *Service) Follow(ctx context.Context, sql string, mode FollowMode) (*FollowStream, error) {
	stmt, err := sqlengine.Parse(sql)
	if err != nil {
		return nil, err
	}

	out := make(chan Frame, followFrameBuffer)
	errCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(ctx)

	initial, err := s.engine.Eval(stmt)
	if err != nil {
		cancel()
		return nil, err
	}
	out <- Frame{Table: stmt.Table, Snapshot: true, Columns: initial.Columns, Rows: initial.Rows}

	sub := s.store.Subscribe()
	tracker := newDeltaTracker(stmt.Table)
	// The snapshot frame already carried the table's current contents, so
	// deltas count from there.
	switch stmt.Table {
	case sqlengine.TableTraces:
		for key, group := range s.store.SnapshotTraces().Groups {
			tracker.traceVersion[[16]byte(key)] = group.Version
			tracker.traceSpanSeen[[16]byte(key)] = len(group.Spans)
		}
	case sqlengine.TableLogs:
		tracker.logsSeen = len(s.store.SnapshotLogs())
	case sqlengine.TableMetrics:
		tracker.metricsSeen = len(s.store.SnapshotMetrics())
	}

	go func() {
		defer close(out)
		defer sub.Close()

		var seq uint64
		for {
			select {
			case <-ctx.Done():
				errCh <- nil
				return
			case <-sub.Lagged():
				errCh <- &LaggedError{}
				return
			case ev, ok := <-sub.Events():
				if !ok {
					errCh <- nil
					return
				}
				frame, relevant := s.buildDelta(stmt, mode, tracker, ev)
				if !relevant {
					continue
				}
				seq++
				frame.Seq = seq
				select {
				case out <- frame:
				case <-ctx.Done():
					errCh <- nil
					return
				default:
					// The outbound frame buffer is itself the "internal
					// buffer" spec.md §4.4 bounds a follow stream by; a
					// consumer too slow to drain it is lagged exactly
					// like a slow Notifier subscriber.
					errCh <- &LaggedError{}
					return
				}
			}
		}
	}()

	return &FollowStream{Frames: out, cancel: cancel, errCh: errCh}, nil
}

// deltaTracker remembers, per follow subscription, what has already been
// emitted so the next event can compute a true delta. The two trace maps
// are used when following traces, logsSeen and metricsSeen when following
// logs and metrics respectively.
type deltaTracker struct {
	table         sqlengine.Table
	traceVersion  map[[16]byte]uint64 // last version emitted per trace group
	traceSpanSeen map[[16]byte]int    // spans already emitted per trace group (new-spans-only)
	logsSeen      int
	metricsSeen   int
}

func newDeltaTracker(table sqlengine.Table) *deltaTracker {
	return &deltaTracker{
		table:         table,
		traceVersion:  make(map[[16]byte]uint64),
		traceSpanSeen: make(map[[16]byte]int),
	}
}

func (s *Service) buildDelta(stmt *sqlengine.SelectStmt, mode FollowMode, t *deltaTracker, ev notify.Event) (Frame, bool) {
	switch e := ev.(type) {
	case notify.TracesAdded:
		if stmt.Table != sqlengine.TableTraces {
			return Frame{}, false
		}
		return s.buildTraceDelta(stmt, mode, t, e)

	case notify.LogsAdded:
		if stmt.Table != sqlengine.TableLogs {
			return Frame{}, false
		}
		return s.buildLogDelta(stmt, t)

	case notify.MetricsAdded:
		if stmt.Table != sqlengine.TableMetrics {
			return Frame{}, false
		}
		return s.buildMetricDelta(stmt, t)

	case notify.Cleared:
		if tableForKind(e.Kind) != stmt.Table {
			return Frame{}, false
		}
		// The store's contract is best-effort, tombstone-free retention
		// (spec.md §9); a Clear simply means future deltas start counting
		// from zero again.
		*t = *newDeltaTracker(stmt.Table)
		return Frame{}, false

	default:
		return Frame{}, false
	}
}

func tableForKind(k notify.TableKind) sqlengine.Table {
	switch k {
	case notify.KindTraces:
		return sqlengine.TableTraces
	case notify.KindLogs:
		return sqlengine.TableLogs
	case notify.KindMetrics:
		return sqlengine.TableMetrics
	default:
		return ""
	}
}

func (s *Service) buildTraceDelta(stmt *sqlengine.SelectStmt, mode FollowMode, t *deltaTracker, ev notify.TracesAdded) (Frame, bool) {
	snap := s.store.SnapshotTraces()

	var rows []Row
	for _, v := range ev.Versions {
		group, ok := snap.Groups[store.TraceIDKey(v.TraceID)]
		if !ok {
			continue // evicted before this frame could be built; drop silently
		}
		if group.Version <= t.traceVersion[v.TraceID] {
			continue
		}
		t.traceVersion[v.TraceID] = group.Version

		switch mode {
		case FullGroup:
			for _, span := range group.Spans {
				rows = append(rows, sqlengine.SpanRow(group.TraceID, span))
			}
			t.traceSpanSeen[v.TraceID] = len(group.Spans)
		default: // NewSpansOnly
			seen := t.traceSpanSeen[v.TraceID]
			for _, span := range group.Spans[seen:] {
				rows = append(rows, sqlengine.SpanRow(group.TraceID, span))
			}
			t.traceSpanSeen[v.TraceID] = len(group.Spans)
		}
	}

	return s.filterAndProject(stmt, rows)
}

func (s *Service) buildLogDelta(stmt *sqlengine.SelectStmt, t *deltaTracker) (Frame, bool) {
	logs := s.store.SnapshotLogs()
	if t.logsSeen > len(logs) {
		t.logsSeen = 0 // defensive: store was cleared without a Cleared event reaching us first
	}
	newLogs := logs[t.logsSeen:]
	t.logsSeen = len(logs)

	rows := make([]Row, 0, len(newLogs))
	for _, l := range newLogs {
		rows = append(rows, sqlengine.LogRow(l))
	}
	return s.filterAndProject(stmt, rows)
}

func (s *Service) buildMetricDelta(stmt *sqlengine.SelectStmt, t *deltaTracker) (Frame, bool) {
	metrics := s.store.SnapshotMetrics()
	if t.metricsSeen > len(metrics) {
		t.metricsSeen = 0
	}
	newMetrics := metrics[t.metricsSeen:]
	t.metricsSeen = len(metrics)

	rows := make([]Row, 0, len(newMetrics))
	for _, m := range newMetrics {
		rows = append(rows, sqlengine.MetricRow(m))
	}
	return s.filterAndProject(stmt, rows)
}

// Row is a type alias so this file doesn't need to import sqlengine's Row
// under a different name; kept for readability at call sites above.
type Row = sqlengine.Row

func (s *Service) filterAndProject(stmt *sqlengine.SelectStmt, rows []Row) (Frame, bool) {
	columns := stmt.Columns
	if len(columns) == 0 {
		columns = sqlengine.Columns[stmt.Table]
	}

	var projected []map[string]any
	for _, row := range rows {
		ok, err := sqlengine.Matches(stmt, row)
		if err != nil || !ok {
			continue
		}
		projected = append(projected, projectRow(row, columns))
	}
	if len(projected) == 0 {
		return Frame{}, false
	}
	return Frame{Table: stmt.Table, Columns: columns, Rows: projected}, true
}

func projectRow(row Row, columns []string) map[string]any {
	out := make(map[string]any, len(columns))
	for _, c := range columns {
		switch c {
		case "resource":
			out[c] = attrMapToAny(row.Resource)
		case "attributes":
			out[c] = attrMapToAny(row.Attributes)
		default:
			out[c] = row.Get(c).AsAny()
		}
	}
	return out
}

func attrMapToAny(m store.AttrMap) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.AsAny()
	}
	return out
}
