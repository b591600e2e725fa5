// Package store implements the Telemetry Store (spec.md §4.1, C2): the
// sole owner of all telemetry state, mediating every concurrent read,
// write, and subscription. It is a capacity-bounded, versioned in-memory
// database for trace groups, logs, and metric data points, with FIFO
// eviction and change notification.
package store

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tracewell/collector/internal/ids"
	"github.com/tracewell/collector/internal/notify"
)

// Config controls the store's capacity bound and its change-notification
// buffering. Mirrors the teacher's mapstructure-tagged Config shape
// (exporter/sqliteexporter.Config) even though this store has no file
// path of its own to configure.
type Config struct {
	MaxItems           int `mapstructure:"max_items"`
	FollowBufferFrames int `mapstructure:"follow_buffer_frames"`
}

// DefaultConfig returns the spec's documented defaults (spec.md §6).
func DefaultConfig() Config {
	return Config{MaxItems: 1000, FollowBufferFrames: 64}
}

// SpanInsert pairs a span with the trace identifier it belongs to, the
// unit insert_spans operates on (spec.md §4.1).
type SpanInsert struct {
	TraceID [16]byte
	Span    Span
}

// Store is the concurrent, capacity-bounded telemetry database. Reads and
// writes are serialized by a single sync.RWMutex: any number of concurrent
// snapshot readers, one exclusive writer at a time (spec.md §5). All
// hashing, eviction, and version bookkeeping complete synchronously while
// the lock is held; publication to the Notifier happens only after the
// lock is released.
type Store struct {
	cfg      Config
	logger   *zap.Logger
	notifier *notify.Notifier

	mu sync.RWMutex

	traceOrder []TraceIDKey          // FIFO order of trace group creation
	traces     map[TraceIDKey]*TraceGroup

	logs    []LogRecord
	metrics []MetricPoint
}

// TraceIDKey is the map-friendly form of a 16-byte trace identifier.
type TraceIDKey [16]byte

// New creates a Store with the given capacity configuration. If logger is
// nil, a no-op logger is used.
func New(cfg Config, logger *zap.Logger) *Store {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultConfig().MaxItems
	}
	if cfg.FollowBufferFrames <= 0 {
		cfg.FollowBufferFrames = DefaultConfig().FollowBufferFrames
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		cfg:      cfg,
		logger:   logger,
		notifier: notify.New(cfg.FollowBufferFrames),
		traces:   make(map[TraceIDKey]*TraceGroup),
	}
}

// Subscribe returns a live change channel (spec.md §4.1).
func (s *Store) Subscribe() *notify.Subscription {
	return s.notifier.Subscribe(s.cfg.FollowBufferFrames)
}

// InsertSpans processes one decoded OTLP trace batch. For each affected
// trace group, version is incremented exactly once per call regardless of
// how many spans in the batch target that group (spec.md §3 invariant,
// §4.1). A TracesAdded event naming every affected group and its new
// version is published after the write lock is released.
func (s *Store) InsertSpans(batch []SpanInsert) {
	if len(batch) == 0 {
		return
	}

	now := ids.NowNano()

	s.mu.Lock()

	// Preserve first-appearance order within the batch so a reader of the
	// published event sees groups in commit order.
	order := make([]TraceIDKey, 0, len(batch))
	seen := make(map[TraceIDKey]bool, len(batch))

	for _, item := range batch {
		key := TraceIDKey(item.TraceID)
		group, exists := s.traces[key]
		if !exists {
			group = &TraceGroup{TraceID: item.TraceID, FirstSeenNS: now}
			s.traces[key] = group
			s.traceOrder = append(s.traceOrder, key)
			s.evictTracesLocked()
		}
		group.Spans = append(group.Spans, item.Span)
		group.LastUpdateNS = now

		if !seen[key] {
			seen[key] = true
			order = append(order, key)
		}
	}

	versions := make([]notify.TraceVersion, 0, len(order))
	for _, key := range order {
		group := s.traces[key]
		if group == nil {
			// Evicted before this batch's version bump could apply; the
			// spec treats eviction as best-effort, so the append simply
			// has no lasting effect for that group.
			continue
		}
		group.Version++
		versions = append(versions, notify.TraceVersion{TraceID: group.TraceID, Version: group.Version})
	}

	s.mu.Unlock()

	if len(versions) > 0 {
		s.notifier.Publish(notify.TracesAdded{Versions: versions})
	}
}

// evictTracesLocked discards the oldest trace group(s) while the index
// exceeds max_items. Must be called with s.mu held for writing.
func (s *Store) evictTracesLocked() {
	evicted := 0
	for len(s.traceOrder) > s.cfg.MaxItems {
		head := s.traceOrder[0]
		s.traceOrder = s.traceOrder[1:]
		delete(s.traces, head)
		evicted++
	}
	if evicted > 0 {
		s.logger.Debug("evicted trace groups", zap.Int("evicted", evicted))
	}
}

// InsertLogs appends a batch of log records, evicting from the head while
// the log FIFO exceeds max_items, then publishes LogsAdded (spec.md §4.1).
func (s *Store) InsertLogs(batch []LogRecord) {
	if len(batch) == 0 {
		return
	}

	s.mu.Lock()
	s.logs = append(s.logs, batch...)
	evicted := 0
	for len(s.logs) > s.cfg.MaxItems {
		s.logs = s.logs[1:]
		evicted++
	}
	if evicted > 0 {
		s.logger.Debug("evicted logs", zap.Int("evicted", evicted))
	}
	s.mu.Unlock()

	s.notifier.Publish(notify.LogsAdded{Count: len(batch)})
}

// InsertMetrics appends a batch of flattened metric data points, evicting
// from the head while the metrics FIFO exceeds max_items, then publishes
// MetricsAdded (spec.md §4.1).
func (s *Store) InsertMetrics(batch []MetricPoint) {
	if len(batch) == 0 {
		return
	}

	s.mu.Lock()
	s.metrics = append(s.metrics, batch...)
	evicted := 0
	for len(s.metrics) > s.cfg.MaxItems {
		s.metrics = s.metrics[1:]
		evicted++
	}
	if evicted > 0 {
		s.logger.Debug("evicted metrics", zap.Int("evicted", evicted))
	}
	s.mu.Unlock()

	s.notifier.Publish(notify.MetricsAdded{Count: len(batch)})
}

// TraceSnapshot is a consistent point-in-time view of the trace table:
// groups in FIFO (group insertion) order, each carrying a defensive copy
// of its span slice (spec.md §4.1).
type TraceSnapshot struct {
	Order  []TraceIDKey
	Groups map[TraceIDKey]TraceGroup
}

// SnapshotTraces returns a consistent point-in-time view. Readers never
// observe torn writes because the copy happens entirely while the read
// lock is held.
func (s *Store) SnapshotTraces() TraceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := TraceSnapshot{
		Order:  make([]TraceIDKey, len(s.traceOrder)),
		Groups: make(map[TraceIDKey]TraceGroup, len(s.traces)),
	}
	copy(out.Order, s.traceOrder)
	for key, group := range s.traces {
		spans := make([]Span, len(group.Spans))
		copy(spans, group.Spans)
		out.Groups[key] = TraceGroup{
			TraceID:      group.TraceID,
			Spans:        spans,
			Version:      group.Version,
			FirstSeenNS:  group.FirstSeenNS,
			LastUpdateNS: group.LastUpdateNS,
		}
	}
	return out
}

// SnapshotLogs returns a consistent, insertion-ordered copy of the logs
// table.
func (s *Store) SnapshotLogs() []LogRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LogRecord, len(s.logs))
	copy(out, s.logs)
	return out
}

// SnapshotMetrics returns a consistent, insertion-ordered copy of the
// metrics table.
func (s *Store) SnapshotMetrics() []MetricPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MetricPoint, len(s.metrics))
	copy(out, s.metrics)
	return out
}

// Kind names one of the three telemetry tables for Clear.
type Kind = notify.TableKind

const (
	KindTraces  = notify.KindTraces
	KindLogs    = notify.KindLogs
	KindMetrics = notify.KindMetrics
)

// Clear drops all entries for each selected kind and publishes one
// Cleared event per kind (spec.md §4.1). Clear never fails.
func (s *Store) Clear(kinds ...Kind) {
	s.mu.Lock()
	for _, k := range kinds {
		switch k {
		case KindTraces:
			s.traces = make(map[TraceIDKey]*TraceGroup)
			s.traceOrder = nil
		case KindLogs:
			s.logs = nil
		case KindMetrics:
			s.metrics = nil
		}
	}
	s.mu.Unlock()

	for _, k := range kinds {
		s.notifier.Publish(notify.Cleared{Kind: k})
	}
}

// Stats reports current table sizes, backing the /stats introspection
// endpoint (spec.md §9 supplemented feature, adapted from the teacher's
// handleStatus).
type Stats struct {
	TraceGroups int `json:"trace_groups"`
	Spans       int `json:"spans"`
	Logs        int `json:"logs"`
	Metrics     int `json:"metrics"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	spanCount := 0
	for _, g := range s.traces {
		spanCount += len(g.Spans)
	}
	return Stats{
		TraceGroups: len(s.traces),
		Spans:       spanCount,
		Logs:        len(s.logs),
		Metrics:     len(s.metrics),
	}
}
