package memstoreexporter

import (
	"context"
	"testing"

	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.uber.org/zap"
)

func TestNewMemStoreExporter(t *testing.T) {
	cfg := &Config{MaxItems: 10, FollowBufferFrames: 4, QueryAddr: ""}

	exp, err := newMemStoreExporter(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newMemStoreExporter() error = %v", err)
	}
	if exp == nil {
		t.Fatal("newMemStoreExporter() returned nil")
	}
}

func TestConfigValidateAppliesDefaults(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.MaxItems != defaultMaxItems {
		t.Errorf("MaxItems = %d, want default %d", cfg.MaxItems, defaultMaxItems)
	}
	if cfg.FollowBufferFrames != defaultFollowBufferFrames {
		t.Errorf("FollowBufferFrames = %d, want default %d", cfg.FollowBufferFrames, defaultFollowBufferFrames)
	}
	if cfg.QueryAddr != defaultQueryAddr {
		t.Errorf("QueryAddr = %q, want default %q", cfg.QueryAddr, defaultQueryAddr)
	}
}

func TestPushTracesReachesStore(t *testing.T) {
	cfg := &Config{MaxItems: 10, FollowBufferFrames: 4, QueryAddr: ""}
	exp, err := newMemStoreExporter(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newMemStoreExporter() error = %v", err)
	}
	if err := exp.start(context.Background(), nil); err != nil {
		t.Fatalf("start() error = %v", err)
	}
	defer exp.shutdown(context.Background())

	td := ptrace.NewTraces()
	rs := td.ResourceSpans().AppendEmpty()
	rs.Resource().Attributes().PutStr("service.name", "svcA")
	span := rs.ScopeSpans().AppendEmpty().Spans().AppendEmpty()
	span.SetName("op")
	span.SetTraceID([16]byte{1})
	span.SetSpanID([8]byte{1})

	if err := exp.pushTraces(context.Background(), td); err != nil {
		t.Fatalf("pushTraces() error = %v", err)
	}

	snap := exp.store.SnapshotTraces()
	if len(snap.Order) != 1 {
		t.Fatalf("got %d trace groups, want 1", len(snap.Order))
	}
}

func TestStartIsIdempotentAcrossSignals(t *testing.T) {
	cfg := &Config{MaxItems: 10, FollowBufferFrames: 4, QueryAddr: ""}
	exp, err := newMemStoreExporter(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newMemStoreExporter() error = %v", err)
	}

	// A component referenced from traces, logs, and metrics pipelines has
	// start/shutdown invoked once per signal.
	for i := 0; i < 3; i++ {
		if err := exp.start(context.Background(), nil); err != nil {
			t.Fatalf("start() error = %v", err)
		}
	}
	firstStore := exp.store

	if err := exp.shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
	if err := exp.shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
	if exp.store != firstStore {
		t.Fatal("store identity changed across repeated start calls")
	}
}
