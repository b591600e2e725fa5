package memstoreexporter

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/collector/component"
	"go.opentelemetry.io/collector/pdata/plog"
	"go.opentelemetry.io/collector/pdata/pmetric"
	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.uber.org/zap"

	"github.com/tracewell/collector/internal/ingest"
	"github.com/tracewell/collector/internal/queryservice"
	"github.com/tracewell/collector/internal/store"
)

// memStoreExporter adapts the in-memory telemetry store to the otelcol
// exporter interface, the same shape the teacher's sqliteExporter gives
// its SQLite-backed store, but fronting internal/store instead of
// storage/sqlite and serving internal/queryservice instead of
// Tempo/Graphite-compatible handlers.
type memStoreExporter struct {
	config *Config
	logger *zap.Logger

	store      *store.Store
	adapter    *ingest.Adapter
	server     *queryservice.Server
	stopServer context.CancelFunc

	startOnce sync.Once
	startErr  error

	refCount int32 // number of pipeline signals (traces/logs/metrics) using this instance
}

func newMemStoreExporter(config *Config, logger *zap.Logger) (*memStoreExporter, error) {
	if err := config.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &memStoreExporter{
		config: config,
		logger: logger,
	}, nil
}

// start initializes the store and the query/follow server. It is called
// once per pipeline signal this exporter backs (traces, logs, metrics
// may each wrap the same instance), so the real work runs exactly once
// behind startOnce.
func (e *memStoreExporter) start(ctx context.Context, host component.Host) error {
	atomic.AddInt32(&e.refCount, 1)

	e.startOnce.Do(func() {
		s := store.New(store.Config{
			MaxItems:           e.config.MaxItems,
			FollowBufferFrames: e.config.FollowBufferFrames,
		}, e.logger)
		e.store = s
		e.adapter = ingest.New(s)

		e.logger.Info("in-memory store initialized",
			zap.Int("max_items", e.config.MaxItems),
			zap.Int("follow_buffer_frames", e.config.FollowBufferFrames))

		if e.config.QueryAddr != "" {
			svc := queryservice.New(s)
			e.server = queryservice.NewServer(svc, e.config.QueryAddr, e.logger)
			serverCtx, cancel := context.WithCancel(context.Background())
			e.stopServer = cancel
			go func() {
				if err := e.server.Run(serverCtx); err != nil {
					e.logger.Error("query server stopped", zap.Error(err))
				}
			}()
		}
	})

	return e.startErr
}

// shutdown tears down the query server and releases the store once every
// pipeline signal sharing this instance has shut down.
func (e *memStoreExporter) shutdown(ctx context.Context) error {
	if atomic.AddInt32(&e.refCount, -1) > 0 {
		return nil
	}

	instancesMu.Lock()
	delete(instances, e.config)
	instancesMu.Unlock()

	if e.stopServer != nil {
		e.stopServer()
	}
	return nil
}

func (e *memStoreExporter) pushTraces(ctx context.Context, td ptrace.Traces) error {
	e.adapter.PushTraces(td)
	return nil
}

func (e *memStoreExporter) pushLogs(ctx context.Context, ld plog.Logs) error {
	e.adapter.PushLogs(ld)
	return nil
}

func (e *memStoreExporter) pushMetrics(ctx context.Context, md pmetric.Metrics) error {
	e.adapter.PushMetrics(md)
	return nil
}
