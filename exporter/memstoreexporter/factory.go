package memstoreexporter

import (
	"context"
	"sync"

	"go.opentelemetry.io/collector/component"
	"go.opentelemetry.io/collector/config/configoptional"
	"go.opentelemetry.io/collector/exporter"
	"go.opentelemetry.io/collector/exporter/exporterhelper"
)

// instances caches one memStoreExporter per Config so that a component
// referenced from several pipelines (traces, logs, metrics) shares a
// single store and query server instead of starting three.
var (
	instancesMu sync.Mutex
	instances   = map[*Config]*memStoreExporter{}
)

const (
	defaultMaxItems           = 1000
	defaultFollowBufferFrames = 64
	defaultQueryAddr          = ":4319"
)

// TypeStr is the component.Type for this exporter.
var TypeStr = component.MustNewType("memstore")

// NewFactory creates a new factory for the in-memory store exporter.
func NewFactory() exporter.Factory {
	return exporter.NewFactory(
		TypeStr,
		createDefaultConfig,
		exporter.WithTraces(createTracesExporter, component.StabilityLevelDevelopment),
		exporter.WithLogs(createLogsExporter, component.StabilityLevelDevelopment),
		exporter.WithMetrics(createMetricsExporter, component.StabilityLevelDevelopment),
	)
}

func createDefaultConfig() component.Config {
	return &Config{
		MaxItems:           defaultMaxItems,
		FollowBufferFrames: defaultFollowBufferFrames,
		QueryAddr:          defaultQueryAddr,
	}
}

func createTracesExporter(
	ctx context.Context,
	set exporter.Settings,
	cfg component.Config,
) (exporter.Traces, error) {
	exp, err := sharedExporter(cfg, set)
	if err != nil {
		return nil, err
	}

	queueCfg := exporterhelper.NewDefaultQueueConfig()
	queueCfg.NumConsumers = 1

	return exporterhelper.NewTraces(
		ctx,
		set,
		cfg,
		exp.pushTraces,
		exporterhelper.WithStart(exp.start),
		exporterhelper.WithShutdown(exp.shutdown),
		exporterhelper.WithQueue(configoptional.Some(queueCfg)),
	)
}

func createLogsExporter(
	ctx context.Context,
	set exporter.Settings,
	cfg component.Config,
) (exporter.Logs, error) {
	exp, err := sharedExporter(cfg, set)
	if err != nil {
		return nil, err
	}

	queueCfg := exporterhelper.NewDefaultQueueConfig()
	queueCfg.NumConsumers = 1

	return exporterhelper.NewLogs(
		ctx,
		set,
		cfg,
		exp.pushLogs,
		exporterhelper.WithStart(exp.start),
		exporterhelper.WithShutdown(exp.shutdown),
		exporterhelper.WithQueue(configoptional.Some(queueCfg)),
	)
}

func createMetricsExporter(
	ctx context.Context,
	set exporter.Settings,
	cfg component.Config,
) (exporter.Metrics, error) {
	exp, err := sharedExporter(cfg, set)
	if err != nil {
		return nil, err
	}

	queueCfg := exporterhelper.NewDefaultQueueConfig()
	queueCfg.NumConsumers = 1

	return exporterhelper.NewMetrics(
		ctx,
		set,
		cfg,
		exp.pushMetrics,
		exporterhelper.WithStart(exp.start),
		exporterhelper.WithShutdown(exp.shutdown),
		exporterhelper.WithQueue(configoptional.Some(queueCfg)),
	)
}

// sharedExporter returns the single memStoreExporter instance for this
// pipeline's component.Config, creating it on first use. The three
// signal-specific factories above all funnel into the same store so that
// a trace, a log, and a metric that share a pipeline land in one place.
func sharedExporter(cfg component.Config, set exporter.Settings) (*memStoreExporter, error) {
	expCfg := cfg.(*Config)

	instancesMu.Lock()
	defer instancesMu.Unlock()

	if exp, ok := instances[expCfg]; ok {
		return exp, nil
	}
	exp, err := newMemStoreExporter(expCfg, set.Logger)
	if err != nil {
		return nil, err
	}
	instances[expCfg] = exp
	return exp, nil
}
