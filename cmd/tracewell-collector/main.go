// Command tracewell-collector runs an OpenTelemetry Collector pipeline
// that terminates in an in-memory, capacity-bounded telemetry store
// queryable over HTTP, instead of forwarding to a backend.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.opentelemetry.io/collector/component"
	"go.opentelemetry.io/collector/exporter"
	"go.opentelemetry.io/collector/otelcol"
	"go.opentelemetry.io/collector/processor"
	"go.opentelemetry.io/collector/processor/batchprocessor"
	"go.opentelemetry.io/collector/processor/memorylimiterprocessor"
	"go.opentelemetry.io/collector/receiver"
	"go.opentelemetry.io/collector/receiver/otlpreceiver"
	"golang.org/x/sync/errgroup"

	"github.com/tracewell/collector/exporter/memstoreexporter"
)

// Version and BuildTime are injected via -ldflags.
var (
	Version   = "dev"
	BuildTime = ""
)

const defaultConfigYAML = `
receivers:
  otlp:
    protocols:
      grpc:
        endpoint: 0.0.0.0:4317
      http:
        endpoint: 0.0.0.0:4318

processors:
  batch:
    timeout: 5s
    send_batch_size: 1000
  memory_limiter:
    check_interval: 1s
    limit_mib: 512
    spike_limit_mib: 128

exporters:
  memstore:
    max_items: 10000
    follow_buffer_frames: 64
    query_addr: ":4319"

service:
  pipelines:
    traces:
      receivers: [otlp]
      processors: [memory_limiter, batch]
      exporters: [memstore]
    logs:
      receivers: [otlp]
      processors: [memory_limiter, batch]
      exporters: [memstore]
    metrics:
      receivers: [otlp]
      processors: [memory_limiter, batch]
      exporters: [memstore]
`

func main() {
	info := component.BuildInfo{
		Command:     "tracewell-collector",
		Description: "Self-contained OpenTelemetry collector with an in-memory, queryable telemetry store",
		Version:     Version,
	}

	params := otelcol.CollectorSettings{
		BuildInfo: info,
		Factories: components,
	}

	args := os.Args[1:]
	var tmpConfigPath string
	if !hasConfigArg(args) {
		configFile := os.Getenv("TRACEWELL_CONFIG_FILE")
		if configFile == "" {
			configFile = "config.yaml"
		}

		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			tmp, err := os.CreateTemp("", "tracewell-default-*.yaml")
			if err == nil {
				if _, writeErr := tmp.WriteString(strings.ReplaceAll(defaultConfigYAML, "\t", "  ")); writeErr == nil {
					tmp.Close()
					tmpConfigPath = tmp.Name()
					args = append([]string{"--config", tmpConfigPath}, args...)
				} else {
					tmp.Close()
					os.Remove(tmp.Name())
				}
			}
		}
	}
	if tmpConfigPath != "" {
		defer os.Remove(tmpConfigPath)
	}

	cmd := otelcol.NewCommand(params)
	if len(args) > 0 {
		cmd.SetArgs(args)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return cmd.ExecuteContext(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func hasConfigArg(args []string) bool {
	for _, a := range args {
		if a == "--config" || a == "-c" {
			return true
		}
		if strings.HasPrefix(a, "--config=") {
			return true
		}
	}
	return false
}

func components() (otelcol.Factories, error) {
	otlpReceiverFactory := otlpreceiver.NewFactory()
	batchProcessorFactory := batchprocessor.NewFactory()
	memoryLimiterFactory := memorylimiterprocessor.NewFactory()
	memstoreFactory := memstoreexporter.NewFactory()

	factories := otelcol.Factories{
		Receivers: map[component.Type]receiver.Factory{
			otlpReceiverFactory.Type(): otlpReceiverFactory,
		},
		Processors: map[component.Type]processor.Factory{
			batchProcessorFactory.Type(): batchProcessorFactory,
			memoryLimiterFactory.Type():  memoryLimiterFactory,
		},
		Exporters: map[component.Type]exporter.Factory{
			memstoreFactory.Type(): memstoreFactory,
		},
	}
	return factories, nil
}
