// Package ingest implements the OTLP Ingestion Adapter (spec.md §4.5,
// C6): it walks already-decoded pdata batches and calls the matching
// insert on the telemetry store, the same Resource -> scope -> record
// walk the teacher's sqliteExporter.pushTraces performs, generalized to
// traces, logs, and metrics.
package ingest

import (
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/plog"
	"go.opentelemetry.io/collector/pdata/pmetric"
	"go.opentelemetry.io/collector/pdata/ptrace"

	"github.com/tracewell/collector/internal/ids"
	"github.com/tracewell/collector/internal/store"
)

// Adapter translates decoded OTLP batches into store insertions.
type Adapter struct {
	store *store.Store
}

// New returns an Adapter writing into s.
func New(s *store.Store) *Adapter {
	return &Adapter{store: s}
}

func resourceAttrs(res pcommon.Resource) (store.AttrMap, string) {
	attrs := make(store.AttrMap, res.Attributes().Len())
	serviceName := "unknown"
	res.Attributes().Range(func(k string, v pcommon.Value) bool {
		attrs[k] = store.FromAny(v.AsRaw())
		if k == "service.name" {
			serviceName = v.Str()
		}
		return true
	})
	return attrs, serviceName
}

func recordAttrs(m pcommon.Map) store.AttrMap {
	attrs := make(store.AttrMap, m.Len())
	m.Range(func(k string, v pcommon.Value) bool {
		attrs[k] = store.FromAny(v.AsRaw())
		return true
	})
	return attrs
}

// PushTraces walks ResourceSpans -> ScopeSpans -> Span and inserts every
// span, grouped by trace id, in one store.InsertSpans call per batch
// (spec.md §4.1's "insert_spans(batch)" is the unit of version bump).
func (a *Adapter) PushTraces(td ptrace.Traces) {
	var batch []store.SpanInsert

	resourceSpans := td.ResourceSpans()
	for i := 0; i < resourceSpans.Len(); i++ {
		rs := resourceSpans.At(i)
		resAttrs, serviceName := resourceAttrs(rs.Resource())

		scopeSpans := rs.ScopeSpans()
		for j := 0; j < scopeSpans.Len(); j++ {
			spans := scopeSpans.At(j).Spans()
			for k := 0; k < spans.Len(); k++ {
				s := spans.At(k)

				var traceID [16]byte
				copy(traceID[:], s.TraceID()[:])
				var spanID, parentID [8]byte
				copy(spanID[:], s.SpanID()[:])
				copy(parentID[:], s.ParentSpanID()[:])

				batch = append(batch, store.SpanInsert{
					TraceID: traceID,
					Span: store.Span{
						SpanID:       spanID,
						ParentSpanID: parentID,
						ServiceName:  serviceName,
						SpanName:     s.Name(),
						Kind:         store.SpanKind(s.Kind()),
						StatusCode:   store.StatusCode(s.Status().Code()),
						StartTimeNS:  int64(s.StartTimestamp()),
						EndTimeNS:    int64(s.EndTimestamp()),
						Resource:     resAttrs,
						Attributes:   recordAttrs(s.Attributes()),
					},
				})
			}
		}
	}

	a.store.InsertSpans(batch)
}

// PushLogs walks ResourceLogs -> ScopeLogs -> LogRecord and inserts every
// record in one store.InsertLogs call per batch.
func (a *Adapter) PushLogs(ld plog.Logs) {
	var batch []store.LogRecord

	resourceLogs := ld.ResourceLogs()
	for i := 0; i < resourceLogs.Len(); i++ {
		rl := resourceLogs.At(i)
		resAttrs, serviceName := resourceAttrs(rl.Resource())

		scopeLogs := rl.ScopeLogs()
		for j := 0; j < scopeLogs.Len(); j++ {
			records := scopeLogs.At(j).LogRecords()
			for k := 0; k < records.Len(); k++ {
				r := records.At(k)

				ts := r.Time()
				if ts == 0 {
					ts = r.ObservedTimestamp()
				}

				severityNumber := int32(r.SeverityNumber())
				severityText := r.SeverityText()
				if severityText == "" {
					severityText = ids.SeverityText(int(severityNumber))
				}

				batch = append(batch, store.LogRecord{
					TimestampNS:    int64(ts),
					SeverityText:   severityText,
					SeverityNumber: severityNumber,
					Body:           r.Body().AsString(),
					ServiceName:    serviceName,
					Resource:       resAttrs,
					Attributes:     recordAttrs(r.Attributes()),
				})
			}
		}
	}

	a.store.InsertLogs(batch)
}

// PushMetrics walks ResourceMetrics -> ScopeMetrics -> Metric and
// flattens each metric's data points by type (spec.md §4.5), inserting
// every flattened row in one store.InsertMetrics call per batch.
func (a *Adapter) PushMetrics(md pmetric.Metrics) {
	var batch []store.MetricPoint

	resourceMetrics := md.ResourceMetrics()
	for i := 0; i < resourceMetrics.Len(); i++ {
		rm := resourceMetrics.At(i)
		resAttrs, serviceName := resourceAttrs(rm.Resource())

		scopeMetrics := rm.ScopeMetrics()
		for j := 0; j < scopeMetrics.Len(); j++ {
			metrics := scopeMetrics.At(j).Metrics()
			for k := 0; k < metrics.Len(); k++ {
				m := metrics.At(k)
				batch = append(batch, flattenMetric(m, resAttrs, serviceName)...)
			}
		}
	}

	a.store.InsertMetrics(batch)
}

func flattenMetric(m pmetric.Metric, resAttrs store.AttrMap, serviceName string) []store.MetricPoint {
	switch m.Type() {
	case pmetric.MetricTypeGauge:
		return flattenNumberPoints(m.Gauge().DataPoints(), m.Name(), store.MetricTypeGauge, resAttrs, serviceName)
	case pmetric.MetricTypeSum:
		return flattenNumberPoints(m.Sum().DataPoints(), m.Name(), store.MetricTypeSum, resAttrs, serviceName)
	case pmetric.MetricTypeHistogram:
		return flattenHistogramPoints(m.Histogram().DataPoints(), m.Name(), store.MetricTypeHistogram, resAttrs, serviceName)
	case pmetric.MetricTypeExponentialHistogram:
		return flattenExpHistogramPoints(m.ExponentialHistogram().DataPoints(), m.Name(), resAttrs, serviceName)
	case pmetric.MetricTypeSummary:
		return flattenSummaryPoints(m.Summary().DataPoints(), m.Name(), resAttrs, serviceName)
	default:
		return nil
	}
}

func flattenNumberPoints(points pmetric.NumberDataPointSlice, name string, kind store.MetricType, resAttrs store.AttrMap, serviceName string) []store.MetricPoint {
	out := make([]store.MetricPoint, 0, points.Len())
	for i := 0; i < points.Len(); i++ {
		p := points.At(i)
		value := p.DoubleValue()
		if p.ValueType() == pmetric.NumberDataPointValueTypeInt {
			value = float64(p.IntValue())
		}
		out = append(out, store.MetricPoint{
			TimestampNS: int64(p.Timestamp()),
			MetricName:  name,
			MetricType:  kind,
			Value:       value,
			HasValue:    true,
			ServiceName: serviceName,
			Resource:    resAttrs,
			Attributes:  recordAttrs(p.Attributes()),
		})
	}
	return out
}

func flattenHistogramPoints(points pmetric.HistogramDataPointSlice, name string, kind store.MetricType, resAttrs store.AttrMap, serviceName string) []store.MetricPoint {
	out := make([]store.MetricPoint, 0, points.Len())
	for i := 0; i < points.Len(); i++ {
		p := points.At(i)
		out = append(out, store.MetricPoint{
			TimestampNS: int64(p.Timestamp()),
			MetricName:  name,
			MetricType:  kind,
			Count:       p.Count(),
			Sum:         p.Sum(),
			HasSum:      p.HasSum(),
			ServiceName: serviceName,
			Resource:    resAttrs,
			Attributes:  recordAttrs(p.Attributes()),
		})
	}
	return out
}

func flattenExpHistogramPoints(points pmetric.ExponentialHistogramDataPointSlice, name string, resAttrs store.AttrMap, serviceName string) []store.MetricPoint {
	out := make([]store.MetricPoint, 0, points.Len())
	for i := 0; i < points.Len(); i++ {
		p := points.At(i)
		out = append(out, store.MetricPoint{
			TimestampNS: int64(p.Timestamp()),
			MetricName:  name,
			MetricType:  store.MetricTypeExponentialHistogram,
			Count:       p.Count(),
			Sum:         p.Sum(),
			HasSum:      p.HasSum(),
			ServiceName: serviceName,
			Resource:    resAttrs,
			Attributes:  recordAttrs(p.Attributes()),
		})
	}
	return out
}

func flattenSummaryPoints(points pmetric.SummaryDataPointSlice, name string, resAttrs store.AttrMap, serviceName string) []store.MetricPoint {
	out := make([]store.MetricPoint, 0, points.Len())
	for i := 0; i < points.Len(); i++ {
		p := points.At(i)
		out = append(out, store.MetricPoint{
			TimestampNS: int64(p.Timestamp()),
			MetricName:  name,
			MetricType:  store.MetricTypeSummary,
			Count:       p.Count(),
			Sum:         p.Sum(),
			HasSum:      true,
			ServiceName: serviceName,
			Resource:    resAttrs,
			Attributes:  recordAttrs(p.Attributes()),
		})
	}
	return out
}
