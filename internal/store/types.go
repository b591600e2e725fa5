package store

// SpanKind mirrors the OTLP span kind enumeration, kept as a small integer
// so the SQL evaluator can compare it without re-parsing strings.
type SpanKind int32

const (
	SpanKindUnspecified SpanKind = iota
	SpanKindInternal
	SpanKindServer
	SpanKindClient
	SpanKindProducer
	SpanKindConsumer
)

func (k SpanKind) String() string {
	switch k {
	case SpanKindInternal:
		return "Internal"
	case SpanKindServer:
		return "Server"
	case SpanKindClient:
		return "Client"
	case SpanKindProducer:
		return "Producer"
	case SpanKindConsumer:
		return "Consumer"
	default:
		return "Unspecified"
	}
}

// StatusCode mirrors the OTLP span status code enumeration.
type StatusCode int32

const (
	StatusCodeUnset StatusCode = iota
	StatusCodeOK
	StatusCodeError
)

func (c StatusCode) String() string {
	switch c {
	case StatusCodeOK:
		return "Ok"
	case StatusCodeError:
		return "Error"
	default:
		return "Unset"
	}
}

// Span is one span belonging to a TraceGroup (spec.md §3).
type Span struct {
	SpanID       [8]byte
	ParentSpanID [8]byte
	ServiceName  string
	SpanName     string
	Kind         SpanKind
	StatusCode   StatusCode
	StartTimeNS  int64
	EndTimeNS    int64
	Resource     AttrMap
	Attributes   AttrMap
}

// DurationNS reports the span's duration, always derived as end - start
// and reported in nanoseconds (spec.md §3).
func (s Span) DurationNS() int64 {
	return s.EndTimeNS - s.StartTimeNS
}

// TraceGroup is the set of spans sharing one trace identifier, stored and
// versioned as a unit (spec.md §3). A trace group is never retained empty.
type TraceGroup struct {
	TraceID      [16]byte
	Spans        []Span
	Version      uint64
	FirstSeenNS  int64
	LastUpdateNS int64
}

// LogRecord is one ingested log line (spec.md §3).
type LogRecord struct {
	TimestampNS    int64
	SeverityText   string
	SeverityNumber int32
	Body           string
	ServiceName    string
	Resource       AttrMap
	Attributes     AttrMap
}

// MetricType enumerates the OTLP metric shapes this store flattens points
// from (spec.md §3).
type MetricType string

const (
	MetricTypeGauge                MetricType = "Gauge"
	MetricTypeSum                  MetricType = "Sum"
	MetricTypeHistogram            MetricType = "Histogram"
	MetricTypeExponentialHistogram MetricType = "ExponentialHistogram"
	MetricTypeSummary              MetricType = "Summary"
)

// MetricPoint is a flattened row combining a metric's identity with one
// data point (spec.md §3).
type MetricPoint struct {
	TimestampNS int64
	MetricName  string
	MetricType  MetricType
	Value       float64
	HasValue    bool
	Count       uint64
	Sum         float64
	HasSum      bool
	ServiceName string
	Resource    AttrMap
	Attributes  AttrMap
}
