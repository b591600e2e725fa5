// Package ids provides the small time and identifier utilities shared by
// the store, the SQL evaluator, and the filter-flag lowering: nanosecond
// epoch time, lowercase hex encoding of trace/span identifiers, and
// parsing of the relative/absolute time specs accepted by --since/--until.
package ids

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NowNano returns the current time as nanoseconds since the Unix epoch.
func NowNano() int64 {
	return time.Now().UnixNano()
}

// HexEncode renders raw identifier bytes as lowercase hex, matching the
// OTLP convention used for trace_id/span_id/parent_span_id everywhere a
// span is displayed or compared in SQL.
func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

// HexDecode parses a lowercase (or mixed-case) hex identifier back to raw
// bytes. The SQL evaluator does not use it: it compares hex identifier
// columns as lowercase strings.
func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(strings.ToLower(s))
}

// ParseTimeSpec parses either a relative duration literal (Ns/Nm/Nh/Nd) or
// an RFC-3339 absolute timestamp, returning nanoseconds since epoch.
// Relative specs are resolved against "now" at parse time, per spec.md
// §4.3: "Ns/Nm/Nh/Nd ... lowers to timestamp >= now_ns - DURATION".
func ParseTimeSpec(spec string) (int64, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, fmt.Errorf("empty time spec")
	}

	if d, ok := parseRelativeDuration(spec); ok {
		return NowNano() - d.Nanoseconds(), nil
	}

	if t, err := time.Parse(time.RFC3339Nano, spec); err == nil {
		return t.UnixNano(), nil
	}
	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t.UnixNano(), nil
	}

	return 0, fmt.Errorf("invalid time spec %q: want Ns/Nm/Nh/Nd or RFC-3339", spec)
}

// parseRelativeDuration accepts an integer immediately followed by one of
// s/m/h/d (seconds/minutes/hours/days). It deliberately does not accept
// Go's own duration suffixes (ms, us, ns) since those are not part of the
// documented flag grammar.
func parseRelativeDuration(spec string) (time.Duration, bool) {
	if len(spec) < 2 {
		return 0, false
	}
	unit := spec[len(spec)-1]
	numPart := spec[:len(spec)-1]
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}

	switch unit {
	case 's':
		return time.Duration(n) * time.Second, true
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// FormatRFC3339Nano renders a nanosecond epoch timestamp as an RFC-3339
// instant in UTC. The formatters print time columns as nanosecond
// integers and do not call it.
func FormatRFC3339Nano(ns int64) string {
	return time.Unix(0, ns).UTC().Format(time.RFC3339Nano)
}
