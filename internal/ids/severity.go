package ids

import "strings"

// Severity bands follow the OTLP log data model's numeric scale: 24 levels
// grouped into 6 named bands of 4 sub-levels each, where a higher number is
// more severe. SeverityRank resolves a severity *name* (as it appears in a
// SQL literal, e.g. 'ERROR') to the first (lowest) number in its band, which
// is what spec.md §4.2 needs for `severity >= 'ERROR'` style comparisons.
const (
	SeverityTraceMin = 1
	SeverityDebugMin = 5
	SeverityInfoMin  = 9
	SeverityWarnMin  = 13
	SeverityErrorMin = 17
	SeverityFatalMin = 21
	SeverityMax      = 24
)

// SeverityRank returns the numeric rank for a severity band name
// (case-insensitive, OTLP short names TRACE/DEBUG/INFO/WARN/ERROR/FATAL),
// or ok=false if the name isn't recognized.
func SeverityRank(name string) (int, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRACE":
		return SeverityTraceMin, true
	case "DEBUG":
		return SeverityDebugMin, true
	case "INFO":
		return SeverityInfoMin, true
	case "WARN", "WARNING":
		return SeverityWarnMin, true
	case "ERROR":
		return SeverityErrorMin, true
	case "FATAL":
		return SeverityFatalMin, true
	default:
		return 0, false
	}
}

// SeverityText maps a numeric severity to its OTLP band name, used when a
// log record's severity_text is absent and must be derived from the number.
func SeverityText(number int) string {
	switch {
	case number >= SeverityFatalMin:
		return "FATAL"
	case number >= SeverityErrorMin:
		return "ERROR"
	case number >= SeverityWarnMin:
		return "WARN"
	case number >= SeverityInfoMin:
		return "INFO"
	case number >= SeverityDebugMin:
		return "DEBUG"
	case number >= SeverityTraceMin:
		return "TRACE"
	default:
		return "UNSPECIFIED"
	}
}
