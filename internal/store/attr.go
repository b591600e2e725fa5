package store

import "fmt"

// AttrKind tags the dynamic type carried by an Attr, so the SQL evaluator
// can dispatch operator/type combinations exhaustively instead of relying
// on Go's dynamic typing (spec.md §9 design note).
type AttrKind uint8

const (
	AttrNull AttrKind = iota
	AttrString
	AttrInt
	AttrFloat
	AttrBool
	AttrArray
)

// Attr is a tagged scalar attribute value: string, signed integer, float,
// bool, or an array of the preceding (spec.md §3).
type Attr struct {
	Kind  AttrKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
	Arr   []Attr
}

// AttrMap is the string-keyed attribute map used for resource, span, log,
// and metric-data-point attributes.
type AttrMap map[string]Attr

func StringAttr(s string) Attr   { return Attr{Kind: AttrString, Str: s} }
func IntAttr(i int64) Attr       { return Attr{Kind: AttrInt, Int: i} }
func FloatAttr(f float64) Attr   { return Attr{Kind: AttrFloat, Float: f} }
func BoolAttr(b bool) Attr       { return Attr{Kind: AttrBool, Bool: b} }
func ArrayAttr(a []Attr) Attr    { return Attr{Kind: AttrArray, Arr: a} }

// FromAny converts a dynamically-typed Go value (as produced by
// pcommon.Value.AsRaw() or decoded JSON) into a tagged Attr. Unrecognized
// types fall back to their fmt.Sprintf("%v") string form rather than being
// dropped, mirroring the teacher's toOTLPAnyValue default case.
func FromAny(v any) Attr {
	switch t := v.(type) {
	case nil:
		return Attr{Kind: AttrNull}
	case string:
		return StringAttr(t)
	case bool:
		return BoolAttr(t)
	case int:
		return IntAttr(int64(t))
	case int64:
		return IntAttr(t)
	case float64:
		return FloatAttr(t)
	case float32:
		return FloatAttr(float64(t))
	case []any:
		arr := make([]Attr, 0, len(t))
		for _, e := range t {
			arr = append(arr, FromAny(e))
		}
		return ArrayAttr(arr)
	case map[string]any:
		// Nested maps aren't part of the attribute value grammar; render as
		// a string rather than silently dropping the data.
		return StringAttr(fmt.Sprintf("%v", t))
	default:
		return StringAttr(fmt.Sprintf("%v", t))
	}
}

// AsAny renders an Attr back into a dynamically-typed Go value, used by
// JSON/JSONL/CSV output formatting and by tests.
func (a Attr) AsAny() any {
	switch a.Kind {
	case AttrNull:
		return nil
	case AttrString:
		return a.Str
	case AttrInt:
		return a.Int
	case AttrFloat:
		return a.Float
	case AttrBool:
		return a.Bool
	case AttrArray:
		out := make([]any, 0, len(a.Arr))
		for _, e := range a.Arr {
			out = append(out, e.AsAny())
		}
		return out
	default:
		return nil
	}
}

// IsNull reports whether the attribute is absent/null, the value bracket
// access yields for a missing key (spec.md §3, §4.2).
func (a Attr) IsNull() bool { return a.Kind == AttrNull }
