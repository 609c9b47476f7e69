package item

import (
	"time"

	"github.com/coldconveyor/conveyor/errs"
)

// Enumerable is a string-valued metadata entry eligible for interning by
// the Rows layer's enum cache. It is a distinct type from string so the
// Rows core can tell "intern this" apart from "store this verbatim".
type Enumerable string

// Value is the closed set of types a Metadata entry may hold: string,
// int64, float64, time.Time (no timezone), or Enumerable. The empty string
// and the zero time are legal values.
type Value interface {
	isValue()
}

type stringValue string
type intValue int64
type floatValue float64
type timeValue time.Time
type enumValue Enumerable

func (stringValue) isValue() {}
func (intValue) isValue()    {}
func (floatValue) isValue()  {}
func (timeValue) isValue()   {}
func (enumValue) isValue()   {}

// StringValue wraps a plain string as a Value.
func StringValue(s string) Value { return stringValue(s) }

// IntValue wraps an int64 as a Value.
func IntValue(i int64) Value { return intValue(i) }

// FloatValue wraps a float64 as a Value.
func FloatValue(f float64) Value { return floatValue(f) }

// TimeValue wraps a time.Time as a Value.
func TimeValue(t time.Time) Value { return timeValue(t) }

// EnumValue wraps an Enumerable as a Value, marking it for interning.
func EnumValue(e Enumerable) Value { return enumValue(e) }

// AsString returns (s, true) if v holds a plain string.
func AsString(v Value) (string, bool) { s, ok := v.(stringValue); return string(s), ok }

// AsInt returns (i, true) if v holds an int64.
func AsInt(v Value) (int64, bool) { i, ok := v.(intValue); return int64(i), ok }

// AsFloat returns (f, true) if v holds a float64.
func AsFloat(v Value) (float64, bool) { f, ok := v.(floatValue); return float64(f), ok }

// AsTime returns (t, true) if v holds a time.Time.
func AsTime(v Value) (time.Time, bool) { t, ok := v.(timeValue); return time.Time(t), ok }

// AsEnumerable returns (e, true) if v holds an Enumerable.
func AsEnumerable(v Value) (Enumerable, bool) { e, ok := v.(enumValue); return Enumerable(e), ok }

// ValueKind identifies which of the five Value variants a Value holds,
// letting callers outside this package (notably the Rows layer's table
// manager, choosing a SQL column type) switch on it without an As*
// probe chain.
type ValueKind int

const (
	StringKind ValueKind = iota
	IntKind
	FloatKind
	TimeKind
	EnumKind
)

// KindOf reports which variant v holds.
func KindOf(v Value) ValueKind {
	switch v.(type) {
	case stringValue:
		return StringKind
	case intValue:
		return IntKind
	case floatValue:
		return FloatKind
	case timeValue:
		return TimeKind
	case enumValue:
		return EnumKind
	default:
		panic("item: unknown Value variant")
	}
}

// Equal reports whether two Values hold the same dynamic type and content.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case stringValue:
		bv, ok := b.(stringValue)
		return ok && av == bv
	case intValue:
		bv, ok := b.(intValue)
		return ok && av == bv
	case floatValue:
		bv, ok := b.(floatValue)
		return ok && av == bv
	case timeValue:
		bv, ok := b.(timeValue)
		return ok && time.Time(av).Equal(time.Time(bv))
	case enumValue:
		bv, ok := b.(enumValue)
		return ok && av == bv
	default:
		return false
	}
}

// Metadata is an unordered mapping from Word keys to Values. Keys must not
// collide with the reserved field names status/digest/chain/created/
// reserver.
type Metadata map[Key]Value

// NewMetadata validates that no key collides with a reserved field name.
func NewMetadata(fields map[Key]Value) (Metadata, error) {
	for k := range fields {
		if _, reserved := ReservedKeys[k]; reserved {
			return nil, errs.ValidationErrorf("metadata key %q is reserved", k)
		}
	}
	out := make(Metadata, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out, nil
}

// Equal reports whether two Metadata maps hold the same keys and Values.
func (m Metadata) Equal(other Metadata) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		ov, ok := other[k]
		if !ok || !Equal(v, ov) {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy of m.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
