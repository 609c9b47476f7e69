// Package data implements Data, the immutable byte container every Item
// carries as its payload.
package data

import (
	"github.com/coldconveyor/conveyor/digest"
	"github.com/coldconveyor/conveyor/errs"
)

// Data is an immutable byte sequence with a derived digest.
type Data struct {
	value []byte
	dg    digest.Digest
}

// New constructs a Data from value. If expected is non-nil, construction
// fails unless the computed digest matches it — this is the "assertion"
// post-construction check SPEC_FULL.md §3 describes.
func New(value []byte, expected *digest.Digest) (Data, error) {
	dg := digest.Of(value)
	if expected != nil && !dg.Equal(*expected) {
		return Data{}, errs.ValidationErrorf("data: digest mismatch: computed %s, expected %s", dg, *expected)
	}
	v := make([]byte, len(value))
	copy(v, value)
	return Data{value: v, dg: dg}, nil
}

// Of constructs a Data with no digest assertion. It never fails.
func Of(value []byte) Data {
	d, _ := New(value, nil)
	return d
}

// Empty is the Data value for the empty byte sequence.
var Empty = Of(nil)

// Value returns a copy of the underlying bytes.
func (d Data) Value() []byte {
	out := make([]byte, len(d.value))
	copy(out, d.value)
	return out
}

// Digest returns the digest of Value().
func (d Data) Digest() digest.Digest { return d.dg }

// String decodes Value() as UTF-8 text.
func (d Data) String() string { return string(d.value) }

// IsEmpty reports whether d holds the empty byte sequence.
func (d Data) IsEmpty() bool { return len(d.value) == 0 }

// Equal reports whether two Data values hold identical bytes.
func (d Data) Equal(other Data) bool {
	return d.dg.Equal(other.dg) && string(d.value) == string(other.value)
}
