// Package digest implements content addressing for Conveyor items. A Digest
// is a fixed-width BLAKE3 hash of a byte sequence, plus a canonical textual
// form used to derive filesystem paths and database column values.
package digest

import (
	"encoding/base64"
	"fmt"

	"lukechampine.com/blake3"
)

// Size is the width, in bytes, of a Digest.
const Size = 32

// Digest is a BLAKE3-256 content hash. The zero value is not a valid digest
// of any data; use Of or Empty.
type Digest struct {
	bytes [Size]byte
}

// Empty is the digest of the empty byte sequence. Files never stores a blob
// for this digest — it is a sentinel for "no payload".
var Empty = Of(nil)

// Of hashes value with BLAKE3-256 and returns the resulting Digest.
func Of(value []byte) Digest {
	var d Digest
	sum := blake3.Sum256(value)
	d.bytes = sum
	return d
}

// FromBytes wraps an already-computed 32-byte hash. It returns an error if b
// is not exactly Size bytes long.
func FromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != Size {
		return d, errInvalidLength(len(b))
	}
	copy(d.bytes[:], b)
	return d, nil
}

// FromString parses the canonical base64 textual form produced by String.
func FromString(s string) (Digest, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Digest{}, err
	}
	return FromBytes(b)
}

// Bytes returns a copy of the underlying 32 bytes.
func (d Digest) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, d.bytes[:])
	return out
}

// String returns the canonical base64 textual form of the digest. Two
// digests are equal iff their bytes are equal, which holds iff their
// strings are equal.
func (d Digest) String() string {
	return base64.StdEncoding.EncodeToString(d.bytes[:])
}

// Equal reports whether d and other hash the same bytes.
func (d Digest) Equal(other Digest) bool {
	return d.bytes == other.bytes
}

// IsEmpty reports whether d is the digest of the empty byte sequence.
func (d Digest) IsEmpty() bool {
	return d.Equal(Empty)
}

type errInvalidLength int

func (e errInvalidLength) Error() string {
	return fmt.Sprintf("digest: expected %d bytes, got %d", Size, int(e))
}
