// Package part defines the interface each storage backend plugs into a
// composite repository through, grounded on original_source's
// PartRepository abstract base and its two concrete subclasses, Rows and
// the (unkept in this pack) Files wrapper.
package part

import (
	"context"
	"errors"
	"iter"

	"github.com/coldconveyor/conveyor/item"
)

// ErrUnsupported is returned by a backend's Setitem when that backend has
// no notion of an in-place update, mirroring PartRepository.__setitem__'s
// default NotImplementedError. The composite repository treats it as
// "skip this part", not as a failure.
var ErrUnsupported = errors.New("part: operation not supported by this backend")

// Repository is one layer of a composite repository: Files stores payload
// bytes, Rows stores everything else. Every method takes the full Item (or
// Query) the caller sees; each backend reads or writes only the slice of
// it that belongs to it.
type Repository interface {
	// Append stores it. reverse order across parts is the composite's
	// responsibility, not this interface's.
	Append(ctx context.Context, it item.Item) error

	// Get yields every Part this backend can contribute given accumulator
	// (already filled in by earlier parts in the composite's chain) and
	// q. A backend that doesn't constrain by query (Files) ignores q.Mask.
	Get(ctx context.Context, q item.Query, accumulator item.Part) iter.Seq2[item.Part, error]

	// Setitem updates old to new. Returns ErrUnsupported if this backend
	// has no mutable in-place fields (e.g. Files: blobs are content
	// addressed, never rewritten in place).
	Setitem(ctx context.Context, old, new item.Item) error

	// Delitem removes it. Returns a NotFound errs.Error if absent.
	Delitem(ctx context.Context, it item.Item) error

	// Contains reports whether any item matching q exists in this backend.
	Contains(ctx context.Context, q item.Query) (bool, error)

	// Transaction returns a handle bound to a new transaction, alongside
	// explicit commit/rollback closures. Nested calls on an
	// already-transactional handle return the same handle with no-op
	// commit/rollback.
	Transaction(ctx context.Context) (Repository, func() error, func(), error)

	// Len reports how many entries of kind this backend currently holds.
	Len(ctx context.Context, kind item.Kind) (int, error)

	// Clear removes every entry of kind from this backend.
	Clear(ctx context.Context, kind item.Kind) error
}
