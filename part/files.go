package part

import (
	"context"
	"iter"

	"github.com/coldconveyor/conveyor/files"
	"github.com/coldconveyor/conveyor/item"
)

// Files adapts a *files.Store to the Repository interface. It is
// content-addressed and kind-agnostic: every operation keys off an item's
// digest alone, so Len/Clear's kind argument is accepted (to satisfy
// Repository) but unused.
type Files struct {
	store *files.Store
}

// NewFiles wraps store as a Repository.
func NewFiles(store *files.Store) *Files {
	return &Files{store: store}
}

func (f *Files) Append(ctx context.Context, it item.Item) error {
	return f.store.Append(ctx, it.Data)
}

// Get ignores q entirely: Files has no columns to filter on. It yields
// exactly one Part, with Data filled in from accumulator.Digest when that
// field has already been set by an earlier part in the composite's chain
// (the Rows-like parts run first, per SPEC_FULL.md §4.7's part ordering).
func (f *Files) Get(ctx context.Context, q item.Query, accumulator item.Part) iter.Seq2[item.Part, error] {
	return func(yield func(item.Part, error) bool) {
		if accumulator.Digest == nil {
			yield(accumulator, nil)
			return
		}
		d, err := f.store.Get(ctx, *accumulator.Digest)
		if err != nil {
			yield(item.Part{}, err)
			return
		}
		yield(accumulator.WithData(d), nil)
	}
}

// Setitem is unsupported: a blob is addressed by the digest of its own
// bytes, so there is nothing to update in place short of appending a new
// blob under a new digest, which is Append's job.
func (f *Files) Setitem(context.Context, item.Item, item.Item) error {
	return ErrUnsupported
}

func (f *Files) Delitem(ctx context.Context, it item.Item) error {
	return f.store.Delete(ctx, it.Digest())
}

func (f *Files) Contains(ctx context.Context, q item.Query) (bool, error) {
	if q.Mask.Digest == nil {
		return false, nil
	}
	return f.store.Contains(ctx, *q.Mask.Digest)
}

func (f *Files) Transaction(ctx context.Context) (Repository, func() error, func(), error) {
	txStore, commit, rollback, err := f.store.Transaction(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	if txStore == f.store {
		return f, commit, rollback, nil
	}
	return &Files{store: txStore}, commit, rollback, nil
}

func (f *Files) Len(ctx context.Context, _ item.Kind) (int, error) {
	return f.store.Len(ctx)
}

func (f *Files) Clear(ctx context.Context, _ item.Kind) error {
	return f.store.Clear(ctx)
}
