package part

import (
	"context"
	"iter"

	"github.com/coldconveyor/conveyor/item"
	"github.com/coldconveyor/conveyor/rows"
)

// Rows adapts a *rows.Store to the Repository interface, grounded on
// original_source's Rows(PartRepository) wrapper: every method here is a
// thin translation between item.Item/item.Row and the rows.Store calls
// that already implement the real behavior.
type Rows struct {
	store *rows.Store
}

// NewRows wraps store as a Repository.
func NewRows(store *rows.Store) *Rows {
	return &Rows{store: store}
}

func (r *Rows) Append(ctx context.Context, it item.Item) error {
	return r.store.Add(ctx, it)
}

func (r *Rows) Get(ctx context.Context, q item.Query, accumulator item.Part) iter.Seq2[item.Part, error] {
	return func(yield func(item.Part, error) bool) {
		for row, err := range r.store.Get(ctx, q) {
			if err != nil {
				yield(item.Part{}, err)
				return
			}
			if !yield(accumulator.WithRow(row), nil) {
				return
			}
		}
	}
}

func (r *Rows) Setitem(ctx context.Context, old, new item.Item) error {
	return r.store.Setitem(ctx, old.Row(), new.Row())
}

func (r *Rows) Delitem(ctx context.Context, it item.Item) error {
	return r.store.Delitem(ctx, it.Row())
}

func (r *Rows) Contains(ctx context.Context, q item.Query) (bool, error) {
	return r.store.Contains(ctx, q)
}

func (r *Rows) Transaction(ctx context.Context) (Repository, func() error, func(), error) {
	txStore, commit, rollback, err := r.store.Transaction(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	if txStore == r.store {
		return r, commit, rollback, nil
	}
	return &Rows{store: txStore}, commit, rollback, nil
}

func (r *Rows) Len(ctx context.Context, kind item.Kind) (int, error) {
	return r.store.Len(ctx, kind)
}

func (r *Rows) Clear(ctx context.Context, kind item.Kind) error {
	return r.store.Clear(ctx, kind)
}
