// Package repository implements the composite repository described in
// SPEC_FULL.md §4.7: an ordered stack of part.Repository backends (Rows
// first, Files last, by convention) composed into one read/write/reserve
// surface, grounded on original_source's
// conveyor/core/Repository/Repository.py.
package repository

import (
	"context"
	"errors"
	"iter"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coldconveyor/conveyor/errs"
	"github.com/coldconveyor/conveyor/item"
	"github.com/coldconveyor/conveyor/part"
)

// Repository fans reads and writes out across an ordered sequence of
// parts. The zero value is not usable; construct one with New.
type Repository struct {
	parts         []part.Repository
	transactional bool
	newToken      func() string
	metrics       *metrics
}

// Option configures a Repository at construction time.
type Option func(*Repository)

// WithReservationToken overrides how Get mints the opaque token it
// reserves each yielded item under. The default generates a random UUID;
// tests that need a deterministic token can inject one here.
func WithReservationToken(f func() string) Option {
	return func(r *Repository) { r.newToken = f }
}

// WithMetrics registers a Repository's operation counters with reg. A nil
// reg (or not supplying this option) leaves metrics disabled.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *Repository) { r.metrics = newMetrics(reg) }
}

// New builds a Repository over parts, which must contain at least one
// element (SPEC_FULL.md §7's ValidationError case).
func New(parts []part.Repository, opts ...Option) (*Repository, error) {
	if len(parts) == 0 {
		return nil, errs.ValidationErrorf("repository must have at least one part")
	}
	r := &Repository{
		parts:    append([]part.Repository(nil), parts...),
		newToken: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Append stores it across every part, in reverse order so a blob exists
// before the row that references it, stripping any reserver the caller
// set: a freshly appended item is never pre-reserved.
func (r *Repository) Append(ctx context.Context, it item.Item) error {
	unreserved := it.WithReserver(item.Free())

	tx, commit, rollback, err := r.Transaction(ctx)
	if err != nil {
		return err
	}
	for i := len(tx.parts) - 1; i >= 0; i-- {
		if err := tx.parts[i].Append(ctx, unreserved); err != nil {
			rollback()
			r.metrics.record("append", err)
			return err
		}
	}
	err = commit()
	r.metrics.record("append", err)
	return err
}

// fanOut drives the cartesian-product assembly spec.md §9 describes:
// parts[0] yields partial Parts seeded from seed; each is fed as the seed
// to fanOut over parts[1:], bottoming out at a fully assembled Part once
// every part has contributed.
func fanOut(ctx context.Context, q item.Query, parts []part.Repository, seed item.Part) iter.Seq2[item.Part, error] {
	return func(yield func(item.Part, error) bool) {
		if len(parts) == 0 {
			yield(seed, nil)
			return
		}
		for p, err := range parts[0].Get(ctx, q, seed) {
			if err != nil {
				yield(item.Part{}, err)
				return
			}
			for out, outErr := range fanOut(ctx, q, parts[1:], p) {
				if !yield(out, outErr) {
					return
				}
				if outErr != nil {
					return
				}
			}
		}
	}
}

// Get streams every item matching q, reserving each one under a single
// fresh token as it is yielded: this is the reservation protocol of
// SPEC_FULL.md §4.7 and Testable Property 5. The caller's reserver
// constraint is overridden to Free, since only unreserved items are
// reservation candidates; a race that reserves a candidate first (zero
// rows affected on the conditional update) is not an error, it just means
// the next candidate is tried.
func (r *Repository) Get(ctx context.Context, q item.Query) iter.Seq2[item.Item, error] {
	return func(yield func(item.Item, error) bool) {
		freeQuery := q
		freeQuery.Mask.Reserver = item.Free()
		token := item.Token(r.newToken())

		got := 0
		for p, err := range fanOut(ctx, freeQuery, r.parts, item.Part{}) {
			if err != nil {
				r.metrics.record("get", err)
				yield(item.Item{}, err)
				return
			}
			candidate, ok := p.Complete()
			if !ok {
				err := errs.New(errs.StorageBackend, "assembled part is missing a required field")
				r.metrics.record("get", err)
				yield(item.Item{}, err)
				return
			}

			reserved := candidate.WithReserver(token)
			if err := r.Setitem(ctx, candidate, reserved); err != nil {
				if errs.Is(err, errs.NotFound) {
					continue
				}
				r.metrics.record("get", err)
				yield(item.Item{}, err)
				return
			}

			if !yield(reserved, nil) {
				return
			}
			got++
			if q.Limit != nil && got >= *q.Limit {
				r.metrics.record("get", nil)
				return
			}
		}
		r.metrics.record("get", nil)
	}
}

// Contains reports whether any item matches q, without reserving
// anything.
func (r *Repository) Contains(ctx context.Context, q item.Query) (bool, error) {
	for p, err := range fanOut(ctx, q, r.parts, item.Part{}) {
		if err != nil {
			r.metrics.record("contains", err)
			return false, err
		}
		if _, ok := p.Complete(); ok {
			r.metrics.record("contains", nil)
			return true, nil
		}
	}
	r.metrics.record("contains", nil)
	return false, nil
}

// Setitem updates old to new across every part, in reverse order, inside
// one transaction. A part reporting ErrUnsupported (it has nothing
// mutable in place, e.g. Files) is skipped, not treated as a failure.
func (r *Repository) Setitem(ctx context.Context, old, new item.Item) error {
	tx, commit, rollback, err := r.Transaction(ctx)
	if err != nil {
		return err
	}
	for i := len(tx.parts) - 1; i >= 0; i-- {
		if err := tx.parts[i].Setitem(ctx, old, new); err != nil {
			if errors.Is(err, part.ErrUnsupported) {
				continue
			}
			rollback()
			r.metrics.record("setitem", err)
			return err
		}
	}
	err = commit()
	r.metrics.record("setitem", err)
	return err
}

// Delitem removes it from every part, in reverse order, inside one
// transaction. Once a part reports NotFound, the remaining parts are
// skipped — the item is already gone further down the chain — and
// whatever succeeded so far is committed.
func (r *Repository) Delitem(ctx context.Context, it item.Item) error {
	tx, commit, rollback, err := r.Transaction(ctx)
	if err != nil {
		return err
	}
	for i := len(tx.parts) - 1; i >= 0; i-- {
		if err := tx.parts[i].Delitem(ctx, it); err != nil {
			if errs.Is(err, errs.NotFound) {
				break
			}
			rollback()
			r.metrics.record("delitem", err)
			return err
		}
	}
	err = commit()
	r.metrics.record("delitem", err)
	return err
}

// Transaction opens a transaction on every part, left to right, rolling
// back whichever already opened if a later part fails to open one. A
// nested call on an already-transactional Repository returns the same
// handle with no-op commit/rollback.
func (r *Repository) Transaction(ctx context.Context) (*Repository, func() error, func(), error) {
	if r.transactional {
		return r, func() error { return nil }, func() {}, nil
	}

	txParts := make([]part.Repository, 0, len(r.parts))
	commits := make([]func() error, 0, len(r.parts))
	rollbacks := make([]func(), 0, len(r.parts))

	rollbackOpened := func() {
		for i := len(rollbacks) - 1; i >= 0; i-- {
			rollbacks[i]()
		}
	}

	for _, p := range r.parts {
		txp, commit, rollback, err := p.Transaction(ctx)
		if err != nil {
			rollbackOpened()
			return nil, nil, nil, err
		}
		txParts = append(txParts, txp)
		commits = append(commits, commit)
		rollbacks = append(rollbacks, rollback)
	}

	clone := &Repository{parts: txParts, transactional: true, newToken: r.newToken, metrics: r.metrics}

	commitAll := func() error {
		for i, c := range commits {
			if err := c(); err != nil {
				for j := len(rollbacks) - 1; j > i; j-- {
					rollbacks[j]()
				}
				if i == 0 {
					return err
				}
				return errs.Wrap(errs.PartialCommit, err, "commit part %d of %d", i+1, len(commits))
			}
		}
		return nil
	}
	rollbackAll := func() { rollbackOpened() }

	return clone, commitAll, rollbackAll, nil
}

// Len reports the largest count among the parts, mirroring the source's
// max(len(p) for p in parts): a part diffing from the others (e.g. a
// schema not yet migrated) never makes the repository under-report.
func (r *Repository) Len(ctx context.Context, kind item.Kind) (int, error) {
	max := 0
	for _, p := range r.parts {
		n, err := p.Len(ctx, kind)
		if err != nil {
			r.metrics.record("len", err)
			return 0, err
		}
		if n > max {
			max = n
		}
	}
	r.metrics.record("len", nil)
	return max, nil
}

// Clear empties every part of kind, inside one transaction.
func (r *Repository) Clear(ctx context.Context, kind item.Kind) error {
	tx, commit, rollback, err := r.Transaction(ctx)
	if err != nil {
		return err
	}
	for _, p := range tx.parts {
		if err := p.Clear(ctx, kind); err != nil {
			rollback()
			r.metrics.record("clear", err)
			return err
		}
	}
	err = commit()
	r.metrics.record("clear", err)
	return err
}
