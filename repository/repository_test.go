package repository_test

import (
	"context"
	"iter"
	"testing"
	"time"

	"github.com/coldconveyor/conveyor/data"
	"github.com/coldconveyor/conveyor/errs"
	"github.com/coldconveyor/conveyor/item"
	"github.com/coldconveyor/conveyor/part"
	"github.com/coldconveyor/conveyor/repository"
)

// fakePart is an in-memory part.Repository keyed by digest, used to drive
// the composite's fan-out, reservation and transaction logic without a real
// Rows or Files backend underneath.
type fakePart struct {
	rows           map[string]item.Row
	txDepth        int
	setitemUnsupported bool
	failSetitemOnce    bool
}

func newFakePart() *fakePart { return &fakePart{rows: map[string]item.Row{}} }

func (f *fakePart) Append(_ context.Context, it item.Item) error {
	f.rows[it.Digest().String()] = it.Row()
	return nil
}

func (f *fakePart) Get(_ context.Context, q item.Query, accumulator item.Part) iter.Seq2[item.Part, error] {
	return func(yield func(item.Part, error) bool) {
		for _, row := range f.rows {
			if !q.Mask.Matches(row) {
				continue
			}
			if !yield(accumulator.WithRow(row), nil) {
				return
			}
		}
	}
}

func (f *fakePart) Setitem(_ context.Context, old, new item.Item) error {
	if f.setitemUnsupported {
		return part.ErrUnsupported
	}
	key := old.Digest().String()
	if _, ok := f.rows[key]; !ok {
		return errs.NotFoundf("item %s", key)
	}
	if f.failSetitemOnce {
		f.failSetitemOnce = false
		return errs.NotFoundf("lost the race for %s", key)
	}
	delete(f.rows, key)
	f.rows[new.Digest().String()] = new.Row()
	return nil
}

func (f *fakePart) Delitem(_ context.Context, it item.Item) error {
	key := it.Digest().String()
	if _, ok := f.rows[key]; !ok {
		return errs.NotFoundf("item %s", key)
	}
	delete(f.rows, key)
	return nil
}

func (f *fakePart) Contains(_ context.Context, q item.Query) (bool, error) {
	for _, row := range f.rows {
		if q.Mask.Matches(row) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePart) Transaction(context.Context) (part.Repository, func() error, func(), error) {
	f.txDepth++
	committed := false
	commit := func() error { committed = true; return nil }
	rollback := func() {
		if !committed {
			f.txDepth--
		}
	}
	return f, commit, rollback, nil
}

func (f *fakePart) Len(_ context.Context, _ item.Kind) (int, error) { return len(f.rows), nil }

func (f *fakePart) Clear(_ context.Context, _ item.Kind) error {
	f.rows = map[string]item.Row{}
	return nil
}

func sampleItem(payload string) item.Item {
	return item.New(
		item.Kind("blob"), item.Status("pending"), data.Of([]byte(payload)),
		item.Metadata{}, item.NewChain("c1"), time.Now(), item.Free(),
	)
}

func TestNewRejectsEmptyParts(t *testing.T) {
	if _, err := repository.New(nil); !errs.Is(err, errs.ValidationError) {
		t.Fatalf("expected a ValidationError, got %v", err)
	}
}

func TestAppendStripsReserverAndFansOutToEveryPart(t *testing.T) {
	a, b := newFakePart(), newFakePart()
	repo, err := repository.New([]part.Repository{a, b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	it := sampleItem("hello").WithReserver(item.Token("should-be-dropped"))
	if err := repo.Append(context.Background(), it); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, p := range []*fakePart{a, b} {
		row, ok := p.rows[it.Digest().String()]
		if !ok {
			t.Fatalf("expected the item to be appended to every part")
		}
		if !row.Reserver.IsFree() {
			t.Fatalf("expected Append to strip the reserver before fan-out")
		}
	}
}

func TestGetReservesYieldedItemsUnderOneToken(t *testing.T) {
	a := newFakePart()
	it := sampleItem("reserve-me")
	_ = a.Append(context.Background(), it)

	repo, err := repository.New([]part.Repository{a}, repository.WithReservationToken(func() string { return "tok-fixed" }))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []item.Item
	for out, err := range repo.Get(context.Background(), item.NewQuery(item.NewMask(item.Kind("blob")))) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, out)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one yielded item, got %d", len(got))
	}
	tok, ok := got[0].Reserver.TokenValue()
	if !ok || tok != "tok-fixed" {
		t.Fatalf("expected the yielded item reserved under tok-fixed, got %+v", got[0].Reserver)
	}

	row := a.rows[it.Digest().String()]
	rtok, ok := row.Reserver.TokenValue()
	if !ok || rtok != "tok-fixed" {
		t.Fatalf("expected the backing row to carry the reservation too")
	}
}

func TestGetSkipsCandidatesLostToARace(t *testing.T) {
	a := newFakePart()
	it := sampleItem("raced")
	_ = a.Append(context.Background(), it)
	a.failSetitemOnce = true

	repo, err := repository.New([]part.Repository{a})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count := 0
	for _, err := range repo.Get(context.Background(), item.NewQuery(item.NewMask(item.Kind("blob")))) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		count++
	}
	if count != 0 {
		t.Fatalf("expected the raced candidate to be skipped, not yielded, got %d", count)
	}
}

func TestGetRespectsLimit(t *testing.T) {
	a := newFakePart()
	_ = a.Append(context.Background(), sampleItem("one"))
	_ = a.Append(context.Background(), sampleItem("two"))
	_ = a.Append(context.Background(), sampleItem("three"))

	repo, err := repository.New([]part.Repository{a})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q, err := item.NewQuery(item.NewMask(item.Kind("blob"))).WithLimit(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count := 0
	for _, err := range repo.Get(context.Background(), q) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		count++
	}
	if count != 2 {
		t.Fatalf("expected Get to stop at the limit, got %d", count)
	}
}

func TestSetitemSkipsPartsReportingUnsupported(t *testing.T) {
	rowsPart := newFakePart()
	filesPart := newFakePart()
	filesPart.setitemUnsupported = true

	it := sampleItem("mutate-me")
	_ = rowsPart.Append(context.Background(), it)
	_ = filesPart.Append(context.Background(), it)

	repo, err := repository.New([]part.Repository{rowsPart, filesPart})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated := it.WithStatus(item.Status("done"))
	if err := repo.Setitem(context.Background(), it, updated); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row, ok := rowsPart.rows[it.Digest().String()]; !ok || row.Status != item.Status("done") {
		t.Fatalf("expected rowsPart to have applied the update")
	}
}

func TestDelitemStopsAtFirstNotFoundButStillCommits(t *testing.T) {
	deep, shallow := newFakePart(), newFakePart()
	it := sampleItem("half-present")
	_ = deep.Append(context.Background(), it)
	// shallow never got it: simulates a partially-written item. deep is the
	// last part, which Delitem (like Append) visits first.

	repo, err := repository.New([]part.Repository{shallow, deep})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := repo.Delitem(context.Background(), it); err != nil {
		t.Fatalf("expected Delitem to tolerate a NotFound on one part, got %v", err)
	}
	if _, ok := deep.rows[it.Digest().String()]; ok {
		t.Fatalf("expected the deepest part to still be cleared")
	}
}

func TestContainsDoesNotReserve(t *testing.T) {
	a := newFakePart()
	it := sampleItem("peek")
	_ = a.Append(context.Background(), it)

	repo, err := repository.New([]part.Repository{a})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := repo.Contains(context.Background(), item.NewQuery(item.NewMask(item.Kind("blob"))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected Contains to report true")
	}
	row := a.rows[it.Digest().String()]
	if !row.Reserver.IsFree() {
		t.Fatalf("expected Contains to leave the row unreserved")
	}
}

func TestLenReportsMaxAcrossParts(t *testing.T) {
	a, b := newFakePart(), newFakePart()
	_ = a.Append(context.Background(), sampleItem("only-in-a"))
	_ = b.Append(context.Background(), sampleItem("in-b-1"))
	_ = b.Append(context.Background(), sampleItem("in-b-2"))

	repo, err := repository.New([]part.Repository{a, b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, err := repo.Len(context.Background(), item.Kind("blob"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected the max across parts (2), got %d", n)
	}
}

func TestClearEmptiesEveryPart(t *testing.T) {
	a, b := newFakePart(), newFakePart()
	_ = a.Append(context.Background(), sampleItem("x"))
	_ = b.Append(context.Background(), sampleItem("y"))

	repo, err := repository.New([]part.Repository{a, b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Clear(context.Background(), item.Kind("blob")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.rows) != 0 || len(b.rows) != 0 {
		t.Fatalf("expected Clear to empty every part")
	}
}

func TestTransactionNestedReturnsSameHandle(t *testing.T) {
	a := newFakePart()
	repo, err := repository.New([]part.Repository{a})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tx, commit, _, err := repo.Transaction(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	nested, nestedCommit, nestedRollback, err := tx.Transaction(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nested != tx {
		t.Fatalf("expected a nested Transaction call to return the same handle")
	}
	if err := nestedCommit(); err != nil {
		t.Fatalf("expected nested commit to be a no-op, got %v", err)
	}
	nestedRollback()
	if err := commit(); err != nil {
		t.Fatalf("unexpected error committing: %v", err)
	}
}
