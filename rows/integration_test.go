//go:build conveyor_postgres

package rows

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/coldconveyor/conveyor/data"
	"github.com/coldconveyor/conveyor/enumcache"
	"github.com/coldconveyor/conveyor/item"
)

// connectForIntegrationTest dials the Postgres-compatible instance named by
// CONVEYOR_TEST_DATABASE_URL, skipping when it isn't set so `go test ./...`
// without the conveyor_postgres tag (and without a live database) still
// runs the fake-Conn unit suite in store_test.go/table_test.go.
func connectForIntegrationTest(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("CONVEYOR_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CONVEYOR_TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.Connect(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func freshStoreForTest(t *testing.T, pool *pgxpool.Pool, kind item.Kind) *Store {
	t.Helper()
	ctx := context.Background()
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+tableName(kind)); err != nil {
		t.Fatalf("drop table %s: %v", tableName(kind), err)
	}
	enumcache.Teardown(t.Name())
	return New(pool, t.Name())
}

func TestStoreAgainstRealPostgresRoundTripsAnItem(t *testing.T) {
	pool := connectForIntegrationTest(t)
	ctx := context.Background()
	kind := item.Kind("integration_blob")
	s := freshStoreForTest(t, pool, kind)

	it := item.New(
		kind,
		item.Status("pending"),
		data.Empty,
		item.Metadata{"label": item.StringValue("first")},
		item.NewChain("c1"),
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		item.Free(),
	)
	if err := s.Add(ctx, it); err != nil {
		t.Fatalf("add: %v", err)
	}

	mask := item.NewMask(kind)
	var found []item.Row
	for row, err := range s.Get(ctx, item.Query{Mask: mask}) {
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		found = append(found, row)
	}
	if len(found) != 1 {
		t.Fatalf("got %d rows, want 1", len(found))
	}
	if found[0].Metadata["label"] != item.StringValue("first") {
		t.Fatalf("got label %v, want %q", found[0].Metadata["label"], "first")
	}

	updated := found[0]
	updated.Status = item.Status("done")
	if err := s.Setitem(ctx, found[0], updated); err != nil {
		t.Fatalf("setitem: %v", err)
	}

	ok, err := s.Contains(ctx, item.Query{Mask: item.NewMask(kind).WithStatus(item.Status("done"))})
	if err != nil {
		t.Fatalf("contains: %v", err)
	}
	if !ok {
		t.Fatalf("expected a row with status done after setitem")
	}

	if err := s.Delitem(ctx, updated); err != nil {
		t.Fatalf("delitem: %v", err)
	}
	n, err := s.Len(ctx, kind)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 0 {
		t.Fatalf("len after delitem = %d, want 0", n)
	}
}

func TestStoreAgainstRealPostgresMigratesSchemaOnNewMetadataKey(t *testing.T) {
	pool := connectForIntegrationTest(t)
	ctx := context.Background()
	kind := item.Kind("integration_migrate")
	s := freshStoreForTest(t, pool, kind)

	first := item.New(kind, item.Status("pending"), data.Empty,
		item.Metadata{"a": item.StringValue("x")}, item.NewChain("c1"),
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), item.Free())
	if err := s.Add(ctx, first); err != nil {
		t.Fatalf("add first: %v", err)
	}

	second := item.New(kind, item.Status("pending"), data.Empty,
		item.Metadata{"a": item.StringValue("y"), "b": item.IntValue(7)}, item.NewChain("c2"),
		time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), item.Free())
	if err := s.Add(ctx, second); err != nil {
		t.Fatalf("add second (should ALTER TABLE to add column b): %v", err)
	}

	n, err := s.Len(ctx, kind)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 2 {
		t.Fatalf("len = %d, want 2", n)
	}
}

func TestStoreWithTransactionRetriesOnRealPostgres(t *testing.T) {
	pool := connectForIntegrationTest(t)
	ctx := context.Background()
	kind := item.Kind("integration_txn")
	s := freshStoreForTest(t, pool, kind)

	err := s.WithTransaction(ctx, func(tx *Store) error {
		return tx.Add(ctx, item.New(kind, item.Status("pending"), data.Empty,
			item.Metadata{}, item.NewChain("c1"),
			time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), item.Free()))
	})
	if err != nil {
		t.Fatalf("WithTransaction: %v", err)
	}

	n, err := s.Len(ctx, kind)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 1 {
		t.Fatalf("len = %d, want 1", n)
	}
}
