package enumcache_test

import (
	"context"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgproto3/v2"
	"github.com/jackc/pgx/v4"

	"github.com/coldconveyor/conveyor/enumcache"
	"github.com/coldconveyor/conveyor/item"
)

// fakeConn (with its fakeScanRow and fakeRows results) implements just enough of enumcache.Conn to exercise
// the intern/resolve protocol without a live Postgres connection.
type enumRow struct {
	value       int32
	description string
}

type fakeConn struct {
	table []enumRow
	next  int32
}

func (c *fakeConn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return &fakeRows{rows: append([]enumRow(nil), c.table...)}, nil
}

func (c *fakeConn) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	c.next++
	description := args[0].(string)
	c.table = append(c.table, enumRow{value: c.next, description: description})
	return fakeScanRow{value: c.next}
}

func (c *fakeConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag("CREATE TABLE"), nil
}

type fakeScanRow struct{ value int32 }

func (r fakeScanRow) Scan(dest ...any) error {
	*dest[0].(*int32) = r.value
	return nil
}

type fakeRows struct {
	rows []enumRow
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return "" }
func (r *fakeRows) FieldDescriptions() []pgproto3.FieldDescription { return nil }
func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}
func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	*dest[0].(*int32) = row.value
	*dest[1].(*string) = row.description
	return nil
}
func (r *fakeRows) Values() ([]any, error) { return nil, nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }

func TestInternAssignsAndReusesValues(t *testing.T) {
	ctx := context.Background()
	c := enumcache.Init("test-intern")
	defer enumcache.Teardown("test-intern")

	conn := &fakeConn{}

	v1, err := c.Intern(ctx, "conveyor_enum_x", conn, item.Enumerable("red"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v2, err := c.Intern(ctx, "conveyor_enum_x", conn, item.Enumerable("red"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v1 != v2 {
		t.Fatalf("expected interning the same description twice to return the same value, got %d and %d", v1, v2)
	}

	v3, err := c.Intern(ctx, "conveyor_enum_x", conn, item.Enumerable("blue"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v3 == v1 {
		t.Fatalf("expected distinct descriptions to receive distinct values")
	}
}

func TestResolveRoundTripsInternedValue(t *testing.T) {
	ctx := context.Background()
	c := enumcache.Init("test-resolve")
	defer enumcache.Teardown("test-resolve")

	conn := &fakeConn{}

	v, err := c.Intern(ctx, "conveyor_enum_y", conn, item.Enumerable("green"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e, err := c.Resolve(ctx, "conveyor_enum_y", conn, v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e != "green" {
		t.Fatalf("expected to resolve back to 'green', got %q", e)
	}
}

func TestLookupReflectsInitAndTeardown(t *testing.T) {
	enumcache.Init("test-lookup")
	if _, ok := enumcache.Lookup("test-lookup"); !ok {
		t.Fatalf("expected cache to be registered after Init")
	}
	enumcache.Teardown("test-lookup")
	if _, ok := enumcache.Lookup("test-lookup"); ok {
		t.Fatalf("expected cache to be gone after Teardown")
	}
}
