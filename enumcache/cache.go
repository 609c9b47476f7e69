// Package enumcache implements the process-wide enum interning cache
// described in SPEC_FULL.md §4.3. Low-cardinality Enumerable metadata
// values are interned to small integers backed by a `_conveyor_enum_*`
// table; the in-memory bimap is reloaded from that table on a cache miss
// and swapped in atomically so a concurrent reader never observes a torn
// snapshot.
//
// Unlike a typical singleton, the cache is never reached through an
// unexported package-level global: callers construct one explicitly with
// Init and pass it down, per spec.md §9's instruction that cache lifetime
// be caller-owned.
package enumcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"github.com/coldconveyor/conveyor/errs"
	"github.com/coldconveyor/conveyor/item"
)

// Conn is the subset of a pgx connection or transaction enumcache needs.
// It is declared locally (rather than imported from package rows) so the
// two packages can depend on each other in one direction only: rows holds
// a *Cache, enumcache never imports rows.
type Conn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// bimap is an immutable snapshot of one enum table's value<->description
// mapping. Cache never mutates a bimap in place; Load builds a new one and
// swaps it in.
type bimap struct {
	valueOf       map[item.Enumerable]int32
	descriptionOf map[int32]item.Enumerable
}

func emptyBimap() *bimap {
	return &bimap{
		valueOf:       map[item.Enumerable]int32{},
		descriptionOf: map[int32]item.Enumerable{},
	}
}

// Cache holds one bimap per enum table, each swapped via atomic.Pointer so
// Intern/Resolve never block behind a concurrent Load.
type Cache struct {
	mu     sync.Mutex // guards creation of new per-table slots only
	tables map[string]*atomic.Pointer[bimap]
}

func newCache() *Cache {
	return &Cache{tables: map[string]*atomic.Pointer[bimap]{}}
}

func (c *Cache) slot(table string) *atomic.Pointer[bimap] {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.tables[table]
	if !ok {
		p = &atomic.Pointer[bimap]{}
		p.Store(emptyBimap())
		c.tables[table] = p
	}
	return p
}

func (c *Cache) snapshot(table string) *bimap {
	return c.slot(table).Load()
}

// Load reads every row of table and replaces its bimap wholesale.
func (c *Cache) Load(ctx context.Context, table string, conn Conn) error {
	rows, err := conn.Query(ctx, "SELECT value, description FROM "+table)
	if err != nil {
		return errs.Wrap(errs.StorageBackend, err, "load enum table %s", table)
	}
	defer rows.Close()

	next := emptyBimap()
	for rows.Next() {
		var value int32
		var description string
		if err := rows.Scan(&value, &description); err != nil {
			return errs.Wrap(errs.StorageBackend, err, "scan enum row from %s", table)
		}
		e := item.Enumerable(description)
		next.valueOf[e] = value
		next.descriptionOf[value] = e
	}
	if err := rows.Err(); err != nil {
		return errs.Wrap(errs.StorageBackend, err, "read enum table %s", table)
	}

	c.slot(table).Store(next)
	return nil
}

// Intern returns the integer a description is stored under in table,
// loading and inserting as needed per spec.md §4.3's retry protocol:
// check the current snapshot, reload once on a miss, and only then insert
// — creating the table first if it doesn't exist yet.
func (c *Cache) Intern(ctx context.Context, table string, conn Conn, e item.Enumerable) (int32, error) {
	if v, ok := c.snapshot(table).valueOf[e]; ok {
		return v, nil
	}

	if err := c.Load(ctx, table, conn); err == nil {
		if v, ok := c.snapshot(table).valueOf[e]; ok {
			return v, nil
		}
	}

	value, err := c.insert(ctx, table, conn, e)
	if err != nil {
		if isUndefinedTable(err) {
			if err := c.createTable(ctx, table, conn); err != nil {
				return 0, err
			}
			value, err = c.insert(ctx, table, conn, e)
		}
		if err != nil {
			if isUniqueViolation(err) {
				// another writer won the race to intern this exact
				// description; reload and read the value it wrote.
				if loadErr := c.Load(ctx, table, conn); loadErr != nil {
					return 0, loadErr
				}
				if v, ok := c.snapshot(table).valueOf[e]; ok {
					return v, nil
				}
			}
			return 0, err
		}
	}

	if err := c.Load(ctx, table, conn); err != nil {
		return 0, err
	}
	return value, nil
}

// Resolve returns the description stored under value in table, reloading
// once on a miss before giving up.
func (c *Cache) Resolve(ctx context.Context, table string, conn Conn, value int32) (item.Enumerable, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if e, ok := c.snapshot(table).descriptionOf[value]; ok {
			return e, nil
		}
		if err := c.Load(ctx, table, conn); err != nil {
			return "", err
		}
	}
	return "", errs.New(errs.NotFound, "no description for enum value %d in table %s", value, table)
}

func (c *Cache) insert(ctx context.Context, table string, conn Conn, e item.Enumerable) (int32, error) {
	var value int32
	row := conn.QueryRow(ctx, "INSERT INTO "+table+" (description) VALUES ($1) RETURNING value", string(e))
	if err := row.Scan(&value); err != nil {
		return 0, errs.Wrap(errs.StorageBackend, err, "insert enum description into %s", table)
	}
	return value, nil
}

func (c *Cache) createTable(ctx context.Context, table string, conn Conn) error {
	ddl := "CREATE TABLE IF NOT EXISTS " + table +
		" (value SMALLINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY, description TEXT UNIQUE NOT NULL)"
	if _, err := conn.Exec(ctx, ddl); err != nil {
		return errs.Wrap(errs.StorageBackend, err, "create enum table %s", table)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	return false
}
