// Package rows implements the relational half of a Conveyor repository:
// one table per item Kind, described in SPEC_FULL.md §4.4 and §4.5. Store
// is the Rows Core; its schema evolution is delegated to tableManager
// (table.go) and enum interning to an *enumcache.Cache constructed by the
// caller and threaded through New.
package rows

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgx"
	"github.com/jackc/pgx/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coldconveyor/conveyor/digest"
	"github.com/coldconveyor/conveyor/enumcache"
	"github.com/coldconveyor/conveyor/errs"
	"github.com/coldconveyor/conveyor/item"
)

// Store is the Rows Core: a relational, per-kind view of items, backed by
// a Postgres-compatible connection pool. The zero value is not usable;
// construct one with New.
type Store struct {
	pool    Pool
	tx      pgx.Tx
	cache   *enumcache.Cache
	tables  *tableManager
	metrics *metrics
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithMetrics registers a Store's operation counters with reg. A nil reg (or
// not supplying this option) leaves metrics disabled.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Store) { s.metrics = newMetrics(reg) }
}

// New builds a Store over pool, interning Enumerable metadata through the
// cache registered under cacheID (see enumcache.Init).
func New(pool Pool, cacheID string, opts ...Option) *Store {
	cache, ok := enumcache.Lookup(cacheID)
	if !ok {
		cache = enumcache.Init(cacheID)
	}
	s := &Store{pool: pool, cache: cache, tables: newTableManager()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) conn() Conn {
	if s.tx != nil {
		return s.tx
	}
	return s.pool
}

func enumTable(kind item.Kind, key item.Key) string {
	return fmt.Sprintf("_conveyor_enum_%s__%s", strings.ToLower(string(kind)), strings.ToLower(string(key)))
}

// Add inserts it as a new row in conveyor_<kind>, creating or migrating the
// table as needed and interning any Enumerable metadata values first.
func (s *Store) Add(ctx context.Context, it item.Item) error {
	row := it.Row()
	if err := s.tables.EnsureTable(ctx, s.conn(), row.Kind, row.Metadata); err != nil {
		return err
	}

	cols := []string{"status", "digest", "chain", "created", "reserver"}
	reserverValue, _ := row.Reserver.TokenValue()
	args := []any{string(row.Status), row.Digest.String(), row.Chain.String(), row.Created, nullableString(reserverValue, row.Reserver.IsFree())}

	for k, v := range row.Metadata {
		col := string(k)
		val, err := s.encodeValue(ctx, row.Kind, k, v)
		if err != nil {
			return err
		}
		cols = append(cols, col)
		args = append(args, val)
	}

	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	ddl := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableName(row.Kind), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := s.conn().Exec(ctx, ddl, args...); err != nil {
		err = errs.Wrap(errs.StorageBackend, err, "insert row into %s", tableName(row.Kind))
		s.metrics.record("add", err)
		return err
	}
	s.metrics.record("add", nil)
	return nil
}

// Get streams every row matching q, most-recently-created first, applying
// q.Limit if set. The second yielded value is non-nil only to report a
// terminal error; range-over-func callers should stop consuming on it.
func (s *Store) Get(ctx context.Context, q item.Query) iter.Seq2[item.Row, error] {
	return func(yield func(item.Row, error) bool) {
		clause, args, err := s.buildWhere(ctx, q.Mask)
		if err != nil {
			s.metrics.record("get", err)
			yield(item.Row{}, err)
			return
		}

		sql := fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY created DESC", tableName(q.Mask.Kind), clause)
		if q.Limit != nil {
			sql += fmt.Sprintf(" LIMIT %d", *q.Limit)
		}

		result, err := s.conn().Query(ctx, sql, args...)
		if err != nil {
			err = errs.Wrap(errs.StorageBackend, err, "query %s", tableName(q.Mask.Kind))
			s.metrics.record("get", err)
			yield(item.Row{}, err)
			return
		}
		defer result.Close()

		for result.Next() {
			row, err := s.scanRow(ctx, q.Mask.Kind, result)
			if err != nil {
				s.metrics.record("get", err)
				yield(item.Row{}, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
		if err := result.Err(); err != nil {
			err = errs.Wrap(errs.StorageBackend, err, "read rows from %s", tableName(q.Mask.Kind))
			s.metrics.record("get", err)
			yield(item.Row{}, err)
			return
		}
		s.metrics.record("get", nil)
	}
}

// Setitem updates the row matching old's identity to new's fields,
// touching only the columns Row.Diff reports as changed.
func (s *Store) Setitem(ctx context.Context, old, new item.Row) error {
	changed := old.Diff(new)
	if len(changed) == 0 {
		return nil
	}

	var sets []string
	var args []any
	for col := range changed {
		val, err := s.encodeColumn(ctx, old.Kind, col, new)
		if err != nil {
			return err
		}
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	mask := rowToMask(old)
	clause, whereArgs, err := s.buildWhere(ctx, mask)
	if err != nil {
		return err
	}
	offset := len(args)
	clause = renumberPlaceholders(clause, offset)
	args = append(args, whereArgs...)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s", tableName(old.Kind), strings.Join(sets, ", "), clause)
	tag, err := s.conn().Exec(ctx, sql, args...)
	if err != nil {
		err = errs.Wrap(errs.StorageBackend, err, "update row in %s", tableName(old.Kind))
		s.metrics.record("setitem", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		err := errs.New(errs.NotFound, "no row in %s matched for update", tableName(old.Kind))
		s.metrics.record("setitem", err)
		return err
	}
	s.metrics.record("setitem", nil)
	return nil
}

// Delitem removes the row matching old.
func (s *Store) Delitem(ctx context.Context, old item.Row) error {
	clause, args, err := s.buildWhere(ctx, rowToMask(old))
	if err != nil {
		return err
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s", tableName(old.Kind), clause)
	tag, err := s.conn().Exec(ctx, sql, args...)
	if err != nil {
		err = errs.Wrap(errs.StorageBackend, err, "delete row from %s", tableName(old.Kind))
		s.metrics.record("delitem", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		err := errs.New(errs.NotFound, "no row in %s matched for delete", tableName(old.Kind))
		s.metrics.record("delitem", err)
		return err
	}
	s.metrics.record("delitem", nil)
	return nil
}

// Contains reports whether any row matches q.
func (s *Store) Contains(ctx context.Context, q item.Query) (bool, error) {
	clause, args, err := s.buildWhere(ctx, q.Mask)
	if err != nil {
		return false, err
	}
	sql := fmt.Sprintf("SELECT 1 FROM %s WHERE %s LIMIT 1", tableName(q.Mask.Kind), clause)
	result, err := s.conn().Query(ctx, sql, args...)
	if err != nil {
		err = errs.Wrap(errs.StorageBackend, err, "query %s", tableName(q.Mask.Kind))
		s.metrics.record("contains", err)
		return false, err
	}
	defer result.Close()
	s.metrics.record("contains", nil)
	return result.Next(), nil
}

// Len counts the rows of conveyor_<kind>.
func (s *Store) Len(ctx context.Context, kind item.Kind) (int, error) {
	var count int
	row := s.conn().QueryRow(ctx, "SELECT COUNT(*) FROM "+tableName(kind))
	if err := row.Scan(&count); err != nil {
		err = errs.Wrap(errs.StorageBackend, err, "count rows in %s", tableName(kind))
		s.metrics.record("len", err)
		return 0, err
	}
	s.metrics.record("len", nil)
	return count, nil
}

// Clear deletes every row of conveyor_<kind> without dropping the table.
func (s *Store) Clear(ctx context.Context, kind item.Kind) error {
	if _, err := s.conn().Exec(ctx, "DELETE FROM "+tableName(kind)); err != nil {
		err = errs.Wrap(errs.StorageBackend, err, "clear table %s", tableName(kind))
		s.metrics.record("clear", err)
		return err
	}
	s.metrics.record("clear", nil)
	return nil
}

// Transaction opens a pgx.Tx and returns a Store bound to it, alongside
// explicit commit and rollback closures. A nested call on an
// already-transactional Store returns the same handle with no-op commit
// and rollback, mirroring files.Store's nesting so a repository composed
// of several parts can open them one at a time and unwind on failure
// without double-committing a shared connection.
//
// This explicit commit-later shape can't route through crdbpgx.ExecuteTx,
// which owns the whole begin/run/commit/retry cycle itself; WithTransaction
// below wires that dependency for the single-call case instead.
func (s *Store) Transaction(ctx context.Context) (*Store, func() error, func(), error) {
	if s.tx != nil {
		return s, func() error { return nil }, func() {}, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, nil, errs.Wrap(errs.StorageBackend, err, "begin transaction")
	}

	clone := *s
	clone.tx = tx

	commit := func() error {
		if err := tx.Commit(ctx); err != nil {
			return errs.Wrap(errs.StorageBackend, err, "commit transaction")
		}
		return nil
	}
	rollback := func() { _ = tx.Rollback(ctx) }

	return &clone, commit, rollback, nil
}

// WithTransaction runs fn against a fresh transactional Store via
// crdbpgx.ExecuteTx, so a serialization conflict (SQLSTATE 40001) retries
// fn in full rather than surfacing as an error. Use this for a single
// self-contained unit of work; Repository's multi-part transactions use
// Transaction/commit/rollback directly instead, since crdbpgx needs to own
// the entire retry body and a composite commit spans more than one store.
func (s *Store) WithTransaction(ctx context.Context, fn func(*Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	err := crdbpgx.ExecuteTx(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		clone := *s
		clone.tx = tx
		return fn(&clone)
	})
	if err != nil {
		return errs.Wrap(errs.StorageBackend, err, "execute retryable transaction")
	}
	return nil
}

func rowToMask(r item.Row) item.Mask {
	return item.Mask{
		Kind:     r.Kind,
		Status:   &r.Status,
		Digest:   &r.Digest,
		Chain:    &r.Chain,
		Created:  &r.Created,
		Reserver: r.Reserver,
		Metadata: r.Metadata,
	}
}

func nullableString(s string, isNull bool) any {
	if isNull {
		return nil
	}
	return s
}

func renumberPlaceholders(clause string, offset int) string {
	var b strings.Builder
	n := 0
	for i := 0; i < len(clause); i++ {
		if clause[i] == '$' {
			n++
			b.WriteByte('$')
			j := i + 1
			for j < len(clause) && clause[j] >= '0' && clause[j] <= '9' {
				j++
			}
			var idx int
			fmt.Sscanf(clause[i+1:j], "%d", &idx)
			fmt.Fprintf(&b, "%d", idx+offset)
			i = j - 1
			continue
		}
		b.WriteByte(clause[i])
	}
	return b.String()
}

// buildWhere translates a Mask into a parameterized SQL WHERE clause,
// interning any Enumerable constraint through the cache first. The three
// reserver states (any/free/token) map to "TRUE", "reserver IS NULL", and
// "reserver = $n" respectively, per spec.md §4.5 and Testable Property 10.
func (s *Store) buildWhere(ctx context.Context, mask item.Mask) (string, []any, error) {
	var conds []string
	var args []any

	add := func(col string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if mask.Status != nil {
		add("status", string(*mask.Status))
	}
	if mask.Digest != nil {
		add("digest", mask.Digest.String())
	}
	if mask.Chain != nil {
		add("chain", mask.Chain.String())
	}
	if mask.Created != nil {
		add("created", *mask.Created)
	}

	switch {
	case mask.Reserver.IsAny():
		// unconstrained
	case mask.Reserver.IsFree():
		conds = append(conds, "reserver IS NULL")
	default:
		tok, _ := mask.Reserver.TokenValue()
		add("reserver", tok)
	}

	for k, v := range mask.Metadata {
		val, err := s.encodeValue(ctx, mask.Kind, k, v)
		if err != nil {
			return "", nil, err
		}
		add(string(k), val)
	}

	if len(conds) == 0 {
		return "TRUE", args, nil
	}
	return strings.Join(conds, " AND "), args, nil
}

// encodeValue converts a metadata Value into the driver value its column
// holds, interning Enumerable values through the cache.
func (s *Store) encodeValue(ctx context.Context, kind item.Kind, key item.Key, v item.Value) (any, error) {
	switch item.KindOf(v) {
	case item.StringKind:
		sv, _ := item.AsString(v)
		return sv, nil
	case item.IntKind:
		iv, _ := item.AsInt(v)
		return iv, nil
	case item.FloatKind:
		fv, _ := item.AsFloat(v)
		return fv, nil
	case item.TimeKind:
		tv, _ := item.AsTime(v)
		return tv, nil
	case item.EnumKind:
		ev, _ := item.AsEnumerable(v)
		interned, err := s.cache.Intern(ctx, enumTable(kind, key), s.conn(), ev)
		if err != nil {
			return nil, err
		}
		return interned, nil
	default:
		return nil, errs.ValidationErrorf("metadata value for key %q has no known encoding", key)
	}
}

// encodeColumn looks up col's new value in new (a base field or a metadata
// key) and encodes it the same way encodeValue does.
func (s *Store) encodeColumn(ctx context.Context, kind item.Kind, col string, new item.Row) (any, error) {
	switch col {
	case "status":
		return string(new.Status), nil
	case "digest":
		return new.Digest.String(), nil
	case "chain":
		return new.Chain.String(), nil
	case "created":
		return new.Created, nil
	case "reserver":
		tok, ok := new.Reserver.TokenValue()
		return nullableString(tok, !ok), nil
	default:
		v, ok := new.Metadata[item.Key(col)]
		if !ok {
			return nil, errs.ValidationErrorf("no value for changed column %q", col)
		}
		return s.encodeValue(ctx, kind, item.Key(col), v)
	}
}

// scanRow reads one result row into an item.Row, resolving Enumerable
// columns back through the cache.
func (s *Store) scanRow(ctx context.Context, kind item.Kind, result pgx.Rows) (item.Row, error) {
	fields := result.FieldDescriptions()
	raw, err := result.Values()
	if err != nil {
		return item.Row{}, errs.Wrap(errs.StorageBackend, err, "read row values")
	}

	row := item.Row{Kind: kind, Metadata: item.Metadata{}}
	for i, fd := range fields {
		name := string(fd.Name)
		val := raw[i]
		switch name {
		case "status":
			row.Status = item.Word(fmt.Sprint(val))
		case "digest":
			d, err := parseDigestColumn(val)
			if err != nil {
				return item.Row{}, err
			}
			row.Digest = d
		case "chain":
			row.Chain = item.NewChain(fmt.Sprint(val))
		case "created":
			if t, ok := val.(time.Time); ok {
				row.Created = t
			}
		case "reserver":
			if val == nil {
				row.Reserver = item.Free()
			} else {
				row.Reserver = item.Token(fmt.Sprint(val))
			}
		default:
			v, err := s.decodeColumn(ctx, kind, name, val)
			if err != nil {
				return item.Row{}, err
			}
			row.Metadata[item.Key(name)] = v
		}
	}
	return row, nil
}

func parseDigestColumn(val any) (digest.Digest, error) {
	s, ok := val.(string)
	if !ok {
		return digest.Digest{}, errs.ValidationErrorf("digest column has non-string driver value %T", val)
	}
	d, err := digest.FromString(s)
	if err != nil {
		return digest.Digest{}, errs.Wrap(errs.IntegrityCheck, err, "parse stored digest %q", s)
	}
	return d, nil
}

func (s *Store) decodeColumn(ctx context.Context, kind item.Kind, name string, val any) (item.Value, error) {
	switch v := val.(type) {
	case string:
		return item.StringValue(v), nil
	case int64:
		return item.IntValue(v), nil
	case int32:
		return item.IntValue(int64(v)), nil
	case int16:
		// SMALLINT columns back Enumerable metadata; resolve through the cache.
		e, err := s.cache.Resolve(ctx, enumTable(kind, item.Key(name)), s.conn(), int32(v))
		if err != nil {
			return nil, err
		}
		return item.EnumValue(e), nil
	case float64:
		return item.FloatValue(v), nil
	case time.Time:
		return item.TimeValue(v), nil
	default:
		return nil, errs.ValidationErrorf("column %q has unrecognized driver type %T", name, val)
	}
}
