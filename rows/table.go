package rows

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/coldconveyor/conveyor/errs"
	"github.com/coldconveyor/conveyor/item"
)

// baseFields are the columns every conveyor_<kind> table carries regardless
// of metadata, per spec.md §4.4.
var baseFields = []string{"status", "digest", "chain", "created", "reserver"}

// baseFieldType returns the SQL column type and nullability a base field
// maps to, per spec.md §4.4's column-type table.
func baseFieldType(name string) (sqlType string, nullable bool) {
	switch name {
	case "status", "digest", "chain":
		return "VARCHAR(127)", false
	case "created":
		return "TIMESTAMP", false
	case "reserver":
		return "VARCHAR(31)", true
	default:
		panic("rows: unknown base field " + name)
	}
}

func metadataColumnType(kind item.ValueKind) (sqlType string, err error) {
	switch kind {
	case item.StringKind:
		return "VARCHAR(255)", nil
	case item.IntKind:
		return "INTEGER", nil
	case item.FloatKind:
		return "FLOAT", nil
	case item.TimeKind:
		return "TIMESTAMP", nil
	case item.EnumKind:
		return "SMALLINT", nil
	default:
		return "", errs.ValidationErrorf("no SQL column type for metadata value kind %d", kind)
	}
}

// columnSet is the live schema of one conveyor_<kind> table: column name to
// SQL type, as currently present in the database.
type columnSet map[string]string

// tableManager caches each kind's live column set, invalidating an entry
// whenever it issues an ALTER TABLE for that kind, per spec.md §9's
// resolution of the cache-invalidation open question.
type tableManager struct {
	mu      sync.Mutex
	columns map[item.Kind]columnSet
}

func newTableManager() *tableManager {
	return &tableManager{columns: map[item.Kind]columnSet{}}
}

func tableName(kind item.Kind) string {
	return "conveyor_" + strings.ToLower(string(kind))
}

// EnsureTable guarantees conveyor_<kind> exists with at least the columns
// base fields plus md imply, creating the table on first write and issuing
// ADD COLUMN + CREATE INDEX for any column a later write introduces.
// Dropping or narrowing a column is never attempted; a metadata key whose
// value kind disagrees with the existing column's type fails as
// errs.SchemaConflict.
func (tm *tableManager) EnsureTable(ctx context.Context, conn Conn, kind item.Kind, md item.Metadata) error {
	table := tableName(kind)

	required := map[string]string{}
	for _, f := range baseFields {
		t, _ := baseFieldType(f)
		required[f] = t
	}
	for k, v := range md {
		t, err := metadataColumnType(item.KindOf(v))
		if err != nil {
			return err
		}
		required[string(k)] = t
	}

	current, known, err := tm.liveColumns(ctx, conn, kind, table)
	if err != nil {
		return err
	}

	if !known {
		if err := tm.createTable(ctx, conn, table, required); err != nil {
			return err
		}
		tm.invalidate(kind)
		return nil
	}

	var toAdd []string
	for name, wantType := range required {
		haveType, exists := current[name]
		if !exists {
			toAdd = append(toAdd, name)
			continue
		}
		if !compatibleType(haveType, wantType) {
			return errs.New(errs.SchemaConflict,
				"column %s.%s has type %s, incompatible with %s", table, name, haveType, wantType)
		}
	}

	if len(toAdd) == 0 {
		return nil
	}

	for _, name := range toAdd {
		if err := tm.addColumn(ctx, conn, table, name, required[name]); err != nil {
			return err
		}
	}
	tm.invalidate(kind)
	return nil
}

func (tm *tableManager) invalidate(kind item.Kind) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	delete(tm.columns, kind)
}

// liveColumns returns the cached column set for kind, refreshing it from
// information_schema.columns on a cache miss. known is false if the table
// does not exist in the database at all.
func (tm *tableManager) liveColumns(ctx context.Context, conn Conn, kind item.Kind, table string) (columnSet, bool, error) {
	tm.mu.Lock()
	if cs, ok := tm.columns[kind]; ok {
		tm.mu.Unlock()
		return cs, true, nil
	}
	tm.mu.Unlock()

	rowsResult, err := conn.Query(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1`, table)
	if err != nil {
		return nil, false, errs.Wrap(errs.StorageBackend, err, "inspect schema of %s", table)
	}
	defer rowsResult.Close()

	cs := columnSet{}
	for rowsResult.Next() {
		var name, dataType string
		if err := rowsResult.Scan(&name, &dataType); err != nil {
			return nil, false, errs.Wrap(errs.StorageBackend, err, "scan column metadata for %s", table)
		}
		cs[name] = dataType
	}
	if err := rowsResult.Err(); err != nil {
		return nil, false, errs.Wrap(errs.StorageBackend, err, "read schema of %s", table)
	}

	if len(cs) == 0 {
		return nil, false, nil
	}

	tm.mu.Lock()
	tm.columns[kind] = cs
	tm.mu.Unlock()
	return cs, true, nil
}

func (tm *tableManager) createTable(ctx context.Context, conn Conn, table string, required map[string]string) error {
	var cols []string
	for _, f := range baseFields {
		t, nullable := baseFieldType(f)
		cols = append(cols, columnDDL(f, t, nullable))
	}
	for name, t := range required {
		if isBaseField(name) {
			continue
		}
		cols = append(cols, columnDDL(name, t, true))
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(cols, ", "))
	if _, err := conn.Exec(ctx, ddl); err != nil {
		return errs.Wrap(errs.StorageBackend, err, "create table %s", table)
	}

	for name := range required {
		if err := createIndex(ctx, conn, table, name); err != nil {
			return err
		}
	}
	return nil
}

func (tm *tableManager) addColumn(ctx context.Context, conn Conn, table, name, sqlType string) error {
	ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, name, sqlType)
	if _, err := conn.Exec(ctx, ddl); err != nil {
		return errs.Wrap(errs.StorageBackend, err, "add column %s.%s", table, name)
	}
	return createIndex(ctx, conn, table, name)
}

func createIndex(ctx context.Context, conn Conn, table, column string) error {
	ddl := fmt.Sprintf("CREATE INDEX index__%s ON %s (%s)", column, table, column)
	if _, err := conn.Exec(ctx, ddl); err != nil {
		return errs.Wrap(errs.StorageBackend, err, "create index on %s.%s", table, column)
	}
	return nil
}

func columnDDL(name, sqlType string, nullable bool) string {
	if nullable {
		return fmt.Sprintf("%s %s", name, sqlType)
	}
	return fmt.Sprintf("%s %s NOT NULL", name, sqlType)
}

func isBaseField(name string) bool {
	for _, f := range baseFields {
		if f == name {
			return true
		}
	}
	return false
}

// compatibleType reports whether a column already typed have can still
// serve a write that wants want, per spec.md §4.4's "type narrowing is
// forbidden" rule: the existing type must already be able to hold want.
// have arrives in information_schema.columns' normalized form (e.g.
// "character varying"); want arrives in CREATE-TABLE DDL form (e.g.
// "VARCHAR(127)"), so want is normalized to have's form before comparing.
func compatibleType(have, want string) bool {
	return strings.EqualFold(have, normalizeSQLType(want))
}

// normalizeSQLType maps a CREATE-TABLE/ALTER-TABLE type spelling to the
// name Postgres reports back through information_schema.columns.data_type.
func normalizeSQLType(ddlType string) string {
	name := strings.ToUpper(strings.SplitN(ddlType, "(", 2)[0])
	switch name {
	case "VARCHAR":
		return "character varying"
	case "TIMESTAMP":
		return "timestamp without time zone"
	case "FLOAT":
		return "double precision"
	case "INTEGER":
		return "integer"
	case "SMALLINT":
		return "smallint"
	case "TEXT":
		return "text"
	default:
		return strings.ToLower(ddlType)
	}
}
