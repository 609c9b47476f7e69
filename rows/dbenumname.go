package rows

import (
	"strings"

	"github.com/coldconveyor/conveyor/item"
	"github.com/coldconveyor/conveyor/transform"
)

// dbEnumName derives a name from an item.Key by appending "_" and postfix,
// mirroring original_source's DbEnumName/ItemKey transform pair;
// itemKeyFromColumn strips the suffix again. Store does not call it: the
// SMALLINT column of an Enumerable metadata key is named after the key
// itself, and enum table names come from enumTable.
type dbEnumName struct{ postfix string }

func newDbEnumName(postfix string) dbEnumName { return dbEnumName{postfix: postfix} }

func (t dbEnumName) Apply(k item.Key) string { return string(k) + "_" + t.postfix }

func (t dbEnumName) Invert() transform.SafeTransform[string, item.Key] {
	return itemKeyFromColumn{postfix: t.postfix}
}

type itemKeyFromColumn struct{ postfix string }

func (t itemKeyFromColumn) Apply(s string) item.Key {
	return item.Key(strings.TrimSuffix(s, "_"+t.postfix))
}

func (t itemKeyFromColumn) Invert() transform.SafeTransform[item.Key, string] {
	return dbEnumName{postfix: t.postfix}
}
