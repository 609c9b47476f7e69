package item_test

import (
	"testing"
	"time"

	"github.com/coldconveyor/conveyor/item"
)

func TestValueEqualDistinguishesTypes(t *testing.T) {
	if item.Equal(item.StringValue("1"), item.IntValue(1)) {
		t.Fatalf("a string and an int should never be equal, even with matching text")
	}
}

func TestValueEqualTime(t *testing.T) {
	now := time.Now()
	if !item.Equal(item.TimeValue(now), item.TimeValue(now)) {
		t.Fatalf("identical times should be equal")
	}
}

func TestMetadataEqual(t *testing.T) {
	a, _ := item.NewMetadata(map[item.Key]item.Value{"k": item.IntValue(1)})
	b, _ := item.NewMetadata(map[item.Key]item.Value{"k": item.IntValue(1)})
	c, _ := item.NewMetadata(map[item.Key]item.Value{"k": item.IntValue(2)})
	if !a.Equal(b) {
		t.Fatalf("expected equal metadata")
	}
	if a.Equal(c) {
		t.Fatalf("expected unequal metadata")
	}
}

func TestKindOfDistinguishesVariants(t *testing.T) {
	cases := []struct {
		v    item.Value
		want item.ValueKind
	}{
		{item.StringValue("s"), item.StringKind},
		{item.IntValue(1), item.IntKind},
		{item.FloatValue(1.5), item.FloatKind},
		{item.TimeValue(time.Now()), item.TimeKind},
		{item.EnumValue(item.Enumerable("e")), item.EnumKind},
	}
	for _, c := range cases {
		if got := item.KindOf(c.v); got != c.want {
			t.Fatalf("expected kind %v, got %v", c.want, got)
		}
	}
}

func TestAsEnumerable(t *testing.T) {
	v := item.EnumValue(item.Enumerable("red"))
	e, ok := item.AsEnumerable(v)
	if !ok || e != "red" {
		t.Fatalf("expected to extract enumerable 'red', got %q ok=%v", e, ok)
	}
	if _, ok := item.AsString(v); ok {
		t.Fatalf("an Enumerable value should not also read back as a plain string")
	}
}
