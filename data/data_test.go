package data_test

import (
	"testing"

	"github.com/coldconveyor/conveyor/data"
	"github.com/coldconveyor/conveyor/digest"
)

func TestOfComputesDigest(t *testing.T) {
	d := data.Of([]byte("payload"))
	if !d.Digest().Equal(digest.Of([]byte("payload"))) {
		t.Fatalf("digest mismatch")
	}
}

func TestNewRejectsDigestMismatch(t *testing.T) {
	wrong := digest.Of([]byte("not the payload"))
	if _, err := data.New([]byte("payload"), &wrong); err == nil {
		t.Fatalf("expected error on digest mismatch")
	}
}

func TestNewAcceptsMatchingDigest(t *testing.T) {
	expected := digest.Of([]byte("payload"))
	d, err := data.New([]byte("payload"), &expected)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "payload" {
		t.Fatalf("unexpected value: %q", d.String())
	}
}

func TestEmptyIsEmpty(t *testing.T) {
	if !data.Empty.IsEmpty() {
		t.Fatalf("data.Empty should be empty")
	}
	if !data.Empty.Digest().Equal(digest.Empty) {
		t.Fatalf("data.Empty digest should equal digest.Empty")
	}
}

func TestValueIsACopy(t *testing.T) {
	d := data.Of([]byte("abc"))
	v := d.Value()
	v[0] = 'z'
	if d.String() != "abc" {
		t.Fatalf("mutating the returned slice affected Data's internal bytes")
	}
}
