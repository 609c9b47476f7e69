package item

import "github.com/coldconveyor/conveyor/digest"

// Chain is an opaque identifier grouping related items, e.g. all items
// produced from one source. It is either supplied explicitly or derived
// from a seed payload's digest.
//
// Chain is defined before Item and embedded directly into it, resolving the
// forward-reference the Python original required (see SPEC_FULL.md §3):
// there is no cyclic type to patch up after the fact in Go.
type Chain struct {
	value string
}

// NewChain wraps an explicit identifier as a Chain.
func NewChain(value string) Chain {
	return Chain{value: value}
}

// ChainFromDigest derives a Chain from a content digest, e.g. the digest of
// a seed Data value shared by every item descending from it.
func ChainFromDigest(d digest.Digest) Chain {
	return Chain{value: d.String()}
}

// String returns the chain's textual identifier.
func (c Chain) String() string { return c.value }

// Equal reports whether two chains share the same identifier.
func (c Chain) Equal(other Chain) bool { return c.value == other.value }
