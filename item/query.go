package item

import (
	"time"

	"github.com/coldconveyor/conveyor/digest"
	"github.com/coldconveyor/conveyor/errs"
)

// Mask is a partial item pattern: any subset of its fields may be set. Kind
// is mandatory — it selects which table a Rows query runs against. A field
// left at its zero value (the *bool/*string/etc. pointer nil) is
// unconstrained, except Reserver, whose zero value is itself meaningful
// (see Reserver).
type Mask struct {
	Kind     Kind
	Status   *Status
	Digest   *digest.Digest
	Chain    *Chain
	Created  *time.Time
	Reserver Reserver // defaults to AnyReserver() via NewMask
	Metadata Metadata  // matched key-by-key; omitted keys are unconstrained
}

// NewMask builds a Mask for the given kind with Reserver unconstrained
// (AnyReserver) and no other field set.
func NewMask(kind Kind) Mask {
	return Mask{Kind: kind, Reserver: AnyReserver(), Metadata: Metadata{}}
}

// WithStatus constrains the mask to a specific status.
func (m Mask) WithStatus(s Status) Mask { m.Status = &s; return m }

// WithDigest constrains the mask to a specific digest.
func (m Mask) WithDigest(d digest.Digest) Mask { m.Digest = &d; return m }

// WithChain constrains the mask to a specific chain.
func (m Mask) WithChain(c Chain) Mask { m.Chain = &c; return m }

// WithCreated constrains the mask to a specific creation timestamp.
func (m Mask) WithCreated(t time.Time) Mask { m.Created = &t; return m }

// WithReserver constrains the mask's reserver field. Pass Free() to match
// only unreserved rows, Token(tok) to match rows held by tok, or
// AnyReserver() (the default) to match any value.
func (m Mask) WithReserver(r Reserver) Mask { m.Reserver = r; return m }

// WithMetadata adds a key/value constraint; omitted keys stay unconstrained.
func (m Mask) WithMetadata(key Key, value Value) Mask {
	if m.Metadata == nil {
		m.Metadata = Metadata{}
	} else {
		m.Metadata = m.Metadata.Clone()
	}
	m.Metadata[key] = value
	return m
}

// Matches reports whether row satisfies every constraint set on m. Rows
// core implements the equivalent as a SQL WHERE clause; this method exists
// so in-memory fakes (such as the unit tests' fake parts) can apply the
// same semantics without a database.
func (m Mask) Matches(row Row) bool {
	if m.Kind != row.Kind {
		return false
	}
	if m.Status != nil && *m.Status != row.Status {
		return false
	}
	if m.Digest != nil && !m.Digest.Equal(row.Digest) {
		return false
	}
	if m.Chain != nil && !m.Chain.Equal(row.Chain) {
		return false
	}
	if m.Created != nil && !m.Created.Equal(row.Created) {
		return false
	}
	switch {
	case m.Reserver.IsAny():
		// unconstrained
	case m.Reserver.IsFree():
		if !row.Reserver.IsFree() {
			return false
		}
	default:
		tok, _ := m.Reserver.TokenValue()
		rtok, ok := row.Reserver.TokenValue()
		if !ok || tok != rtok {
			return false
		}
	}
	for k, v := range m.Metadata {
		rv, ok := row.Metadata[k]
		if !ok || !Equal(v, rv) {
			return false
		}
	}
	return true
}

// Query pairs a Mask with an optional result limit.
type Query struct {
	Mask  Mask
	Limit *int
}

// NewQuery builds a Query with no limit (unbounded).
func NewQuery(mask Mask) Query {
	return Query{Mask: mask}
}

// WithLimit returns a copy of q bounded to at most n results. n must be
// greater than zero.
func (q Query) WithLimit(n int) (Query, error) {
	if n <= 0 {
		return Query{}, errs.ValidationErrorf("query limit must be > 0, got %d", n)
	}
	q.Limit = &n
	return q, nil
}
