package item

import (
	"time"

	"github.com/coldconveyor/conveyor/data"
	"github.com/coldconveyor/conveyor/digest"
)

// Item is an immutable tuple describing one durable unit of pipeline work.
// Two items are equal iff all fields except Reserver are equal — reservation
// is a runtime lease, not identity.
type Item struct {
	Kind     Kind
	Status   Status
	Data     data.Data
	Metadata Metadata
	Chain    Chain
	Created  time.Time
	Reserver Reserver
}

// New builds an Item from its fields and performs no validation; in
// particular it does not check that created carries no timezone
// (time.Time always carries a location). Callers that care should
// normalize with created.UTC() before calling.
func New(kind Kind, status Status, d data.Data, md Metadata, chain Chain, created time.Time, reserver Reserver) Item {
	return Item{
		Kind:     kind,
		Status:   status,
		Data:     d,
		Metadata: md,
		Chain:    chain,
		Created:  created,
		Reserver: reserver,
	}
}

// WithReserver returns a copy of it with Reserver replaced.
func (it Item) WithReserver(r Reserver) Item {
	it.Reserver = r
	return it
}

// WithStatus returns a copy of it with Status replaced.
func (it Item) WithStatus(s Status) Item {
	it.Status = s
	return it
}

// Equal reports whether it and other match on every field except Reserver.
func (it Item) Equal(other Item) bool {
	return it.Kind == other.Kind &&
		it.Status == other.Status &&
		it.Data.Digest().Equal(other.Data.Digest()) &&
		it.Metadata.Equal(other.Metadata) &&
		it.Chain.Equal(other.Chain) &&
		it.Created.Equal(other.Created)
}

// Digest returns the digest of the item's payload.
func (it Item) Digest() digest.Digest { return it.Data.Digest() }

// Row returns the row projection of it: everything but the payload bytes,
// plus the payload's digest.
func (it Item) Row() Row {
	return Row{
		Kind:     it.Kind,
		Status:   it.Status,
		Digest:   it.Digest(),
		Metadata: it.Metadata,
		Chain:    it.Chain,
		Created:  it.Created,
		Reserver: it.Reserver,
	}
}

// Row is the projection of an Item minus its payload bytes, plus the
// payload's digest. Invariant: for every stored Row there exists a blob
// whose bytes hash to Row.Digest, unless Digest is digest.Empty, in which
// case no blob is stored.
type Row struct {
	Kind     Kind
	Status   Status
	Digest   digest.Digest
	Metadata Metadata
	Chain    Chain
	Created  time.Time
	Reserver Reserver
}

// Equal reports whether r and other match on every field except Reserver.
func (r Row) Equal(other Row) bool {
	return r.Kind == other.Kind &&
		r.Status == other.Status &&
		r.Digest.Equal(other.Digest) &&
		r.Metadata.Equal(other.Metadata) &&
		r.Chain.Equal(other.Chain) &&
		r.Created.Equal(other.Created)
}

// Identity returns the fields that key a Row in the rows store:
// (kind, digest, chain, created) — the primary identifier tuple per
// SPEC_FULL.md §3.
type Identity struct {
	Kind    Kind
	Digest  digest.Digest
	Chain   Chain
	Created time.Time
}

// Identity returns r's identity tuple.
func (r Row) Identity() Identity {
	return Identity{Kind: r.Kind, Digest: r.Digest, Chain: r.Chain, Created: r.Created}
}

// Diff computes the set of fields (by column/key name) that differ between
// r (the "old" row) and other (the "new" row) — used by the Rows core to
// build a minimal UPDATE ... SET clause. Unchanged fields, including
// unchanged metadata keys, are omitted.
func (r Row) Diff(other Row) map[string]bool {
	changed := map[string]bool{}
	if r.Status != other.Status {
		changed["status"] = true
	}
	if !r.Digest.Equal(other.Digest) {
		changed["digest"] = true
	}
	if !r.Chain.Equal(other.Chain) {
		changed["chain"] = true
	}
	if !r.Created.Equal(other.Created) {
		changed["created"] = true
	}
	if !r.Reserver.Equal(other.Reserver) {
		changed["reserver"] = true
	}
	for k, v := range other.Metadata {
		if ov, ok := r.Metadata[k]; !ok || !Equal(ov, v) {
			changed[string(k)] = true
		}
	}
	return changed
}
