package item

import (
	"time"

	"github.com/coldconveyor/conveyor/data"
	"github.com/coldconveyor/conveyor/digest"
)

// Part is a partial item accumulator used during the composite repository's
// query fan-out: each field is filled progressively as each backend
// contributes what it knows, and Complete assembles the fully-populated
// Item once every part repository has contributed.
type Part struct {
	Kind     *Kind
	Status   *Status
	Digest   *digest.Digest
	Data     *data.Data
	Metadata Metadata
	Chain    *Chain
	Created  *time.Time
	Reserver *Reserver
}

// WithRow returns a copy of p with every Row-derived field filled in from
// r. Used by the Rows part of the composite repository.
func (p Part) WithRow(r Row) Part {
	kind, status, dg, chain, created, reserver := r.Kind, r.Status, r.Digest, r.Chain, r.Created, r.Reserver
	p.Kind = &kind
	p.Status = &status
	p.Digest = &dg
	p.Chain = &chain
	p.Created = &created
	p.Reserver = &reserver
	p.Metadata = r.Metadata
	return p
}

// WithData returns a copy of p with its payload filled in. Used by the
// Files part of the composite repository.
func (p Part) WithData(d data.Data) Part {
	p.Data = &d
	return p
}

// Complete reports whether every field required to assemble an Item has
// been filled, and if so returns that Item.
func (p Part) Complete() (Item, bool) {
	if p.Kind == nil || p.Status == nil || p.Data == nil || p.Chain == nil || p.Created == nil || p.Reserver == nil {
		return Item{}, false
	}
	md := p.Metadata
	if md == nil {
		md = Metadata{}
	}
	return Item{
		Kind:     *p.Kind,
		Status:   *p.Status,
		Data:     *p.Data,
		Metadata: md,
		Chain:    *p.Chain,
		Created:  *p.Created,
		Reserver: *p.Reserver,
	}, true
}
