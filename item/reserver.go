package item

// Reserver is an optional opaque owner token. It is modeled as a three-state
// sum type, per SPEC_FULL.md §3/§9, so that a Mask can distinguish:
//
//   - AnyReserver() — the field is unconstrained (match any reserver, held or free)
//   - Free()        — the item must be unreserved (reserver IS NULL)
//   - Token(tok)    — the item must be held by exactly this token
//
// A bare Item's Reserver is never AnyReserver(): that state only appears
// inside a Mask.
type Reserver struct {
	any   bool
	token string
	set   bool
}

// AnyReserver returns the "unconstrained" state, legal only inside a Mask.
func AnyReserver() Reserver { return Reserver{any: true} }

// Free returns the "explicitly unreserved" state.
func Free() Reserver { return Reserver{} }

// Token returns a Reserver held by the given opaque token.
func Token(token string) Reserver { return Reserver{token: token, set: true} }

// IsAny reports whether this Reserver represents "unconstrained".
func (r Reserver) IsAny() bool { return r.any }

// IsFree reports whether this Reserver represents "no one holds this item".
func (r Reserver) IsFree() bool { return !r.any && !r.set }

// TokenValue returns the held token and true, or ("", false) if the item is free
// or the state is Any.
func (r Reserver) TokenValue() (string, bool) { return r.token, r.set }

// Equal compares two concrete (non-Any) Reserver values. Any never equals
// anything, including another Any, since it is a mask wildcard, not a
// value.
func (r Reserver) Equal(other Reserver) bool {
	if r.any || other.any {
		return false
	}
	return r.set == other.set && r.token == other.token
}

func (r Reserver) String() string {
	switch {
	case r.any:
		return "<any>"
	case r.set:
		return "token:" + r.token
	default:
		return "<free>"
	}
}
