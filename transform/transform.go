// Package transform implements the invertible transform algebra that
// Pathify, the enum table-name codec, and the Files core's prepare/sidestep
// byte codecs are all built from.
//
// A Transform[A,B] is a pure function paired with its inverse such that
// inverse.Apply(f.Apply(x)) == x for every valid x. Transforms compose:
// Then(f, g) applies f then g; its inverse is Then(g.Invert(), f.Invert()).
//
// Two flavors exist, matching SPEC_FULL.md §4.1 and the original source's
// Safe/Trusted split: a Safe transform never fails, a Trusted one may.
// Trusted transforms implement Transform; Safe ones implement SafeTransform
// (no error return) and are adapted with AsFallible wherever a Transform is
// required.
package transform

// Transform is a fallible, invertible function from A to B.
type Transform[A, B any] interface {
	Apply(a A) (B, error)
	Invert() Transform[B, A]
}

// SafeTransform is an invertible function from A to B that never fails.
type SafeTransform[A, B any] interface {
	Apply(a A) B
	Invert() SafeTransform[B, A]
}

// AsFallible adapts a SafeTransform into the fallible Transform interface,
// so Safe and Trusted transforms can be composed with Then uniformly.
func AsFallible[A, B any](s SafeTransform[A, B]) Transform[A, B] {
	return fallibleWrapper[A, B]{s}
}

type fallibleWrapper[A, B any] struct {
	inner SafeTransform[A, B]
}

func (f fallibleWrapper[A, B]) Apply(a A) (B, error) {
	return f.inner.Apply(a), nil
}

func (f fallibleWrapper[A, B]) Invert() Transform[B, A] {
	return fallibleWrapper[B, A]{f.inner.Invert()}
}

// pair composes two fallible transforms: Apply runs f then g; Invert swaps
// order and inverts each leg.
type pair[A, B, C any] struct {
	f Transform[A, B]
	g Transform[B, C]
}

// Then composes f and g into a single Transform[A,C]: (f+g)(x) = g(f(x)).
func Then[A, B, C any](f Transform[A, B], g Transform[B, C]) Transform[A, C] {
	return pair[A, B, C]{f: f, g: g}
}

func (p pair[A, B, C]) Apply(a A) (C, error) {
	b, err := p.f.Apply(a)
	if err != nil {
		var zero C
		return zero, err
	}
	return p.g.Apply(b)
}

func (p pair[A, B, C]) Invert() Transform[C, A] {
	return Then[C, B, A](p.g.Invert(), p.f.Invert())
}

// SafeThen composes two SafeTransforms into one, mirroring Then.
func SafeThen[A, B, C any](f SafeTransform[A, B], g SafeTransform[B, C]) SafeTransform[A, C] {
	return safePair[A, B, C]{f: f, g: g}
}

type safePair[A, B, C any] struct {
	f SafeTransform[A, B]
	g SafeTransform[B, C]
}

func (p safePair[A, B, C]) Apply(a A) C {
	return p.g.Apply(p.f.Apply(a))
}

func (p safePair[A, B, C]) Invert() SafeTransform[C, A] {
	return SafeThen[C, B, A](p.g.Invert(), p.f.Invert())
}

// Identity is the Safe transform that returns its input unchanged.
type Identity[A any] struct{}

func (Identity[A]) Apply(a A) A               { return a }
func (Identity[A]) Invert() SafeTransform[A, A] { return Identity[A]{} }
