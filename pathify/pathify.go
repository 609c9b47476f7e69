// Package pathify derives a filesystem path from a digest and inverts that
// derivation, per SPEC_FULL.md §4.1. It composes two transforms:
// Segment (rewrite +/=// to filesystem-safe tokens) and Group (split the
// token sequence into nested directory names, fanned out by a caller-tuned
// granulation function).
package pathify

import (
	"strings"

	"github.com/coldconveyor/conveyor/digest"
	"github.com/coldconveyor/conveyor/transform"
)

// Granulation returns the width, in characters, of the n-th path component
// Group produces. Callers tune fan-out with it (e.g. a constant 2 produces
// two-character directory names throughout).
type Granulation func(n int) int

// Constant returns a Granulation that always yields width.
func Constant(width int) Granulation {
	return func(int) int { return width }
}

// Segment rewrites a digest's base64 textual form into a sequence of
// single-character tokens, except that '+', '/', and '=' become the literal
// words "plus", "slash", "equal" so the result is safe to use as path
// components on every filesystem.
type Segment struct{}

func (Segment) Apply(d digest.Digest) ([]string, error) {
	s := d.String()
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, segmentRune(r))
	}
	return out, nil
}

func (Segment) Invert() transform.Transform[[]string, digest.Digest] {
	return Desegment{}
}

func segmentRune(r rune) string {
	switch r {
	case '+':
		return "plus"
	case '/':
		return "slash"
	case '=':
		return "equal"
	default:
		return string(r)
	}
}

func desegmentToken(tok string) string {
	switch tok {
	case "plus":
		return "+"
	case "slash":
		return "/"
	case "equal":
		return "="
	default:
		return tok
	}
}

// Desegment is Segment's inverse: it reassembles the base64 textual form of
// a digest from its token sequence and parses it.
type Desegment struct{}

func (Desegment) Apply(tokens []string) (digest.Digest, error) {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(desegmentToken(t))
	}
	return digest.FromString(b.String())
}

func (Desegment) Invert() transform.Transform[digest.Digest, []string] {
	return Segment{}
}

// Group splits a token sequence into nested directory names. Tokens longer
// than one character (the filesystem-safe "plus"/"slash"/"equal" words) are
// always their own path component; single-character tokens are buffered
// together until the buffer reaches granulation(n) characters, where n is
// the index of the component being built.
type Group struct {
	Granulation Granulation
}

func (g Group) Apply(tokens []string) ([]string, error) {
	var result []string
	var buf strings.Builder
	n := 0

	flush := func() {
		if buf.Len() > 0 {
			result = append(result, buf.String())
			buf.Reset()
			n++
		}
	}

	for _, tok := range tokens {
		if len(tok) == 1 {
			buf.WriteString(tok)
			if buf.Len() == g.Granulation(n) {
				flush()
			}
		} else {
			flush()
			result = append(result, tok)
			n++
		}
	}
	flush()
	return result, nil
}

func (g Group) Invert() transform.Transform[[]string, []string] {
	return Ungroup{Granulation: g.Granulation}
}

// Ungroup is Group's inverse: it re-expands grouped path components back
// into the original single-character/literal-word token sequence.
type Ungroup struct {
	Granulation Granulation
}

func (u Ungroup) Apply(components []string) ([]string, error) {
	var result []string
	for _, c := range components {
		switch c {
		case "plus", "slash", "equal":
			result = append(result, c)
		default:
			for _, r := range c {
				result = append(result, string(r))
			}
		}
	}
	return result, nil
}

func (u Ungroup) Invert() transform.Transform[[]string, []string] {
	return Group{Granulation: u.Granulation}
}

// New builds the composed Segment+Group transform from digest.Digest to a
// sequence of path components, matching original_source's
// `Pathify.__new__`. Its Invert() reassembles a digest from path
// components.
func New(g Granulation) transform.Transform[digest.Digest, []string] {
	return transform.Then[digest.Digest, []string, []string](Segment{}, Group{Granulation: g})
}
