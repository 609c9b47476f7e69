// Package item defines the durable data model that flows through a
// Conveyor pipeline: Word, Chain, Metadata, Item, Row, and the Query/Mask
// pair used to address them.
package item

import (
	"fmt"
	"regexp"

	"github.com/coldconveyor/conveyor/errs"
)

var wordPattern = regexp.MustCompile(`^\w+$`)

// Word is a non-empty token string used wherever a name is a token: kinds,
// statuses, metadata keys.
type Word string

// NewWord validates s against \w+ and returns it as a Word.
func NewWord(s string) (Word, error) {
	if !wordPattern.MatchString(s) {
		return "", errs.ValidationErrorf("invalid word %q: must match \\w+", s)
	}
	return Word(s), nil
}

// MustWord is like NewWord but panics on an invalid word. Intended for
// tests and compile-time-known constants.
func MustWord(s string) Word {
	w, err := NewWord(s)
	if err != nil {
		panic(fmt.Sprintf("item: %v", err))
	}
	return w
}

func (w Word) String() string { return string(w) }

// Kind selects which relational table stores an item's row.
type Kind = Word

// Status is a mutable label describing an item's stage.
type Status = Word

// Key is a metadata field name.
type Key = Word

// ReservedKeys are the field names that may not appear in Metadata because
// they collide with Row's own columns.
var ReservedKeys = map[Key]struct{}{
	"status":   {},
	"digest":   {},
	"chain":    {},
	"created":  {},
	"reserver": {},
}
