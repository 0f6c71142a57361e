package model

import "slices"

// Position selects where InsertToken places a new token.
type Position int

const (
	// PositionEnd appends after the last token.
	PositionEnd Position = iota
	PositionAfter
	PositionBefore
)

// InsertToken returns a copy of list with tok inserted relative to ref.
// Matching compares whole tokens only, so a ref of "a" never matches "ab".
// It reports false when ref is required and not present.
func InsertToken(list []string, tok string, pos Position, ref string) ([]string, bool) {
	out := slices.Clone(list)
	if pos == PositionEnd {
		return append(out, tok), true
	}
	i := slices.Index(out, ref)
	if i < 0 {
		return list, false
	}
	if pos == PositionAfter {
		i++
	}
	return slices.Insert(out, i, tok), true
}

// RemoveToken returns a copy of list without the first occurrence of tok.
func RemoveToken(list []string, tok string) ([]string, bool) {
	i := slices.Index(list, tok)
	if i < 0 {
		return list, false
	}
	return slices.Delete(slices.Clone(list), i, i+1), true
}
