package model

import (
	"slices"
	"strings"
)

// State tracks an object's lifecycle relative to the committed baseline.
// Transitions are monotonic within a session: clean -> modified -> deleted,
// or new -> deleted (which discards the object).
type State int

const (
	StateClean State = iota
	StateNew
	StateModified
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateModified:
		return "modified"
	case StateDeleted:
		return "deleted"
	default:
		return "clean"
	}
}

// Pair is a single name=value setting.
type Pair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Block is a nested attribute block such as "params" or "op monitor".
type Block struct {
	Type  string `json:"type"`
	Name  string `json:"name,omitempty"`
	Pairs []Pair `json:"pairs,omitempty"`
}

// Get returns the value of the named pair.
func (b Block) Get(name string) (string, bool) {
	return lookupPair(b.Pairs, name)
}

// Object is one typed configuration element.
type Object struct {
	ID       string   `json:"id"`
	Kind     Kind     `json:"kind"`
	Head     []string `json:"head,omitempty"`
	Children []string `json:"children,omitempty"`
	Attrs    []Pair   `json:"attrs,omitempty"`
	Blocks   []Block  `json:"blocks,omitempty"`

	State State `json:"-"`
}

// Spec returns the object's KindSpec.
func (o *Object) Spec() *KindSpec {
	return SpecOf(o.Kind)
}

// Clone returns a deep copy.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	c := &Object{
		ID:       o.ID,
		Kind:     o.Kind,
		Head:     slices.Clone(o.Head),
		Children: slices.Clone(o.Children),
		Attrs:    slices.Clone(o.Attrs),
		State:    o.State,
	}
	if o.Blocks != nil {
		c.Blocks = make([]Block, len(o.Blocks))
		for i, b := range o.Blocks {
			c.Blocks[i] = Block{Type: b.Type, Name: b.Name, Pairs: slices.Clone(b.Pairs)}
		}
	}
	return c
}

// Equal reports whether two objects have the same content. State is ignored.
func (o *Object) Equal(other *Object) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.ID == other.ID &&
		o.Kind == other.Kind &&
		slices.Equal(o.Head, other.Head) &&
		slices.Equal(o.Children, other.Children) &&
		slices.Equal(o.Attrs, other.Attrs) &&
		slices.EqualFunc(o.Blocks, other.Blocks, func(a, b Block) bool {
			return a.Type == b.Type && a.Name == b.Name && slices.Equal(a.Pairs, b.Pairs)
		})
}

// Attr returns the value of a trailing option.
func (o *Object) Attr(name string) (string, bool) {
	return lookupPair(o.Attrs, name)
}

// BlocksOf returns the blocks of the given type, in order.
func (o *Object) BlocksOf(typ string) []Block {
	var out []Block
	for _, b := range o.Blocks {
		if b.Type == typ {
			out = append(out, b)
		}
	}
	return out
}

// HasChild reports whether id is one of the object's children.
func (o *Object) HasChild(id string) bool {
	return slices.Contains(o.Children, id)
}

// Ref is a resolved reference from an object to another id.
type Ref struct {
	ID   string
	Slot RefSlot
}

// References returns every reference the object makes, in slot order.
func (o *Object) References() []Ref {
	spec := o.Spec()
	if spec == nil || spec.refs == nil {
		return nil
	}
	var out []Ref
	for _, slot := range spec.refs(o) {
		id, _ := splitRef(o.slotToken(slot), slot.Prefix)
		if id == "" {
			continue
		}
		out = append(out, Ref{ID: id, Slot: slot})
	}
	return out
}

// StrictReferences returns the ids this object requires to exist.
func (o *Object) StrictReferences() []string {
	var out []string
	for _, r := range o.References() {
		if r.Slot.Strict {
			out = append(out, r.ID)
		}
	}
	return out
}

// RenameReference rewrites every reference to oldID so that it names newID.
// Suffixes such as ":Master" are preserved. It returns the number of
// rewritten slots.
func (o *Object) RenameReference(oldID, newID string) int {
	spec := o.Spec()
	if spec == nil || spec.refs == nil {
		return 0
	}
	n := 0
	for _, slot := range spec.refs(o) {
		id, suffix := splitRef(o.slotToken(slot), slot.Prefix)
		if id != oldID {
			continue
		}
		tok := slot.Prefix + newID + suffix
		switch slot.Field {
		case FieldChildren:
			o.Children[slot.Index] = tok
		default:
			o.Head[slot.Index] = tok
		}
		n++
	}
	return n
}

func (o *Object) slotToken(slot RefSlot) string {
	list := o.Head
	if slot.Field == FieldChildren {
		list = o.Children
	}
	if slot.Index < 0 || slot.Index >= len(list) {
		return ""
	}
	return list[slot.Index]
}

func splitRef(tok, prefix string) (id, suffix string) {
	tok = strings.TrimPrefix(tok, prefix)
	if i := strings.IndexByte(tok, ':'); i >= 0 {
		return tok[:i], tok[i:]
	}
	return tok, ""
}

func lookupPair(pairs []Pair, name string) (string, bool) {
	for _, p := range pairs {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}
