package model

import (
	"slices"
	"strings"
)

// Kind names a configuration object kind. The value is the canonical
// keyword used in the text form.
type Kind string

const (
	KindNode            Kind = "node"
	KindPrimitive       Kind = "primitive"
	KindGroup           Kind = "group"
	KindClone           Kind = "clone"
	KindMaster          Kind = "ms"
	KindTemplate        Kind = "rsc_template"
	KindLocation        Kind = "location"
	KindColocation      Kind = "colocation"
	KindOrder           Kind = "order"
	KindTicket          Kind = "rsc_ticket"
	KindProperty        Kind = "property"
	KindRscDefaults     Kind = "rsc_defaults"
	KindOpDefaults      Kind = "op_defaults"
	KindFencingTopology Kind = "fencing_topology"
	KindRole            Kind = "role"
	KindUser            Kind = "user"
	KindTag             Kind = "tag"
)

// Class groups kinds by the role they play in a configuration.
type Class int

const (
	ClassNode Class = iota
	ClassResource
	ClassConstraint
	ClassPropertySet
	ClassFencing
	ClassAccess
	ClassTag
)

// Block types accepted inside object statements.
const (
	BlockParams      = "params"
	BlockMeta        = "meta"
	BlockUtilization = "utilization"
	BlockAttributes  = "attributes"
	BlockOp          = "op"
)

// Target is the class of object a reference slot may point at.
type Target int

const (
	TargetAny Target = iota
	TargetResource
	TargetPrimitive
	TargetTemplate
	TargetNode
	TargetRole
)

func (t Target) String() string {
	switch t {
	case TargetResource:
		return "resource"
	case TargetPrimitive:
		return "primitive"
	case TargetTemplate:
		return "template"
	case TargetNode:
		return "node"
	case TargetRole:
		return "role"
	default:
		return "object"
	}
}

// Accepts reports whether an object of kind k satisfies the target.
func (t Target) Accepts(k Kind) bool {
	switch t {
	case TargetResource:
		return k == KindPrimitive || k == KindGroup || k == KindClone || k == KindMaster
	case TargetPrimitive:
		return k == KindPrimitive
	case TargetTemplate:
		return k == KindTemplate
	case TargetNode:
		return k == KindNode
	case TargetRole:
		return k == KindRole
	default:
		return true
	}
}

// Field selects the token list a RefSlot indexes into.
type Field int

const (
	FieldHead Field = iota
	FieldChildren
)

// RefSlot locates one reference inside an object. The referenced id is the
// token with Prefix removed, up to the first ':'; anything after that colon
// (a role, an action, the level separator) is preserved on rename.
//
// Strict references must resolve to a live object. Non-strict references
// (node names in location rules, fencing levels) may name objects that are
// not part of the configuration.
type RefSlot struct {
	Field  Field
	Index  int
	Prefix string
	Target Target
	Strict bool
}

// KindSpec describes the grammar and reference structure of one kind.
type KindSpec struct {
	Kind    Kind
	Aliases []string
	Class   Class

	// Container kinds store positional tokens as Children.
	Container bool
	// Blocks lists the nested block types the kind accepts.
	Blocks []string
	// Options allows trailing name=value tokens after the head.
	Options bool
	// Opaque kinds keep every token, '=' included, as a head token.
	Opaque bool
	// DefaultID is used when the statement names no id.
	DefaultID string
	// FixedID kinds always use DefaultID and never render it.
	FixedID bool
	// Timeouts marks kinds whose op blocks accept timeout defaults.
	Timeouts bool

	refs func(o *Object) []RefSlot
}

// AllowsBlock reports whether word opens a block for this kind.
func (s *KindSpec) AllowsBlock(word string) bool {
	return slices.Contains(s.Blocks, word)
}

// IsResource reports whether objects of this kind can be placed in
// containers or named by constraints.
func (s *KindSpec) IsResource() bool {
	return TargetResource.Accepts(s.Kind)
}

var registry = map[Kind]*KindSpec{}
var keywords = map[string]Kind{}

func register(spec *KindSpec) {
	registry[spec.Kind] = spec
	keywords[string(spec.Kind)] = spec.Kind
	for _, alias := range spec.Aliases {
		keywords[alias] = spec.Kind
	}
}

func init() {
	resourceBlocks := []string{BlockParams, BlockMeta, BlockUtilization, BlockOp}
	containerBlocks := []string{BlockParams, BlockMeta}

	register(&KindSpec{Kind: KindNode, Class: ClassNode,
		Blocks: []string{BlockAttributes, BlockUtilization}})
	register(&KindSpec{Kind: KindPrimitive, Class: ClassResource,
		Blocks: resourceBlocks, Timeouts: true, refs: primitiveRefs})
	register(&KindSpec{Kind: KindTemplate, Aliases: []string{"template"}, Class: ClassResource,
		Blocks: resourceBlocks, Timeouts: true})
	register(&KindSpec{Kind: KindGroup, Class: ClassResource, Container: true,
		Blocks: containerBlocks, refs: childRefs(TargetPrimitive)})
	register(&KindSpec{Kind: KindClone, Class: ClassResource, Container: true,
		Blocks: containerBlocks, refs: childRefs(TargetResource)})
	register(&KindSpec{Kind: KindMaster, Aliases: []string{"master"}, Class: ClassResource, Container: true,
		Blocks: containerBlocks, refs: childRefs(TargetResource)})
	register(&KindSpec{Kind: KindLocation, Class: ClassConstraint,
		Options: true, refs: locationRefs})
	register(&KindSpec{Kind: KindColocation, Aliases: []string{"collocation"}, Class: ClassConstraint,
		Options: true, refs: setRefs})
	register(&KindSpec{Kind: KindOrder, Class: ClassConstraint,
		Options: true, refs: setRefs})
	register(&KindSpec{Kind: KindTicket, Class: ClassConstraint,
		Options: true, refs: setRefs})
	register(&KindSpec{Kind: KindProperty, Class: ClassPropertySet,
		Options: true, DefaultID: "cib-bootstrap-options"})
	register(&KindSpec{Kind: KindRscDefaults, Class: ClassPropertySet,
		Options: true, DefaultID: "rsc-options"})
	register(&KindSpec{Kind: KindOpDefaults, Class: ClassPropertySet,
		Options: true, DefaultID: "op-options"})
	register(&KindSpec{Kind: KindFencingTopology, Class: ClassFencing,
		DefaultID: "fencing", FixedID: true, refs: fencingRefs})
	register(&KindSpec{Kind: KindRole, Class: ClassAccess, Opaque: true,
		refs: prefixedRefs("ref:", TargetAny, false)})
	register(&KindSpec{Kind: KindUser, Class: ClassAccess, Opaque: true,
		refs: prefixedRefs("role:", TargetRole, true)})
	register(&KindSpec{Kind: KindTag, Class: ClassTag, refs: headRefs(TargetAny)})
}

// LookupKind resolves a keyword or alias to its KindSpec.
func LookupKind(keyword string) (*KindSpec, bool) {
	k, ok := keywords[strings.ToLower(keyword)]
	if !ok {
		return nil, false
	}
	return registry[k], true
}

// SpecOf returns the KindSpec for k, or nil when k is not registered.
func SpecOf(k Kind) *KindSpec {
	return registry[k]
}

// Kinds returns every registered kind in sorted order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func childRefs(target Target) func(o *Object) []RefSlot {
	return func(o *Object) []RefSlot {
		slots := make([]RefSlot, 0, len(o.Children))
		for i := range o.Children {
			slots = append(slots, RefSlot{Field: FieldChildren, Index: i, Target: target, Strict: true})
		}
		return slots
	}
}

func headRefs(target Target) func(o *Object) []RefSlot {
	return func(o *Object) []RefSlot {
		slots := make([]RefSlot, 0, len(o.Head))
		for i := range o.Head {
			slots = append(slots, RefSlot{Field: FieldHead, Index: i, Target: target, Strict: true})
		}
		return slots
	}
}

func primitiveRefs(o *Object) []RefSlot {
	if len(o.Head) > 0 && strings.HasPrefix(o.Head[0], "@") {
		return []RefSlot{{Field: FieldHead, Index: 0, Prefix: "@", Target: TargetTemplate, Strict: true}}
	}
	return nil
}

// location <id> <rsc> <score>: <node>
func locationRefs(o *Object) []RefSlot {
	var slots []RefSlot
	if len(o.Head) > 0 {
		slots = append(slots, RefSlot{Field: FieldHead, Index: 0, Target: TargetResource, Strict: true})
	}
	if len(o.Head) > 2 {
		slots = append(slots, RefSlot{Field: FieldHead, Index: 2, Target: TargetNode})
	}
	return slots
}

// colocation, order and rsc_ticket: <score|kind|ticket>: <rsc>[:<suffix>] ...
func setRefs(o *Object) []RefSlot {
	var slots []RefSlot
	for i := 1; i < len(o.Head); i++ {
		slots = append(slots, RefSlot{Field: FieldHead, Index: i, Target: TargetResource, Strict: true})
	}
	return slots
}

// fencing_topology [<node>:] <stonith-rsc> ...
func fencingRefs(o *Object) []RefSlot {
	var slots []RefSlot
	for i, tok := range o.Head {
		if strings.HasSuffix(tok, ":") {
			slots = append(slots, RefSlot{Field: FieldHead, Index: i, Target: TargetNode})
			continue
		}
		slots = append(slots, RefSlot{Field: FieldHead, Index: i, Target: TargetPrimitive, Strict: true})
	}
	return slots
}

func prefixedRefs(prefix string, target Target, strict bool) func(o *Object) []RefSlot {
	return func(o *Object) []RefSlot {
		var slots []RefSlot
		for i, tok := range o.Head {
			if strings.HasPrefix(tok, prefix) && len(tok) > len(prefix) {
				slots = append(slots, RefSlot{Field: FieldHead, Index: i, Prefix: prefix, Target: target, Strict: strict})
			}
		}
		return slots
	}
}
