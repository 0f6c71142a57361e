package cib

import (
	"fmt"
	"slices"

	"github.com/roach88/cibconf/internal/graph"
	"github.com/roach88/cibconf/internal/model"
	"github.com/roach88/cibconf/internal/prefs"
	"github.com/roach88/cibconf/internal/schema"
)

// Severity is the overall outcome of a verification.
type Severity int

const (
	SeverityPass Severity = iota
	SeverityWarn
	SeverityFail
)

func (s Severity) String() string {
	switch s {
	case SeverityWarn:
		return "pass-with-warning"
	case SeverityFail:
		return "fail"
	default:
		return "pass"
	}
}

// Tier separates fatal structural findings from semantic warnings.
type Tier int

const (
	TierStructural Tier = iota
	TierSemantic
)

func (t Tier) String() string {
	if t == TierSemantic {
		return "semantic"
	}
	return "structural"
}

// Finding is one verification problem.
type Finding struct {
	ID      string
	Tier    Tier
	Message string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s: %s", f.Tier, f.ID, f.Message)
}

// Report is the result of a verification. It is always returned, never
// raised as an error.
type Report struct {
	Findings   []Finding
	Structural int
	Warnings   int
	Severity   Severity
}

// Verifier runs the structural and semantic checks.
type Verifier struct {
	schema    *schema.Schema
	tolerance int
	semantic  bool
}

// NewVerifier creates a verifier for the given schema. Semantic checks are
// disabled when the check frequency is "never"; the semantic tolerance is
// the number of warnings accepted before the result is a failure.
func NewVerifier(s *schema.Schema, p prefs.Preferences) *Verifier {
	return &Verifier{
		schema:    s,
		tolerance: p.SemanticTolerance,
		semantic:  p.CheckFrequency != prefs.CheckNever,
	}
}

// Verify checks the selected objects. References and cross-object rules
// are resolved against full, which should include the selection.
func (v *Verifier) Verify(selection, full []*model.Object) Report {
	var r Report
	for _, f := range v.Structural(selection, full) {
		r.Findings = append(r.Findings, f)
		r.Structural++
	}
	for _, f := range v.Semantic(selection, full) {
		r.Findings = append(r.Findings, f)
		r.Warnings++
	}
	switch {
	case r.Structural > 0 || r.Warnings > v.tolerance:
		r.Severity = SeverityFail
	case r.Warnings > 0:
		r.Severity = SeverityWarn
	}
	return r
}

// Structural reports schema violations, duplicate ids, unresolved or
// mistyped references and children held by several containers.
func (v *Verifier) Structural(selection, full []*model.Object) []Finding {
	index := make(map[string]*model.Object, len(full))
	count := make(map[string]int, len(full))
	for _, o := range full {
		index[o.ID] = o
		count[o.ID]++
	}
	owners := containerOwners(full)

	var out []Finding
	add := func(viols []schema.Violation) {
		for _, viol := range viols {
			msg := viol.Message
			if viol.Path != "" {
				msg = viol.Path + ": " + msg
			}
			out = append(out, Finding{ID: viol.ID, Tier: TierStructural, Message: msg})
		}
	}
	reported := make(map[string]bool)
	for _, o := range selection {
		if count[o.ID] > 1 && !reported[o.ID] {
			reported[o.ID] = true
			out = append(out, Finding{ID: o.ID, Tier: TierStructural, Message: "duplicate id"})
		}
		add(v.schema.Validate(o))
		add(referenceViolations(o, index))
		add(ownershipViolations(o, owners))
	}
	return out
}

// Semantic reports heuristic warnings for the selected objects. It
// returns nothing when semantic checks are disabled.
func (v *Verifier) Semantic(selection, full []*model.Object) []Finding {
	if !v.semantic {
		return nil
	}
	index := make(map[string]*model.Object, len(full))
	nodes := make(map[string]bool)
	opTimeout := false
	for _, o := range full {
		index[o.ID] = o
		switch o.Kind {
		case model.KindNode:
			nodes[o.ID] = true
		case model.KindOpDefaults:
			if _, ok := o.Attr("timeout"); ok {
				opTimeout = true
			}
		}
	}

	var out []Finding
	warn := func(id, format string, args ...any) {
		out = append(out, Finding{ID: id, Tier: TierSemantic, Message: fmt.Sprintf(format, args...)})
	}
	selected := make(map[string]bool, len(selection))
	for _, o := range selection {
		selected[o.ID] = true
		switch o.Kind {
		case model.KindPrimitive, model.KindTemplate:
			ops := o.BlocksOf(model.BlockOp)
			if o.Kind == model.KindPrimitive {
				inherited := ops
				for _, r := range o.References() {
					if tmpl, ok := index[r.ID]; ok && tmpl.Kind == model.KindTemplate {
						inherited = append(slices.Clone(ops), tmpl.BlocksOf(model.BlockOp)...)
					}
				}
				if !hasOp(inherited, "monitor") {
					warn(o.ID, "no monitor operation defined")
				}
			}
			for _, op := range ops {
				if _, ok := op.Get("timeout"); !ok && !opTimeout {
					warn(o.ID, "operation %s has no timeout", op.Name)
				}
			}
		case model.KindLocation:
			if len(o.Head) < 3 {
				continue
			}
			rsc, node := o.Head[0], o.Head[2]
			if len(nodes) > 0 && !nodes[node] {
				warn(o.ID, "node %s is not defined", node)
			}
			for _, other := range full {
				if other.ID != o.ID && other.Kind == model.KindLocation && len(other.Head) >= 3 &&
					other.Head[0] == rsc && other.Head[2] == node {
					warn(o.ID, "%s also scores %s on %s", other.ID, rsc, node)
				}
			}
		case model.KindColocation, model.KindOrder, model.KindTicket:
			seen := make(map[string]bool)
			for _, r := range o.References() {
				if seen[r.ID] {
					warn(o.ID, "resource %s is named more than once", r.ID)
				}
				seen[r.ID] = true
			}
		}
	}

	cycles := make(map[string]bool)
	for _, e := range graph.Build(full).Cycles {
		if selected[e.Source] && !cycles[e.Source] {
			cycles[e.Source] = true
			warn(e.Source, "%s constraint closes a cycle between %s and %s", e.Type, e.From, e.To)
		}
	}
	return out
}
