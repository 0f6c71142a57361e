// Package schema validates configuration objects against versioned
// configuration schemas.
//
// The schemas are written in CUE and embedded in the binary. Each schema
// version lists the object kinds it supports; every kind has one CUE
// definition describing the legal shape of its head tokens, children,
// options and blocks. Validation unifies the object's encoding with its
// kind definition and reports every violation, not just the first.
//
// The registry also carries the version policy: which downgrades are
// permitted and how legacy configurations are upgraded.
package schema

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/cibconf/internal/model"
)

//go:embed schemas.cue
var source string

// Violation is one schema problem found on an object.
type Violation struct {
	ID      string
	Path    string
	Message string
}

func (v Violation) String() string {
	if v.Path == "" {
		return fmt.Sprintf("%s: %s", v.ID, v.Message)
	}
	return fmt.Sprintf("%s: %s: %s", v.ID, v.Path, v.Message)
}

// UnknownSchemaError is returned for schema names the registry does not know.
type UnknownSchemaError struct {
	Name string
}

func (e *UnknownSchemaError) Error() string {
	return fmt.Sprintf("unknown schema %q", e.Name)
}

// Schema is one configuration schema version.
type Schema struct {
	Name  string
	Major int
	Minor int

	kinds map[model.Kind]bool
	reg   *Registry
}

// Supports reports whether the schema allows objects of kind k.
func (s *Schema) Supports(k model.Kind) bool {
	return s.kinds[k]
}

// Kinds returns the supported kinds in sorted order.
func (s *Schema) Kinds() []model.Kind {
	out := make([]model.Kind, 0, len(s.kinds))
	for k := range s.kinds {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Validate checks one object against the schema. It returns every
// violation found; nil means the object is valid.
func (s *Schema) Validate(o *model.Object) []Violation {
	if !s.Supports(o.Kind) {
		return []Violation{{ID: o.ID, Path: "kind",
			Message: fmt.Sprintf("element %s is not supported by schema %s", o.Kind, s.Name)}}
	}
	return s.reg.validateShape(o)
}

// Registry holds every known schema.
type Registry struct {
	ctx        *cue.Context
	kinds      cue.Value
	id         cue.Value
	schemas    map[string]*Schema
	downgrades map[string][]string
	upgrade    upgradeDef
}

type schemaDef struct {
	Major int      `json:"major"`
	Minor int      `json:"minor"`
	Kinds []string `json:"kinds"`
}

type downgradeDef struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type upgradeDef struct {
	FromMajor int               `json:"from_major"`
	Target    string            `json:"target"`
	Names     map[string]string `json:"names"`
}

// Load compiles the embedded schemas.
func Load() (*Registry, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(source, cue.Filename("schemas.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile schemas: %w", formatCUEError(err))
	}

	var defs map[string]schemaDef
	if err := root.LookupPath(cue.ParsePath("schemas")).Decode(&defs); err != nil {
		return nil, fmt.Errorf("decode schemas: %w", err)
	}
	var downs []downgradeDef
	if err := root.LookupPath(cue.ParsePath("downgrades")).Decode(&downs); err != nil {
		return nil, fmt.Errorf("decode downgrades: %w", err)
	}
	var up upgradeDef
	if err := root.LookupPath(cue.ParsePath("upgrade")).Decode(&up); err != nil {
		return nil, fmt.Errorf("decode upgrade: %w", err)
	}

	r := &Registry{
		ctx:        ctx,
		kinds:      root.LookupPath(cue.ParsePath("kinds")),
		id:         root.LookupPath(cue.ParsePath("#ID")),
		schemas:    make(map[string]*Schema, len(defs)),
		downgrades: make(map[string][]string),
		upgrade:    up,
	}
	for name, def := range defs {
		s := &Schema{Name: name, Major: def.Major, Minor: def.Minor, kinds: make(map[model.Kind]bool), reg: r}
		for _, k := range def.Kinds {
			if model.SpecOf(model.Kind(k)) == nil {
				return nil, fmt.Errorf("schema %s: unknown kind %q", name, k)
			}
			s.kinds[model.Kind(k)] = true
		}
		r.schemas[name] = s
	}
	for _, d := range downs {
		r.downgrades[d.From] = append(r.downgrades[d.From], d.To)
	}
	if _, ok := r.schemas[up.Target]; !ok {
		return nil, fmt.Errorf("upgrade target %q is not a known schema", up.Target)
	}
	return r, nil
}

// Lookup returns the named schema.
func (r *Registry) Lookup(name string) (*Schema, error) {
	s, ok := r.schemas[name]
	if !ok {
		return nil, &UnknownSchemaError{Name: name}
	}
	return s, nil
}

// Names returns schema names ordered from oldest to newest.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemas))
	for n := range r.schemas {
		names = append(names, n)
	}
	slices.SortFunc(names, func(a, b string) int {
		return compareVersion(r.schemas[a], r.schemas[b])
	})
	return names
}

// CanChange reports whether a configuration may move from one schema to
// another. Moving forward is always allowed; moving back only along a
// listed downgrade.
func (r *Registry) CanChange(from, to string) bool {
	src, ok := r.schemas[from]
	if !ok {
		return false
	}
	dst, ok := r.schemas[to]
	if !ok {
		return false
	}
	if compareVersion(src, dst) <= 0 {
		return true
	}
	return slices.Contains(r.downgrades[from], to)
}

// ValidID reports whether id is a legal object identifier.
func (r *Registry) ValidID(id string) error {
	v := r.id.Unify(r.ctx.Encode(id))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid id %q", id)
	}
	return nil
}

// UpgradeSource is the schema major version a legacy configuration is
// expected to have before UpgradeObject is applied.
func (r *Registry) UpgradeSource() int {
	return r.upgrade.FromMajor
}

// UpgradeTarget is the schema a legacy configuration moves to.
func (r *Registry) UpgradeTarget() string {
	return r.upgrade.Target
}

// UpgradeObject rewrites legacy attribute names in place and returns the
// number of renamed settings.
func (r *Registry) UpgradeObject(o *model.Object) int {
	n := 0
	rename := func(pairs []model.Pair) {
		for i, p := range pairs {
			if repl, ok := r.upgrade.Names[p.Name]; ok {
				pairs[i].Name = repl
				n++
			}
		}
	}
	rename(o.Attrs)
	for i := range o.Blocks {
		rename(o.Blocks[i].Pairs)
	}
	return n
}

func (r *Registry) validateShape(o *model.Object) []Violation {
	def := r.kinds.LookupPath(cue.MakePath(cue.Str(string(o.Kind))))
	if !def.Exists() {
		return []Violation{{ID: o.ID, Path: "kind", Message: fmt.Sprintf("no definition for %s", o.Kind)}}
	}

	v := def.Unify(r.ctx.Encode(encode(o)))
	err := v.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var out []Violation
	seen := make(map[string]bool)
	for _, e := range errors.Errors(err) {
		format, args := e.Msg()
		viol := Violation{ID: o.ID, Path: strings.Join(e.Path(), "."), Message: fmt.Sprintf(format, args...)}
		key := viol.Path + "\x00" + viol.Message
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, viol)
	}
	return out
}

// encode builds the CUE input for an object. Lists are never nil so that
// empty lists unify as [] rather than null.
func encode(o *model.Object) map[string]any {
	strs := func(in []string) []any {
		out := make([]any, 0, len(in))
		for _, s := range in {
			out = append(out, s)
		}
		return out
	}
	pairs := func(in []model.Pair) []any {
		out := make([]any, 0, len(in))
		for _, p := range in {
			out = append(out, map[string]any{"name": p.Name, "value": p.Value})
		}
		return out
	}
	blocks := make([]any, 0, len(o.Blocks))
	for _, b := range o.Blocks {
		blocks = append(blocks, map[string]any{"type": b.Type, "name": b.Name, "pairs": pairs(b.Pairs)})
	}
	return map[string]any{
		"id":       o.ID,
		"kind":     string(o.Kind),
		"head":     strs(o.Head),
		"children": strs(o.Children),
		"attrs":    pairs(o.Attrs),
		"blocks":   blocks,
	}
}

func compareVersion(a, b *Schema) int {
	if a.Major != b.Major {
		return a.Major - b.Major
	}
	return a.Minor - b.Minor
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if pos := errors.Positions(first); len(pos) > 0 {
		return fmt.Errorf("%s: %s", pos[0], first.Error())
	}
	return first
}
