package cib

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gobwas/glob"

	"github.com/roach88/cibconf/internal/graph"
	"github.com/roach88/cibconf/internal/model"
	"github.com/roach88/cibconf/internal/simulate"
)

// Selector chooses the objects of an ObjectSet.
//
// With IDs each id selects that object and, for containers, everything it
// contains. Ids may be glob patterns. Without IDs, Raw selects the whole
// document and otherwise the set holds the changed objects; the ids of
// objects deleted since the last commit are then listed by Deleted.
type Selector struct {
	Raw bool
	IDs []string
}

// ObjectSet is a point-in-time view over a session's working copy. Raw
// sets exchange text as JSON documents; other sets use the canonical text
// form.
type ObjectSet struct {
	sess    *Session
	raw     bool
	ids     []string
	deleted []string
}

// Transformer rewrites configuration text, for example extproc.Filter.
type Transformer interface {
	Transform(ctx context.Context, in []byte) ([]byte, error)
}

// Editor lets the operator change configuration text, for example
// extproc.Editor.
type Editor interface {
	Edit(ctx context.Context, in []byte) ([]byte, error)
}

// Build resolves a selector against the working copy. Every selector that
// matches nothing is reported in one NotFoundError.
func (s *Session) Build(sel Selector) (*ObjectSet, error) {
	if err := s.store.checkSane(); err != nil {
		return nil, err
	}
	set := &ObjectSet{sess: s, raw: sel.Raw}
	switch {
	case len(sel.IDs) > 0:
		ids, err := s.resolve(sel.IDs)
		if err != nil {
			return nil, err
		}
		set.ids = ids
	case sel.Raw:
		set.ids = append([]string(nil), s.store.order...)
	default:
		for _, o := range s.store.Changed() {
			set.ids = append(set.ids, o.ID)
		}
		set.deleted = s.store.Deleted()
	}
	return set, nil
}

func (s *Session) resolve(selectors []string) ([]string, error) {
	picked := make(map[string]bool)
	var missing []string
	for _, sel := range selectors {
		matched := false
		if strings.ContainsAny(sel, "*?[{") {
			g, err := glob.Compile(sel)
			if err != nil {
				return nil, fmt.Errorf("selector %q: %w", sel, err)
			}
			for _, id := range s.store.order {
				if g.Match(id) {
					s.subtree(id, picked)
					matched = true
				}
			}
		} else if _, ok := s.store.live[sel]; ok {
			s.subtree(sel, picked)
			matched = true
		}
		if !matched {
			missing = append(missing, sel)
		}
	}
	if len(missing) > 0 {
		return nil, &NotFoundError{IDs: missing}
	}
	ids := make([]string, 0, len(picked))
	for _, id := range s.store.order {
		if picked[id] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Session) subtree(id string, picked map[string]bool) {
	if picked[id] {
		return
	}
	o, ok := s.store.live[id]
	if !ok {
		return
	}
	picked[id] = true
	for _, child := range o.Children {
		s.subtree(child, picked)
	}
}

// IDs returns the selected ids in document order.
func (set *ObjectSet) IDs() []string {
	return append([]string(nil), set.ids...)
}

// Deleted returns the ids of objects deleted since the last commit. It is
// only set for the changed view; deleted objects are never rendered.
func (set *ObjectSet) Deleted() []string {
	return append([]string(nil), set.deleted...)
}

// Objects returns copies of the selected objects that are still live.
func (set *ObjectSet) Objects() []*model.Object {
	out := make([]*model.Object, 0, len(set.ids))
	for _, id := range set.ids {
		if o, ok := set.sess.store.FindObject(id); ok {
			out = append(out, o)
		}
	}
	return out
}

// Render serializes the selection.
func (set *ObjectSet) Render() ([]byte, error) {
	objs := set.Objects()
	if !set.raw {
		return model.Render(objs), nil
	}
	doc := &model.Document{
		Schema:  set.sess.store.schema.Name,
		Epoch:   set.sess.baseline.doc.Epoch,
		Objects: objs,
	}
	for _, o := range doc.Objects {
		o.State = model.StateClean
	}
	return model.MarshalDocument(doc)
}

// Show writes the rendered selection to w.
func (set *ObjectSet) Show(w io.Writer) error {
	out, err := set.Render()
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func (set *ObjectSet) parse(data []byte) ([]*model.Object, error) {
	if !set.raw {
		return model.Parse(data)
	}
	doc, err := model.UnmarshalDocument(data)
	if err != nil {
		return nil, err
	}
	return doc.Objects, nil
}

// Filter pipes the rendered selection through t and replaces the selected
// objects with the result. Nothing changes unless the output parses and
// the resulting objects are valid.
func (set *ObjectSet) Filter(ctx context.Context, t Transformer) error {
	return set.rewrite(ctx, t.Transform)
}

// Edit hands the rendered selection to an editor and applies the result
// like Filter. Unchanged text is a no-op.
func (set *ObjectSet) Edit(ctx context.Context, e Editor) error {
	return set.rewrite(ctx, e.Edit)
}

func (set *ObjectSet) rewrite(ctx context.Context, fn func(context.Context, []byte) ([]byte, error)) error {
	if err := set.sess.store.checkSane(); err != nil {
		return err
	}
	in, err := set.Render()
	if err != nil {
		return err
	}
	out, err := fn(ctx, in)
	if err != nil {
		return err
	}
	if bytes.Equal(in, out) {
		return nil
	}
	objs, err := set.parse(out)
	if err != nil {
		return err
	}
	if err := set.sess.store.swap(set.ids, objs); err != nil {
		return err
	}
	set.ids = set.ids[:0]
	for _, o := range objs {
		set.ids = append(set.ids, o.ID)
	}
	return nil
}

// SaveToFile writes the rendered selection to path. A path of "-" writes
// to the session's output.
func (set *ObjectSet) SaveToFile(path string) error {
	if path == "-" {
		return set.Show(set.sess.stdout)
	}
	out, err := set.Render()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// Verify checks the selection against the whole working copy.
func (set *ObjectSet) Verify() Report {
	r := set.sess.verifier().Verify(set.Objects(), set.sess.store.Objects())
	set.sess.metrics.recordVerification(r.Severity)
	return r
}

// SemanticCheck runs the semantic checks of the selection against full and
// returns the number of warnings. It is zero when semantic checks are
// disabled.
func (set *ObjectSet) SemanticCheck(full *ObjectSet) int {
	return len(set.sess.verifier().Semantic(set.Objects(), full.Objects()))
}

// Ptest simulates the whole working copy, the selection together with the
// unchanged rest of the configuration. Neither the working copy nor the
// baseline is changed.
func (set *ObjectSet) Ptest(ctx context.Context, opts simulate.Options) (*simulate.Result, error) {
	doc := set.sess.store.document()
	doc.Epoch = set.sess.baseline.doc.Epoch
	snapshot, err := model.MarshalDocument(doc)
	if err != nil {
		return nil, err
	}
	return set.sess.simulator.Run(ctx, snapshot, opts)
}

// ShowGraph writes the dependency graph of the selection in dot format.
func (set *ObjectSet) ShowGraph(w io.Writer) error {
	return graph.Build(set.Objects()).WriteDOT(w, "cluster configuration")
}

// SaveGraph writes the dependency graph in dot format to path.
func (set *ObjectSet) SaveGraph(path string) error {
	var buf bytes.Buffer
	if err := set.ShowGraph(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("save graph: %w", err)
	}
	return nil
}

// GraphImage renders the dependency graph to an image file with the
// configured dot program.
func (set *ObjectSet) GraphImage(ctx context.Context, path, format string) error {
	var buf bytes.Buffer
	if err := set.ShowGraph(&buf); err != nil {
		return err
	}
	conv := graph.Converter{
		Program:  set.sess.prefs.DotProgram,
		Runner:   set.sess.runner,
		LookPath: set.sess.lookPath,
	}
	return conv.Convert(ctx, buf.Bytes(), format, path)
}
