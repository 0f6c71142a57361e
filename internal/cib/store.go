package cib

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/cibconf/internal/model"
	"github.com/roach88/cibconf/internal/prefs"
	"github.com/roach88/cibconf/internal/schema"
)

// Store is the working copy of a configuration.
//
// Live objects are kept in document order. Objects deleted after being
// committed stay behind as tombstones until the next successful commit;
// objects that were never committed are discarded outright.
//
// Every mutating method is all-or-nothing: on error the store is exactly
// as it was before the call.
type Store struct {
	registry *schema.Registry
	schema   *schema.Schema
	prefs    prefs.Preferences
	logger   *slog.Logger

	live       map[string]*model.Object
	order      []string
	tombstones map[string]*model.Object
	pending    *PendingLog

	sane  bool
	cause error

	// onChange receives objects created or modified through the store
	// when semantic checks run on every change.
	onChange func(objs []*model.Object)
}

func newStore(reg *schema.Registry, p prefs.Preferences, logger *slog.Logger) *Store {
	return &Store{
		registry:   reg,
		prefs:      p,
		logger:     logger,
		live:       make(map[string]*model.Object),
		tombstones: make(map[string]*model.Object),
		pending:    newPendingLog(),
	}
}

// load resets the store to doc. Every object starts clean.
func (s *Store) load(doc *model.Document, sch *schema.Schema) {
	s.schema = sch
	s.live = make(map[string]*model.Object, len(doc.Objects))
	s.order = make([]string, 0, len(doc.Objects))
	s.tombstones = make(map[string]*model.Object)
	s.pending = newPendingLog()
	for _, o := range doc.Objects {
		c := o.Clone()
		c.State = model.StateClean
		s.live[c.ID] = c
		s.order = append(s.order, c.ID)
	}
	s.sane = true
	s.cause = nil
}

func (s *Store) markInsane(cause error) {
	s.sane = false
	s.cause = cause
}

func (s *Store) checkSane() error {
	if !s.sane {
		return &SanityError{Cause: s.cause}
	}
	return nil
}

// IsSane reports whether the live configuration was loaded successfully.
func (s *Store) IsSane() bool {
	return s.sane
}

// HasChanged reports whether anything changed since the last commit.
func (s *Store) HasChanged() bool {
	return s.pending.Len() > 0
}

// Pending returns the pending log entries.
func (s *Store) Pending() []string {
	return s.pending.Entries()
}

// Schema returns the active schema. It is nil until the store is loaded.
func (s *Store) Schema() *schema.Schema {
	return s.schema
}

// FindObject returns a copy of the live object with the given id.
func (s *Store) FindObject(id string) (*model.Object, bool) {
	o, ok := s.live[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// Objects returns copies of all live objects in document order.
func (s *Store) Objects() []*model.Object {
	out := make([]*model.Object, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.live[id].Clone())
	}
	return out
}

// Changed returns copies of the live objects that are new or modified.
func (s *Store) Changed() []*model.Object {
	var out []*model.Object
	for _, id := range s.order {
		if o := s.live[id]; o.State != model.StateClean {
			out = append(out, o.Clone())
		}
	}
	return out
}

// Deleted returns the ids of committed objects deleted in this session.
func (s *Store) Deleted() []string {
	ids := make([]string, 0, len(s.tombstones))
	for id := range s.tombstones {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// CreateObject parses params with the grammar of kind and adds the result
// as a new object.
func (s *Store) CreateObject(kind string, params []string) (*model.Object, error) {
	if err := s.checkSane(); err != nil {
		return nil, err
	}
	spec, ok := model.LookupKind(kind)
	if !ok {
		return nil, &UnsupportedElementError{Kind: kind, Schema: s.schema.Name}
	}
	if !s.schema.Supports(spec.Kind) {
		return nil, &UnsupportedElementError{Kind: string(spec.Kind), Schema: s.schema.Name}
	}

	o, err := model.ParseTokens(spec.Kind, params)
	if err != nil {
		return nil, s.syntaxViolations(err)
	}
	if _, exists := s.live[o.ID]; exists {
		return nil, &ConflictError{ID: o.ID}
	}
	if v := s.validate([]*model.Object{o}); len(v) > 0 {
		return nil, &ValidationError{Violations: v}
	}

	s.insertAt(o, len(s.order))
	s.logger.Debug("object created", "id", o.ID, "kind", o.Kind)
	s.changed(o)
	return o.Clone(), nil
}

// Rename changes an object's id and rewrites every reference to it.
func (s *Store) Rename(oldID, newID string) error {
	if err := s.checkSane(); err != nil {
		return err
	}
	o, ok := s.live[oldID]
	if !ok {
		return &NotFoundError{IDs: []string{oldID}}
	}
	if oldID == newID {
		return nil
	}
	if o.Spec().FixedID {
		return &ValidationError{Violations: []schema.Violation{violation(oldID, "the id of %s cannot be changed", o.Kind)}}
	}
	if err := s.registry.ValidID(newID); err != nil {
		return &ValidationError{Violations: []schema.Violation{violation(oldID, "%v", err)}}
	}
	if _, exists := s.live[newID]; exists {
		return &ConflictError{ID: newID}
	}

	stage := s.stage()
	pos := slices.Index(stage.order, oldID)
	renamed := stage.live[oldID].Clone()
	renamed.ID = newID
	stage.remove(oldID)
	stage.insertAt(renamed, pos)
	for _, id := range stage.order {
		if obj := stage.live[id]; obj.RenameReference(oldID, newID) > 0 {
			stage.markModified(obj)
		}
	}
	s.adopt(stage)
	s.logger.Debug("object renamed", "from", oldID, "to", newID)
	return nil
}

// Delete removes the given objects. Either all of them are deleted or
// none: every id must exist and none may still be referenced by an object
// that stays.
func (s *Store) Delete(ids ...string) error {
	if err := s.checkSane(); err != nil {
		return err
	}
	ids = dedupe(ids)
	var missing []string
	for _, id := range ids {
		if _, ok := s.live[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &NotFoundError{IDs: missing}
	}
	if err := s.checkDeletable(ids); err != nil {
		return err
	}
	for _, id := range ids {
		s.remove(id)
	}
	s.logger.Debug("objects deleted", "ids", ids)
	return nil
}

// Erase removes every object from the working copy.
func (s *Store) Erase() error {
	if err := s.checkSane(); err != nil {
		return err
	}
	for _, id := range slices.Clone(s.order) {
		s.remove(id)
	}
	return nil
}

// EraseNodes removes every node object from the working copy.
func (s *Store) EraseNodes() error {
	if err := s.checkSane(); err != nil {
		return err
	}
	for _, id := range slices.Clone(s.order) {
		if s.live[id].Kind == model.KindNode {
			s.remove(id)
		}
	}
	return nil
}

// DefaultTimeouts gives every operation of the named objects a timeout
// taken from the preferences and adds start and stop operations where
// missing. Ids that cannot take timeouts fail individually; the others
// are still updated.
func (s *Store) DefaultTimeouts(ids ...string) error {
	if err := s.checkSane(); err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		o, ok := s.live[id]
		if !ok {
			errs = append(errs, &NotFoundError{IDs: []string{id}})
			continue
		}
		if !o.Spec().Timeouts {
			errs = append(errs, fmt.Errorf("%s: %s does not support operation timeouts", id, o.Kind))
			continue
		}
		c := o.Clone()
		if applyDefaultTimeouts(c, s.prefs) {
			s.live[id] = c
			s.markModified(c)
		}
	}
	return errors.Join(errs...)
}

func applyDefaultTimeouts(o *model.Object, p prefs.Preferences) bool {
	changed := false
	for _, name := range []string{"start", "stop"} {
		if !hasOp(o.BlocksOf(model.BlockOp), name) {
			o.Blocks = append(o.Blocks, model.Block{Type: model.BlockOp, Name: name})
			changed = true
		}
	}
	for i := range o.Blocks {
		b := &o.Blocks[i]
		if b.Type != model.BlockOp {
			continue
		}
		if _, ok := b.Get("timeout"); ok {
			continue
		}
		t, ok := p.Timeout(b.Name)
		if !ok {
			continue
		}
		b.Pairs = append(b.Pairs, model.Pair{Name: "timeout", Value: t})
		changed = true
	}
	return changed
}

// swap replaces the objects named by orig with objs in one step. Ids in
// orig missing from objs are deleted, changed objects are modified and
// unknown ids are created.
func (s *Store) swap(orig []string, objs []*model.Object) error {
	if err := s.checkSane(); err != nil {
		return err
	}
	if v := duplicateIDs(objs); len(v) > 0 {
		return &ValidationError{Violations: v}
	}

	selected := toSet(orig)
	stage := s.stage()
	var changed []*model.Object
	present := make(map[string]bool, len(objs))
	for _, o := range objs {
		present[o.ID] = true
		prev, exists := stage.live[o.ID]
		switch {
		case exists && !selected[o.ID]:
			return &ConflictError{ID: o.ID, Reason: "id is used by an object outside the selection"}
		case exists:
			if prev.Equal(o) {
				continue
			}
			c := o.Clone()
			c.State = prev.State
			stage.live[o.ID] = c
			stage.markModified(c)
			changed = append(changed, c)
		default:
			c := o.Clone()
			stage.insertAt(c, len(stage.order))
			changed = append(changed, c)
		}
	}

	var gone []string
	for _, id := range orig {
		if !present[id] {
			gone = append(gone, id)
		}
	}
	if err := stage.checkDeletable(gone); err != nil {
		return err
	}
	for _, id := range gone {
		stage.remove(id)
	}
	if v := stage.validate(changed); len(v) > 0 {
		return &ValidationError{Violations: v}
	}

	s.adopt(stage)
	s.changed(changed...)
	return nil
}

// validate checks objs against the schema and resolves their references
// against the store.
func (s *Store) validate(objs []*model.Object) []schema.Violation {
	owners := containerOwners(s.liveObjects())
	var out []schema.Violation
	for _, o := range objs {
		out = append(out, s.schema.Validate(o)...)
		out = append(out, referenceViolations(o, s.live)...)
		out = append(out, ownershipViolations(o, owners)...)
	}
	return out
}

// checkDeletable returns a ReferenceError when an object outside ids
// strictly references one of them.
func (s *Store) checkDeletable(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	set := toSet(ids)
	refs := make(map[string][]string)
	for _, id := range s.order {
		if set[id] {
			continue
		}
		o := s.live[id]
		for _, r := range o.References() {
			if r.Slot.Strict && set[r.ID] && !slices.Contains(refs[r.ID], o.ID) {
				refs[r.ID] = append(refs[r.ID], o.ID)
			}
		}
	}
	if len(refs) > 0 {
		return &ReferenceError{ReferencedBy: refs}
	}
	return nil
}

// insertAt adds o at position pos. An id deleted earlier in the session
// comes back as modified since the baseline still holds it.
func (s *Store) insertAt(o *model.Object, pos int) {
	o.State = model.StateNew
	if _, ok := s.tombstones[o.ID]; ok {
		delete(s.tombstones, o.ID)
		o.State = model.StateModified
	}
	s.live[o.ID] = o
	s.order = slices.Insert(s.order, pos, o.ID)
	s.pending.Record(o.ID)
}

func (s *Store) remove(id string) {
	o, ok := s.live[id]
	if !ok {
		return
	}
	delete(s.live, id)
	s.order = slices.DeleteFunc(s.order, func(x string) bool { return x == id })
	if o.State != model.StateNew {
		o.State = model.StateDeleted
		s.tombstones[id] = o
	}
	s.pending.Record(id)
}

func (s *Store) markModified(o *model.Object) {
	if o.State == model.StateClean {
		o.State = model.StateModified
	}
	s.pending.Record(o.ID)
}

func (s *Store) changed(objs ...*model.Object) {
	if s.onChange != nil && len(objs) > 0 {
		s.onChange(objs)
	}
}

// document returns the working copy as a document with clean states.
func (s *Store) document() *model.Document {
	doc := &model.Document{Schema: s.schema.Name, Objects: make([]*model.Object, 0, len(s.order))}
	for _, id := range s.order {
		c := s.live[id].Clone()
		c.State = model.StateClean
		doc.Objects = append(doc.Objects, c)
	}
	return doc
}

func (s *Store) liveObjects() []*model.Object {
	out := make([]*model.Object, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.live[id])
	}
	return out
}

// stage returns a deep copy to apply a multi-step change to.
func (s *Store) stage() *Store {
	c := *s
	c.live = make(map[string]*model.Object, len(s.live))
	for id, o := range s.live {
		c.live[id] = o.Clone()
	}
	c.order = slices.Clone(s.order)
	c.tombstones = make(map[string]*model.Object, len(s.tombstones))
	for id, o := range s.tombstones {
		c.tombstones[id] = o.Clone()
	}
	c.pending = s.pending.clone()
	return &c
}

func (s *Store) adopt(stage *Store) {
	s.schema = stage.schema
	s.live = stage.live
	s.order = stage.order
	s.tombstones = stage.tombstones
	s.pending = stage.pending
}

// referenceViolations checks that every strict reference of o names an
// object in index of an acceptable kind.
func referenceViolations(o *model.Object, index map[string]*model.Object) []schema.Violation {
	var out []schema.Violation
	for _, r := range o.References() {
		if !r.Slot.Strict {
			continue
		}
		target, ok := index[r.ID]
		switch {
		case !ok:
			out = append(out, violation(o.ID, "references undefined object %s", r.ID))
		case !r.Slot.Target.Accepts(target.Kind):
			out = append(out, violation(o.ID, "%s is a %s, expected a %s", r.ID, target.Kind, r.Slot.Target))
		}
	}
	return out
}

// ownershipViolations reports children of o that another container
// already holds.
func ownershipViolations(o *model.Object, owners map[string][]string) []schema.Violation {
	var out []schema.Violation
	for _, child := range o.Children {
		if child == o.ID {
			out = append(out, violation(o.ID, "%s cannot contain itself", o.ID))
			continue
		}
		for _, owner := range owners[child] {
			if owner != o.ID {
				out = append(out, violation(o.ID, "%s already belongs to %s", child, owner))
			}
		}
	}
	return out
}

// containerOwners maps each child id to the containers listing it.
func containerOwners(objs []*model.Object) map[string][]string {
	owners := make(map[string][]string)
	for _, o := range objs {
		if spec := o.Spec(); spec == nil || !spec.Container {
			continue
		}
		for _, child := range o.Children {
			owners[child] = append(owners[child], o.ID)
		}
	}
	return owners
}

func duplicateIDs(objs []*model.Object) []schema.Violation {
	seen := make(map[string]bool, len(objs))
	var out []schema.Violation
	for _, o := range objs {
		if seen[o.ID] {
			out = append(out, violation(o.ID, "duplicate id"))
		}
		seen[o.ID] = true
	}
	return out
}

// syntaxViolations turns parse problems into violations. Whatever part of
// the object could be parsed is validated as well, so every problem is
// reported at once.
func (s *Store) syntaxViolations(err error) error {
	var se *model.SyntaxError
	if !errors.As(err, &se) {
		return err
	}
	v := make([]schema.Violation, 0, len(se.Problems))
	for _, p := range se.Problems {
		v = append(v, schema.Violation{ID: string(se.Kind), Message: p})
	}
	if se.Partial != nil {
		v = append(v, s.validate([]*model.Object{se.Partial})...)
	}
	return &ValidationError{Violations: v}
}

func hasOp(ops []model.Block, name string) bool {
	return slices.ContainsFunc(ops, func(b model.Block) bool { return b.Name == name })
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
