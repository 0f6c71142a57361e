package cib

import (
	"github.com/roach88/cibconf/internal/model"
	"github.com/roach88/cibconf/internal/schema"
)

// Anchor places a member added to a group.
type Anchor = model.Position

// Group member anchors.
const (
	AnchorLast   = model.PositionEnd
	AnchorAfter  = model.PositionAfter
	AnchorBefore = model.PositionBefore
)

// GroupAdd inserts member into group next to ref. With AnchorLast the
// member is appended and ref is ignored. Only the member list changes.
func (s *Session) GroupAdd(group, member string, anchor Anchor, ref string) error {
	if err := s.store.checkSane(); err != nil {
		return err
	}
	g, err := s.group(group)
	if err != nil {
		return err
	}
	m, ok := s.store.live[member]
	if !ok {
		return &NotFoundError{IDs: []string{member}}
	}
	if m.Kind != model.KindPrimitive {
		return &ValidationError{Violations: []schema.Violation{
			violation(group, "%s is a %s, only primitives can be group members", member, m.Kind),
		}}
	}
	if owners := containerOwners(s.store.liveObjects())[member]; len(owners) > 0 {
		return &ValidationError{Violations: []schema.Violation{
			violation(group, "%s already belongs to %s", member, owners[0]),
		}}
	}
	if anchor != AnchorLast && !g.HasChild(ref) {
		return &NotMemberError{Group: group, Member: ref}
	}

	children, _ := model.InsertToken(g.Children, member, anchor, ref)
	return s.setMembers(g, children)
}

// GroupRemove removes one occurrence of member from group.
func (s *Session) GroupRemove(group, member string) error {
	if err := s.store.checkSane(); err != nil {
		return err
	}
	g, err := s.group(group)
	if err != nil {
		return err
	}
	children, ok := model.RemoveToken(g.Children, member)
	if !ok {
		return &NotMemberError{Group: group, Member: member}
	}
	return s.setMembers(g, children)
}

func (s *Session) group(id string) (*model.Object, error) {
	g, ok := s.store.live[id]
	if !ok {
		return nil, &NotFoundError{IDs: []string{id}}
	}
	if g.Kind != model.KindGroup {
		return nil, &ValidationError{Violations: []schema.Violation{violation(id, "%s is a %s, not a group", id, g.Kind)}}
	}
	return g, nil
}

func (s *Session) setMembers(g *model.Object, children []string) error {
	c := g.Clone()
	c.Children = children
	if v := s.store.schema.Validate(c); len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	s.store.live[c.ID] = c
	s.store.markModified(c)
	s.store.changed(c)
	return nil
}
