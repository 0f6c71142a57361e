package cib

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/cibconf/internal/model"
	"github.com/roach88/cibconf/internal/schema"
)

var monitorRoles = []string{"Started", "Stopped", "Master", "Slave", "Promoted", "Unpromoted"}

// Monitor adds a monitor operation to a resource. target is
// <rsc>[:<role>] and timing is <interval>[:<timeout>]. A monitor with the
// same interval and role must not exist yet.
func (s *Session) Monitor(target, timing string) error {
	if err := s.store.checkSane(); err != nil {
		return err
	}
	id, role, _ := strings.Cut(target, ":")
	interval, timeout, _ := strings.Cut(timing, ":")

	o, ok := s.store.live[id]
	if !ok {
		return &NotFoundError{IDs: []string{id}}
	}
	var v []schema.Violation
	if !o.Spec().AllowsBlock(model.BlockOp) {
		v = append(v, violation(id, "%s is a %s and has no operations", id, o.Kind))
	}
	if strings.Contains(target, ":") && !slices.Contains(monitorRoles, role) {
		v = append(v, violation(id, "unknown role %q", role))
	}
	if _, err := intervalOf(interval); err != nil {
		v = append(v, violation(id, "bad monitor interval %q", interval))
	}
	if strings.Contains(timing, ":") {
		if _, err := intervalOf(timeout); err != nil {
			v = append(v, violation(id, "bad monitor timeout %q", timeout))
		}
	}
	if len(v) > 0 {
		return &ValidationError{Violations: v}
	}

	for _, op := range o.BlocksOf(model.BlockOp) {
		if op.Name != "monitor" {
			continue
		}
		other, _ := op.Get("role")
		cur, _ := op.Get("interval")
		if other == role && sameInterval(cur, interval) {
			return &ConflictError{ID: id, Reason: "a monitor with interval " + interval + " is already defined"}
		}
	}

	op := model.Block{Type: model.BlockOp, Name: "monitor",
		Pairs: []model.Pair{{Name: "interval", Value: interval}}}
	if timeout != "" {
		op.Pairs = append(op.Pairs, model.Pair{Name: "timeout", Value: timeout})
	}
	if role != "" {
		op.Pairs = append(op.Pairs, model.Pair{Name: "role", Value: role})
	}
	c := o.Clone()
	c.Blocks = append(c.Blocks, op)
	if v := s.store.schema.Validate(c); len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	s.store.live[id] = c
	s.store.markModified(c)
	s.store.changed(c)
	s.logger.Debug("monitor added", "id", id, "interval", interval, "role", role)
	return nil
}

// intervalOf parses an operation interval. Bare numbers are seconds.
func intervalOf(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func sameInterval(a, b string) bool {
	if a == b {
		return true
	}
	da, errA := intervalOf(a)
	db, errB := intervalOf(b)
	return errA == nil && errB == nil && da == db
}
