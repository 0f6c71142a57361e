package cib

import (
	"context"
	"fmt"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/roach88/cibconf/internal/schema"
)

// UpgradeSchemaVersion migrates a legacy configuration to the upgrade
// target schema, rewriting legacy setting names in every object. It runs
// at most once per session. Unless force is set the live schema must have
// the expected legacy major version.
func (s *Session) UpgradeSchemaVersion(ctx context.Context, force bool) error {
	if err := s.store.checkSane(); err != nil {
		return err
	}
	if s.upgraded {
		return ErrAlreadyUpgraded
	}
	ctx = slogcontext.NewCtx(ctx, s.logger.With("op", "upgrade"))
	log := slogcontext.FromCtx(ctx)

	name, err := s.coord.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("upgrade: read schema version: %w", err)
	}
	current, err := s.registry.Lookup(name)
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}
	if current.Major != s.registry.UpgradeSource() {
		if !force {
			return fmt.Errorf("upgrade: live schema %s has major version %d, expected %d: %w",
				current.Name, current.Major, s.registry.UpgradeSource(), ErrUnexpectedSchema)
		}
		log.Warn("upgrade forced", "schema", current.Name)
	}
	target, err := s.registry.Lookup(s.registry.UpgradeTarget())
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}

	stage := s.store.stage()
	renamed := 0
	for _, id := range stage.order {
		o := stage.live[id]
		if n := s.registry.UpgradeObject(o); n > 0 {
			stage.markModified(o)
			renamed += n
		}
	}
	var viols []schema.Violation
	for _, o := range stage.liveObjects() {
		viols = append(viols, target.Validate(o)...)
	}
	if len(viols) > 0 {
		return &ValidationError{Violations: viols}
	}
	stage.schema = target
	stage.pending.Record(SchemaEntry)
	s.store.adopt(stage)
	s.upgraded = true

	log.Info("schema upgraded", "from", current.Name, "to", target.Name, "renamed", renamed)
	return nil
}

// ChangeSchema switches the working copy to another schema. Moving to a
// newer schema is always allowed, moving back only along a permitted
// downgrade. Every object must be valid under the target schema or
// nothing changes.
func (s *Session) ChangeSchema(target string) error {
	if err := s.store.checkSane(); err != nil {
		return err
	}
	dst, err := s.registry.Lookup(target)
	if err != nil {
		return fmt.Errorf("change schema: %w", err)
	}
	src := s.store.schema
	if dst.Name == src.Name {
		return nil
	}
	if !s.registry.CanChange(src.Name, dst.Name) {
		return &ValidationError{Violations: []schema.Violation{
			violation(SchemaEntry, "cannot change schema from %s to %s", src.Name, dst.Name),
		}}
	}

	var viols []schema.Violation
	for _, o := range s.store.liveObjects() {
		viols = append(viols, dst.Validate(o)...)
	}
	if len(viols) > 0 {
		return &ValidationError{Violations: viols}
	}

	s.store.schema = dst
	s.store.pending.Record(SchemaEntry)
	s.logger.Info("schema changed", "from", src.Name, "to", dst.Name)
	return nil
}
