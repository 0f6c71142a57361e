package cib

import (
	"context"
	"errors"
	"fmt"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/roach88/cibconf/internal/model"
)

// CommitState is a state of the commit state machine.
//
//	Clean -> Dirty -> Verifying -> {Verified, Rejected} -> Committing -> {Committed -> Clean, Failed -> Dirty}
type CommitState int

const (
	StateClean CommitState = iota
	StateDirty
	StateVerifying
	StateVerified
	StateRejected
	StateCommitting
	StateCommitted
	StateFailed
)

func (s CommitState) String() string {
	switch s {
	case StateDirty:
		return "dirty"
	case StateVerifying:
		return "verifying"
	case StateVerified:
		return "verified"
	case StateRejected:
		return "rejected"
	case StateCommitting:
		return "committing"
	case StateCommitted:
		return "committed"
	case StateFailed:
		return "failed"
	default:
		return "clean"
	}
}

// State returns the commit state. An idle session is Dirty while it has
// uncommitted changes and Clean otherwise.
func (s *Session) State() CommitState {
	if s.state == StateClean && s.store.HasChanged() {
		return StateDirty
	}
	return s.state
}

func (s *Session) transition(ctx context.Context, to CommitState) {
	slogcontext.FromCtx(ctx).Debug("commit state", "from", s.State(), "to", to)
	s.state = to
}

// Commit writes the pending changes to the live coordinator.
//
// Without pending changes it returns immediately. Unless force is set or
// the coordinator applies incremental patches, the live configuration is
// first compared to the baseline; a difference is a concurrent
// modification. The changed objects are then verified. A conflict or a
// blocking verification result stops the commit unless force is set, the
// preferences force commits, or the confirmer agrees to go ahead.
//
// On success the baseline is re-read and the pending log cleared. On
// failure the working copy and pending log are kept.
func (s *Session) Commit(ctx context.Context, force bool) error {
	if err := s.store.checkSane(); err != nil {
		return err
	}
	ctx = slogcontext.NewCtx(ctx, s.logger.With("op", "commit"))
	log := slogcontext.FromCtx(ctx)

	if !s.store.HasChanged() {
		log.Debug("nothing to commit")
		s.metrics.recordCommit(resultNoop)
		return nil
	}
	local := s.store.document()
	patch := model.Diff(s.baseline.doc, local)
	if patch.Empty() {
		log.Debug("pending changes cancel out")
		s.store.load(s.baseline.doc, s.store.schema)
		s.metrics.recordCommit(resultNoop)
		return nil
	}

	var conflict error
	if !force && !s.coord.SupportsPatch() {
		live, err := s.coord.Read(ctx)
		if err != nil {
			return fmt.Errorf("commit: read live configuration: %w", err)
		}
		same, err := s.baseline.Matches(live)
		if err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		if !same {
			conflict = &ConflictError{Concurrent: true,
				Reason: fmt.Sprintf("live configuration changed since it was read (epoch %d, now %d)", s.baseline.doc.Epoch, live.Epoch)}
		}
	}

	var blocking error
	if len(local.Objects) > 0 {
		s.transition(ctx, StateVerifying)
		report := s.verifier().Verify(s.store.Changed(), s.store.liveObjects())
		s.metrics.recordVerification(report.Severity)
		for _, f := range report.Findings {
			log.Info("verification finding", "id", f.ID, "tier", f.Tier, "message", f.Message)
		}
		if report.Severity == SeverityFail {
			blocking = &VerificationError{Report: report}
			s.transition(ctx, StateRejected)
		} else {
			s.transition(ctx, StateVerified)
		}
	}

	if conflict == nil && blocking == nil {
		return s.apply(ctx, local, patch, resultCommitted)
	}

	reason := errors.Join(conflict, blocking)
	if force || s.prefs.Force {
		log.Warn("commit forced", "reason", reason)
		return s.apply(ctx, local, patch, resultForced)
	}
	if s.confirmer.Confirm(fmt.Sprintf("%v\nDo you still want to commit?", reason)) {
		log.Warn("commit forced", "reason", reason, "confirmed", true)
		return s.apply(ctx, local, patch, resultForced)
	}

	s.transition(ctx, StateClean)
	s.metrics.recordCommit(resultRejected)
	log.Info("commit declined", "reason", reason)
	return &CommitRejectedError{Err: reason}
}

// apply writes the change set, preferring an incremental patch, and
// refreshes the baseline.
func (s *Session) apply(ctx context.Context, local *model.Document, patch *model.Patch, result string) error {
	log := slogcontext.FromCtx(ctx)
	s.transition(ctx, StateCommitting)

	var err error
	method := "patch"
	if s.coord.SupportsPatch() {
		err = s.coord.Patch(ctx, patch)
	} else {
		method = "replace"
		err = s.coord.Replace(ctx, local)
	}
	if err != nil {
		s.transition(ctx, StateFailed)
		s.transition(ctx, StateClean)
		s.metrics.recordCommit(resultFailed)
		log.Error("commit failed", "method", method, "error", err)
		return fmt.Errorf("commit: %w", err)
	}

	s.transition(ctx, StateCommitted)
	if err := s.reload(ctx); err != nil {
		s.store.markInsane(err)
		s.metrics.recordCommit(resultFailed)
		return fmt.Errorf("commit: refresh baseline: %w", err)
	}
	s.transition(ctx, StateClean)
	s.metrics.recordCommit(result)
	log.Info("configuration committed",
		"method", method,
		"upserts", len(patch.Upserts),
		"deletes", len(patch.Deletes),
		"digest", s.baseline.digest)
	return nil
}
