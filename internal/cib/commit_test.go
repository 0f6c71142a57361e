package cib

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cibconf/internal/model"
	"github.com/roach88/cibconf/internal/prefs"
	"github.com/roach88/cibconf/internal/shadow"
)

func TestCommitNewResource(t *testing.T) {
	ctx := context.Background()
	s, sh := newSeededSession(t)

	_, err := s.Store().CreateObject("primitive", []string{"web2", "ocf:heartbeat:apache", "op", "monitor", "interval=10s", "timeout=20s"})
	require.NoError(t, err)
	set, err := s.Build(Selector{IDs: []string{"web2"}})
	require.NoError(t, err)
	require.NoError(t, set.Filter(ctx, replaceWith(
		"primitive web2 ocf:heartbeat:apache meta target-role=Stopped op monitor interval=10s timeout=20s\n")))

	require.NoError(t, s.Commit(ctx, false))

	assert.Equal(t, StateClean, s.State())
	assert.False(t, s.Store().HasChanged())
	assert.Empty(t, s.Store().Changed())

	live, err := sh.Read(ctx)
	require.NoError(t, err)
	web2, ok := live.Lookup("web2")
	require.True(t, ok)
	role, ok := web2.BlocksOf(model.BlockMeta)[0].Get("target-role")
	require.True(t, ok)
	assert.Equal(t, "Stopped", role)

	base, ok := s.Baseline().Document().Lookup("web2")
	require.True(t, ok)
	assert.True(t, base.Equal(web2))
	assert.Equal(t, live.Epoch, s.Baseline().Document().Epoch)
}

func TestCommitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	coord := &countingCoordinator{Coordinator: seededShadow(t)}
	s := openSession(t, coord)

	require.NoError(t, s.Store().Delete("l_web"))
	require.NoError(t, s.Commit(ctx, false))
	require.NoError(t, s.Commit(ctx, false))
	assert.Equal(t, 1, coord.writes())
}

func TestCommitWithoutChanges(t *testing.T) {
	coord := &countingCoordinator{Coordinator: seededShadow(t)}
	s := openSession(t, coord)

	require.NoError(t, s.Commit(context.Background(), false))
	assert.Equal(t, 0, coord.writes())
	assert.Equal(t, StateClean, s.State())
}

func TestCommitCancelledChangesWriteNothing(t *testing.T) {
	coord := &countingCoordinator{Coordinator: seededShadow(t)}
	s := openSession(t, coord)

	_, err := s.Store().CreateObject("primitive", []string{"p1", "ocf:heartbeat:Dummy"})
	require.NoError(t, err)
	require.NoError(t, s.Store().Delete("p1"))
	require.True(t, s.Store().HasChanged())

	require.NoError(t, s.Commit(context.Background(), false))
	assert.Equal(t, 0, coord.writes())
	assert.False(t, s.Store().HasChanged())
}

func TestCommitDeletion(t *testing.T) {
	ctx := context.Background()
	s, sh := newSeededSession(t)

	require.NoError(t, s.Store().Delete("col_web"))
	require.NoError(t, s.Commit(ctx, false))

	live, err := sh.Read(ctx)
	require.NoError(t, err)
	_, ok := live.Lookup("col_web")
	assert.False(t, ok)
	assert.Empty(t, s.Store().Deleted())
}

// newConcurrentPair returns a session over a replace-only shadow and a
// shadow that has been changed behind the session's back.
func newConcurrentPair(t *testing.T, opts ...Option) (*Session, *shadow.Shadow) {
	t.Helper()
	ctx := context.Background()
	sh := seededShadow(t, shadow.WithPatch(false))
	s := openSession(t, sh, opts...)

	_, err := s.Store().CreateObject("primitive", []string{"p1", "ocf:heartbeat:Dummy", "op", "monitor", "interval=10s", "timeout=20s"})
	require.NoError(t, err)

	doc, err := sh.Read(ctx)
	require.NoError(t, err)
	doc.Objects = append(doc.Objects, mustParse(t, "node ext1\n")...)
	require.NoError(t, sh.Replace(ctx, doc))
	return s, sh
}

func TestCommitDetectsConcurrentModification(t *testing.T) {
	ctx := context.Background()
	s, sh := newConcurrentPair(t)

	err := s.Commit(ctx, false)
	require.Error(t, err)
	assert.True(t, IsConcurrentModification(err))
	var rejected *CommitRejectedError
	require.ErrorAs(t, err, &rejected)

	live, err := sh.Read(ctx)
	require.NoError(t, err)
	_, ok := live.Lookup("ext1")
	assert.True(t, ok)
	_, ok = live.Lookup("p1")
	assert.False(t, ok)
	assert.Equal(t, StateDirty, s.State())
	assert.True(t, s.Store().HasChanged())

	require.NoError(t, s.Commit(ctx, true))
	live, err = sh.Read(ctx)
	require.NoError(t, err)
	_, ok = live.Lookup("p1")
	assert.True(t, ok)
	_, ok = live.Lookup("ext1")
	assert.False(t, ok, "a forced commit writes the local state")
	assert.Equal(t, StateClean, s.State())
}

func TestCommitConfirmedOverConflict(t *testing.T) {
	var prompt string
	confirm := ConfirmFunc(func(p string) bool {
		prompt = p
		return true
	})
	s, sh := newConcurrentPair(t, WithConfirmer(confirm))

	require.NoError(t, s.Commit(context.Background(), false))
	assert.Contains(t, prompt, "concurrent modification")
	assert.Contains(t, prompt, "Do you still want to commit?")

	live, err := sh.Read(context.Background())
	require.NoError(t, err)
	_, ok := live.Lookup("p1")
	assert.True(t, ok)
}

func TestCommitBlockedByVerification(t *testing.T) {
	ctx := context.Background()
	strict := prefs.Default()
	strict.SemanticTolerance = 0

	s, sh := newSeededSession(t, WithPreferences(strict))
	_, err := s.Store().CreateObject("primitive", []string{"p2", "ocf:heartbeat:Dummy"})
	require.NoError(t, err)

	err = s.Commit(ctx, false)
	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, SeverityFail, verr.Report.Severity)
	assert.Equal(t, 1, verr.Report.Warnings)
	assert.Equal(t, 0, verr.Report.Structural)
	assert.False(t, IsConcurrentModification(err))
	assert.Equal(t, StateDirty, s.State())

	live, err := sh.Read(ctx)
	require.NoError(t, err)
	_, ok := live.Lookup("p2")
	assert.False(t, ok)
}

func TestCommitForcedByPreferences(t *testing.T) {
	ctx := context.Background()
	forced := prefs.Default()
	forced.SemanticTolerance = 0
	forced.Force = true

	s, sh := newSeededSession(t, WithPreferences(forced))
	_, err := s.Store().CreateObject("primitive", []string{"p2", "ocf:heartbeat:Dummy"})
	require.NoError(t, err)

	require.NoError(t, s.Commit(ctx, false))
	live, err := sh.Read(ctx)
	require.NoError(t, err)
	_, ok := live.Lookup("p2")
	assert.True(t, ok)
}

func TestCommitPatchKeepsExternalChanges(t *testing.T) {
	ctx := context.Background()
	s, sh := newSeededSession(t)

	_, err := s.Store().CreateObject("primitive", []string{"p1", "ocf:heartbeat:Dummy", "op", "monitor", "interval=10s", "timeout=20s"})
	require.NoError(t, err)
	doc, err := sh.Read(ctx)
	require.NoError(t, err)
	doc.Objects = append(doc.Objects, mustParse(t, "node ext1\n")...)
	require.NoError(t, sh.Replace(ctx, doc))

	require.NoError(t, s.Commit(ctx, false))

	live, err := sh.Read(ctx)
	require.NoError(t, err)
	for _, id := range []string{"ext1", "p1", "web1"} {
		_, ok := live.Lookup(id)
		assert.True(t, ok, id)
	}
	_, ok := s.Store().FindObject("ext1")
	assert.True(t, ok, "the refreshed working copy includes external objects")
}

func TestCommitApplyFailureKeepsChanges(t *testing.T) {
	ctx := context.Background()
	coord := &countingCoordinator{Coordinator: seededShadow(t), failWith: errors.New("disk full")}
	s := openSession(t, coord)

	require.NoError(t, s.Store().Delete("l_web"))
	err := s.Commit(ctx, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, StateDirty, s.State())
	assert.Equal(t, []string{"l_web"}, s.Store().Pending())

	coord.failWith = nil
	require.NoError(t, s.Commit(ctx, false))
	assert.Equal(t, StateClean, s.State())
	assert.Equal(t, 2, coord.writes())
}

func TestCommitStateString(t *testing.T) {
	tests := []struct {
		state CommitState
		want  string
	}{
		{StateClean, "clean"},
		{StateDirty, "dirty"},
		{StateVerifying, "verifying"},
		{StateVerified, "verified"},
		{StateRejected, "rejected"},
		{StateCommitting, "committing"},
		{StateCommitted, "committed"},
		{StateFailed, "failed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}
