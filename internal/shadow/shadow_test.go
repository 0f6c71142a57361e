package shadow

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cibconf/internal/model"
)

type sequenceIDs struct{ n int }

func (g *sequenceIDs) Generate() string {
	g.n++
	return fmt.Sprintf("commit-%d", g.n)
}

func createTestShadow(t *testing.T, opts ...Option) *Shadow {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shadow.db")
	s, err := Open(path, append([]Option{WithIDGenerator(&sequenceIDs{})}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testDocument(t *testing.T) *model.Document {
	t.Helper()
	objs, err := model.Parse([]byte(`node node1
primitive ip1 ocf:heartbeat:IPaddr2 params ip=10.0.0.1
primitive web1 ocf:heartbeat:apache op monitor interval=10s
group g_web ip1 web1
`))
	require.NoError(t, err)
	return &model.Document{Schema: "pacemaker-1.2", Objects: objs}
}

func TestOpenNewDatabase(t *testing.T) {
	s := createTestShadow(t, WithInitialSchema("pacemaker-2.0"))
	ctx := context.Background()

	doc, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pacemaker-2.0", doc.Schema)
	assert.Equal(t, int64(0), doc.Epoch)
	assert.Empty(t, doc.Objects)
	assert.NotNil(t, doc.Objects)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shadow.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Replace(ctx, testDocument(t)))
	require.NoError(t, s1.Close())

	s2, err := Open(path, WithInitialSchema("pacemaker-0.6"))
	require.NoError(t, err)
	defer s2.Close()

	schema, err := s2.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pacemaker-1.2", schema, "existing schema must not be reseeded")

	doc, err := s2.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Objects, 4)
}

func TestReplaceRoundTrip(t *testing.T) {
	s := createTestShadow(t)
	ctx := context.Background()
	want := testDocument(t)

	require.NoError(t, s.Replace(ctx, want))

	got, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Epoch)
	assert.Equal(t, want.IDs(), got.IDs())
	for i := range want.Objects {
		assert.True(t, want.Objects[i].Equal(got.Objects[i]))
	}
}

func TestReplaceRejectsDuplicateIDs(t *testing.T) {
	s := createTestShadow(t)
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, testDocument(t)))

	bad := testDocument(t)
	bad.Objects = append(bad.Objects, bad.Objects[0].Clone())
	require.Error(t, s.Replace(ctx, bad))

	doc, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Objects, 4, "failed replace must leave the document untouched")
	assert.Equal(t, int64(1), doc.Epoch)
}

func TestPatch(t *testing.T) {
	s := createTestShadow(t)
	ctx := context.Background()
	base := testDocument(t)
	require.NoError(t, s.Replace(ctx, base))

	local := base.Clone()
	local.Objects[1].Blocks[0].Pairs[0].Value = "10.0.0.2"
	local.Objects = append(local.Objects[:0:0], local.Objects[1], local.Objects[2], local.Objects[3])
	db1 := &model.Object{ID: "db1", Kind: model.KindPrimitive, Head: []string{"ocf:heartbeat:pgsql"}}
	local.Objects = append(local.Objects, db1)
	local.Schema = "pacemaker-2.0"

	p := model.Diff(base, local)
	require.NoError(t, s.Patch(ctx, p))

	got, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pacemaker-2.0", got.Schema)
	assert.Equal(t, int64(2), got.Epoch)
	assert.Equal(t, []string{"ip1", "web1", "g_web", "db1"}, got.IDs())

	ip, ok := got.Lookup("ip1")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", ip.Blocks[0].Pairs[0].Value)

	want, err := model.Digest(local)
	require.NoError(t, err)
	have, err := model.Digest(got)
	require.NoError(t, err)
	assert.Equal(t, want, have)
}

func TestPatchUnsupported(t *testing.T) {
	s := createTestShadow(t, WithPatch(false))
	assert.False(t, s.SupportsPatch())
	assert.ErrorIs(t, s.Patch(context.Background(), &model.Patch{}), ErrPatchUnsupported)
}

func TestHistory(t *testing.T) {
	s := createTestShadow(t)
	ctx := context.Background()
	doc := testDocument(t)

	require.NoError(t, s.Replace(ctx, doc))
	require.NoError(t, s.Patch(ctx, &model.Patch{Deletes: []string{"node1"}}))

	history, err := s.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, "commit-1", history[0].ID)
	assert.Equal(t, "replace", history[0].Method)
	assert.Equal(t, 4, history[0].Upserts)
	assert.Equal(t, int64(1), history[0].Epoch)

	assert.Equal(t, "commit-2", history[1].ID)
	assert.Equal(t, "patch", history[1].Method)
	assert.Equal(t, 1, history[1].Deletes)
	assert.Equal(t, int64(2), history[1].Epoch)

	current, err := s.Read(ctx)
	require.NoError(t, err)
	dgst, err := model.Digest(current)
	require.NoError(t, err)
	assert.Equal(t, dgst.String(), history[1].Digest)
}

func TestEpoch(t *testing.T) {
	s := createTestShadow(t)
	ctx := context.Background()

	epoch, err := s.Epoch(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), epoch)

	require.NoError(t, s.Replace(ctx, testDocument(t)))
	epoch, err = s.Epoch(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), epoch)
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
