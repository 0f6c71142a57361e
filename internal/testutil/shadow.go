package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cibconf/internal/model"
	"github.com/roach88/cibconf/internal/shadow"
)

// NewShadow opens a shadow database in a per-test temporary directory with
// deterministic commit ids. The database is closed on cleanup.
func NewShadow(t testing.TB, opts ...shadow.Option) *shadow.Shadow {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shadow.db")
	all := append([]shadow.Option{shadow.WithIDGenerator(NewSequenceIDs("commit"))}, opts...)
	s, err := shadow.Open(path, all...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// Seed replaces the shadow's document with the objects parsed from text.
func Seed(t testing.TB, s *shadow.Shadow, schema, text string) *model.Document {
	t.Helper()
	objs, err := model.Parse([]byte(text))
	require.NoError(t, err)
	doc := &model.Document{Schema: schema, Objects: objs}
	require.NoError(t, s.Replace(context.Background(), doc))
	return doc
}
