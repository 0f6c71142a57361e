package cib

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cibconf/internal/extproc"
	"github.com/roach88/cibconf/internal/model"
	"github.com/roach88/cibconf/internal/shadow"
	"github.com/roach88/cibconf/internal/testutil"
)

const seedText = `node node1
node node2
primitive ip1 ocf:heartbeat:IPaddr2 params ip=10.0.0.1 op monitor interval=10s timeout=20s
primitive web1 ocf:heartbeat:apache op monitor interval=10s timeout=20s
group g_web ip1 web1
primitive db1 ocf:heartbeat:pgsql op monitor interval=10s timeout=20s
colocation col_web inf: g_web db1
location l_web g_web 100: node1
property stonith-enabled=false
`

var seedIDs = []string{"node1", "node2", "ip1", "web1", "g_web", "db1", "col_web", "l_web", "cib-bootstrap-options"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noPrograms(string) (string, error) {
	return "", errors.New("not found")
}

// seededShadow opens a shadow holding seedText under pacemaker-1.2.
func seededShadow(t *testing.T, opts ...shadow.Option) *shadow.Shadow {
	t.Helper()
	sh := testutil.NewShadow(t, opts...)
	testutil.Seed(t, sh, "pacemaker-1.2", seedText)
	return sh
}

// openSession initializes a session with no external programs and a
// discarding logger.
func openSession(t *testing.T, coord Coordinator, opts ...Option) *Session {
	t.Helper()
	all := append([]Option{WithLogger(discardLogger()), WithLookPath(noPrograms)}, opts...)
	s := NewSession(coord, all...)
	require.NoError(t, s.Initialize(context.Background()))
	return s
}

func newSeededSession(t *testing.T, opts ...Option) (*Session, *shadow.Shadow) {
	t.Helper()
	sh := seededShadow(t)
	return openSession(t, sh, opts...), sh
}

func mustParse(t *testing.T, text string) []*model.Object {
	t.Helper()
	objs, err := model.Parse([]byte(text))
	require.NoError(t, err)
	return objs
}

func idsOf(objs []*model.Object) []string {
	ids := make([]string, 0, len(objs))
	for _, o := range objs {
		ids = append(ids, o.ID)
	}
	return ids
}

func renderAll(s *Session) string {
	return string(model.Render(s.Store().Objects()))
}

// countingCoordinator records writes passed to the wrapped coordinator.
type countingCoordinator struct {
	Coordinator
	replaces int
	patches  int
	failWith error
}

func (c *countingCoordinator) Replace(ctx context.Context, doc *model.Document) error {
	c.replaces++
	if c.failWith != nil {
		return c.failWith
	}
	return c.Coordinator.Replace(ctx, doc)
}

func (c *countingCoordinator) Patch(ctx context.Context, p *model.Patch) error {
	c.patches++
	if c.failWith != nil {
		return c.failWith
	}
	return c.Coordinator.Patch(ctx, p)
}

func (c *countingCoordinator) writes() int {
	return c.replaces + c.patches
}

// brokenCoordinator fails every read.
type brokenCoordinator struct {
	Coordinator
}

func (brokenCoordinator) Read(context.Context) (*model.Document, error) {
	return nil, errors.New("connection refused")
}

type transformFunc func(ctx context.Context, in []byte) ([]byte, error)

func (f transformFunc) Transform(ctx context.Context, in []byte) ([]byte, error) { return f(ctx, in) }

func (f transformFunc) Edit(ctx context.Context, in []byte) ([]byte, error) { return f(ctx, in) }

func replaceWith(text string) transformFunc {
	return func(context.Context, []byte) ([]byte, error) { return []byte(text), nil }
}

// recordingRunner captures commands instead of running them.
type recordingRunner struct {
	cmds   []extproc.Cmd
	stdout []byte
	onRun  func(c extproc.Cmd)
}

func (r *recordingRunner) Run(_ context.Context, c extproc.Cmd) (*extproc.Result, error) {
	r.cmds = append(r.cmds, c)
	if r.onRun != nil {
		r.onRun(c)
	}
	return &extproc.Result{Stdout: r.stdout}, nil
}

func findPrograms(names ...string) extproc.LookPathFunc {
	return func(file string) (string, error) {
		for _, n := range names {
			if n == file {
				return "/usr/bin/" + file, nil
			}
		}
		return "", errors.New("not found")
	}
}
