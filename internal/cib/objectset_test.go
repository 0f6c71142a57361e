package cib

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cibconf/internal/extproc"
	"github.com/roach88/cibconf/internal/model"
	"github.com/roach88/cibconf/internal/prefs"
	"github.com/roach88/cibconf/internal/simulate"
)

func TestBuildSelections(t *testing.T) {
	s, _ := newSeededSession(t)
	_, err := s.Store().CreateObject("primitive", []string{"p1", "ocf:heartbeat:Dummy"})
	require.NoError(t, err)

	tests := []struct {
		name string
		sel  Selector
		want []string
	}{
		{name: "changed", sel: Selector{}, want: []string{"p1"}},
		{name: "raw", sel: Selector{Raw: true}, want: append(append([]string(nil), seedIDs...), "p1")},
		{name: "container subtree", sel: Selector{IDs: []string{"g_web"}}, want: []string{"ip1", "web1", "g_web"}},
		{name: "document order", sel: Selector{IDs: []string{"db1", "node1"}}, want: []string{"node1", "db1"}},
		{name: "glob", sel: Selector{IDs: []string{"*web*"}}, want: []string{"ip1", "web1", "g_web", "col_web", "l_web"}},
		{name: "overlapping", sel: Selector{IDs: []string{"web1", "g_web", "web?"}}, want: []string{"ip1", "web1", "g_web"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := s.Build(tt.sel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, set.IDs())
		})
	}
}

func TestBuildChangedListsDeletions(t *testing.T) {
	s, _ := newSeededSession(t)
	require.NoError(t, s.Store().Delete("l_web", "col_web"))
	_, err := s.Store().CreateObject("primitive", []string{"p1", "ocf:heartbeat:Dummy"})
	require.NoError(t, err)

	set, err := s.Build(Selector{})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, set.IDs())
	assert.Equal(t, []string{"col_web", "l_web"}, set.Deleted())

	out, err := set.Render()
	require.NoError(t, err)
	assert.Equal(t, "primitive p1 ocf:heartbeat:Dummy\n", string(out))

	full, err := s.Build(Selector{Raw: true})
	require.NoError(t, err)
	assert.Empty(t, full.Deleted())
}

func TestBuildReportsEveryUnresolvedSelector(t *testing.T) {
	s, _ := newSeededSession(t)

	_, err := s.Build(Selector{IDs: []string{"web1", "nope", "zz*"}})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, []string{"nope", "zz*"}, nf.IDs)
}

func TestShow(t *testing.T) {
	s, _ := newSeededSession(t)
	set, err := s.Build(Selector{IDs: []string{"g_web"}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, set.Show(&buf))
	assert.Equal(t, string(model.Render(set.Objects())), buf.String())
	assert.True(t, strings.HasSuffix(buf.String(), "\ngroup g_web ip1 web1\n"))
}

func TestShowRaw(t *testing.T) {
	s, _ := newSeededSession(t)
	set, err := s.Build(Selector{Raw: true})
	require.NoError(t, err)

	out, err := set.Render()
	require.NoError(t, err)
	doc, err := model.UnmarshalDocument(out)
	require.NoError(t, err)
	assert.Equal(t, "pacemaker-1.2", doc.Schema)
	assert.Equal(t, s.Baseline().Document().Epoch, doc.Epoch)
	assert.Equal(t, seedIDs, doc.IDs())
}

func TestFilter(t *testing.T) {
	s, _ := newSeededSession(t)
	set, err := s.Build(Selector{IDs: []string{"g_web"}})
	require.NoError(t, err)

	sed := transformFunc(func(_ context.Context, in []byte) ([]byte, error) {
		return bytes.ReplaceAll(in, []byte("apache"), []byte("nginx")), nil
	})
	require.NoError(t, set.Filter(context.Background(), sed))

	web1, _ := s.Store().FindObject("web1")
	assert.Equal(t, "ocf:heartbeat:nginx", web1.Head[0])
	assert.Equal(t, model.StateModified, web1.State)
	ip1, _ := s.Store().FindObject("ip1")
	assert.Equal(t, model.StateClean, ip1.State)
	assert.Equal(t, []string{"web1"}, s.Store().Pending())
}

func TestFilterFailuresLeaveStoreUnchanged(t *testing.T) {
	tests := []struct {
		name   string
		ids    []string
		output string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unparsable output",
			ids:    []string{"db1"},
			output: "bogus db1\n",
			check: func(t *testing.T, err error) {
				var pe *ParseError
				assert.ErrorAs(t, err, &pe)
			},
		},
		{
			name:   "removes referenced object",
			ids:    []string{"db1"},
			output: "",
			check: func(t *testing.T, err error) {
				var re *ReferenceError
				require.ErrorAs(t, err, &re)
				assert.Equal(t, []string{"col_web"}, re.ReferencedBy["db1"])
			},
		},
		{
			name:   "collides with unselected object",
			ids:    []string{"db1"},
			output: "primitive db1 ocf:heartbeat:pgsql\nprimitive ip1 ocf:heartbeat:Dummy\n",
			check: func(t *testing.T, err error) {
				var ce *ConflictError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, "ip1", ce.ID)
			},
		},
		{
			name:   "invalid reference",
			ids:    []string{"db1"},
			output: "primitive db1 @nope\n",
			check: func(t *testing.T, err error) {
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Contains(t, err.Error(), "references undefined object nope")
			},
		},
		{
			name:   "duplicate ids",
			ids:    []string{"g_web"},
			output: "primitive ip1 ocf:heartbeat:Dummy\nprimitive ip1 ocf:heartbeat:Dummy\n",
			check: func(t *testing.T, err error) {
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Contains(t, err.Error(), "duplicate id")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newSeededSession(t)
			before := renderAll(s)
			set, err := s.Build(Selector{IDs: tt.ids})
			require.NoError(t, err)

			err = set.Filter(context.Background(), replaceWith(tt.output))
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, before, renderAll(s))
			assert.False(t, s.Store().HasChanged())
		})
	}
}

func TestFilterAddsAndRemovesObjects(t *testing.T) {
	s, _ := newSeededSession(t)
	set, err := s.Build(Selector{IDs: []string{"l_web"}})
	require.NoError(t, err)

	require.NoError(t, set.Filter(context.Background(), replaceWith("location l_db db1 50: node2\n")))
	_, ok := s.Store().FindObject("l_web")
	assert.False(t, ok)
	l, ok := s.Store().FindObject("l_db")
	require.True(t, ok)
	assert.Equal(t, model.StateNew, l.State)
	assert.Equal(t, []string{"l_db"}, set.IDs())
	assert.Equal(t, []string{"l_web"}, s.Store().Deleted())
}

func TestEditWithoutChangesIsNoop(t *testing.T) {
	s, _ := newSeededSession(t)
	set, err := s.Build(Selector{IDs: []string{"g_web"}})
	require.NoError(t, err)

	identity := transformFunc(func(_ context.Context, in []byte) ([]byte, error) { return in, nil })
	require.NoError(t, set.Edit(context.Background(), identity))
	assert.False(t, s.Store().HasChanged())
}

func TestEditRaw(t *testing.T) {
	s, _ := newSeededSession(t)
	set, err := s.Build(Selector{Raw: true, IDs: []string{"web1"}})
	require.NoError(t, err)

	edit := transformFunc(func(_ context.Context, in []byte) ([]byte, error) {
		require.True(t, bytes.HasPrefix(bytes.TrimSpace(in), []byte("{")))
		return bytes.ReplaceAll(in, []byte("apache"), []byte("nginx")), nil
	})
	require.NoError(t, set.Edit(context.Background(), edit))
	web1, _ := s.Store().FindObject("web1")
	assert.Equal(t, "ocf:heartbeat:nginx", web1.Head[0])
}

func TestSaveToFile(t *testing.T) {
	var out bytes.Buffer
	s, _ := newSeededSession(t, WithIO(strings.NewReader(""), &out))
	set, err := s.Build(Selector{IDs: []string{"web1"}})
	require.NoError(t, err)

	require.NoError(t, set.SaveToFile("-"))
	assert.Equal(t, "primitive web1 ocf:heartbeat:apache \\\n\top monitor interval=10s timeout=20s\n", out.String())

	path := filepath.Join(t.TempDir(), "web1.crm")
	require.NoError(t, set.SaveToFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, out.String(), string(data))
}

func TestObjectSetVerify(t *testing.T) {
	s, _ := newSeededSession(t)
	set, err := s.Build(Selector{Raw: true})
	require.NoError(t, err)

	r := set.Verify()
	assert.Equal(t, SeverityPass, r.Severity)
	assert.Empty(t, r.Findings)
}

func TestSemanticCheck(t *testing.T) {
	setup := func(t *testing.T, p prefs.Preferences) (*ObjectSet, *ObjectSet) {
		s, _ := newSeededSession(t, WithPreferences(p))
		_, err := s.Store().CreateObject("primitive", []string{"p2", "ocf:heartbeat:Dummy"})
		require.NoError(t, err)
		sel, err := s.Build(Selector{IDs: []string{"p2"}})
		require.NoError(t, err)
		full, err := s.Build(Selector{Raw: true})
		require.NoError(t, err)
		return sel, full
	}

	sel, full := setup(t, prefs.Default())
	assert.Equal(t, 1, sel.SemanticCheck(full))

	never := prefs.Default()
	never.CheckFrequency = prefs.CheckNever
	sel, full = setup(t, never)
	assert.Equal(t, 0, sel.SemanticCheck(full))
}

func TestPtest(t *testing.T) {
	var snapshot []byte
	runner := &recordingRunner{
		stdout: []byte("Transition Summary:\n"),
		onRun: func(c extproc.Cmd) {
			require.GreaterOrEqual(t, len(c.Args), 2)
			data, err := os.ReadFile(c.Args[1])
			require.NoError(t, err)
			snapshot = data
		},
	}
	s, sh := newSeededSession(t, WithLookPath(findPrograms("crm_simulate")), WithRunner(runner))
	_, err := s.Store().CreateObject("primitive", []string{"p1", "ocf:heartbeat:Dummy"})
	require.NoError(t, err)
	set, err := s.Build(Selector{})
	require.NoError(t, err)

	res, err := set.Ptest(context.Background(), simulate.Options{Scores: true, NoGraph: true})
	require.NoError(t, err)
	assert.Equal(t, "crm_simulate", res.Program)
	assert.Equal(t, "Transition Summary:\n", string(res.Output))

	require.Len(t, runner.cmds, 1)
	assert.Equal(t, "crm_simulate", runner.cmds[0].Name)
	assert.Equal(t, "-x", runner.cmds[0].Args[0])
	doc, err := model.UnmarshalDocument(snapshot)
	require.NoError(t, err)
	assert.Equal(t, append(append([]string(nil), seedIDs...), "p1"), doc.IDs())

	live, err := sh.Read(context.Background())
	require.NoError(t, err)
	_, ok := live.Lookup("p1")
	assert.False(t, ok)
	assert.True(t, s.Store().HasChanged())
}

func TestPtestWithoutSimulator(t *testing.T) {
	runner := &recordingRunner{}
	s, _ := newSeededSession(t, WithRunner(runner))
	set, err := s.Build(Selector{Raw: true})
	require.NoError(t, err)

	_, err = set.Ptest(context.Background(), simulate.Options{})
	var missing *extproc.CapabilityMissingError
	require.ErrorAs(t, err, &missing)
	assert.Empty(t, runner.cmds)
}

func TestShowGraph(t *testing.T) {
	s, _ := newSeededSession(t)
	set, err := s.Build(Selector{Raw: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, set.ShowGraph(&buf))
	assert.Contains(t, buf.String(), `digraph "cluster configuration" {`)

	path := filepath.Join(t.TempDir(), "graph.dot")
	require.NoError(t, set.SaveGraph(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(data))
}

func TestGraphImage(t *testing.T) {
	runner := &recordingRunner{}
	s, _ := newSeededSession(t, WithLookPath(findPrograms("dot")), WithRunner(runner))
	set, err := s.Build(Selector{Raw: true})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "graph.png")
	require.NoError(t, set.GraphImage(context.Background(), path, "png"))
	require.Len(t, runner.cmds, 1)
	assert.Equal(t, "dot", runner.cmds[0].Name)
	assert.Equal(t, []string{"-Tpng", "-o", path}, runner.cmds[0].Args)
	assert.Contains(t, string(runner.cmds[0].Stdin), "digraph")

	s2, _ := newSeededSession(t)
	set2, err := s2.Build(Selector{Raw: true})
	require.NoError(t, err)
	var missing *extproc.CapabilityMissingError
	require.ErrorAs(t, set2.GraphImage(context.Background(), path, "png"), &missing)
}
