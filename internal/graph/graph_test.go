package graph

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cibconf/internal/extproc"
	"github.com/roach88/cibconf/internal/model"
)

const clusterText = `primitive ip1 ocf:heartbeat:IPaddr2
primitive web1 @tmpl_web
rsc_template tmpl_web ocf:heartbeat:apache
group g_web ip1 web1
primitive db1 ocf:heartbeat:pgsql
ms ms_db db1
colocation col_web inf: g_web ms_db:Master
order o_db Mandatory: ms_db:promote g_web:start
order o_loop Optional: g_web ms_db
location l1 g_web 100: node1
`

func buildCluster(t *testing.T) *Graph {
	t.Helper()
	objs, err := model.Parse([]byte(clusterText))
	require.NoError(t, err)
	return Build(objs)
}

func TestBuildVerticesAndEdges(t *testing.T) {
	g := buildCluster(t)

	assert.Equal(t, []string{"db1", "g_web", "ip1", "ms_db", "tmpl_web", "web1"}, g.Vertices())
	assert.Equal(t, model.KindMaster, g.Kind("ms_db"))
	assert.Equal(t, model.Kind(""), g.Kind("l1"))

	assert.Equal(t, []Edge{
		{From: "g_web", To: "ip1", Type: EdgeContains},
		{From: "g_web", To: "web1", Type: EdgeContains},
		{From: "ms_db", To: "db1", Type: EdgeContains},
		{From: "ms_db", To: "g_web", Type: EdgeColocation},
		{From: "ms_db", To: "g_web", Type: EdgeOrder},
		{From: "tmpl_web", To: "web1", Type: EdgeTemplate},
	}, g.Edges())
}

func TestBuildDetectsCycles(t *testing.T) {
	g := buildCluster(t)

	require.Len(t, g.Cycles, 1)
	assert.Equal(t, Edge{From: "g_web", To: "ms_db", Type: EdgeOrder, Source: "o_loop"}, g.Cycles[0])
	assert.Equal(t, []string{"o_loop"}, g.CycleSources())
}

func TestBuildKeepsLayersApart(t *testing.T) {
	objs, err := model.Parse([]byte(`primitive a Dummy
primitive b Dummy
order o Mandatory: a b
colocation c inf: a b
`))
	require.NoError(t, err)
	g := Build(objs)

	assert.Empty(t, g.Cycles)
	assert.Equal(t, []Edge{
		{From: "a", To: "b", Type: EdgeOrder},
		{From: "b", To: "a", Type: EdgeColocation},
	}, g.Edges())
}

func TestBuildCyclesPerLayer(t *testing.T) {
	objs, err := model.Parse([]byte(`primitive a Dummy
primitive b Dummy
primitive c Dummy
order o1 Mandatory: a b c
order o2 Mandatory: c a
colocation c1 inf: a b
colocation c2 inf: b a
`))
	require.NoError(t, err)
	g := Build(objs)

	assert.Equal(t, []Edge{{From: "c", To: "a", Type: EdgeOrder, Source: "o2"}}, g.CyclesIn(LayerOrder))
	assert.Equal(t, []Edge{{From: "a", To: "b", Type: EdgeColocation, Source: "c2"}}, g.CyclesIn(LayerPlacement))
	assert.Empty(t, g.CyclesIn(LayerStructure))
	assert.Equal(t, []string{"o2", "c2"}, g.CycleSources())
}

func TestBuildIgnoresUnknownReferences(t *testing.T) {
	objs, err := model.Parse([]byte("primitive a Dummy\norder o1 inf: a missing\n"))
	require.NoError(t, err)
	g := Build(objs)
	assert.Empty(t, g.Edges())
	assert.Empty(t, g.Cycles)
}

func TestWriteDOTGolden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, buildCluster(t).WriteDOT(&buf, "cib"))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "cluster_dot", buf.Bytes())
}

type captureRunner struct {
	cmd extproc.Cmd
}

func (c *captureRunner) Run(_ context.Context, cmd extproc.Cmd) (*extproc.Result, error) {
	c.cmd = cmd
	return &extproc.Result{}, nil
}

func TestConverter(t *testing.T) {
	runner := &captureRunner{}
	found := func(string) (string, error) { return "/usr/bin/dot", nil }

	err := Converter{Runner: runner, LookPath: found}.Convert(context.Background(), []byte("digraph {}"), "png", "/tmp/out.png")
	require.NoError(t, err)
	assert.Equal(t, "dot", runner.cmd.Name)
	assert.Equal(t, []string{"-Tpng", "-o", "/tmp/out.png"}, runner.cmd.Args)
	assert.Equal(t, "digraph {}", string(runner.cmd.Stdin))
}

func TestConverterMissingProgram(t *testing.T) {
	runner := &captureRunner{}
	missing := func(string) (string, error) { return "", errors.New("not found") }

	err := Converter{Runner: runner, LookPath: missing}.Convert(context.Background(), nil, "svg", "x.svg")
	var capErr *extproc.CapabilityMissingError
	require.ErrorAs(t, err, &capErr)
	assert.Empty(t, runner.cmd.Name)
}
