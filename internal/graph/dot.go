package graph

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/roach88/cibconf/internal/extproc"
	"github.com/roach88/cibconf/internal/model"
)

var shapes = map[model.Kind]string{
	model.KindPrimitive: "box",
	model.KindTemplate:  "note",
	model.KindGroup:     "folder",
	model.KindClone:     "doubleoctagon",
	model.KindMaster:    "doubleoctagon",
}

var edgeStyles = map[string]string{
	EdgeContains:   "style=dotted",
	EdgeTemplate:   "arrowhead=empty",
	EdgeOrder:      "color=blue",
	EdgeColocation: "style=dashed",
}

// WriteDOT renders the graph in dot format.
func (g *Graph) WriteDOT(w io.Writer, title string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "digraph %q {\n", title)
	fmt.Fprintln(bw, "\trankdir=LR;")
	for _, id := range g.Vertices() {
		kind := g.Kind(id)
		shape, ok := shapes[kind]
		if !ok {
			shape = "ellipse"
		}
		fmt.Fprintf(bw, "\t%q [label=%q, shape=%s];\n", id, id+"\n"+string(kind), shape)
	}
	for _, e := range g.Edges() {
		fmt.Fprintf(bw, "\t%q -> %q [%s];\n", e.From, e.To, edgeStyles[e.Type])
	}
	for _, e := range g.Cycles {
		fmt.Fprintf(bw, "\t%q -> %q [color=red, label=\"cycle\"];\n", e.From, e.To)
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

// Converter turns dot source into an image with the dot program.
type Converter struct {
	Program  string
	Runner   extproc.Runner
	LookPath extproc.LookPathFunc
}

// Convert renders src in the given output format (png, svg, ...) and writes
// the image to path.
func (c Converter) Convert(ctx context.Context, src []byte, format, path string) error {
	program := c.Program
	if program == "" {
		program = "dot"
	}
	name, err := extproc.Require(c.LookPath, "graph conversion", program)
	if err != nil {
		return err
	}
	runner := c.Runner
	if runner == nil {
		runner = extproc.ExecRunner{}
	}
	cmd := extproc.Cmd{Name: name, Args: []string{"-T" + format, "-o", path}, Stdin: src}
	if _, err := runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("convert graph: %w", err)
	}
	return nil
}
