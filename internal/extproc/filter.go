package extproc

import (
	"context"
	"fmt"
	"os"
)

// Filter pipes text through a shell command line.
type Filter struct {
	Command string
	Runner  Runner
}

// Transform runs the filter with in on stdin and returns its stdout.
func (f Filter) Transform(ctx context.Context, in []byte) ([]byte, error) {
	res, err := runner(f.Runner).Run(ctx, Cmd{Name: "sh", Args: []string{"-c", f.Command}, Stdin: in})
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return res.Stdout, nil
}

// Editor lets the operator change text in an interactive editor.
type Editor struct {
	Program string
	Runner  Runner
}

// Edit writes in to a temporary file, runs the editor on it and returns
// the file's content afterwards.
func (e Editor) Edit(ctx context.Context, in []byte) ([]byte, error) {
	f, err := os.CreateTemp("", "cibconf-*.txt")
	if err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(in); err != nil {
		f.Close()
		return nil, fmt.Errorf("edit: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}

	cmd := Cmd{Name: "sh", Args: []string{"-c", e.Program + ` "$1"`, "editor", path}, Interactive: true}
	if _, err := runner(e.Runner).Run(ctx, cmd); err != nil {
		return nil, fmt.Errorf("edit: %w", err)
	}
	out, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("edit: read back: %w", err)
	}
	return out, nil
}

func runner(r Runner) Runner {
	if r == nil {
		return ExecRunner{}
	}
	return r
}
