// Package extproc runs the external programs cibconf depends on: text
// filters, the operator's editor, the cluster simulator and the graph
// converter.
//
// All invocations go through the Runner interface so callers can be tested
// without the programs installed. Programs are probed with a LookPathFunc;
// when none of the candidates exists the caller gets a
// CapabilityMissingError and nothing is run.
package extproc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Cmd describes one program invocation.
type Cmd struct {
	Name  string
	Args  []string
	Stdin []byte
	// Interactive attaches the process to the current terminal instead of
	// capturing its output.
	Interactive bool
}

func (c Cmd) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result holds captured output.
type Result struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes commands synchronously.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (*Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, c Cmd) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	var stdout, stderr bytes.Buffer
	if c.Interactive {
		cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	} else {
		cmd.Stdin = bytes.NewReader(c.Stdin)
		cmd.Stdout, cmd.Stderr = &stdout, &stderr
	}
	if err := cmd.Run(); err != nil {
		return nil, &ExitError{Cmd: c.String(), Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
}

// ExitError reports a program that could not be started or exited non-zero.
type ExitError struct {
	Cmd    string
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", e.Cmd, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Cmd, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// LookPathFunc resolves a program name to a path.
type LookPathFunc func(file string) (string, error)

// DefaultLookPath searches PATH.
var DefaultLookPath LookPathFunc = exec.LookPath

// CapabilityMissingError reports that no program providing a capability
// is installed.
type CapabilityMissingError struct {
	Capability string
	Programs   []string
}

func (e *CapabilityMissingError) Error() string {
	return fmt.Sprintf("%s is not available: none of %s found", e.Capability, strings.Join(e.Programs, ", "))
}

// Require returns the first program among candidates that lookPath finds.
func Require(lookPath LookPathFunc, capability string, candidates ...string) (string, error) {
	if lookPath == nil {
		lookPath = DefaultLookPath
	}
	for _, name := range candidates {
		if name == "" {
			continue
		}
		if _, err := lookPath(name); err == nil {
			return name, nil
		}
	}
	return "", &CapabilityMissingError{Capability: capability, Programs: candidates}
}
