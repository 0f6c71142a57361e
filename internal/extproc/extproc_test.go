package extproc

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls []Cmd
	run   func(cmd Cmd) (*Result, error)
}

func (f *fakeRunner) Run(_ context.Context, cmd Cmd) (*Result, error) {
	f.calls = append(f.calls, cmd)
	if f.run == nil {
		return &Result{}, nil
	}
	return f.run(cmd)
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRequire(t *testing.T) {
	lookPath := func(file string) (string, error) {
		if file == "ptest" {
			return "/usr/sbin/ptest", nil
		}
		return "", errors.New("not found")
	}

	name, err := Require(lookPath, "simulation", "crm_simulate", "ptest")
	require.NoError(t, err)
	assert.Equal(t, "ptest", name)

	_, err = Require(lookPath, "graph conversion", "dot")
	var missing *CapabilityMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "graph conversion", missing.Capability)
	assert.Equal(t, []string{"dot"}, missing.Programs)
}

func TestFilterWithShell(t *testing.T) {
	requireShell(t)

	out, err := Filter{Command: "tr a-z A-Z"}.Transform(context.Background(), []byte("node n1\n"))
	require.NoError(t, err)
	assert.Equal(t, "NODE N1\n", string(out))
}

func TestExecRunnerFailure(t *testing.T) {
	requireShell(t)

	_, err := ExecRunner{}.Run(context.Background(), Cmd{Name: "sh", Args: []string{"-c", "echo oops >&2; exit 3"}})
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, "oops", exitErr.Stderr)

	var procErr *exec.ExitError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, 3, procErr.ExitCode())
}

func TestFilterUsesRunner(t *testing.T) {
	fake := &fakeRunner{run: func(cmd Cmd) (*Result, error) {
		return &Result{Stdout: append([]byte("# filtered\n"), cmd.Stdin...)}, nil
	}}

	out, err := Filter{Command: "sed -e s/a/b/", Runner: fake}.Transform(context.Background(), []byte("x\n"))
	require.NoError(t, err)
	assert.Equal(t, "# filtered\nx\n", string(out))
	require.Len(t, fake.calls, 1)
	assert.Equal(t, []string{"-c", "sed -e s/a/b/"}, fake.calls[0].Args)
}

func TestEditorRoundTripsThroughTempFile(t *testing.T) {
	fake := &fakeRunner{run: func(cmd Cmd) (*Result, error) {
		path := cmd.Args[len(cmd.Args)-1]
		before, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return &Result{}, os.WriteFile(path, append(before, []byte("node n2\n")...), 0o600)
	}}

	out, err := Editor{Program: "vi", Runner: fake}.Edit(context.Background(), []byte("node n1\n"))
	require.NoError(t, err)
	assert.Equal(t, "node n1\nnode n2\n", string(out))

	require.Len(t, fake.calls, 1)
	assert.True(t, fake.calls[0].Interactive)
	_, statErr := os.Stat(fake.calls[0].Args[len(fake.calls[0].Args)-1])
	assert.True(t, os.IsNotExist(statErr), "temp file must be removed")
}

func TestEditorFailure(t *testing.T) {
	fake := &fakeRunner{run: func(Cmd) (*Result, error) {
		return nil, &ExitError{Cmd: "vi", Err: errors.New("exit status 1")}
	}}
	_, err := Editor{Program: "vi", Runner: fake}.Edit(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "edit:")
}
