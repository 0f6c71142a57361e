// Package simulate runs a hypothetical configuration through the cluster
// simulator without touching the live cluster.
//
// Two simulator programs are supported: the current one (crm_simulate) and
// a legacy fallback (ptest). Which one is used is decided once, when the
// Adapter is resolved; a session with neither installed still works, but
// every Run fails with extproc.CapabilityMissingError.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/cibconf/internal/extproc"
)

// Default simulator programs.
const (
	DefaultPrimary  = "crm_simulate"
	DefaultFallback = "ptest"
)

// Capability is the outcome of simulator resolution.
type Capability int

const (
	Unavailable Capability = iota
	Primary
	Fallback
)

func (c Capability) String() string {
	switch c {
	case Primary:
		return "primary"
	case Fallback:
		return "fallback"
	default:
		return "unavailable"
	}
}

// Options controls one simulation run.
type Options struct {
	// Program requests a specific simulator. It is honoured when that
	// program was found during resolution.
	Program     string
	Verbosity   int
	Scores      bool
	Utilization bool
	Actions     bool
	NoGraph     bool
}

// Result is the captured output of a simulation.
type Result struct {
	Program string
	Output  []byte
	// Graph holds the transition graph in dot format unless NoGraph was set.
	Graph []byte
}

// Adapter invokes the resolved simulator.
type Adapter struct {
	primary    string
	fallback   string
	available  map[string]bool
	capability Capability
	program    string
	runner     extproc.Runner
	logger     *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithPrograms overrides the simulator program names.
func WithPrograms(primary, fallback string) Option {
	return func(a *Adapter) {
		a.primary, a.fallback = primary, fallback
	}
}

// WithRunner sets the process runner.
func WithRunner(r extproc.Runner) Option {
	return func(a *Adapter) { a.runner = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// Resolve probes for the simulator programs and returns an Adapter bound to
// the best one found.
func Resolve(lookPath extproc.LookPathFunc, opts ...Option) *Adapter {
	a := &Adapter{
		primary:   DefaultPrimary,
		fallback:  DefaultFallback,
		available: make(map[string]bool),
		runner:    extproc.ExecRunner{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if lookPath == nil {
		lookPath = extproc.DefaultLookPath
	}

	for _, name := range []string{a.primary, a.fallback} {
		if name == "" {
			continue
		}
		if _, err := lookPath(name); err == nil {
			a.available[name] = true
		}
	}
	switch {
	case a.available[a.primary]:
		a.capability, a.program = Primary, a.primary
	case a.available[a.fallback]:
		a.capability, a.program = Fallback, a.fallback
	default:
		a.capability = Unavailable
	}
	a.logger.Debug("simulator resolved", "capability", a.capability, "program", a.program)
	return a
}

// Capability reports the resolution outcome.
func (a *Adapter) Capability() Capability {
	return a.capability
}

// Program returns the resolved program name, empty when unavailable.
func (a *Adapter) Program() string {
	return a.program
}

// Run simulates the given configuration snapshot.
func (a *Adapter) Run(ctx context.Context, snapshot []byte, opts Options) (*Result, error) {
	if a.capability == Unavailable {
		return nil, &extproc.CapabilityMissingError{Capability: "simulation", Programs: []string{a.primary, a.fallback}}
	}
	program := a.program
	if opts.Program != "" && a.available[opts.Program] {
		program = opts.Program
	}

	dir, err := os.MkdirTemp("", "cibconf-sim-*")
	if err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}
	defer os.RemoveAll(dir)

	cfg := filepath.Join(dir, "config.json")
	if err := os.WriteFile(cfg, snapshot, 0o600); err != nil {
		return nil, fmt.Errorf("simulate: write snapshot: %w", err)
	}
	dot := ""
	if !opts.NoGraph {
		dot = filepath.Join(dir, "transition.dot")
	}

	cmd := extproc.Cmd{Name: program, Args: a.args(program, cfg, dot, opts)}
	a.logger.Debug("running simulator", "cmd", cmd.String())
	res, err := a.runner.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}

	out := &Result{Program: program, Output: res.Stdout}
	if dot != "" {
		graph, err := os.ReadFile(dot)
		switch {
		case err == nil:
			out.Graph = graph
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("simulate: read graph: %w", err)
		}
	}
	return out, nil
}

func (a *Adapter) args(program, cfg, dot string, opts Options) []string {
	args := []string{"-x", cfg}
	if opts.Actions {
		if program == a.fallback {
			a.logger.Warn("simulator does not support action output", "program", program)
		} else {
			args = append(args, "-S")
		}
	}
	if opts.Scores {
		args = append(args, "-s")
	}
	if opts.Utilization {
		args = append(args, "-U")
	}
	if dot != "" {
		args = append(args, "-D", dot)
	}
	if opts.Verbosity > 0 {
		args = append(args, "-"+strings.Repeat("V", opts.Verbosity))
	}
	return args
}
