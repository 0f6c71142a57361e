package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/cibconf/internal/cib"
	"github.com/roach88/cibconf/internal/prefs"
	"github.com/roach88/cibconf/internal/shadow"
)

// sessionEnv is an initialized session and the resources behind it.
type sessionEnv struct {
	sess      *cib.Session
	shadow    *shadow.Shadow
	registry  *prometheus.Registry
	formatter *OutputFormatter
	opts      *RootOptions
	logger    *slog.Logger
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// openSession loads preferences, opens the database and initializes a
// session over it. Failures are reported through the formatter.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*sessionEnv, error) {
	formatter := newFormatter(opts, cmd)
	if opts.Database == "" {
		_ = formatter.Error(ErrCodeGeneric, "required flag --db not set", nil)
		return nil, NewExitError(ExitCommandError, "required flag --db not set")
	}

	p, err := prefs.Load(opts.Prefs)
	if err == nil {
		err = p.ApplyEnv(os.LookupEnv)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to load preferences", err)
	}

	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	logger.Debug("opening database", "path", opts.Database)
	sh, err := shadow.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	in := bufio.NewReader(cmd.InOrStdin())
	confirmer := opts.Confirmer
	if confirmer == nil {
		confirmer = promptConfirmer{in: in, out: cmd.ErrOrStderr()}
	}
	reg := prometheus.NewRegistry()
	sessOpts := []cib.Option{
		cib.WithPreferences(p),
		cib.WithLogger(logger),
		cib.WithConfirmer(confirmer),
		cib.WithIO(in, cmd.OutOrStdout()),
		cib.WithMetrics(cib.NewMetrics(reg)),
	}
	if opts.Runner != nil {
		sessOpts = append(sessOpts, cib.WithRunner(opts.Runner))
	}
	if opts.LookPath != nil {
		sessOpts = append(sessOpts, cib.WithLookPath(opts.LookPath))
	}

	env := &sessionEnv{
		sess:      cib.NewSession(sh, sessOpts...),
		shadow:    sh,
		registry:  reg,
		formatter: formatter,
		opts:      opts,
		logger:    logger,
	}
	if err := env.sess.Initialize(ctx); err != nil {
		env.close()
		return nil, formatter.Fail(err)
	}
	return env, nil
}

// close writes the metrics textfile when requested and closes the
// database.
func (e *sessionEnv) close() {
	if e.opts.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(e.opts.MetricsFile, e.registry); err != nil {
			e.logger.Error("error writing metrics", "path", e.opts.MetricsFile, "error", err)
		}
	}
	if err := e.shadow.Close(); err != nil {
		e.logger.Error("error closing database", "error", err)
	}
}

// query runs fn against an initialized session without committing.
func query(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, env *sessionEnv) error) error {
	ctx := cmdContext(cmd)
	env, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer env.close()
	return fn(ctx, env)
}

// mutate runs fn and commits the resulting changes. fn returns the
// message reported on success.
func mutate(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, sess *cib.Session) (string, error)) error {
	return query(opts, cmd, func(ctx context.Context, env *sessionEnv) error {
		msg, err := fn(ctx, env.sess)
		if err != nil {
			return env.formatter.Fail(err)
		}
		if err := env.sess.Commit(ctx, opts.Force); err != nil {
			return env.formatter.Fail(err)
		}
		return env.formatter.Success(msg)
	})
}

// selection builds an ObjectSet over ids, or over every object when ids
// is empty.
func selection(sess *cib.Session, raw bool, ids []string) (*cib.ObjectSet, error) {
	if len(ids) == 0 {
		for _, o := range sess.Store().Objects() {
			ids = append(ids, o.ID)
		}
	}
	return sess.Build(cib.Selector{Raw: raw, IDs: ids})
}

// promptConfirmer asks on the terminal and accepts "y" or "yes".
type promptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func (c promptConfirmer) Confirm(prompt string) bool {
	fmt.Fprintf(c.out, "%s [y/N] ", prompt)
	line, _ := c.in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
