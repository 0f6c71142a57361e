package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cibconf/internal/cib"
	"github.com/roach88/cibconf/internal/extproc"
)

// Mutating commands change the working copy and commit it before they
// return. --force is passed on to the commit.

// NewCommitCommand creates the commit command.
func NewCommitCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit pending changes",
		Long: `Verify and commit the changes pending in this invocation. Every
invocation starts from the live configuration and every mutating command
commits its own changes, so commit itself has nothing to write and reports
"nothing to commit". A rejected change is retried by running its command
again, with --force if needed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(rootOpts, cmd, func(_ context.Context, sess *cib.Session) (string, error) {
				if !sess.Store().HasChanged() {
					return "nothing to commit", nil
				}
				return "configuration committed", nil
			})
		},
	}

	return cmd
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <kind> <id> [tokens...]",
		Short: "Create a configuration object",
		Long: `Create one object from its kind and the tokens of its text form.
Use "--" before tokens that start with a dash.

Example:
  cibconf --db ./cluster.db create primitive web1 ocf:heartbeat:apache op monitor interval=10s
  cibconf --db ./cluster.db create -- location l1 web1 -inf: node2`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(rootOpts, cmd, func(_ context.Context, sess *cib.Session) (string, error) {
				o, err := sess.Store().CreateObject(args[0], args[1:])
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("created %s %s", o.Kind, o.ID), nil
			})
		},
	}

	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "delete <ids...>",
		Short:         "Delete configuration objects",
		Long:          `Delete objects. Either all of them are deleted or none.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(rootOpts, cmd, func(_ context.Context, sess *cib.Session) (string, error) {
				if err := sess.Store().Delete(args...); err != nil {
					return "", err
				}
				return "deleted " + strings.Join(args, ", "), nil
			})
		},
	}

	return cmd
}

// NewRenameCommand creates the rename command.
func NewRenameCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rename <old> <new>",
		Short:         "Rename a configuration object and every reference to it",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(rootOpts, cmd, func(_ context.Context, sess *cib.Session) (string, error) {
				if err := sess.Store().Rename(args[0], args[1]); err != nil {
					return "", err
				}
				return fmt.Sprintf("renamed %s to %s", args[0], args[1]), nil
			})
		},
	}

	return cmd
}

// NewEraseCommand creates the erase command.
func NewEraseCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "erase [nodes]",
		Short: "Erase the configuration or all nodes",
		Long: `Remove every object after confirmation. With "nodes" only node objects
are removed.`,
		Args:          cobra.MaximumNArgs(1),
		ValidArgs:     []string{"nodes"},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && args[0] != "nodes" {
				return fmt.Errorf("unknown erase target %q", args[0])
			}
			return mutate(rootOpts, cmd, func(_ context.Context, sess *cib.Session) (string, error) {
				if len(args) == 1 {
					return "nodes erased", sess.Store().EraseNodes()
				}
				return "configuration erased", sess.Erase()
			})
		},
	}

	return cmd
}

// NewDefaultTimeoutsCommand creates the default-timeouts command.
func NewDefaultTimeoutsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "default-timeouts <ids...>",
		Short: "Add default operation timeouts",
		Long: `Give every operation of the named resources a timeout from the
preferences, adding start and stop operations where missing.

Resources that were updated are committed even when others fail; the
failures are reported afterwards.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return query(rootOpts, cmd, func(ctx context.Context, env *sessionEnv) error {
				failed := env.sess.Store().DefaultTimeouts(args...)
				if env.sess.Store().HasChanged() {
					if err := env.sess.Commit(ctx, rootOpts.Force); err != nil {
						return env.formatter.Fail(errors.Join(err, failed))
					}
				}
				if failed != nil {
					return env.formatter.Fail(failed)
				}
				return env.formatter.Success("default timeouts set for " + strings.Join(args, ", "))
			})
		},
	}

	return cmd
}

// NewMonitorCommand creates the monitor command.
func NewMonitorCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor <rsc>[:<role>] <interval>[:<timeout>]",
		Short: "Add a monitor operation to a resource",
		Example: `  cibconf --db ./cluster.db monitor web1 30s:60s
  cibconf --db ./cluster.db monitor db1:Master 10s`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(rootOpts, cmd, func(_ context.Context, sess *cib.Session) (string, error) {
				if err := sess.Monitor(args[0], args[1]); err != nil {
					return "", err
				}
				return fmt.Sprintf("monitor %s added to %s", args[1], args[0]), nil
			})
		},
	}

	return cmd
}

// RefreshResult is the JSON form of a refresh.
type RefreshResult struct {
	Schema  string `json:"schema"`
	Epoch   int64  `json:"epoch"`
	Objects int    `json:"objects"`
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Drop pending changes and re-read the live configuration",
		Long: `Drop pending changes and re-read the live configuration, then print
what was read. Each invocation starts without pending changes, so this
mostly shows the schema, epoch and size of the live configuration.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return query(rootOpts, cmd, func(ctx context.Context, env *sessionEnv) error {
				if err := env.sess.Refresh(ctx); err != nil {
					return env.formatter.Fail(err)
				}
				res := RefreshResult{
					Schema:  env.sess.Store().Schema().Name,
					Epoch:   env.sess.Baseline().Document().Epoch,
					Objects: len(env.sess.Store().Objects()),
				}
				if rootOpts.Format == "json" {
					return env.formatter.Success(res)
				}
				return env.formatter.Success(fmt.Sprintf("%s, epoch %d, %d object(s)", res.Schema, res.Epoch, res.Objects))
			})
		},
	}

	return cmd
}

// NewModgroupCommand creates the modgroup command.
func NewModgroupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modgroup <group> add|remove <member> [after|before <ref>]",
		Short: "Add or remove a group member",
		Example: `  cibconf --db ./cluster.db modgroup g_web add web2 after web1
  cibconf --db ./cluster.db modgroup g_web remove web2`,
		Args:          cobra.RangeArgs(3, 5),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			group, verb, member := args[0], args[1], args[2]
			anchor, ref := cib.AnchorLast, ""
			switch {
			case verb == "remove" && len(args) == 3:
			case verb == "add" && len(args) == 3:
			case verb == "add" && len(args) == 5 && args[3] == "after":
				anchor, ref = cib.AnchorAfter, args[4]
			case verb == "add" && len(args) == 5 && args[3] == "before":
				anchor, ref = cib.AnchorBefore, args[4]
			default:
				return fmt.Errorf("usage: %s", cmd.Use)
			}
			return mutate(rootOpts, cmd, func(_ context.Context, sess *cib.Session) (string, error) {
				if verb == "remove" {
					return fmt.Sprintf("removed %s from %s", member, group), sess.GroupRemove(group, member)
				}
				return fmt.Sprintf("added %s to %s", member, group), sess.GroupAdd(group, member, anchor, ref)
			})
		},
	}

	return cmd
}

// NewFilterCommand creates the filter command.
func NewFilterCommand(rootOpts *RootOptions) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "filter <command> [ids...]",
		Short: "Rewrite objects through a shell command",
		Long: `Pipe the text of the selected objects, or of the whole configuration,
through a shell command and replace them with its output.

Example:
  cibconf --db ./cluster.db filter "sed 's/apache/nginx/'" g_web`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(rootOpts, cmd, func(ctx context.Context, sess *cib.Session) (string, error) {
				set, err := selection(sess, raw, args[1:])
				if err != nil {
					return "", err
				}
				if err := set.Filter(ctx, extproc.Filter{Command: args[0], Runner: rootOpts.Runner}); err != nil {
					return "", err
				}
				return "filter applied", nil
			})
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "filter the JSON document form")

	return cmd
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "edit [ids...]",
		Short: "Edit objects in an editor",
		Long: `Open the selected objects, or the whole configuration, in the editor
from the preferences and apply the result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(rootOpts, cmd, func(ctx context.Context, sess *cib.Session) (string, error) {
				set, err := selection(sess, raw, args)
				if err != nil {
					return "", err
				}
				editor := extproc.Editor{Program: sess.Preferences().Editor, Runner: rootOpts.Runner}
				if err := set.Edit(ctx, editor); err != nil {
					return "", err
				}
				return "edit applied", nil
			})
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "edit the JSON document form")

	return cmd
}

// LoadResult is the JSON form of an import report.
type LoadResult struct {
	Created   []string `json:"created"`
	Skipped   []string `json:"skipped,omitempty"`
	Conflicts []string `json:"conflicts,omitempty"`
}

func (r LoadResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "created %d object(s)", len(r.Created))
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&sb, ", %d unchanged", len(r.Skipped))
	}
	for _, c := range r.Conflicts {
		fmt.Fprintf(&sb, "\nkept existing %s", c)
	}
	return sb.String()
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "load replace|update <source>",
		Short: "Import configuration objects",
		Long: `Import objects from a file, "-" for standard input, or an http(s) URL.

replace erases the configuration first, after confirmation. update adds
objects whose ids are not in use; existing objects are kept.`,
		Args:          cobra.ExactArgs(2),
		ValidArgs:     []string{"replace", "update"},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := cib.ParseImportMode(args[0])
			if err != nil {
				return err
			}
			source := args[1]
			return query(rootOpts, cmd, func(ctx context.Context, env *sessionEnv) error {
				var report *cib.ImportReport
				var err error
				if mode == cib.ImportReplace {
					report, err = env.sess.LoadReplace(ctx, source, raw)
				} else {
					var set *cib.ObjectSet
					set, err = env.sess.Build(cib.Selector{Raw: raw})
					if err == nil {
						report, err = set.ImportFile(ctx, mode, source)
					}
				}
				if err != nil {
					return env.formatter.Fail(err)
				}
				if err := env.sess.Commit(ctx, rootOpts.Force); err != nil {
					return env.formatter.Fail(err)
				}
				result := LoadResult{Created: report.Created, Skipped: report.Skipped}
				for _, c := range report.Conflicts {
					result.Conflicts = append(result.Conflicts, c.ID)
				}
				if rootOpts.Format == "json" {
					return env.formatter.Success(result)
				}
				return env.formatter.Success(result.String())
			})
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "the source is a JSON document")

	return cmd
}
