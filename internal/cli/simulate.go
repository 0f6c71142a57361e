package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cibconf/internal/cib"
	"github.com/roach88/cibconf/internal/simulate"
)

// NewPtestCommand creates the ptest command.
func NewPtestCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		opts    simulate.Options
		dotFile string
	)

	cmd := &cobra.Command{
		Use:   "ptest",
		Short: "Simulate the pending changes",
		Long: `Run the cluster simulator on the working copy and print what the
cluster would do. Neither the working copy nor the live configuration
changes.

Example:
  cibconf --db ./cluster.db ptest --actions
  cibconf --db ./cluster.db ptest --dot transition.dot`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return query(rootOpts, cmd, func(ctx context.Context, env *sessionEnv) error {
				set, err := env.sess.Build(cib.Selector{})
				if err != nil {
					return env.formatter.Fail(err)
				}
				res, err := set.Ptest(ctx, opts)
				if err != nil {
					return env.formatter.Fail(err)
				}
				env.logger.Debug("simulation finished", "program", res.Program)
				if dotFile != "" && res.Graph != nil {
					if err := os.WriteFile(dotFile, res.Graph, 0o644); err != nil {
						return env.formatter.Fail(fmt.Errorf("write transition graph: %w", err))
					}
				}
				if rootOpts.Format == "json" {
					return env.formatter.Success(map[string]any{
						"program": res.Program,
						"output":  string(res.Output),
					})
				}
				_, err = cmd.OutOrStdout().Write(res.Output)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&opts.NoGraph, "nograph", false, "do not produce a transition graph")
	cmd.Flags().IntVarP(&opts.Verbosity, "verbosity", "V", 0, "simulator verbosity")
	cmd.Flags().BoolVar(&opts.Scores, "scores", false, "show allocation scores")
	cmd.Flags().BoolVar(&opts.Utilization, "utilization", false, "show utilization information")
	cmd.Flags().BoolVar(&opts.Actions, "actions", false, "show the actions the cluster would take")
	cmd.Flags().StringVar(&opts.Program, "program", "", "use this simulator when available")
	cmd.Flags().StringVar(&dotFile, "dot", "", "write the transition graph to this file")

	return cmd
}

// NewGraphCommand creates the graph command.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [file [format]]",
		Short: "Show the configuration dependency graph",
		Long: `Print the dependency graph of the configuration in dot format, save it to
a file, or render it to an image in the given format with the dot program.

Example:
  cibconf --db ./cluster.db graph
  cibconf --db ./cluster.db graph deps.png png`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return query(rootOpts, cmd, func(ctx context.Context, env *sessionEnv) error {
				set, err := selection(env.sess, false, nil)
				if err != nil {
					return env.formatter.Fail(err)
				}
				switch len(args) {
				case 0:
					return set.ShowGraph(cmd.OutOrStdout())
				case 1:
					err = set.SaveGraph(args[0])
				default:
					err = set.GraphImage(ctx, args[0], args[1])
				}
				if err != nil {
					return env.formatter.Fail(err)
				}
				return env.formatter.Success("graph written to " + args[0])
			})
		},
	}

	return cmd
}
