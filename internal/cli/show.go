package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cibconf/internal/cib"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var raw, changed bool

	cmd := &cobra.Command{
		Use:   "show [ids...]",
		Short: "Show configuration objects",
		Long: `Print objects in the canonical text form, or as a JSON document with --raw.

Ids may be glob patterns; containers are shown with everything they
contain. Without ids the whole configuration is shown.

Example:
  cibconf --db ./cluster.db show g_web
  cibconf --db ./cluster.db show --raw 'web*'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return query(rootOpts, cmd, func(_ context.Context, env *sessionEnv) error {
				var set *cib.ObjectSet
				var err error
				if changed {
					set, err = env.sess.Build(cib.Selector{Raw: raw})
				} else {
					set, err = selection(env.sess, raw, args)
				}
				if err != nil {
					return env.formatter.Fail(err)
				}
				out, err := set.Render()
				if err != nil {
					return env.formatter.Fail(err)
				}
				if rootOpts.Format == "json" {
					res := map[string]any{"ids": set.IDs(), "config": string(out)}
					if deleted := set.Deleted(); len(deleted) > 0 {
						res["deleted"] = deleted
					}
					return env.formatter.Success(res)
				}
				_, err = cmd.OutOrStdout().Write(out)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "show the JSON document form")
	cmd.Flags().BoolVar(&changed, "changed", false, "show only objects changed since the last commit")

	return cmd
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "save <file> [ids...]",
		Short: "Save configuration objects to a file",
		Long: `Write the selected objects, or the whole configuration, to a file.
A file of "-" writes to standard output.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return query(rootOpts, cmd, func(_ context.Context, env *sessionEnv) error {
				set, err := selection(env.sess, raw, args[1:])
				if err != nil {
					return env.formatter.Fail(err)
				}
				if err := set.SaveToFile(args[0]); err != nil {
					return env.formatter.Fail(err)
				}
				if args[0] == "-" {
					return nil
				}
				return env.formatter.Success(fmt.Sprintf("saved %d object(s) to %s", len(set.IDs()), args[0]))
			})
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "save the JSON document form")

	return cmd
}

// VerifyResult is the JSON form of a verification report.
type VerifyResult struct {
	Severity   string          `json:"severity"`
	Structural int             `json:"structural"`
	Warnings   int             `json:"warnings"`
	Findings   []FindingResult `json:"findings,omitempty"`
}

// FindingResult is one verification finding.
type FindingResult struct {
	ID      string `json:"id"`
	Tier    string `json:"tier"`
	Message string `json:"message"`
}

func reportJSON(r cib.Report) VerifyResult {
	out := VerifyResult{
		Severity:   r.Severity.String(),
		Structural: r.Structural,
		Warnings:   r.Warnings,
	}
	for _, f := range r.Findings {
		out.Findings = append(out.Findings, FindingResult{ID: f.ID, Tier: f.Tier.String(), Message: f.Message})
	}
	return out
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [ids...]",
		Short: "Verify configuration objects",
		Long: `Run the structural and semantic checks on the selected objects, or on
the whole configuration. Exits with status 1 when the result is a failure.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return query(rootOpts, cmd, func(_ context.Context, env *sessionEnv) error {
				set, err := selection(env.sess, false, args)
				if err != nil {
					return env.formatter.Fail(err)
				}
				report := set.Verify()
				if rootOpts.Format == "json" {
					if err := env.formatter.Success(reportJSON(report)); err != nil {
						return err
					}
				} else {
					w := cmd.OutOrStdout()
					for _, f := range report.Findings {
						fmt.Fprintln(w, f)
					}
					fmt.Fprintf(w, "%s: %d structural problem(s), %d warning(s)\n",
						report.Severity, report.Structural, report.Warnings)
				}
				if report.Severity == cib.SeverityFail {
					return NewExitError(ExitFailure, "verification failed")
				}
				return nil
			})
		},
	}

	return cmd
}
