package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/cibconf/internal/cib"
	"github.com/roach88/cibconf/internal/extproc"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string
	Prefs    string
	Force    bool

	// MetricsFile receives the session counters in the Prometheus text
	// format when set.
	MetricsFile string

	// Confirmer answers confirmation prompts. If nil, prompts are read
	// from the command's input.
	Confirmer cib.Confirmer

	// Runner and LookPath override how external programs are found and
	// run (for testing).
	Runner   extproc.Runner
	LookPath extproc.LookPathFunc
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the cibconf CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cibconf",
		Short: "cibconf - cluster configuration manager",
		Long: `Edit a cluster resource configuration as a working copy: create, change
and delete objects, verify them, simulate the result and commit the
pending changes to the live configuration in one step.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the live configuration database (required)")
	cmd.PersistentFlags().StringVar(&opts.Prefs, "prefs", "", "path to a preferences file")
	cmd.PersistentFlags().BoolVar(&opts.Force, "force", false, "commit over conflicts and failed verification")
	cmd.PersistentFlags().StringVar(&opts.MetricsFile, "metrics-textfile", "", "write commit metrics to this file")

	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewSaveCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewCommitCommand(opts))
	cmd.AddCommand(NewRefreshCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewRenameCommand(opts))
	cmd.AddCommand(NewEraseCommand(opts))
	cmd.AddCommand(NewDefaultTimeoutsCommand(opts))
	cmd.AddCommand(NewMonitorCommand(opts))
	cmd.AddCommand(NewModgroupCommand(opts))
	cmd.AddCommand(NewFilterCommand(opts))
	cmd.AddCommand(NewEditCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewPtestCommand(opts))
	cmd.AddCommand(NewGraphCommand(opts))
	cmd.AddCommand(NewUpgradeCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
