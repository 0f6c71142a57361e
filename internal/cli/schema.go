package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cibconf/internal/cib"
)

// NewUpgradeCommand creates the upgrade command.
func NewUpgradeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade a legacy configuration",
		Long: `Move a configuration with a legacy schema to the current one, renaming
legacy setting names in every object. With --force the upgrade runs even
if the live schema is not the expected legacy version.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mutate(rootOpts, cmd, func(ctx context.Context, sess *cib.Session) (string, error) {
				if err := sess.UpgradeSchemaVersion(ctx, rootOpts.Force); err != nil {
					return "", err
				}
				return "configuration upgraded to " + sess.Store().Schema().Name, nil
			})
		},
	}

	return cmd
}

// SchemaResult is the JSON form of the schema listing.
type SchemaResult struct {
	Current   string   `json:"current"`
	Available []string `json:"available"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [name]",
		Short: "Show or change the configuration schema",
		Long: `Without arguments print the schema of the working copy and the known
schemas. With a name, validate every object against that schema and
switch to it.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				target := args[0]
				return mutate(rootOpts, cmd, func(_ context.Context, sess *cib.Session) (string, error) {
					if err := sess.ChangeSchema(target); err != nil {
						return "", err
					}
					return "schema set to " + target, nil
				})
			}
			return query(rootOpts, cmd, func(_ context.Context, env *sessionEnv) error {
				res := SchemaResult{
					Current:   env.sess.Store().Schema().Name,
					Available: env.sess.Schemas().Names(),
				}
				if rootOpts.Format == "json" {
					return env.formatter.Success(res)
				}
				return env.formatter.Success(fmt.Sprintf("%s (available: %s)", res.Current, strings.Join(res.Available, ", ")))
			})
		},
	}

	return cmd
}
