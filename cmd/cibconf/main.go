// Command cibconf edits a cluster resource configuration through a
// verified working copy.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/roach88/cibconf/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
