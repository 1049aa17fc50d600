package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/pullq/internal/output"
	"github.com/tanq16/pullq/internal/types"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Download every pending or failed link in the queue",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()
			a.startDisplay()
			err := a.queue.Run(context.Background())
			a.stopDisplay()
			exitOnRunError(a, err)
		},
	}
}

// exitOnRunError reports a failed run and exits non-zero.
func exitOnRunError(a *app, err error) {
	if err == nil {
		return
	}
	if msg, warning := runErrorMessage(err); warning {
		output.PrintWarning(msg)
	} else {
		output.PrintError(msg)
	}
	a.Close()
	os.Exit(1)
}

// runErrorMessage describes a failed run; warning is set when the queue is
// intact and a later run can finish the work.
func runErrorMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, types.ErrRetryLater):
		return fmt.Sprintf("Some links are still pending (%v); run again later", err), true
	case types.IsCancellation(err):
		return "Run cancelled; unfinished links stay queued", true
	default:
		return fmt.Sprintf("Run failed: %v", err), false
	}
}
