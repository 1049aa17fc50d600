package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/pullq/internal/output"
)

func newSubmitCmd() *cobra.Command {
	var noRun bool

	cmd := &cobra.Command{
		Use:   "submit [URL]... [--no-run]",
		Short: "Queue one or more links and download everything pending",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()
			ctx := context.Background()

			if noRun {
				for _, url := range args {
					sub, err := a.queue.Enqueue(ctx, url)
					if err != nil {
						output.PrintError(fmt.Sprintf("Unable to queue %q: %v", url, err))
						a.Close()
						os.Exit(1)
					}
					printSubmission(sub.ID, sub.URL, sub.Created)
				}
				return
			}

			a.startDisplay()
			subs, err := a.queue.SubmitMany(ctx, args)
			a.stopDisplay()
			for _, sub := range subs {
				printSubmission(sub.ID, sub.URL, sub.Created)
			}
			exitOnRunError(a, err)
		},
	}

	cmd.Flags().BoolVar(&noRun, "no-run", false, "Only queue the links; do not start downloading")
	return cmd
}

func printSubmission(id int64, url string, created bool) {
	if created {
		output.PrintInfo(fmt.Sprintf("Queued #%d %s", id, url))
	} else {
		output.PrintInfo(fmt.Sprintf("Already queued #%d %s", id, url))
	}
}
