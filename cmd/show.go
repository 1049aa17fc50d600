package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tanq16/pullq/internal/output"
	"github.com/tanq16/pullq/internal/types"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one queued link in detail",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				output.PrintError(fmt.Sprintf("Invalid item ID %q", args[0]))
				os.Exit(1)
			}
			a := mustApp()
			defer a.Close()
			item, err := a.store.Get(context.Background(), id)
			if err != nil {
				if errors.Is(err, types.ErrItemNotFound) {
					output.PrintError(fmt.Sprintf("No queued link with ID %d", id))
				} else {
					output.PrintError(fmt.Sprintf("Unable to read queue: %v", err))
				}
				a.Close()
				os.Exit(1)
			}
			for _, line := range describeItem(*item) {
				fmt.Println(line)
			}
		},
	}
}

// describeItem renders the label/value lines of show.
func describeItem(item types.WorkItem) []string {
	lines := []string{
		fmt.Sprintf("%-10s %d", "ID", item.ID),
		fmt.Sprintf("%-10s %s", "URL", item.URL),
		fmt.Sprintf("%-10s %s", "Status", output.FStatus(item.Status)),
		fmt.Sprintf("%-10s %d", "Attempts", item.Attempts),
	}
	if item.OutputPath != "" {
		lines = append(lines, fmt.Sprintf("%-10s %s", "Output", item.OutputPath))
	}
	if item.LastError != "" {
		lines = append(lines, fmt.Sprintf("%-10s %s", "Error", item.LastError))
	}
	if !item.CreatedAt.IsZero() {
		lines = append(lines, fmt.Sprintf("%-10s %s", "Added", item.CreatedAt.Format("2006-01-02 15:04:05")))
	}
	switch {
	case item.Status.Terminal():
		lines = append(lines, output.FDebug("settled, not picked up by later runs"))
	case item.Status.Eligible():
		lines = append(lines, output.FDebug("picked up by the next run"))
	}
	return lines
}
