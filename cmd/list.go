package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/pullq/internal/output"
	"github.com/tanq16/pullq/internal/types"
)

func newListCmd() *cobra.Command {
	var eligibleOnly bool

	cmd := &cobra.Command{
		Use:   "list [--eligible]",
		Short: "Show queued links and their status",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp()
			defer a.Close()
			items, err := a.queue.List(context.Background(), eligibleOnly)
			if err != nil {
				output.PrintError(fmt.Sprintf("Unable to list queue: %v", err))
				a.Close()
				os.Exit(1)
			}
			if len(items) == 0 {
				output.PrintInfo("Queue is empty")
				return
			}
			output.PrintHeader(fmt.Sprintf("%-6s %-9s %-8s %s", "ID", "STATUS", "TRIES", "URL"))
			for _, item := range items {
				fmt.Printf("%-6d %s %-8d %s\n", item.ID, output.FStatus(item.Status), item.Attempts, item.URL)
				if detail := itemDetail(item); detail != "" {
					fmt.Printf("%-6s %s\n", "", output.FDebug(detail))
				}
			}
		},
	}

	cmd.Flags().BoolVar(&eligibleOnly, "eligible", false, "Only show pending and failed links")
	return cmd
}

func itemDetail(item types.WorkItem) string {
	switch item.Status {
	case types.StatusCompleted:
		return fmt.Sprintf("%s %s", output.StyleSymbols["arrow"], item.OutputPath)
	case types.StatusFailed, types.StatusIgnored:
		return item.LastError
	default:
		return ""
	}
}
