package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/pullq/internal/output"
	"github.com/tanq16/pullq/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [DIR]",
		Short: "Remove partial files left behind by interrupted downloads",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := cfg.OutputDir
			if len(args) == 1 {
				dir = args[0]
			}
			removed, err := utils.CleanTemp(dir)
			if err != nil {
				output.PrintError(fmt.Sprintf("Error cleaning up temporary files: %v", err))
				os.Exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d temporary files from %s", removed, dir))
		},
	}
}
