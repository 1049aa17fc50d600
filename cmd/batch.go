package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/pullq/internal/output"
	"gopkg.in/yaml.v3"
)

type BatchEntry struct {
	Link string `yaml:"link"`
}

// BatchFile groups links under arbitrary section names.
type BatchFile map[string][]BatchEntry

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Queue every link in a YAML file and download them",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading YAML file: %v\n", err)
				os.Exit(1)
			}
			links, err := parseBatch(data)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing YAML file: %v\n", err)
				os.Exit(1)
			}
			if len(links) == 0 {
				fmt.Fprintf(os.Stderr, "No valid links found in the batch file\n")
				os.Exit(1)
			}

			a := mustApp()
			defer a.Close()
			a.startDisplay()
			subs, err := a.queue.SubmitMany(context.Background(), links)
			a.stopDisplay()
			queued := 0
			for _, sub := range subs {
				if sub.Created {
					queued++
				}
			}
			output.PrintInfo(fmt.Sprintf("Queued %d new of %d links", queued, len(subs)))
			exitOnRunError(a, err)
		},
	}
	return cmd
}

// parseBatch reads links from sections in name order, keeping file order
// within a section.
func parseBatch(data []byte) ([]string, error) {
	var batchFile BatchFile
	if err := yaml.Unmarshal(data, &batchFile); err != nil {
		return nil, err
	}
	sections := make([]string, 0, len(batchFile))
	for name := range batchFile {
		sections = append(sections, name)
	}
	sort.Strings(sections)
	var links []string
	for _, name := range sections {
		for _, entry := range batchFile[name] {
			link := strings.TrimSpace(entry.Link)
			if link == "" {
				fmt.Fprintf(os.Stderr, "Warning: Empty link found in %s section, skipping...\n", name)
				continue
			}
			links = append(links, link)
		}
	}
	return links, nil
}
