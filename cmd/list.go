package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/capreel/capreel/internal/media"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List finished recordings",
	Long:  `List the recordings in the output directory index, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog := media.NewCatalog(cfg.Output.Directory)
		items, err := catalog.List()
		if err != nil {
			return fmt.Errorf("failed to read recording index: %w", err)
		}

		if len(items) == 0 {
			fmt.Printf("No recordings in %s\n", cfg.Output.Directory)
			return nil
		}

		fmt.Printf("Recordings in %s (%d):\n\n", cfg.Output.Directory, len(items))
		for _, item := range items {
			duration := float64(item.DurationMs) / 1000
			fmt.Printf("  %-32s %-5s %9s %6.1fs %dx%d\n",
				item.Name, item.Format, item.SizeHuman(), duration, item.Width, item.Height)
		}
		return nil
	},
}
