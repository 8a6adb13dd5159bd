package cmd

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/kbinani/screenshot"
	"github.com/spf13/cobra"

	"github.com/capreel/capreel/internal/capture"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List capture backends and their availability",
	Long:  `Show the capture backends in fallback priority order, whether each can run on this host, and the displays the pixel grabber sees.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Capture backends (%s)\n", runtime.GOOS)
		fmt.Printf("═══════════════════════════════════════\n\n")

		candidates := capture.Candidates(cfg.Capture.Backend, nil, cfg.Encoding.FFmpegPath)
		fmt.Printf("Priority order (preference: %s):\n", cfg.Capture.Backend)
		for i, backend := range candidates {
			fmt.Printf("  %d. %s\n", i+1, backend.Name())
		}

		fmt.Printf("\nffmpeg: ")
		if path, err := exec.LookPath(cfg.Encoding.FFmpegPath); err == nil {
			fmt.Printf("%s\n", path)
		} else {
			fmt.Printf("not found (%s)\n", cfg.Encoding.FFmpegPath)
		}

		n := screenshot.NumActiveDisplays()
		fmt.Printf("\nDisplays (%d found):\n", n)
		for i := 0; i < n; i++ {
			bounds := screenshot.GetDisplayBounds(i)
			fmt.Printf("  %d. %dx%d at (%d,%d)\n", i, bounds.Dx(), bounds.Dy(), bounds.Min.X, bounds.Min.Y)
		}

		return nil
	},
}
