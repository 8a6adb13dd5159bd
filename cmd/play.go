package cmd

import (
	"github.com/spf13/cobra"

	"github.com/capreel/capreel/internal/play"
)

var playCmd = &cobra.Command{
	Use:   "play [name]",
	Short: "Preview a finished recording",
	Long:  `Open a recording in a local media viewer. Without a name the newest recording plays.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		player := play.New(cfg)
		return player.Play(name)
	},
}
