package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/capreel/capreel/internal/encoder"
	"github.com/capreel/capreel/internal/media"
)

var encodeCmd = &cobra.Command{
	Use:   "encode [frame-dir]",
	Short: "Transcode an existing frame directory into a clip",
	Long: `Transcode a directory of captured frames into a GIF, WebP or MP4
clip without recording. Useful for re-encoding a recording at a
different quality, or for frames rescued from a crashed session.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		frameDir := args[0]
		output, _ := cmd.Flags().GetString("output")
		formatName, _ := cmd.Flags().GetString("format")
		qualityName, _ := cmd.Flags().GetString("quality")
		fps, _ := cmd.Flags().GetInt("fps")

		if formatName == "" {
			formatName = cfg.Recording.Format
		}
		format, err := media.ParseFormat(formatName)
		if err != nil {
			return err
		}

		if qualityName == "" {
			qualityName = cfg.Recording.Quality
		}
		tier, err := encoder.ParseTier(qualityName)
		if err != nil {
			return err
		}

		if fps <= 0 {
			fps = cfg.Recording.FPS
		}
		if output == "" {
			output = filepath.Join(cfg.Output.Directory,
				filepath.Base(filepath.Clean(frameDir))+"."+format.Extension())
		}

		enc := encoder.New(cfg.Encoding.FFmpegPath, cfg.Encoding.FastMode)
		err = enc.Encode(encoder.Request{
			FrameDir:   frameDir,
			OutputFile: output,
			Format:     format,
			FPS:        fps,
			Quality:    tier,
		}, func(percent int) {
			fmt.Printf("\rEncoding... %3d%%", percent)
		})
		fmt.Println()
		if err != nil {
			return fmt.Errorf("encoding failed: %w", err)
		}

		fmt.Printf("Saved: %s\n", output)
		return nil
	},
}

func init() {
	encodeCmd.Flags().StringP("output", "o", "", "output file (default: output directory, named after the frame dir)")
	encodeCmd.Flags().String("format", "", "output format: gif, webp or mp4 (overrides config)")
	encodeCmd.Flags().String("quality", "", "quality tier: low, medium or high (overrides config)")
	encodeCmd.Flags().Int("fps", 0, "input frame rate (overrides config)")
}
