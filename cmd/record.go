package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/capreel/capreel/internal/capture"
	"github.com/capreel/capreel/internal/session"
	"github.com/capreel/capreel/internal/state"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the screen and save a clip",
	Long: `Record the full display, or a region given with --region, until
interrupted. On Ctrl+C the captured frames are transcoded into the
configured output format and saved to the output directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		regionSpec, _ := cmd.Flags().GetString("region")
		format, _ := cmd.Flags().GetString("format")
		quality, _ := cmd.Flags().GetString("quality")
		fps, _ := cmd.Flags().GetInt("fps")

		// Flag overrides on top of the configured defaults.
		if format != "" {
			cfg.Recording.Format = format
		}
		if quality != "" {
			cfg.Recording.Quality = quality
		}
		if fps > 0 {
			cfg.Recording.FPS = fps
		}

		var area *capture.Region
		if regionSpec != "" {
			parsed, err := parseRegion(regionSpec)
			if err != nil {
				return err
			}
			area = parsed
		}

		store := state.NewStore()
		controller := session.New(cfg, store, nil)
		if err := controller.Init(); err != nil {
			return err
		}

		if err := controller.StartRecording(area); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}

		slog.Info("Recording... Press Ctrl+C to stop and save")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		slog.Info("Stopping recording...")

		if err := controller.StopRecording(); err != nil {
			return fmt.Errorf("failed to stop recording: %w", err)
		}

		st := store.Current()
		if len(st.Recent) > 0 {
			item := st.Recent[0]
			fmt.Printf("Saved: %s (%s)\n", item.Path, item.SizeHuman())
		}
		return nil
	},
}

// parseRegion turns "x,y,WxH" into a capture rectangle.
func parseRegion(spec string) (*capture.Region, error) {
	parts := strings.Split(spec, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("region must be 'x,y,WIDTHxHEIGHT', got: %s", spec)
	}

	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, fmt.Errorf("invalid region x: %s", parts[0])
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, fmt.Errorf("invalid region y: %s", parts[1])
	}

	dims := strings.SplitN(strings.TrimSpace(parts[2]), "x", 2)
	if len(dims) != 2 {
		return nil, fmt.Errorf("region size must be 'WIDTHxHEIGHT', got: %s", parts[2])
	}
	width, err := strconv.Atoi(dims[0])
	if err != nil {
		return nil, fmt.Errorf("invalid region width: %s", dims[0])
	}
	height, err := strconv.Atoi(dims[1])
	if err != nil {
		return nil, fmt.Errorf("invalid region height: %s", dims[1])
	}

	region := &capture.Region{X: x, Y: y, Width: width, Height: height}
	if err := region.Validate(); err != nil {
		return nil, err
	}
	return region, nil
}

func init() {
	recordCmd.Flags().String("region", "", "capture region as 'x,y,WIDTHxHEIGHT' (default: full display)")
	recordCmd.Flags().String("format", "", "output format: gif, webp or mp4 (overrides config)")
	recordCmd.Flags().String("quality", "", "quality tier: low, medium or high (overrides config)")
	recordCmd.Flags().Int("fps", 0, "capture frame rate (overrides config)")
}
