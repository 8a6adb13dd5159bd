package media

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
)

// ProbeResult holds the stream properties extracted from a finished file.
type ProbeResult struct {
	Width      int
	Height     int
	DurationMs int64
}

// Probe extracts video dimensions and duration from a media file using
// ffprobe. GIF and WebP files report duration through the format section
// when the stream-level value is missing.
func Probe(path string) (*ProbeResult, error) {
	cmd := exec.Command("ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	var probeResult struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
			Duration  string `json:"duration"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}

	if err := json.Unmarshal(output, &probeResult); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output for %s: %w", path, err)
	}

	result := &ProbeResult{}
	durationStr := probeResult.Format.Duration

	for _, stream := range probeResult.Streams {
		if stream.CodecType != "video" {
			continue
		}
		result.Width = stream.Width
		result.Height = stream.Height
		if stream.Duration != "" {
			durationStr = stream.Duration
		}
		break
	}

	if durationStr != "" {
		seconds, err := strconv.ParseFloat(durationStr, 64)
		if err != nil {
			slog.Debug("Unparseable duration from ffprobe", "path", path, "duration", durationStr)
		} else {
			result.DurationMs = int64(seconds * 1000)
		}
	}

	if result.Width == 0 || result.Height == 0 {
		return nil, fmt.Errorf("no video stream found in %s", path)
	}

	slog.Debug("Probed media file", "path", path, "width", result.Width, "height", result.Height, "duration_ms", result.DurationMs)
	return result, nil
}
