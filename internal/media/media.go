package media

import (
	"fmt"
	"strings"
	"time"
)

// Format identifies the container/encoding of a finished recording.
type Format string

const (
	FormatGIF  Format = "gif"
	FormatWebP Format = "webp"
	FormatMP4  Format = "mp4"
)

// ParseFormat normalizes a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gif":
		return FormatGIF, nil
	case "webp":
		return FormatWebP, nil
	case "mp4":
		return FormatMP4, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// Extension returns the file extension without the leading dot.
func (f Format) Extension() string {
	return string(f)
}

// Item describes one finished recording artifact. An Item is created once
// per successful encode and never modified afterwards.
type Item struct {
	Name       string    `json:"name" yaml:"name"`
	Path       string    `json:"path" yaml:"path"`
	Format     Format    `json:"format" yaml:"format"`
	Size       int64     `json:"size" yaml:"size"`
	DurationMs int64     `json:"duration_ms" yaml:"duration_ms"`
	Width      int       `json:"width" yaml:"width"`
	Height     int       `json:"height" yaml:"height"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// SizeHuman formats the artifact size for display.
func (i Item) SizeHuman() string {
	return formatBytes(i.Size)
}

// formatBytes formats bytes in human readable format.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
