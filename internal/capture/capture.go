package capture

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var (
	// ErrUnavailable is returned by Start when a backend cannot run on this
	// platform or finds no matching display.
	ErrUnavailable = errors.New("capture backend unavailable")

	// ErrAlreadyRunning is returned by Start when a capture is in progress.
	ErrAlreadyRunning = errors.New("capture already running")
)

// Frame file naming shared by every backend. The encoder reconstructs the
// numeric pattern from the first file it finds, so all backends must write
// the same prefix, zero-padded index width and extension.
const (
	FramePrefix     = "frame_"
	FrameExt        = ".jpg"
	frameIndexWidth = 5
)

// FrameFileName returns the file name for the frame at the given index.
func FrameFileName(index int) string {
	return fmt.Sprintf("%s%0*d%s", FramePrefix, frameIndexWidth, index, FrameExt)
}

// FramePattern returns the printf-style sequence pattern understood by
// ffmpeg's image2 muxer.
func FramePattern() string {
	return fmt.Sprintf("%s%%0%dd%s", FramePrefix, frameIndexWidth, FrameExt)
}

// Region is a capture rectangle in absolute screen coordinates.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Validate rejects degenerate rectangles.
func (r Region) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("capture region must have positive dimensions, got %dx%d", r.Width, r.Height)
	}
	return nil
}

// Options configures one capture run. A nil Region captures the full
// bounds of Display.
type Options struct {
	Region        *Region
	Display       int
	FPS           int
	Scale         float64 // (0,1], 1 = no rescale
	Quality       int     // JPEG quality, 1-100
	IncludeCursor bool
	OutputDir     string
}

// maxFPS bounds the capture rate; beyond this the frame interval gets
// too small for any backend to honor.
const maxFPS = 240

func (o Options) validate() error {
	if o.FPS < 1 || o.FPS > maxFPS {
		return fmt.Errorf("fps must be between 1 and %d, got %d", maxFPS, o.FPS)
	}
	if o.Scale <= 0 || o.Scale > 1 {
		return fmt.Errorf("scale must be in (0, 1], got %.2f", o.Scale)
	}
	if o.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if o.Region != nil {
		if err := o.Region.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Backend produces a numbered JPEG frame sequence in Options.OutputDir.
//
// Start returns once capture is running; frames are then written until
// Stop. Stop is idempotent and does not return until no further frames
// will be written. IsRunning must be cheap because orchestration polls it.
type Backend interface {
	Name() string
	Start(opts Options) error
	Stop() error
	IsRunning() bool
}

// StreamBridge is the narrow interface to a platform display-stream
// service. The service writes one encoded frame per callback directly
// into the output directory; the Go side only supervises the stream.
type StreamBridge interface {
	Available() bool
	Start(opts Options) error
	Stop() error
}

// Candidates returns capture backends in fallback priority order as a pure
// function of the configured preference and the probed environment. The
// caller tries each in turn and falls back on start failure.
//
// Priority under "auto": native stream (when a bridge is present), then the
// external ffmpeg grabber (when the binary is on PATH), then the in-process
// pixel grabber, which works everywhere.
func Candidates(preference string, bridge StreamBridge, ffmpegPath string) []Backend {
	pixel := NewPixelGrab(nil)

	switch strings.ToLower(preference) {
	case "native":
		return []Backend{NewNativeStream(bridge), pixel}
	case "ffmpeg":
		return []Backend{NewFFmpegGrab(ffmpegPath), pixel}
	case "pixelgrab":
		return []Backend{pixel}
	}

	var candidates []Backend
	if bridge != nil && bridge.Available() {
		candidates = append(candidates, NewNativeStream(bridge))
	}
	if ffmpegPath != "" {
		if _, err := exec.LookPath(ffmpegPath); err == nil {
			candidates = append(candidates, NewFFmpegGrab(ffmpegPath))
		}
	}
	return append(candidates, pixel)
}
