package capture

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// stopGrace is how long the grabber may keep running after a graceful quit
// signal before it is force killed.
const stopGrace = 5 * time.Second

// FFmpegGrab launches an external ffmpeg screen grabber that writes the
// frame sequence itself. The input grammar differs per OS: avfoundation
// with a crop filter graph on macOS, gdigrab with explicit offset/size on
// Windows, x11grab with display and offset on Linux.
type FFmpegGrab struct {
	ffmpegPath string

	// hidpiScale converts screen points to pixels for the macOS crop
	// filter. 2 covers every Retina display in practice.
	hidpiScale int

	mu      sync.Mutex
	running bool
	cmd     *exec.Cmd
}

// NewFFmpegGrab creates the external-process backend.
func NewFFmpegGrab(ffmpegPath string) *FFmpegGrab {
	return &FFmpegGrab{
		ffmpegPath: ffmpegPath,
		hidpiScale: 2,
	}
}

func (f *FFmpegGrab) Name() string { return "ffmpeg" }

func (f *FFmpegGrab) Start(opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return ErrAlreadyRunning
	}

	if _, err := exec.LookPath(f.ffmpegPath); err != nil {
		return fmt.Errorf("ffmpeg binary not found: %w", ErrUnavailable)
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create frame directory: %w", err)
	}

	args, err := f.buildArgs(opts, runtime.GOOS)
	if err != nil {
		return err
	}

	slog.Info("Starting ffmpeg screen grabber", "command", f.ffmpegPath+" "+strings.Join(args, " "))

	cmd := exec.Command(f.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg grabber: %w", err)
	}

	f.cmd = cmd
	f.running = true

	go f.readOutput(stderr)

	return nil
}

// buildArgs assembles the per-OS grabber command line. Split out so the
// grammar can be tested without launching a process.
func (f *FFmpegGrab) buildArgs(opts Options, goos string) ([]string, error) {
	args := []string{"-y", "-loglevel", "info"}

	switch goos {
	case "darwin":
		// avfoundation captures whole displays only; region selection is a
		// crop filter in pixels, so points are multiplied by the HiDPI
		// scale factor.
		args = append(args,
			"-f", "avfoundation",
			"-framerate", fmt.Sprintf("%d", opts.FPS),
			"-capture_cursor", boolFlag(opts.IncludeCursor),
			"-i", fmt.Sprintf("%d:none", opts.Display),
		)
		var filters []string
		if opts.Region != nil {
			s := f.hidpiScale
			filters = append(filters, fmt.Sprintf("crop=%d:%d:%d:%d",
				opts.Region.Width*s, opts.Region.Height*s, opts.Region.X*s, opts.Region.Y*s))
		}
		if opts.Scale < 1 {
			filters = append(filters, fmt.Sprintf("scale=iw*%.2f:-2", opts.Scale))
		}
		if len(filters) > 0 {
			args = append(args, "-vf", strings.Join(filters, ","))
		}

	case "windows":
		args = append(args,
			"-f", "gdigrab",
			"-framerate", fmt.Sprintf("%d", opts.FPS),
			"-draw_mouse", boolFlag(opts.IncludeCursor),
		)
		if opts.Region != nil {
			args = append(args,
				"-offset_x", fmt.Sprintf("%d", opts.Region.X),
				"-offset_y", fmt.Sprintf("%d", opts.Region.Y),
				"-video_size", fmt.Sprintf("%dx%d", opts.Region.Width, opts.Region.Height),
			)
		}
		args = append(args, "-i", "desktop")
		if opts.Scale < 1 {
			args = append(args, "-vf", fmt.Sprintf("scale=iw*%.2f:-2", opts.Scale))
		}

	case "linux":
		display := os.Getenv("DISPLAY")
		if display == "" {
			display = ":0"
		}
		input := fmt.Sprintf("%s.%d", display, opts.Display)
		args = append(args,
			"-f", "x11grab",
			"-framerate", fmt.Sprintf("%d", opts.FPS),
			"-draw_mouse", boolFlag(opts.IncludeCursor),
		)
		if opts.Region != nil {
			args = append(args,
				"-video_size", fmt.Sprintf("%dx%d", opts.Region.Width, opts.Region.Height),
			)
			input = fmt.Sprintf("%s+%d,%d", input, opts.Region.X, opts.Region.Y)
		}
		args = append(args, "-i", input)
		if opts.Scale < 1 {
			args = append(args, "-vf", fmt.Sprintf("scale=iw*%.2f:-2", opts.Scale))
		}

	default:
		return nil, fmt.Errorf("no screen grabber for %s: %w", goos, ErrUnavailable)
	}

	args = append(args,
		"-q:v", fmt.Sprintf("%d", jpegQScale(opts.Quality)),
		"-start_number", "0",
		filepath.Join(opts.OutputDir, FramePattern()),
	)
	return args, nil
}

// readOutput drains the grabber's diagnostic stream so the process never
// blocks on a full pipe.
func (f *FFmpegGrab) readOutput(pipe io.ReadCloser) {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		slog.Debug("ffmpeg grabber output", "line", scanner.Text())
	}
	pipe.Close()
}

func (f *FFmpegGrab) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running || f.cmd == nil {
		f.running = false
		return nil
	}

	if f.cmd.Process != nil {
		slog.Debug("Sending interrupt to ffmpeg grabber")
		if err := f.cmd.Process.Signal(os.Interrupt); err != nil {
			slog.Debug("Failed to interrupt ffmpeg grabber, killing", "error", err)
			f.cmd.Process.Kill()
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- f.cmd.Wait()
	}()

	select {
	case err := <-done:
		f.cmd = nil
		f.running = false
		if err != nil && !isSignalExit(err) {
			return fmt.Errorf("ffmpeg grabber failed: %w", err)
		}
		return nil

	case <-time.After(stopGrace):
		slog.Warn("ffmpeg grabber did not exit within grace period, force killing")
		if f.cmd.Process != nil {
			f.cmd.Process.Kill()
		}
		<-done
		f.cmd = nil
		f.running = false
		return nil
	}
}

func (f *FFmpegGrab) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// isSignalExit reports whether the process died from the quit signal we
// sent, which counts as a clean stop.
func isSignalExit(err error) bool {
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	if exitErr.ExitCode() == 255 {
		return true
	}
	if exitErr.ProcessState != nil {
		state := exitErr.ProcessState.String()
		if state == "signal: interrupt" || state == "signal: killed" {
			return true
		}
	}
	return false
}

// jpegQScale maps a 1-100 quality percentage onto ffmpeg's 2-31 qscale,
// where lower is better.
func jpegQScale(quality int) int {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	q := 2 + (100-quality)*29/99
	return q
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
