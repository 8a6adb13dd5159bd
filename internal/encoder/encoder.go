package encoder

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/capreel/capreel/internal/media"
)

const (
	// Encoding ceilings. Image formats converge fast; x264 on long captures
	// can legitimately take longer.
	imageFormatTimeout = 5 * time.Minute
	mp4Timeout         = 10 * time.Minute

	// Progress reported from frame counting stops here. The remainder is
	// container muxing, which emits no frame lines.
	frameProgressCeiling = 95

	// Intermediate palette written into the frame directory by the GIF
	// two-pass pipeline. A crashed run can leave it behind, so frame
	// listing must never count it.
	paletteFileName = "palette.png"
)

// Request describes one transcoding job.
type Request struct {
	FrameDir   string
	OutputFile string
	Format     media.Format
	FPS        int
	Quality    QualityTier
}

// ProgressFunc receives percentage updates in [0,100]. Values are strictly
// increasing; exactly one final 100 is delivered on success.
type ProgressFunc func(percent int)

// Encoder turns captured frame sequences into shareable media by driving an
// external ffmpeg process.
type Encoder struct {
	ffmpegPath string
	fastMode   bool
}

// New creates an encoder that invokes the given ffmpeg binary.
func New(ffmpegPath string, fastMode bool) *Encoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Encoder{ffmpegPath: ffmpegPath, fastMode: fastMode}
}

// Encode transcodes the frames in req.FrameDir into req.OutputFile. The
// progress callback may be nil.
func (e *Encoder) Encode(req Request, onProgress ProgressFunc) error {
	frames, err := listFrames(req.FrameDir)
	if err != nil {
		return fmt.Errorf("listing frames: %w", err)
	}
	if len(frames) == 0 {
		return ErrNoFrames
	}

	if req.FPS <= 0 {
		req.FPS = 12
	}

	pattern := DeriveInputPattern(frames[0])
	guard := newProgressGuard(onProgress)

	slog.Info("Starting encode",
		"format", req.Format,
		"frames", len(frames),
		"fps", req.FPS,
		"quality", req.Quality,
		"output", req.OutputFile)

	start := time.Now()
	switch req.Format {
	case media.FormatGIF:
		err = e.encodeGIF(req, pattern, len(frames), guard)
	case media.FormatWebP:
		err = e.encodeWebP(req, pattern, len(frames), guard)
	case media.FormatMP4:
		err = e.encodeMP4(req, pattern, len(frames), guard)
	default:
		return fmt.Errorf("unsupported output format: %s", req.Format)
	}
	if err != nil {
		return err
	}

	info, statErr := os.Stat(req.OutputFile)
	if statErr != nil || info.Size() == 0 {
		return ErrOutputMissing
	}

	guard.finish()
	slog.Info("Encode complete",
		"output", req.OutputFile,
		"size", info.Size(),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// encodeGIF runs the two-pass palette pipeline. Pass one generates a
// per-recording palette; pass two applies it with dithering. If palette
// generation fails the single-pass fallback still produces a usable file.
func (e *Encoder) encodeGIF(req Request, pattern InputPattern, totalFrames int, guard *progressGuard) error {
	p := DeriveGIFParams(req.Quality, e.fastMode)
	palette := filepath.Join(req.FrameDir, paletteFileName)
	defer os.Remove(palette)

	scaleFilter := fmt.Sprintf("fps=%d,scale=iw*%g:ih*%g:flags=lanczos", p.TargetFPS, p.ScaleFactor, p.ScaleFactor)

	paletteArgs := append(pattern.inputArgs(req.FPS),
		"-vf", fmt.Sprintf("%s,palettegen=max_colors=%d:stats_mode=diff", scaleFilter, p.MaxColors),
		"-y", palette)

	if err := e.run(paletteArgs, imageFormatTimeout, totalFrames, nil); err != nil {
		slog.Warn("Palette generation failed, falling back to single pass", "error", err)
		fallbackArgs := append(pattern.inputArgs(req.FPS),
			"-vf", scaleFilter,
			"-loop", "0",
			"-y", req.OutputFile)
		return e.run(fallbackArgs, imageFormatTimeout, totalFrames, guard)
	}

	useArgs := append(pattern.inputArgs(req.FPS),
		"-i", palette,
		"-lavfi", fmt.Sprintf("%s[x];[x][1:v]paletteuse=dither=%s", scaleFilter, p.Dither),
		"-loop", "0",
		"-y", req.OutputFile)
	return e.run(useArgs, imageFormatTimeout, totalFrames, guard)
}

func (e *Encoder) encodeWebP(req Request, pattern InputPattern, totalFrames int, guard *progressGuard) error {
	p := DeriveWebPParams(req.Quality)

	compression := 4
	if e.fastMode {
		compression = 0
	}

	args := append(pattern.inputArgs(req.FPS),
		"-c:v", "libwebp",
		"-lossless", "0",
		"-q:v", strconv.Itoa(p.Quality),
		"-compression_level", strconv.Itoa(compression),
		"-loop", "0",
		"-y", req.OutputFile)
	return e.run(args, imageFormatTimeout, totalFrames, guard)
}

func (e *Encoder) encodeMP4(req Request, pattern InputPattern, totalFrames int, guard *progressGuard) error {
	p := DeriveMP4Params(req.Quality, e.fastMode)

	args := append(pattern.inputArgs(req.FPS),
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-c:v", "libx264",
		"-crf", strconv.Itoa(p.CRF),
		"-preset", p.Preset,
		"-profile:v", p.Profile,
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-y", req.OutputFile)
	return e.run(args, mp4Timeout, totalFrames, guard)
}

// run executes one ffmpeg invocation, streaming progress from stderr and
// enforcing the timeout. guard may be nil for passes that should not report
// progress (palette generation).
func (e *Encoder) run(args []string, timeout time.Duration, totalFrames int, guard *progressGuard) error {
	cmd := exec.Command(e.ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}
	slog.Debug("ffmpeg started", "pid", cmd.Process.Pid, "args", strings.Join(args, " "))

	tail := newLineTail(10)
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			tail.add(line)
			if guard == nil {
				continue
			}
			if frame, ok := parseProgressLine(line); ok {
				guard.report(frameProgress(frame, totalFrames))
			}
		}
	}()

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	select {
	case err = <-waitDone:
	case <-time.After(timeout):
		slog.Error("ffmpeg exceeded time limit, killing", "pid", cmd.Process.Pid, "timeout", timeout)
		cmd.Process.Kill()
		<-waitDone
		<-stderrDone
		return ErrTimeout
	}
	<-stderrDone

	if err != nil {
		classified := classifyExit(err)
		slog.Error("ffmpeg failed", "error", classified, "stderr", tail.String())
		return classified
	}
	return nil
}

// classifyExit maps an exec.Wait error onto the crash taxonomy.
func classifyExit(err error) error {
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return fmt.Errorf("waiting for ffmpeg: %w", err)
	}
	return classifyTermination(exitErr.ExitCode(), exitErr.ProcessState.String())
}

// classifyTermination inspects the exit code and process-state string of a
// finished encoder run. Signal deaths carry distinct user guidance; plain
// nonzero exits do not.
func classifyTermination(exitCode int, stateStr string) error {
	for _, sig := range []string{"aborted", "abort trap", "trace/breakpoint trap", "segmentation fault", "illegal instruction"} {
		if strings.Contains(stateStr, sig) {
			return &CrashError{Class: CrashSignature, Signal: stateStr}
		}
	}
	if strings.Contains(stateStr, "signal: killed") || strings.Contains(stateStr, "killed") {
		return &CrashError{Class: CrashOutOfMemory, Signal: stateStr}
	}
	return &ExitCodeError{Code: exitCode}
}

var progressLineRe = regexp.MustCompile(`frame=\s*(\d+)`)

// parseProgressLine extracts the frame counter from an ffmpeg stats line.
func parseProgressLine(line string) (int, bool) {
	m := progressLineRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// frameProgress maps a processed-frame count onto the 0..95 range. Muxing
// and trailer writing account for the rest.
func frameProgress(frame, total int) int {
	if total <= 0 {
		return 0
	}
	pct := frame * frameProgressCeiling / total
	if pct > frameProgressCeiling {
		pct = frameProgressCeiling
	}
	return pct
}

// progressGuard makes raw percentage reports safe for consumers: values are
// clamped to [0,100] and only strictly increasing updates pass through.
type progressGuard struct {
	fn   ProgressFunc
	last int
}

func newProgressGuard(fn ProgressFunc) *progressGuard {
	return &progressGuard{fn: fn, last: -1}
}

func (g *progressGuard) report(pct int) {
	if g == nil || g.fn == nil {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct <= g.last {
		return
	}
	g.last = pct
	g.fn(pct)
}

// finish delivers the terminal 100 exactly once.
func (g *progressGuard) finish() {
	if g == nil || g.fn == nil {
		return
	}
	if g.last < 100 {
		g.last = 100
		g.fn(100)
	}
}

// listFrames returns the capture frames in a directory, sorted by name.
// Zero-padded indices make lexical order equal to capture order.
func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var frames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == paletteFileName {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".jpg", ".jpeg", ".png":
			frames = append(frames, filepath.Join(dir, name))
		}
	}
	sort.Strings(frames)
	return frames, nil
}

// lineTail keeps the last n lines of a stream for error reporting.
type lineTail struct {
	lines []string
	max   int
}

func newLineTail(max int) *lineTail {
	return &lineTail{max: max}
}

func (t *lineTail) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *lineTail) String() string {
	return strings.Join(t.lines, "\n")
}
