package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/capreel/capreel/internal/capture"
	"github.com/capreel/capreel/internal/config"
	"github.com/capreel/capreel/internal/encoder"
	"github.com/capreel/capreel/internal/media"
	"github.com/capreel/capreel/internal/state"
)

// ErrNoActiveRecording is returned by stop and pause when nothing is
// being captured.
var ErrNoActiveRecording = errors.New("no active recording")

// FrameEncoder turns a frame directory into a finished media file.
type FrameEncoder interface {
	Encode(req encoder.Request, onProgress encoder.ProgressFunc) error
}

// Controller drives the recording pipeline: backend selection, live
// telemetry, stop-and-encode, catalog registration. All state changes flow
// through the state store so every observer sees the same picture.
type Controller struct {
	cfg     *config.Config
	store   *state.Store
	catalog *media.Catalog
	bridge  capture.StreamBridge

	// Injection points for tests.
	enc        FrameEncoder
	probe      func(path string) (*media.ProbeResult, error)
	candidates func(preference string, bridge capture.StreamBridge, ffmpegPath string) []capture.Backend

	mu     sync.Mutex
	active *activeRecording
}

// activeRecording tracks one in-flight capture. Pause keeps the backend
// running and only excludes the paused span from the reported duration.
type activeRecording struct {
	id       string
	backend  capture.Backend
	frameDir string
	format   media.Format
	region   *capture.Region
	maxDur   time.Duration

	startTime   time.Time
	paused      bool
	pausedAt    time.Time
	pausedTotal time.Duration

	watcher  *FrameWatcher
	stopChan chan struct{}
	doneChan chan struct{}
}

// New creates a controller wired to the real capture, encode and probe
// implementations. bridge may be nil on platforms without a native stream
// service.
func New(cfg *config.Config, store *state.Store, bridge capture.StreamBridge) *Controller {
	return &Controller{
		cfg:        cfg,
		store:      store,
		catalog:    media.NewCatalog(cfg.Output.Directory),
		bridge:     bridge,
		enc:        encoder.New(cfg.Encoding.FFmpegPath, cfg.Encoding.FastMode),
		probe:      media.Probe,
		candidates: capture.Candidates,
	}
}

// Init loads the recording history and moves the pipeline to Idle.
func (c *Controller) Init() error {
	recent, err := c.catalog.List()
	if err != nil {
		return fmt.Errorf("loading recording catalog: %w", err)
	}
	c.store.Initialize(c.cfg.Recording, recent)
	return nil
}

// StartRecording begins capturing the given area, or the full display when
// area is nil. It blocks through the countdown and backend startup, then
// returns while frames accumulate in the background.
func (c *Controller) StartRecording(area *capture.Region) error {
	// Reserve the active slot before the countdown and backend startup so a
	// concurrent start is rejected instead of racing past the guard and
	// leaking a second capture.
	rec := &activeRecording{}
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return capture.ErrAlreadyRunning
	}
	c.active = rec
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		if c.active == rec {
			c.active = nil
		}
		c.mu.Unlock()
	}

	settings := c.store.Current().Settings

	format, err := media.ParseFormat(settings.Format)
	if err != nil {
		release()
		return err
	}
	tier, err := encoder.ParseTier(settings.Quality)
	if err != nil {
		release()
		return err
	}

	c.store.PrepareRecording(area, settings.Countdown)
	for i := settings.Countdown; i > 0; i-- {
		slog.Info("Recording starts in", "seconds", i)
		time.Sleep(time.Second)
	}

	id := fmt.Sprintf("rec_%s", time.Now().Format("20060102_150405"))
	frameDir := filepath.Join(c.cfg.TempDir(), id)
	if err := os.MkdirAll(frameDir, 0755); err != nil {
		release()
		c.store.HandleError("Could not create working directory", err, true)
		return fmt.Errorf("creating frame directory: %w", err)
	}

	opts := capture.Options{
		Region:        area,
		Display:       c.cfg.Capture.Display,
		FPS:           settings.FPS,
		Scale:         c.cfg.Capture.Scale,
		Quality:       captureJPEGQuality(tier),
		IncludeCursor: c.cfg.Capture.MouseCursor,
		OutputDir:     frameDir,
	}

	backend, err := c.startFirstAvailable(opts)
	if err != nil {
		release()
		os.RemoveAll(frameDir)
		c.store.HandleError("No capture backend could start", err, true)
		return err
	}

	c.mu.Lock()
	*rec = activeRecording{
		id:        id,
		backend:   backend,
		frameDir:  frameDir,
		format:    format,
		region:    area,
		maxDur:    time.Duration(settings.MaxDuration) * time.Second,
		startTime: time.Now(),
		watcher:   WatchFrames(frameDir),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
	c.mu.Unlock()

	c.store.StartRecording(state.RecordingSession{
		ID:          id,
		StartTime:   rec.startTime,
		Region:      area,
		Format:      format,
		MaxDuration: rec.maxDur,
		FrameDir:    frameDir,
	}, backend.Name())

	go c.monitor(rec)

	slog.Info("Recording started", "id", id, "backend", backend.Name(), "format", format)
	return nil
}

// startFirstAvailable walks the backend priority list, falling back on
// start failure.
func (c *Controller) startFirstAvailable(opts capture.Options) (capture.Backend, error) {
	candidates := c.candidates(c.cfg.Capture.Backend, c.bridge, c.cfg.Encoding.FFmpegPath)

	var lastErr error
	for _, backend := range candidates {
		if err := backend.Start(opts); err != nil {
			slog.Warn("Capture backend failed to start, trying next", "backend", backend.Name(), "error", err)
			lastErr = err
			continue
		}
		return backend, nil
	}
	if lastErr == nil {
		lastErr = capture.ErrUnavailable
	}
	return nil, fmt.Errorf("all capture backends failed: %w", lastErr)
}

// monitor publishes telemetry once a second and enforces the duration
// ceiling.
func (c *Controller) monitor(rec *activeRecording) {
	defer close(rec.doneChan)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			elapsed := c.recordedDuration(rec)
			c.store.UpdateRecordingProgress(rec.watcher.Count(), elapsed.Seconds(), rec.watcher.Bytes())

			if rec.maxDur > 0 && elapsed >= rec.maxDur {
				slog.Info("Maximum recording duration reached, stopping", "id", rec.id, "max_duration", rec.maxDur)
				go func() {
					if err := c.StopRecording(); err != nil {
						slog.Error("Auto-stop failed", "id", rec.id, "error", err)
					}
				}()
				return
			}
		case <-rec.stopChan:
			return
		}
	}
}

// recordedDuration returns wall time minus paused spans.
func (c *Controller) recordedDuration(rec *activeRecording) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := time.Since(rec.startTime) - rec.pausedTotal
	if rec.paused {
		d -= time.Since(rec.pausedAt)
	}
	return d
}

// TogglePause flips the pause flag. Capture keeps running; paused time is
// excluded from the reported duration and the auto-stop ceiling.
func (c *Controller) TogglePause() error {
	c.mu.Lock()
	rec := c.active
	if rec == nil || rec.stopChan == nil {
		c.mu.Unlock()
		return ErrNoActiveRecording
	}

	if rec.paused {
		rec.pausedTotal += time.Since(rec.pausedAt)
		rec.paused = false
	} else {
		rec.pausedAt = time.Now()
		rec.paused = true
	}
	paused := rec.paused
	c.mu.Unlock()

	c.store.TogglePause()
	slog.Info("Recording pause toggled", "id", rec.id, "paused", paused)
	return nil
}

// StopRecording ends the capture and runs the full processing pipeline:
// encode, probe, catalog registration. It blocks until the finished file is
// indexed or an error is published.
func (c *Controller) StopRecording() error {
	c.mu.Lock()
	rec := c.active
	if rec == nil || rec.stopChan == nil {
		// Nothing captured yet. A nil stopChan means a start is still in
		// flight; its reservation stays in place.
		c.mu.Unlock()
		return ErrNoActiveRecording
	}
	c.active = nil
	c.mu.Unlock()

	close(rec.stopChan)
	<-rec.doneChan

	if err := rec.backend.Stop(); err != nil {
		slog.Warn("Capture backend stop reported error", "backend", rec.backend.Name(), "error", err)
	}
	rec.watcher.Close()

	c.store.StopRecording()
	slog.Info("Recording stopped", "id", rec.id, "frames", rec.watcher.Count())

	if err := c.process(rec); err != nil {
		c.store.HandleError("Processing failed", err, true)
		os.RemoveAll(rec.frameDir)
		return err
	}

	os.RemoveAll(rec.frameDir)
	return nil
}

// process encodes the captured frames and registers the result.
func (c *Controller) process(rec *activeRecording) error {
	settings := c.store.Current().Settings
	tier, err := encoder.ParseTier(settings.Quality)
	if err != nil {
		tier = encoder.TierMedium
	}

	if err := os.MkdirAll(c.cfg.Output.Directory, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	name := rec.id + "." + rec.format.Extension()
	outputFile := filepath.Join(c.cfg.Output.Directory, name)

	encodeStart := time.Now()
	c.store.UpdateProcessingProgress(0, state.StageEncoding, 0)

	err = c.enc.Encode(encoder.Request{
		FrameDir:   rec.frameDir,
		OutputFile: outputFile,
		Format:     rec.format,
		FPS:        settings.FPS,
		Quality:    tier,
	}, func(percent int) {
		c.store.UpdateProcessingProgress(float64(percent), state.StageEncoding, encodeETA(encodeStart, percent))
	})
	if err != nil {
		return fmt.Errorf("encoding %s: %w", rec.id, err)
	}

	c.store.UpdateProcessingProgress(100, state.StageSaving, 0)

	info, err := os.Stat(outputFile)
	if err != nil {
		return fmt.Errorf("inspecting output file: %w", err)
	}

	item := media.Item{
		Name:      name,
		Path:      outputFile,
		Format:    rec.format,
		Size:      info.Size(),
		CreatedAt: rec.startTime,
	}
	if probed, err := c.probe(outputFile); err != nil {
		slog.Warn("Could not probe finished recording", "path", outputFile, "error", err)
	} else {
		item.Width = probed.Width
		item.Height = probed.Height
		item.DurationMs = probed.DurationMs
	}

	c.store.UpdateProcessingProgress(100, state.StageUpdatingIndex, 0)
	if err := c.catalog.Add(item); err != nil {
		return fmt.Errorf("updating recording index: %w", err)
	}

	c.store.CompleteProcessing(item)
	slog.Info("Recording saved", "name", name, "size", item.SizeHuman(), "duration_ms", item.DurationMs)
	return nil
}

// CancelRecording abandons the in-flight capture, discards frames and
// returns to Idle without producing a file.
func (c *Controller) CancelRecording() error {
	c.mu.Lock()
	rec := c.active
	if rec != nil && rec.stopChan == nil {
		// Start still initializing; leave its reservation alone.
		rec = nil
	} else {
		c.active = nil
	}
	c.mu.Unlock()

	if rec != nil {
		close(rec.stopChan)
		<-rec.doneChan
		if err := rec.backend.Stop(); err != nil {
			slog.Warn("Capture backend stop reported error", "backend", rec.backend.Name(), "error", err)
		}
		rec.watcher.Close()
		os.RemoveAll(rec.frameDir)
		slog.Info("Recording cancelled", "id", rec.id)
	}

	c.store.CancelCurrentOperation()
	return nil
}

// DeleteRecording removes a finished recording file and its index entry.
func (c *Controller) DeleteRecording(name string) error {
	items, err := c.catalog.List()
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.Name != name {
			continue
		}
		if err := os.Remove(item.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("deleting %s: %w", item.Path, err)
		}
		return c.catalog.Remove(name)
	}
	return fmt.Errorf("recording not found: %s", name)
}

// Recordings lists the finished recordings, newest first.
func (c *Controller) Recordings() ([]media.Item, error) {
	return c.catalog.List()
}

// captureJPEGQuality maps the output quality tier onto the intermediate
// frame quality. Frames are re-encoded later, so they carry a bit more
// fidelity than the tier asks for.
func captureJPEGQuality(tier encoder.QualityTier) int {
	switch tier {
	case encoder.TierLow:
		return 60
	case encoder.TierHigh:
		return 92
	default:
		return 80
	}
}

// encodeETA projects the remaining encode time from progress so far.
func encodeETA(start time.Time, percent int) time.Duration {
	if percent <= 0 || percent >= 100 {
		return 0
	}
	elapsed := time.Since(start)
	return elapsed * time.Duration(100-percent) / time.Duration(percent)
}
