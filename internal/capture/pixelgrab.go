package capture

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/kbinani/screenshot"
)

// CursorPositioner reports the pointer position in absolute screen
// coordinates. Implementations come from platform collaborators; a nil
// positioner disables cursor compositing.
type CursorPositioner interface {
	Position() (x, y int, ok bool)
}

// PixelGrab polls the screen-pixel snapshot API in a loop and writes each
// frame itself. It has no external dependencies and serves as the universal
// fallback backend.
type PixelGrab struct {
	cursor CursorPositioner
	glyph  *image.NRGBA

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewPixelGrab creates the pixel-grab backend. cursor may be nil.
func NewPixelGrab(cursor CursorPositioner) *PixelGrab {
	return &PixelGrab{
		cursor: cursor,
		glyph:  cursorGlyph(),
	}
}

func (p *PixelGrab) Name() string { return "pixelgrab" }

func (p *PixelGrab) Start(opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrAlreadyRunning
	}

	displays := screenshot.NumActiveDisplays()
	if displays == 0 {
		return fmt.Errorf("no active displays: %w", ErrUnavailable)
	}
	if opts.Display >= displays {
		return fmt.Errorf("display %d not found (have %d): %w", opts.Display, displays, ErrUnavailable)
	}

	bounds := screenshot.GetDisplayBounds(opts.Display)
	if opts.Region != nil {
		bounds = image.Rect(
			opts.Region.X,
			opts.Region.Y,
			opts.Region.X+opts.Region.Width,
			opts.Region.Y+opts.Region.Height,
		)
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create frame directory: %w", err)
	}

	p.stopChan = make(chan struct{})
	p.doneChan = make(chan struct{})
	p.running = true

	go p.captureLoop(opts, bounds)

	slog.Info("Pixel-grab capture started", "bounds", bounds.String(), "fps", opts.FPS, "scale", opts.Scale)
	return nil
}

// captureLoop samples the screen at the configured frame rate until
// stopped.
func (p *PixelGrab) captureLoop(opts Options, bounds image.Rectangle) {
	defer close(p.doneChan)

	interval := time.Second / time.Duration(opts.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	index := 0
	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			if err := p.captureFrame(opts, bounds, index); err != nil {
				// A single failed grab drops one frame, not the session.
				slog.Debug("Frame capture failed", "index", index, "error", err)
				continue
			}
			index++
		}
	}
}

func (p *PixelGrab) captureFrame(opts Options, bounds image.Rectangle, index int) error {
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return fmt.Errorf("screen grab failed: %w", err)
	}

	frame := imaging.Clone(img)

	if opts.IncludeCursor && p.cursor != nil {
		if x, y, ok := p.cursor.Position(); ok {
			pt := image.Pt(x-bounds.Min.X, y-bounds.Min.Y)
			if pt.In(image.Rect(0, 0, bounds.Dx(), bounds.Dy())) {
				frame = imaging.Overlay(frame, p.glyph, pt, 1.0)
			}
		}
	}

	if opts.Scale < 1 {
		width := int(math.Round(float64(bounds.Dx()) * opts.Scale))
		if width < 1 {
			width = 1
		}
		frame = imaging.Resize(frame, width, 0, imaging.Box)
	}

	path := filepath.Join(opts.OutputDir, FrameFileName(index))
	if err := imaging.Save(frame, path, imaging.JPEGQuality(opts.Quality)); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func (p *PixelGrab) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	close(p.stopChan)
	done := p.doneChan
	p.mu.Unlock()

	// Wait for the loop to finish its current frame; no file is written
	// after Stop returns.
	<-done

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	slog.Debug("Pixel-grab capture stopped")
	return nil
}

func (p *PixelGrab) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// cursorGlyph draws the synthetic pointer composited onto grabbed frames:
// a black arrow with a one-pixel white outline.
func cursorGlyph() *image.NRGBA {
	const w, h = 12, 18
	glyph := image.NewNRGBA(image.Rect(0, 0, w, h))

	black := color.NRGBA{A: 255}
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}

	for y := 0; y < h; y++ {
		rowWidth := y/2 + 1
		if rowWidth > w-1 {
			rowWidth = w - 1
		}
		for x := 0; x < rowWidth; x++ {
			c := black
			if x == 0 || x == rowWidth-1 || y == h-1 {
				c = white
			}
			glyph.SetNRGBA(x, y, c)
		}
	}
	return glyph
}
