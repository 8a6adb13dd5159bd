package encoder

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/capreel/capreel/internal/media"
)

func TestParseTier(t *testing.T) {
	tests := []struct {
		input   string
		want    QualityTier
		wantErr bool
	}{
		{"low", TierLow, false},
		{"medium", TierMedium, false},
		{"mid", TierMedium, false},
		{"HIGH", TierHigh, false},
		{"  high  ", TierHigh, false},
		{"ultra", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseTier(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTier(%q) expected error, got %q", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTier(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTier(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDeriveGIFParams(t *testing.T) {
	low := DeriveGIFParams(TierLow, false)
	if low.TargetFPS != 10 || low.MaxColors != 128 {
		t.Errorf("Low tier: got fps=%d colors=%d", low.TargetFPS, low.MaxColors)
	}

	high := DeriveGIFParams(TierHigh, false)
	if high.TargetFPS != 15 || high.MaxColors != 256 || high.Dither != "floyd_steinberg" {
		t.Errorf("High tier: got %+v", high)
	}

	// Fast mode caps fps and colors and forces the cheap dither.
	fast := DeriveGIFParams(TierHigh, true)
	if fast.TargetFPS != 10 {
		t.Errorf("Fast mode fps = %d, want 10", fast.TargetFPS)
	}
	if fast.MaxColors != 128 {
		t.Errorf("Fast mode colors = %d, want 128", fast.MaxColors)
	}
	if fast.Dither != "bayer:bayer_scale=5" {
		t.Errorf("Fast mode dither = %s", fast.Dither)
	}
}

func TestDeriveMP4Params(t *testing.T) {
	if p := DeriveMP4Params(TierHigh, false); p.CRF != 20 || p.Preset != "medium" || p.Profile != "high" {
		t.Errorf("High tier: got %+v", p)
	}
	if p := DeriveMP4Params(TierHigh, true); p.Preset != "veryfast" {
		t.Errorf("Fast mode should demote preset, got %s", p.Preset)
	}
	if p := DeriveMP4Params(TierLow, true); p.Preset != "ultrafast" {
		t.Errorf("Fast mode should not slow down ultrafast, got %s", p.Preset)
	}
}

func TestDeriveInputPattern(t *testing.T) {
	p := DeriveInputPattern("/tmp/rec/frame_00000.jpg")
	if p.Glob {
		t.Fatal("Numeric frame name should not fall back to glob")
	}
	if want := filepath.Join("/tmp/rec", "frame_%05d.jpg"); p.Pattern != want {
		t.Errorf("Pattern = %s, want %s", p.Pattern, want)
	}
	if p.StartNumber != 0 {
		t.Errorf("StartNumber = %d, want 0", p.StartNumber)
	}

	// Sequences that start mid-count keep their start number.
	p = DeriveInputPattern("/tmp/rec/shot007.png")
	if p.Pattern != filepath.Join("/tmp/rec", "shot%03d.png") {
		t.Errorf("Pattern = %s", p.Pattern)
	}
	if p.StartNumber != 7 {
		t.Errorf("StartNumber = %d, want 7", p.StartNumber)
	}

	// Non-numeric names fall back to a wildcard.
	p = DeriveInputPattern("/tmp/rec/capture.jpg")
	if !p.Glob {
		t.Fatal("Expected glob fallback for non-numeric name")
	}
	if p.Pattern != filepath.Join("/tmp/rec", "*.jpg") {
		t.Errorf("Glob pattern = %s", p.Pattern)
	}
}

func TestInputPatternArgs(t *testing.T) {
	seq := InputPattern{Pattern: "/tmp/frame_%05d.jpg", StartNumber: 0}
	args := seq.inputArgs(12)
	want := []string{"-framerate", "12", "-start_number", "0", "-i", "/tmp/frame_%05d.jpg"}
	if len(args) != len(want) {
		t.Fatalf("Args = %v", args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("Arg %d = %s, want %s", i, args[i], want[i])
		}
	}

	glob := InputPattern{Pattern: "/tmp/*.jpg", Glob: true}
	args = glob.inputArgs(10)
	found := false
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-pattern_type" && args[i+1] == "glob" {
			found = true
		}
	}
	if !found {
		t.Errorf("Glob args missing -pattern_type glob: %v", args)
	}
}

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		line  string
		frame int
		ok    bool
	}{
		{"frame=  120 fps= 30 q=28.0 size=     512kB time=00:00:04.00", 120, true},
		{"frame=1 fps=0.0 q=0.0 size=0kB", 1, true},
		{"[libx264 @ 0x7f] frame I:4 Avg QP:20", 0, false},
		{"Press [q] to stop", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		frame, ok := parseProgressLine(tt.line)
		if ok != tt.ok || frame != tt.frame {
			t.Errorf("parseProgressLine(%q) = (%d, %v), want (%d, %v)", tt.line, frame, ok, tt.frame, tt.ok)
		}
	}
}

func TestFrameProgress(t *testing.T) {
	if got := frameProgress(0, 100); got != 0 {
		t.Errorf("frameProgress(0, 100) = %d", got)
	}
	if got := frameProgress(50, 100); got != 47 {
		t.Errorf("frameProgress(50, 100) = %d, want 47", got)
	}
	// Frame counts can exceed the input count when filters duplicate frames.
	if got := frameProgress(200, 100); got != 95 {
		t.Errorf("frameProgress(200, 100) = %d, want ceiling 95", got)
	}
	if got := frameProgress(10, 0); got != 0 {
		t.Errorf("frameProgress with zero total = %d", got)
	}
}

func TestProgressGuard(t *testing.T) {
	var got []int
	g := newProgressGuard(func(p int) { got = append(got, p) })

	g.report(10)
	g.report(10) // duplicate dropped
	g.report(5)  // regression dropped
	g.report(150)
	g.report(95) // below clamp result, dropped
	g.finish()

	want := []int{10, 100}
	if len(got) != len(want) {
		t.Fatalf("Reports = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Report %d = %d, want %d", i, got[i], want[i])
		}
	}

	// finish is idempotent.
	g.finish()
	if len(got) != 2 {
		t.Errorf("finish delivered extra report: %v", got)
	}
}

func TestProgressGuardNilCallback(t *testing.T) {
	g := newProgressGuard(nil)
	g.report(50)
	g.finish()
}

func TestClassifyTermination(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		state     string
		wantClass CrashClass
		wantCode  int
	}{
		{"sigabrt", -1, "signal: aborted", CrashSignature, 0},
		{"abort trap macos", -1, "signal: abort trap", CrashSignature, 0},
		{"sigsegv", -1, "signal: segmentation fault", CrashSignature, 0},
		{"sigtrap", -1, "signal: trace/breakpoint trap", CrashSignature, 0},
		{"sigill", -1, "signal: illegal instruction", CrashSignature, 0},
		{"sigkill", -1, "signal: killed", CrashOutOfMemory, 0},
		{"plain failure", 1, "exit status 1", "", 1},
		{"usage error", 2, "exit status 2", "", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyTermination(tt.code, tt.state)
			var crash *CrashError
			if errors.As(err, &crash) {
				if tt.wantClass == "" {
					t.Fatalf("Unexpected crash classification: %v", err)
				}
				if crash.Class != tt.wantClass {
					t.Errorf("Class = %s, want %s", crash.Class, tt.wantClass)
				}
				return
			}
			var exit *ExitCodeError
			if !errors.As(err, &exit) {
				t.Fatalf("Unexpected error type: %v", err)
			}
			if tt.wantClass != "" {
				t.Fatalf("Expected crash class %s, got exit code error", tt.wantClass)
			}
			if exit.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", exit.Code, tt.wantCode)
			}
		})
	}
}

func TestListFrames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame_00002.jpg", "frame_00000.jpg", "frame_00001.jpg", "palette.png", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	frames, err := listFrames(dir)
	if err != nil {
		t.Fatalf("listFrames: %v", err)
	}
	// Text files, directories and a leftover palette from an interrupted
	// GIF encode are skipped; images sort by name.
	if len(frames) != 3 {
		t.Fatalf("Expected 3 frames, got %d: %v", len(frames), frames)
	}
	if filepath.Base(frames[0]) != "frame_00000.jpg" {
		t.Errorf("First frame = %s", frames[0])
	}
	for _, f := range frames {
		if filepath.Base(f) == "palette.png" {
			t.Errorf("Palette counted as a frame: %v", frames)
		}
	}
}

func TestEncodeEmptyDirectory(t *testing.T) {
	e := New("ffmpeg", false)
	err := e.Encode(Request{
		FrameDir:   t.TempDir(),
		OutputFile: filepath.Join(t.TempDir(), "out.gif"),
		Format:     media.FormatGIF,
		FPS:        12,
		Quality:    TierMedium,
	}, nil)
	if !errors.Is(err, ErrNoFrames) {
		t.Errorf("Expected ErrNoFrames, got %v", err)
	}
}

func TestLineTail(t *testing.T) {
	tail := newLineTail(3)
	for _, l := range []string{"a", "b", "c", "d", "e"} {
		tail.add(l)
	}
	if got := tail.String(); got != "c\nd\ne" {
		t.Errorf("Tail = %q", got)
	}
}
