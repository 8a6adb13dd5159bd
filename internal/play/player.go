package play

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/capreel/capreel/internal/config"
	"github.com/capreel/capreel/internal/media"
)

// Player previews finished recordings with whatever viewer the host has.
type Player struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Player {
	return &Player{cfg: cfg}
}

// Play opens the named recording, or the newest one when name is empty.
func (p *Player) Play(name string) error {
	file, err := p.resolveFile(name)
	if err != nil {
		return err
	}

	fmt.Printf("Playing: %s\n", file)

	viewer, err := findViewer()
	if err != nil {
		return fmt.Errorf("no suitable media viewer found: %w", err)
	}

	var cmd *exec.Cmd
	switch viewer {
	case "mpv":
		cmd = exec.Command("mpv", "--loop-file=inf", file)
	case "vlc":
		cmd = exec.Command("vlc", "--play-and-exit", file)
	case "ffplay":
		cmd = exec.Command("ffplay", "-autoexit", "-loop", "0", file)
	default:
		return fmt.Errorf("unsupported viewer: %s", viewer)
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("playback failed with %s: %w", viewer, err)
	}

	fmt.Println("Playback completed")
	return nil
}

// resolveFile maps a recording name onto a path in the output directory.
func (p *Player) resolveFile(name string) (string, error) {
	if name == "" {
		catalog := media.NewCatalog(p.cfg.Output.Directory)
		items, err := catalog.List()
		if err != nil {
			return "", fmt.Errorf("reading recording index: %w", err)
		}
		if len(items) == 0 {
			return "", fmt.Errorf("no recordings found in %s", p.cfg.Output.Directory)
		}
		return items[0].Path, nil
	}

	file := filepath.Join(p.cfg.Output.Directory, name)
	if _, err := os.Stat(file); err != nil {
		return "", fmt.Errorf("recording not found: %s", file)
	}
	return file, nil
}

// findViewer picks the first available viewer that can loop animations.
func findViewer() (string, error) {
	viewers := []string{"mpv", "vlc", "ffplay"}

	for _, viewer := range viewers {
		if _, err := exec.LookPath(viewer); err == nil {
			return viewer, nil
		}
	}

	return "", fmt.Errorf("no media viewer found (tried: %s)", strings.Join(viewers, ", "))
}
