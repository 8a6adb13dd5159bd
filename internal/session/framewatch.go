package session

import (
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/capreel/capreel/internal/capture"
)

// rescanInterval corrects drift from coalesced or dropped filesystem
// events. The watcher trusts events for responsiveness and the scan for
// accuracy.
const rescanInterval = 5 * time.Second

// FrameWatcher counts capture frames as the backend writes them, feeding
// the live telemetry shown during a recording. It prefers filesystem
// notifications and degrades to periodic directory scans when the
// notification backend cannot watch the directory.
type FrameWatcher struct {
	dir      string
	count    atomic.Int64
	bytes    atomic.Int64
	stopChan chan struct{}
	doneChan chan struct{}
}

// WatchFrames starts counting frames written to dir.
func WatchFrames(dir string) *FrameWatcher {
	fw := &FrameWatcher{
		dir:      dir,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(dir)
	}
	if err != nil {
		slog.Warn("Frame notifications unavailable, falling back to directory scans", "dir", dir, "error", err)
		if watcher != nil {
			watcher.Close()
		}
		go fw.scanLoop()
		return fw
	}

	go fw.watchLoop(watcher)
	return fw
}

// Count returns the number of frames observed so far.
func (fw *FrameWatcher) Count() int {
	return int(fw.count.Load())
}

// Bytes returns the total size of observed frames, used for the on-screen
// size estimate.
func (fw *FrameWatcher) Bytes() int64 {
	return fw.bytes.Load()
}

// Close stops watching. A final scan runs first so the count reflects
// every frame on disk.
func (fw *FrameWatcher) Close() {
	close(fw.stopChan)
	<-fw.doneChan
	fw.scan()
}

func (fw *FrameWatcher) watchLoop(watcher *fsnotify.Watcher) {
	defer close(fw.doneChan)
	defer watcher.Close()

	rescan := time.NewTicker(rescanInterval)
	defer rescan.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Create) && isFrameName(event.Name) {
				fw.count.Add(1)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Debug("Frame watcher error", "dir", fw.dir, "error", err)
		case <-rescan.C:
			fw.scan()
		case <-fw.stopChan:
			return
		}
	}
}

func (fw *FrameWatcher) scanLoop() {
	defer close(fw.doneChan)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fw.scan()
		case <-fw.stopChan:
			return
		}
	}
}

// scan recounts the frames on disk and replaces the running totals.
func (fw *FrameWatcher) scan() {
	entries, err := os.ReadDir(fw.dir)
	if err != nil {
		return
	}

	var count int64
	var bytes int64
	for _, entry := range entries {
		if entry.IsDir() || !isFrameName(entry.Name()) {
			continue
		}
		count++
		if info, err := entry.Info(); err == nil {
			bytes += info.Size()
		}
	}
	fw.count.Store(count)
	fw.bytes.Store(bytes)
}

func isFrameName(path string) bool {
	name := path
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return strings.HasPrefix(name, capture.FramePrefix) && strings.HasSuffix(name, capture.FrameExt)
}
