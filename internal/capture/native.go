package capture

import (
	"fmt"
	"log/slog"
	"sync"
)

// NativeStream binds to a platform display-stream service through a
// StreamBridge. The service writes encoded frames straight into the output
// directory, so this backend only tracks stream lifetime. Builds without a
// bridge report ErrUnavailable from Start.
type NativeStream struct {
	bridge StreamBridge

	mu      sync.Mutex
	running bool
}

// NewNativeStream creates the native-stream backend. A nil bridge yields a
// backend that is never available.
func NewNativeStream(bridge StreamBridge) *NativeStream {
	return &NativeStream{bridge: bridge}
}

func (n *NativeStream) Name() string { return "native" }

func (n *NativeStream) Start(opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return ErrAlreadyRunning
	}
	if n.bridge == nil || !n.bridge.Available() {
		return fmt.Errorf("no display-stream bridge on this platform: %w", ErrUnavailable)
	}

	if err := n.bridge.Start(opts); err != nil {
		return fmt.Errorf("failed to start display stream: %w", err)
	}

	n.running = true
	slog.Info("Native display stream started", "output_dir", opts.OutputDir, "fps", opts.FPS)
	return nil
}

func (n *NativeStream) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return nil
	}

	// Bridge Stop blocks until the stream callback has fully ceased.
	if err := n.bridge.Stop(); err != nil {
		return fmt.Errorf("failed to stop display stream: %w", err)
	}

	n.running = false
	slog.Debug("Native display stream stopped")
	return nil
}

func (n *NativeStream) IsRunning() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}
