package media

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const indexFileName = "index.yaml"

// Catalog maintains the index of finished recordings in the output
// directory. The index is a YAML file, newest entry first.
type Catalog struct {
	mu        sync.RWMutex
	directory string
}

// NewCatalog creates a catalog rooted at the given output directory.
func NewCatalog(directory string) *Catalog {
	return &Catalog{directory: directory}
}

// Directory returns the output directory the catalog manages.
func (c *Catalog) Directory() string {
	return c.directory
}

func (c *Catalog) indexPath() string {
	return filepath.Join(c.directory, indexFileName)
}

// List returns the indexed recordings, newest first. A missing index file
// yields an empty list, not an error.
func (c *Catalog) List() ([]Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.readIndex()
}

// Add prepends a finished recording to the index and persists it.
func (c *Catalog) Add(item Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.readIndex()
	if err != nil {
		// A corrupt index must not cost the user a finished recording.
		slog.Warn("Recreating unreadable catalog index", "path", c.indexPath(), "error", err)
		items = nil
	}

	items = append([]Item{item}, items...)
	return c.writeIndex(items)
}

// Remove deletes an entry by name and persists the index. Removing an
// unknown name is a no-op.
func (c *Catalog) Remove(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.readIndex()
	if err != nil {
		return err
	}

	kept := items[:0]
	for _, it := range items {
		if it.Name != name {
			kept = append(kept, it)
		}
	}
	return c.writeIndex(kept)
}

func (c *Catalog) readIndex() ([]Item, error) {
	data, err := os.ReadFile(c.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read catalog index: %w", err)
	}

	var items []Item
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse catalog index: %w", err)
	}
	return items, nil
}

func (c *Catalog) writeIndex(items []Item) error {
	if err := os.MkdirAll(c.directory, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := yaml.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog index: %w", err)
	}

	if err := os.WriteFile(c.indexPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write catalog index: %w", err)
	}
	return nil
}
