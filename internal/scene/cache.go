package scene

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Cache provides thread-safe caching of loaded scenes to avoid re-reading
// band files between tool calls.
//
// Scenes are keyed by the path string passed to Load. Once a scene is loaded,
// subsequent Load calls for the same path return the cached copy without
// disk I/O.
//
// # Memory Management
//
// A scene holds every band layer in memory as float64. Cached scenes remain
// until explicitly removed via Evict() or Clear().
type Cache struct {
	mu     sync.RWMutex
	scenes map[string]*Scene
}

// NewCache creates an empty scene cache.
func NewCache() *Cache {
	return &Cache{
		scenes: make(map[string]*Scene),
	}
}

// Load retrieves a scene from the cache or loads it from disk.
//
// Parameters:
//   - path: A scene.json manifest, a directory containing one, or a NetCDF
//     cube (.nc, .nc4, .cdf).
//
// Returns:
//   - *Scene: The loaded scene, shared with other callers; do not modify.
//   - error: Non-nil if the path cannot be read or decoded.
func (c *Cache) Load(path string) (*Scene, error) {
	c.mu.RLock()
	if sc, ok := c.scenes[path]; ok {
		c.mu.RUnlock()
		return sc, nil
	}
	c.mu.RUnlock()

	sc, err := Open(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.scenes[path] = sc
	c.mu.Unlock()

	return sc, nil
}

// Clear removes all scenes from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.scenes = make(map[string]*Scene)
	c.mu.Unlock()
}

// Evict removes the scene loaded from path. Unknown paths are ignored.
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	delete(c.scenes, path)
	c.mu.Unlock()
}

// Len returns the number of cached scenes.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.scenes)
}

// Open loads a scene without caching, choosing the reader by path.
func Open(path string) (*Scene, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scene: %w", err)
	}
	if st.IsDir() {
		return LoadManifest(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadManifest(path)
	case ".nc", ".nc4", ".cdf":
		return LoadNetCDF(path)
	}
	return nil, fmt.Errorf("unsupported scene format %q (want scene.json, a directory or a NetCDF file)", filepath.Ext(path))
}
