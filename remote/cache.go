package remote

import (
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"fortio.org/log"
)

// --- Caching Data Structures ---

// cachedContent is what we remember about one path of a repo at a ref.
type cachedContent struct {
	Found   bool
	Content string // decoded file content, only set when Found
}

// --- End Caching Data Structures ---

// Cache stores GitHub lookups as JSON files, one per (owner, repo, path, ref).
// A disabled Cache never hits and never writes.
type Cache struct {
	dir     string
	enabled bool
}

// DefaultCacheDir returns the directory used when none is given.
func DefaultCacheDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}
	return filepath.Join(userCacheDir, "onefile_cache"), nil
}

// NewCache sets up the cache directory when enabled.
func NewCache(dir string, enabled bool) (*Cache, error) {
	c := &Cache{dir: dir, enabled: enabled}
	if !enabled {
		return c, nil
	}
	log.LogVf("Using cache directory: %s", dir)
	return c, os.MkdirAll(dir, 0o755)
}

// Clear removes the cache directory.
func (c *Cache) Clear() error {
	if c.dir == "" {
		return errors.New("cache directory not initialized")
	}
	log.Infof("Clearing cache directory: %s", c.dir)
	return os.RemoveAll(c.dir)
}

// key generates a filename for the cache based on input parameters
func (c *Cache) key(parts ...string) string {
	h := sha1.New()
	for _, p := range parts {
		io.WriteString(h, p)
		io.WriteString(h, "|") // Separator
	}
	return filepath.Join(c.dir, fmt.Sprintf("%x", h.Sum(nil))+".json")
}

// read attempts to read and unmarshal data from a cache file. Unreadable
// JSON is a miss, not an error.
func (c *Cache) read(key string, target any) (bool, error) {
	if !c.enabled {
		return false, nil
	}
	data, err := os.ReadFile(key)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil // Cache miss - normal
		}
		return false, fmt.Errorf("error reading cache file %s: %w", key, err)
	}
	if err = json.Unmarshal(data, target); err != nil {
		log.Warnf("Error unmarshaling cache file %s, ignoring cache: %v", key, err)
		return false, nil
	}
	return true, nil
}

func (c *Cache) write(key string, data any) error {
	if !c.enabled {
		return nil
	}
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data for cache key %s: %w", key, err)
	}
	if err = os.WriteFile(key, jsonData, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file %s: %w", key, err)
	}
	log.LogVf("Cache write: %s", key)
	return nil
}
