// Package maps resolves map references to .SC2Map files and loads their
// bytes. Games are created with map data rather than a path: the engine's
// own path handling mangles anything relative, so the bytes go on the wire.
package maps

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const mapExtension = ".SC2Map"

const (
	cacheTTL     = 15 * time.Minute
	cacheCleanup = 30 * time.Minute
)

// Loader finds and reads map files. Loaded bytes are cached with a TTL so
// repeat matches on the same map skip the disk.
type Loader struct {
	mapsDir string
	cache   *cache.Cache
	logger  zerolog.Logger
}

// NewLoader creates a loader rooted at the install's Maps directory.
// mapsDir may be empty when every map is referenced by absolute path.
func NewLoader(mapsDir string) *Loader {
	return &Loader{
		mapsDir: mapsDir,
		cache:   cache.New(cacheTTL, cacheCleanup),
		logger:  log.With().Str("component", "maps").Logger(),
	}
}

// Resolve turns a map reference into an absolute file path. Absolute paths
// pass through; names, with or without the .SC2Map extension, are looked up
// under the Maps directory.
func (l *Loader) Resolve(name string) (string, error) {
	if name == "" {
		return "", errors.New("map name is empty")
	}

	path := name
	if !strings.EqualFold(filepath.Ext(path), mapExtension) {
		path += mapExtension
	}
	if !filepath.IsAbs(path) {
		if l.mapsDir == "" {
			return "", fmt.Errorf("map %q is relative and no maps directory is configured", name)
		}
		path = filepath.Join(l.mapsDir, path)
	}

	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("map %q not found at %s: %w", name, path, err)
	}
	return path, nil
}

// Load resolves the map and returns its file content, from cache when the
// same map was loaded recently.
func (l *Loader) Load(name string) ([]byte, error) {
	path, err := l.Resolve(name)
	if err != nil {
		return nil, err
	}

	if cached, found := l.cache.Get(path); found {
		if data, ok := cached.([]byte); ok {
			return data, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read map %s: %w", path, err)
	}
	l.cache.Set(path, data, cache.DefaultExpiration)

	l.logger.Debug().Str("map", path).Int("bytes", len(data)).Msg("map loaded")
	return data, nil
}

// CachedMaps returns how many map payloads the cache currently holds.
func (l *Loader) CachedMaps() int {
	return l.cache.ItemCount()
}
