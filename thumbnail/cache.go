// Package thumbnail keeps a flat on-disk cache of video thumbnails.
//
// Catalog normalization registers each remote thumbnail URL under a
// deterministic filename and hands out cache:// references instead. The
// bytes are fetched lazily, the first time a reference is resolved.
package thumbnail

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	ythttp "ytbulk/http"
	"ytbulk/storage"
)

// Scheme prefixes cache references.
const Scheme = "cache://"

// PlaceholderMD5 is the hash of the image YouTube serves while a video's
// real thumbnail is still being generated.
const PlaceholderMD5 = "e2ddfee11ae7edcae257da47f3a78a70"

// ErrPlaceholder is returned by Download when the body is a known placeholder.
var ErrPlaceholder = errors.New("thumbnail: placeholder image")

// Filename is the cache key for one size of one video's thumbnail.
func Filename(videoID, size string, width, height int64) string {
	return fmt.Sprintf("%s_%s_%d_%d.jpg", videoID, size, width, height)
}

// CacheURL returns the cache:// reference for filename.
func CacheURL(filename string) string {
	return Scheme + filename
}

// ParseCacheURL extracts the filename from a cache:// reference.
func ParseCacheURL(ref string) (string, bool) {
	name, ok := strings.CutPrefix(ref, Scheme)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// Cache maps filenames to remote URLs and stores downloaded images in dir.
type Cache struct {
	dir          string
	client       *ythttp.Client
	placeholders map[string]struct{}
	logger       *slog.Logger

	mu       sync.RWMutex
	registry map[string]string

	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithPlaceholderHashes replaces the set of MD5 digests treated as placeholders.
func WithPlaceholderHashes(hashes ...string) Option {
	return func(c *Cache) {
		c.placeholders = make(map[string]struct{}, len(hashes))
		for _, h := range hashes {
			c.placeholders[strings.ToLower(h)] = struct{}{}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a cache rooted at dir. The directory is created on first write.
func New(dir string, client *ythttp.Client, opts ...Option) *Cache {
	c := &Cache{
		dir:          dir,
		client:       client,
		placeholders: map[string]struct{}{PlaceholderMD5: {}},
		logger:       slog.Default(),
		registry:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Register records the remote URL for filename and returns its cache reference.
func (c *Cache) Register(filename, remoteURL string) string {
	c.mu.Lock()
	c.registry[filename] = remoteURL
	c.mu.Unlock()
	return CacheURL(filename)
}

// Reset forgets every registered URL. Files on disk are kept.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.registry = make(map[string]string)
	c.mu.Unlock()
}

// RemoteURL returns the URL registered for filename.
func (c *Cache) RemoteURL(filename string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.registry[filename]
	return u, ok
}

// Resolve returns the local path of filename. A file already on disk is
// returned without any network call. Otherwise the registered remote URL,
// if any, is downloaded first. The boolean is false when no file is
// available; failures are logged, not returned.
func (c *Cache) Resolve(ctx context.Context, filename string) (string, bool) {
	path, err := c.path(filename)
	if err != nil {
		c.logger.Warn("rejecting thumbnail name", "filename", filename, "err", err)
		return "", false
	}
	if _, err := os.Stat(path); err == nil {
		return path, true
	}

	remote, ok := c.RemoteURL(filename)
	if !ok {
		return "", false
	}
	if err := c.Download(ctx, remote, filename); err != nil {
		if errors.Is(err, ErrPlaceholder) {
			c.logger.Debug("thumbnail not ready", "filename", filename)
		} else {
			c.logger.Warn("thumbnail download failed", "filename", filename, "url", remote, "err", err)
		}
		return "", false
	}
	return path, true
}

// Download fetches url and stores it as filename. Placeholder images are
// discarded with ErrPlaceholder and nothing is written, so a later Resolve
// tries again. Concurrent downloads of the same filename share one request.
func (c *Cache) Download(ctx context.Context, url, filename string) error {
	path, err := c.path(filename)
	if err != nil {
		return err
	}

	_, err, _ = c.group.Do(filename, func() (any, error) {
		resp, err := c.client.Get(ctx, url)
		if err != nil {
			return nil, err
		}

		sum := md5.Sum(resp.Body)
		if _, ok := c.placeholders[hex.EncodeToString(sum[:])]; ok {
			return nil, ErrPlaceholder
		}

		if err := storage.WriteFileAtomic(path, resp.Body, 0o644); err != nil {
			return nil, &storage.StorageError{Op: "write", Entity: "thumbnail", Path: path, Err: err}
		}
		return nil, nil
	})
	return err
}

// Clear deletes every file in the cache directory. Registered URLs are kept,
// so cleared thumbnails are downloaded again on the next Resolve.
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &storage.StorageError{Op: "read", Entity: "thumbnail", Path: c.dir, Err: err}
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(c.dir, e.Name())
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return &storage.StorageError{Op: "delete", Entity: "thumbnail", Path: p, Err: err}
		}
	}
	c.logger.Info("thumbnail cache cleared", "dir", c.dir, "files", len(entries))
	return nil
}

// path maps filename into the cache directory. Names must be a single
// path element.
func (c *Cache) path(filename string) (string, error) {
	if filename == "" || filename == "." || filename == ".." ||
		filename != filepath.Base(filename) || strings.ContainsAny(filename, `/\`) {
		return "", fmt.Errorf("thumbnail: invalid filename %q", filename)
	}
	return filepath.Join(c.dir, filename), nil
}
