package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"drover/internal/config"
	. "drover/internal/logging"
)

const (
	// DefaultTTL is how long a saved capture lives on disk.
	DefaultTTL = 10 * time.Minute

	// cleanupIntervalDivisor: cleanup runs at half the TTL, with a one
	// minute floor.
	cleanupIntervalDivisor = 2
)

// Store keeps captures in a directory tree and evicts them after a
// TTL. Safe for concurrent saves.
type Store struct {
	baseDir string
	ttl     time.Duration
	maxSize int64
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewStore creates a Store from config, expanding ~ and creating the
// base directory.
func NewStore(cfg config.MediaConfig) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "~/.drover/media"
	}

	ttl := time.Duration(cfg.TTLSec) * time.Second
	if ttl == 0 {
		ttl = DefaultTTL
	}

	maxSize := int64(cfg.MaxSize)
	if maxSize == 0 {
		maxSize = MaxBytes
	}

	if strings.HasPrefix(dir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, dir[1:])
	}
	dir = filepath.Clean(dir)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	store := &Store{
		baseDir: dir,
		ttl:     ttl,
		maxSize: maxSize,
		stopCh:  make(chan struct{}),
	}

	L_debug("media: store initialized", "dir", dir, "ttl", ttl.String(), "maxSize", maxSize)
	return store, nil
}

// Start launches the background cleanup loop.
func (s *Store) Start() {
	cleanupInterval := s.ttl / cleanupIntervalDivisor
	if cleanupInterval < time.Minute {
		cleanupInterval = time.Minute
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		if err := s.cleanOld(); err != nil {
			L_warn("media: initial cleanup error", "error", err)
		}

		for {
			select {
			case <-ticker.C:
				if err := s.cleanOld(); err != nil {
					L_warn("media: cleanup error", "error", err)
				}
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Close stops the cleanup loop and waits for it.
func (s *Store) Close() {
	close(s.stopCh)
	s.wg.Wait()
	L_debug("media: store closed")
}

// Save writes data under subdir with a generated filename and the
// given extension, returning the absolute path.
func (s *Store) Save(data []byte, subdir, ext string) (string, error) {
	if int64(len(data)) > s.maxSize {
		return "", fmt.Errorf("file size %d exceeds limit %d", len(data), s.maxSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.baseDir, subdir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create subdirectory: %w", err)
	}

	filename := uuid.New().String()[:8] + ext
	absPath := filepath.Join(dir, filename)

	if err := os.WriteFile(absPath, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	L_debug("media: saved file", "path", absPath, "size", len(data))
	return absPath, nil
}

// SaveImage optimizes a capture and saves it, returning the path and
// the processed image.
func (s *Store) SaveImage(data []byte, subdir string) (string, *ImageData, error) {
	img, err := Optimize(data)
	if err != nil {
		return "", nil, err
	}
	path, err := s.Save(img.Data, subdir, ExtensionFor(img.MimeType))
	if err != nil {
		return "", nil, err
	}
	return path, img, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// cleanOld removes files past their TTL.
func (s *Store) cleanOld() error {
	now := time.Now()
	cutoff := now.Add(-s.ttl)
	removed := 0

	err := filepath.Walk(s.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				L_trace("media: failed to remove expired file", "path", path, "error", err)
			} else {
				removed++
			}
		}
		return nil
	})

	if removed > 0 {
		L_debug("media: cleanup completed", "removed", removed)
	}
	return err
}
