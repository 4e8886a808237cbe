package view

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-rod/rod/lib/launcher"

	. "drover/internal/logging"
)

// Downloader manages the local Chromium binary.
type Downloader struct {
	binDir  string
	mu      sync.Mutex
	binPath string
}

func NewDownloader(binDir string) *Downloader {
	return &Downloader{binDir: binDir}
}

// EnsureBrowser downloads Chromium if it is not present and returns
// the binary path. Safe to call concurrently; a no-op once downloaded.
func (d *Downloader) EnsureBrowser() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.binPath != "" {
		if _, err := os.Stat(d.binPath); err == nil {
			return d.binPath, nil
		}
		d.binPath = ""
	}

	if err := os.MkdirAll(d.binDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create browser bin directory: %w", err)
	}

	L_debug("view: ensuring browser is available", "binDir", d.binDir)

	b := launcher.NewBrowser()
	b.RootDir = d.binDir

	binPath, err := b.Get()
	if err != nil {
		return "", fmt.Errorf("failed to download browser: %w", err)
	}

	d.binPath = binPath
	L_info("view: browser ready", "path", binPath)
	return binPath, nil
}

// FindExistingBrowser locates an already downloaded binary without
// triggering a download.
func (d *Downloader) FindExistingBrowser() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.binPath != "" {
		if _, err := os.Stat(d.binPath); err == nil {
			return d.binPath, nil
		}
	}

	entries, err := os.ReadDir(d.binDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("browser not downloaded: bin directory does not exist")
		}
		return "", fmt.Errorf("failed to read bin directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidates := []string{
			filepath.Join(d.binDir, entry.Name(), "chrome"),
			filepath.Join(d.binDir, entry.Name(), "chrome.exe"),
			filepath.Join(d.binDir, entry.Name(), "Chromium.app", "Contents", "MacOS", "Chromium"),
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				d.binPath = candidate
				return candidate, nil
			}
		}
	}

	return "", fmt.Errorf("browser not downloaded: no chromium binary found in %s", d.binDir)
}
