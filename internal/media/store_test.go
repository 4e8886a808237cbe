package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"drover/internal/config"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(config.MediaConfig{Dir: t.TempDir(), TTLSec: 60})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestSaveWritesUniqueFiles(t *testing.T) {
	s := testStore(t)

	p1, err := s.Save([]byte("one"), "screenshots", ".png")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	p2, err := s.Save([]byte("two"), "screenshots", ".png")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if p1 == p2 {
		t.Fatalf("two saves produced the same path %s", p1)
	}
	if !strings.HasPrefix(p1, filepath.Join(s.BaseDir(), "screenshots")) {
		t.Errorf("path %s not under the screenshots subdir", p1)
	}
	data, err := os.ReadFile(p1)
	if err != nil || string(data) != "one" {
		t.Errorf("read back = %q (%v)", data, err)
	}
}

func TestSaveRejectsOversize(t *testing.T) {
	s, err := NewStore(config.MediaConfig{Dir: t.TempDir(), MaxSize: 4})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := s.Save([]byte("too big"), "x", ".bin"); err == nil {
		t.Fatal("oversize save succeeded")
	}
}

func TestCleanOldRemovesExpired(t *testing.T) {
	s := testStore(t)

	stale, err := s.Save([]byte("old"), "screenshots", ".png")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	fresh, err := s.Save([]byte("new"), "screenshots", ".png")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, past, past); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if err := s.cleanOld(); err != nil {
		t.Fatalf("cleanOld: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("expired file survived cleanup: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh file removed: %v", err)
	}
}

func TestDetectMIME(t *testing.T) {
	pngHeader := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}
	if got := DetectMIME(pngHeader); got != "image/png" {
		t.Errorf("DetectMIME(png header) = %q", got)
	}
	if got := DetectMIME([]byte("just text")); IsSupported(got) {
		t.Errorf("plain text detected as supported image: %q", got)
	}
}
