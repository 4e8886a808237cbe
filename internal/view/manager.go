// Package view owns the browser process and the registry of open
// pages. Each page is a "view" addressed by an opaque id; the
// automation layer asks this package for a debuggable target when it
// binds one.
package view

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"

	"drover/internal/automation"
	"drover/internal/cdp"
	"drover/internal/config"
	. "drover/internal/logging"
)

// closeTimeout bounds per-target cleanup during shutdown.
const closeTimeout = 5 * time.Second

// View is one open page.
type View struct {
	ID       string
	TargetID proto.TargetTargetID

	session *cdp.Session
}

// Info is the listing shape for a view.
type Info struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Manager launches (or connects to) the browser lazily and tracks open
// views. Safe for concurrent use.
type Manager struct {
	cfg        config.BrowserConfig
	downloader *Downloader

	mu       sync.Mutex
	conn     *cdp.Conn
	launcher *launcher.Launcher
	views    map[string]*View
}

// NewManager builds a manager from config. Nothing is launched until
// the first view is created.
func NewManager(cfg config.BrowserConfig) *Manager {
	return &Manager{
		cfg:        cfg,
		downloader: NewDownloader(filepath.Join(cfg.Dir, "bin")),
		views:      make(map[string]*View),
	}
}

// cleanupStaleLocks removes lock files a crashed browser left behind.
// The browser refuses to start while they exist.
func cleanupStaleLocks(profileDir string) {
	for _, name := range []string{"SingletonLock", "SingletonCookie", "SingletonSocket"} {
		lockPath := filepath.Join(profileDir, name)
		if _, err := os.Stat(lockPath); err == nil {
			if err := os.Remove(lockPath); err != nil {
				L_warn("view: failed to remove stale lock file", "file", lockPath, "error", err)
			} else {
				L_info("view: removed stale lock file", "file", lockPath)
			}
		}
	}
}

// ensureConn connects to the browser, launching it first when no
// control URL is configured. Callers hold m.mu.
func (m *Manager) ensureConn(ctx context.Context) error {
	if m.conn != nil {
		select {
		case <-m.conn.Done():
			L_debug("view: browser connection lost, reconnecting")
			m.conn = nil
			m.views = make(map[string]*View)
		default:
			return nil
		}
	}

	controlURL := m.cfg.ControlURL
	if controlURL == "" {
		var err error
		controlURL, err = m.launch()
		if err != nil {
			return err
		}
	} else {
		L_info("view: connecting to existing browser", "endpoint", controlURL)
	}

	conn, err := cdp.Connect(ctx, controlURL)
	if err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	m.conn = conn
	return nil
}

func (m *Manager) launch() (string, error) {
	binPath := m.cfg.Bin
	if binPath == "" {
		var err error
		if m.cfg.AutoDownload {
			binPath, err = m.downloader.EnsureBrowser()
		} else {
			binPath, err = m.downloader.FindExistingBrowser()
		}
		if err != nil {
			return "", err
		}
	}

	profileDir := filepath.Join(m.cfg.Dir, "profile")
	if err := os.MkdirAll(profileDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create profile directory: %w", err)
	}
	cleanupStaleLocks(profileDir)

	L_debug("view: launching browser", "bin", binPath, "profileDir", profileDir, "headless", m.cfg.Headless)

	l := launcher.New().
		Bin(binPath).
		UserDataDir(profileDir).
		Headless(m.cfg.Headless).
		Set("disable-dev-shm-usage")

	if m.cfg.WindowWidth > 0 && m.cfg.WindowHeight > 0 {
		l = l.Set("window-size", fmt.Sprintf("%d,%d", m.cfg.WindowWidth, m.cfg.WindowHeight))
	}
	if m.cfg.Stealth {
		l = l.Set("disable-blink-features", "AutomationControlled")
	}
	if m.cfg.NoSandbox {
		l = l.Set("no-sandbox")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("failed to launch browser: %w", err)
	}
	m.launcher = l
	L_info("view: browser launched", "controlURL", controlURL)
	return controlURL, nil
}

// CreateView opens a new page. With a non-empty url the page starts
// there; the url is safety-checked first.
func (m *Manager) CreateView(ctx context.Context, url string) (*View, error) {
	if url != "" {
		if err := ValidateURLSafety(url); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureConn(ctx); err != nil {
		return nil, err
	}

	var res proto.TargetCreateTargetResult
	if err := m.conn.Request(ctx, "", &proto.TargetCreateTarget{URL: url}, &res); err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	v := &View{
		ID:       uuid.NewString()[:8],
		TargetID: res.TargetID,
		session:  cdp.NewSession(m.conn, res.TargetID),
	}

	if m.cfg.Stealth {
		if err := m.injectStealth(ctx, v); err != nil {
			L_warn("view: stealth injection failed", "view", v.ID, "error", err)
		}
	}

	m.views[v.ID] = v
	L_info("view: created", "view", v.ID, "url", url)
	return v, nil
}

// injectStealth installs the anti-detection script so it runs in every
// new document before page scripts. The session stays attached; later
// attaches are no-ops.
func (m *Manager) injectStealth(ctx context.Context, v *View) error {
	if err := v.session.Attach(ctx); err != nil {
		return err
	}
	return v.session.Call(ctx, &proto.PageAddScriptToEvaluateOnNewDocument{Source: stealth.JS}, nil)
}

// ListViews describes every open view, querying the browser for the
// current URL and title of each.
func (m *Manager) ListViews(ctx context.Context) ([]Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]Info, 0, len(m.views))
	for _, v := range m.views {
		info := Info{ID: v.ID}
		var res proto.TargetGetTargetInfoResult
		if err := m.conn.Request(ctx, "", &proto.TargetGetTargetInfo{TargetID: v.TargetID}, &res); err != nil {
			L_debug("view: target info failed", "view", v.ID, "error", err)
		} else if res.TargetInfo != nil {
			info.URL = res.TargetInfo.URL
			info.Title = res.TargetInfo.Title
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// CloseView closes the page and forgets the view.
func (m *Manager) CloseView(ctx context.Context, viewID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.views[viewID]
	if !ok {
		return fmt.Errorf("no such view: %s", viewID)
	}
	v.session.Detach()
	if err := m.conn.Request(ctx, "", &proto.TargetCloseTarget{TargetID: v.TargetID}, nil); err != nil {
		L_warn("view: close target failed", "view", viewID, "error", err)
	}
	delete(m.views, viewID)
	L_info("view: closed", "view", viewID)
	return nil
}

// DebuggableTarget hands out the protocol session for a view so the
// automation layer can bind it.
func (m *Manager) DebuggableTarget(viewID string) (cdp.Target, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.views[viewID]
	if !ok {
		return nil, false
	}
	return v.session, true
}

// ViewMetadata reports the live URL and title of a view.
func (m *Manager) ViewMetadata(ctx context.Context, viewID string) (automation.ViewMeta, bool) {
	m.mu.Lock()
	v, ok := m.views[viewID]
	conn := m.conn
	m.mu.Unlock()
	if !ok || conn == nil {
		return automation.ViewMeta{}, false
	}

	var res proto.TargetGetTargetInfoResult
	if err := conn.Request(ctx, "", &proto.TargetGetTargetInfo{TargetID: v.TargetID}, &res); err != nil {
		L_debug("view: target info failed", "view", viewID, "error", err)
		return automation.ViewMeta{}, false
	}
	if res.TargetInfo == nil {
		return automation.ViewMeta{}, false
	}
	return automation.ViewMeta{URL: res.TargetInfo.URL, Title: res.TargetInfo.Title}, true
}

// Close tears everything down: open views, the connection, and the
// launched browser process.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		for id, v := range m.views {
			if err := m.conn.Request(ctx, "", &proto.TargetCloseTarget{TargetID: v.TargetID}, nil); err != nil {
				L_debug("view: close target during shutdown", "view", id, "error", err)
			}
		}
		m.conn.Close()
		m.conn = nil
	}
	m.views = make(map[string]*View)

	if m.launcher != nil {
		m.launcher.Kill()
		m.launcher = nil
	}
	L_debug("view: manager closed")
}
