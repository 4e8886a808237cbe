// Package automation drives a debuggable page over the devtools
// protocol: accessibility snapshots with opaque element ids, element
// interaction, network and console monitoring, screenshots, script
// evaluation, and polling waits. All state hangs off a Context bound
// to at most one view at a time.
package automation

import (
	"context"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"drover/internal/cdp"
	. "drover/internal/logging"
)

// ViewMeta is the identity of a view as reported by its owner.
type ViewMeta struct {
	URL   string
	Title string
}

// ViewSource resolves view ids to attachable protocol targets. The
// view registry implements this.
type ViewSource interface {
	DebuggableTarget(viewID string) (cdp.Target, bool)
	ViewMetadata(ctx context.Context, viewID string) (ViewMeta, bool)
}

// Context is a stateful automation session over one active view.
// Switching views tears down every per-view accumulation (snapshot,
// network history, console history, pending dialog) before the new
// binding observes anything.
//
// Context methods are not safe for concurrent use; the event router
// feeding the monitors is the only concurrent writer and is isolated
// behind the monitors' own lock.
type Context struct {
	views ViewSource

	activeViewID string
	target       cdp.Target
	snapshot     *Snapshot
	monitors     *monitors

	networkWanted bool
	consoleWanted bool
}

// NewContext returns an unbound Context. Every page operation fails
// until SetActiveView succeeds.
func NewContext(views ViewSource) *Context {
	return &Context{
		views:    views,
		monitors: newMonitors(),
	}
}

// ActiveViewID returns the bound view id, or "" when unbound.
func (c *Context) ActiveViewID() string {
	return c.activeViewID
}

// SetActiveView rebinds the context to viewID. The old binding is torn
// down first; teardown failures are logged and swallowed since the old
// view may already be gone. Rebinding to the already-active view is a
// no-op.
func (c *Context) SetActiveView(ctx context.Context, viewID string) error {
	if viewID == c.activeViewID && c.target != nil {
		return nil
	}

	target, ok := c.views.DebuggableTarget(viewID)
	if !ok {
		return errNoActiveView()
	}

	c.teardown(ctx)

	if err := target.Attach(ctx); err != nil {
		return errCommandFailed(err)
	}
	target.SetRouter(c.monitors.handleEvent)

	// Page stays enabled for the whole binding so dialog events are
	// never missed, and the accessibility domain backs snapshots.
	if err := target.Call(ctx, &proto.PageEnable{}, nil); err != nil {
		target.ClearRouter()
		target.Detach()
		return errCommandFailed(err)
	}
	if err := target.Call(ctx, &proto.AccessibilityEnable{}, nil); err != nil {
		L_debug("accessibility enable failed: %v", err)
	}

	c.activeViewID = viewID
	c.target = target

	// Monitor toggles survive binding switches; re-arm them on the
	// new session.
	if c.networkWanted {
		if err := c.SetNetworkMonitoring(ctx, true); err != nil {
			L_warn("re-enabling network monitoring failed: %v", err)
		}
	}
	if c.consoleWanted {
		if err := c.SetConsoleMonitoring(ctx, true); err != nil {
			L_warn("re-enabling console monitoring failed: %v", err)
		}
	}
	return nil
}

// ActiveViewMeta reports the bound view's current URL and title.
func (c *Context) ActiveViewMeta(ctx context.Context) (ViewMeta, error) {
	if c.activeViewID == "" {
		return ViewMeta{}, errNoActiveView()
	}
	meta, ok := c.views.ViewMetadata(ctx, c.activeViewID)
	if !ok {
		return ViewMeta{}, errNoActiveView()
	}
	return meta, nil
}

// Dispose releases the binding. Safe to call repeatedly.
func (c *Context) Dispose(ctx context.Context) {
	c.teardown(ctx)
}

// teardown unwinds the current binding in dependency order. Every step
// tolerates failure: the target may have navigated away or closed.
func (c *Context) teardown(ctx context.Context) {
	if c.target != nil {
		c.target.ClearRouter()
		if c.monitors.networkMonitoring() {
			if err := c.target.Call(ctx, &proto.NetworkDisable{}, nil); err != nil {
				L_debug("network disable during teardown: %v", err)
			}
		}
		if c.monitors.consoleMonitoring() {
			if err := c.target.Call(ctx, &proto.RuntimeDisable{}, nil); err != nil {
				L_debug("runtime disable during teardown: %v", err)
			}
		}
		if err := c.target.Call(ctx, &proto.PageDisable{}, nil); err != nil {
			L_debug("page disable during teardown: %v", err)
		}
		c.target.Detach()
	}
	c.target = nil
	c.activeViewID = ""
	c.snapshot = nil
	c.monitors.clear()
	c.monitors.setNetworkMonitoring(false)
	c.monitors.setConsoleMonitoring(false)
}

// boundTarget gates every per-view operation.
func (c *Context) boundTarget() (cdp.Target, error) {
	if c.target == nil {
		return nil, errNoActiveView()
	}
	return c.target, nil
}

// call runs one protocol command against the bound target, mapping
// protocol failures into the command-failed kind.
func (c *Context) call(ctx context.Context, req proto.Request, res interface{}) error {
	target, err := c.boundTarget()
	if err != nil {
		return err
	}
	if err := target.Call(ctx, req, res); err != nil {
		return errCommandFailed(err)
	}
	return nil
}

// SetNetworkMonitoring toggles network capture. Setting the current
// state again is a no-op, so a repeated enable never re-issues the
// protocol command. Disabling keeps the history already gathered; use
// ClearNetworkRequests to drop it.
func (c *Context) SetNetworkMonitoring(ctx context.Context, enabled bool) error {
	if _, err := c.boundTarget(); err != nil {
		return err
	}
	if enabled == c.monitors.networkMonitoring() {
		c.networkWanted = enabled
		return nil
	}
	if enabled {
		if err := c.call(ctx, &proto.NetworkEnable{}, nil); err != nil {
			return err
		}
	} else {
		if err := c.call(ctx, &proto.NetworkDisable{}, nil); err != nil {
			return err
		}
	}
	c.networkWanted = enabled
	c.monitors.setNetworkMonitoring(enabled)
	return nil
}

// SetConsoleMonitoring toggles console capture. Setting the current
// state again is a no-op; that matters for enable in particular, since
// the runtime domain replays buffered messages on every Runtime.enable
// and a duplicate enable would duplicate the history.
func (c *Context) SetConsoleMonitoring(ctx context.Context, enabled bool) error {
	if _, err := c.boundTarget(); err != nil {
		return err
	}
	if enabled == c.monitors.consoleMonitoring() {
		c.consoleWanted = enabled
		return nil
	}
	if enabled {
		if err := c.call(ctx, &proto.RuntimeEnable{}, nil); err != nil {
			return err
		}
	} else {
		if err := c.call(ctx, &proto.RuntimeDisable{}, nil); err != nil {
			return err
		}
	}
	c.consoleWanted = enabled
	c.monitors.setConsoleMonitoring(enabled)
	return nil
}

// NetworkRequests returns the accumulated network history.
func (c *Context) NetworkRequests() ([]NetworkRequest, error) {
	if _, err := c.boundTarget(); err != nil {
		return nil, err
	}
	return c.monitors.Requests(), nil
}

// ClearNetworkRequests drops the network history without touching the
// monitoring toggle.
func (c *Context) ClearNetworkRequests() error {
	if _, err := c.boundTarget(); err != nil {
		return err
	}
	c.monitors.mu.Lock()
	c.monitors.requests = nil
	c.monitors.byProtoID = make(map[proto.NetworkRequestID]*NetworkRequest)
	c.monitors.netSeq = 0
	c.monitors.mu.Unlock()
	return nil
}

// ConsoleMessages returns the captured console history, oldest first.
func (c *Context) ConsoleMessages() ([]ConsoleMessage, error) {
	if _, err := c.boundTarget(); err != nil {
		return nil, err
	}
	return c.monitors.Messages(), nil
}

// ClearConsoleMessages drops the console history.
func (c *Context) ClearConsoleMessages() error {
	if _, err := c.boundTarget(); err != nil {
		return err
	}
	c.monitors.mu.Lock()
	c.monitors.messages = nil
	c.monitors.msgSeq = 0
	c.monitors.mu.Unlock()
	return nil
}

// PendingDialog returns the open native dialog, or nil when none is
// pending.
func (c *Context) PendingDialog() (*DialogInfo, error) {
	if _, err := c.boundTarget(); err != nil {
		return nil, err
	}
	return c.monitors.Dialog(), nil
}

// HandleDialog accepts or dismisses the pending dialog. promptText is
// only meaningful when accepting a prompt dialog. The pending slot is
// cleared whether or not the resolution command lands: dialogs are
// modal and fire-and-forget, so a failed resolution is logged rather
// than retried or surfaced.
func (c *Context) HandleDialog(ctx context.Context, accept bool, promptText string) error {
	if _, err := c.boundTarget(); err != nil {
		return err
	}
	if err := c.call(ctx, &proto.PageHandleJavaScriptDialog{
		Accept:     accept,
		PromptText: promptText,
	}, nil); err != nil {
		L_warn("dialog resolution failed: %v", err)
	}
	c.monitors.clearDialog()
	return nil
}

// Navigate drives the bound view to url and waits for the load event,
// bounded by timeout. Navigation clears the element snapshot since
// every id refers to the old document.
func (c *Context) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if _, err := c.boundTarget(); err != nil {
		return err
	}
	loaded := make(chan struct{}, 1)
	prev := c.swapRouterForLoad(loaded)
	defer c.restoreRouter(prev)

	var res proto.PageNavigateResult
	if err := c.call(ctx, &proto.PageNavigate{URL: url}, &res); err != nil {
		return err
	}
	if res.ErrorText != "" {
		return errCommandFailed(errNavigation(res.ErrorText))
	}
	c.snapshot = nil

	select {
	case <-loaded:
	case <-time.After(timeout):
		L_debug("load event not observed within %s, continuing", timeout)
	case <-ctx.Done():
		return errCommandFailed(ctx.Err())
	}
	return nil
}

// Reload reloads the bound view and invalidates the snapshot.
func (c *Context) Reload(ctx context.Context, ignoreCache bool) error {
	if err := c.call(ctx, &proto.PageReload{IgnoreCache: ignoreCache}, nil); err != nil {
		return err
	}
	c.snapshot = nil
	return nil
}

// swapRouterForLoad layers a load-event watcher over the monitor
// router for the duration of a navigation.
func (c *Context) swapRouterForLoad(loaded chan struct{}) func(cdp.Event) {
	prev := c.monitors.handleEvent
	c.target.SetRouter(func(ev cdp.Event) {
		if _, ok := ev.(cdp.LoadFired); ok {
			select {
			case loaded <- struct{}{}:
			default:
			}
			return
		}
		prev(ev)
	})
	return prev
}

func (c *Context) restoreRouter(prev func(cdp.Event)) {
	if c.target != nil {
		c.target.SetRouter(prev)
	}
}
