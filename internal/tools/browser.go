package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"drover/internal/automation"
	"drover/internal/media"
	"drover/internal/view"
)

const (
	defaultNavigateTimeout = 30 * time.Second
	defaultWaitTimeout     = 10 * time.Second
)

// BrowserTool drives pages through the automation context: views,
// snapshots, interaction, monitoring, capture and waits, all behind
// one action-dispatch surface.
type BrowserTool struct {
	views *view.Manager
	auto  *automation.Context
	store *media.Store
}

// NewBrowserTool wires the tool to a view manager and a media store
// for screenshot output.
func NewBrowserTool(views *view.Manager, store *media.Store) *BrowserTool {
	return &BrowserTool{
		views: views,
		auto:  automation.NewContext(views),
		store: store,
	}
}

func (t *BrowserTool) Name() string {
	return "browser"
}

func (t *BrowserTool) Description() string {
	return "Controls a real browser: open and switch views, snapshot the page as interactive elements, " +
		"click/fill/select/drag by element id, monitor network and console activity, handle dialogs, " +
		"take screenshots, evaluate JavaScript, extract readable text, and wait for content."
}

func (t *BrowserTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []string{
					"open", "views", "focus", "close",
					"navigate", "reload", "snapshot", "text",
					"click", "hover", "fill", "select", "drag", "press", "type",
					"screenshot", "eval",
					"network", "console", "dialog",
					"wait_text", "wait_element",
				},
				"description": "The operation to perform",
			},
			"url":        map[string]any{"type": "string", "description": "Target URL for open/navigate"},
			"viewId":     map[string]any{"type": "string", "description": "View id for focus/close"},
			"element":    map[string]any{"type": "string", "description": "Element id from the last snapshot (e.g. e3)"},
			"to":         map[string]any{"type": "string", "description": "Drop target element id for drag"},
			"value":      map[string]any{"type": "string", "description": "Value for fill, or option label for select"},
			"text":       map[string]any{"type": "string", "description": "Text for type/wait_text"},
			"key":        map[string]any{"type": "string", "description": "Key combination for press (e.g. Enter, Ctrl+a)"},
			"dblClick":   map[string]any{"type": "boolean", "description": "Issue a double click instead of a single click"},
			"selector":   map[string]any{"type": "string", "description": "CSS selector for wait_element"},
			"script":     map[string]any{"type": "string", "description": "JavaScript for eval"},
			"args":       map[string]any{"type": "array", "description": "Arguments exposed to the script"},
			"verbose":    map[string]any{"type": "boolean", "description": "Include non-interactive nodes in snapshot"},
			"format":     map[string]any{"type": "string", "enum": []string{"png", "jpeg", "webp"}, "description": "Screenshot encoding"},
			"quality":    map[string]any{"type": "integer", "description": "Screenshot quality for lossy formats"},
			"fullPage":   map[string]any{"type": "boolean", "description": "Capture the whole document"},
			"enable":     map[string]any{"type": "boolean", "description": "Toggle for network/console monitoring"},
			"clear":      map[string]any{"type": "boolean", "description": "Clear captured network/console history"},
			"accept":     map[string]any{"type": "boolean", "description": "Accept (true) or dismiss (false) the pending dialog"},
			"promptText": map[string]any{"type": "string", "description": "Text to enter when accepting a prompt dialog"},
			"timeoutSec": map[string]any{"type": "integer", "description": "Timeout in seconds for navigate/waits"},
		},
		"required": []string{"action"},
	}
}

type browserParams struct {
	Action     string        `json:"action"`
	URL        string        `json:"url"`
	ViewID     string        `json:"viewId"`
	Element    string        `json:"element"`
	To         string        `json:"to"`
	Value      string        `json:"value"`
	Text       string        `json:"text"`
	Key        string        `json:"key"`
	DblClick   bool          `json:"dblClick"`
	Selector   string        `json:"selector"`
	Script     string        `json:"script"`
	Args       []interface{} `json:"args"`
	Verbose    bool          `json:"verbose"`
	Format     string        `json:"format"`
	Quality    int           `json:"quality"`
	FullPage   bool          `json:"fullPage"`
	Enable     *bool         `json:"enable"`
	Clear      bool          `json:"clear"`
	Accept     *bool         `json:"accept"`
	PromptText string        `json:"promptText"`
	TimeoutSec int           `json:"timeoutSec"`
}

func (p browserParams) timeout(fallback time.Duration) time.Duration {
	if p.TimeoutSec > 0 {
		return time.Duration(p.TimeoutSec) * time.Second
	}
	return fallback
}

// Execute dispatches one browser action. Automation failures come
// back as classified results, not Go errors.
func (t *BrowserTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var p browserParams
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("invalid browser input: %w", err)
	}

	switch p.Action {
	case "open":
		return t.open(ctx, p)
	case "views":
		return t.listViews(ctx)
	case "focus":
		return t.focus(ctx, p)
	case "close":
		return t.close(ctx, p)
	case "navigate":
		return t.navigate(ctx, p)
	case "reload":
		return result(t.auto.Reload(ctx, false), "reloaded")
	case "snapshot":
		return t.snapshot(ctx, p)
	case "text":
		return t.pageText(ctx)
	case "click":
		if p.DblClick {
			return result(t.auto.DoubleClick(ctx, p.Element), "double-clicked "+p.Element)
		}
		return result(t.auto.Click(ctx, p.Element), "clicked "+p.Element)
	case "hover":
		return result(t.auto.Hover(ctx, p.Element), "hovering "+p.Element)
	case "fill":
		return result(t.auto.Fill(ctx, p.Element, p.Value), "filled "+p.Element)
	case "select":
		return result(t.auto.SelectOption(ctx, p.Element, p.Value), fmt.Sprintf("selected %q in %s", p.Value, p.Element))
	case "drag":
		return result(t.auto.Drag(ctx, p.Element, p.To), fmt.Sprintf("dragged %s to %s", p.Element, p.To))
	case "press":
		return result(t.auto.PressKey(ctx, p.Key), "pressed "+p.Key)
	case "type":
		return result(t.auto.TypeText(ctx, p.Text), "typed text")
	case "screenshot":
		return t.screenshot(ctx, p)
	case "eval":
		return t.eval(ctx, p)
	case "network":
		return t.network(ctx, p)
	case "console":
		return t.console(ctx, p)
	case "dialog":
		return t.dialog(ctx, p)
	case "wait_text":
		return result(t.auto.WaitForText(ctx, p.Text, p.timeout(defaultWaitTimeout)), fmt.Sprintf("text %q present", p.Text))
	case "wait_element":
		return result(t.auto.WaitForElement(ctx, p.Selector, p.timeout(defaultWaitTimeout)), fmt.Sprintf("element %q present", p.Selector))
	default:
		return nil, fmt.Errorf("unknown browser action: %s", p.Action)
	}
}

// result maps an automation error into a classified failure, or wraps
// the success message.
func result(err error, okMsg string) (*Result, error) {
	if err != nil {
		return failureFrom(err), nil
	}
	return Text(okMsg), nil
}

func failureFrom(err error) *Result {
	kind := automation.KindOf(err)
	if kind == 0 {
		return Failure("error", err.Error())
	}
	return Failure(kind.String(), err.Error())
}

func (t *BrowserTool) open(ctx context.Context, p browserParams) (*Result, error) {
	v, err := t.views.CreateView(ctx, p.URL)
	if err != nil {
		return failureFrom(err), nil
	}
	if err := t.auto.SetActiveView(ctx, v.ID); err != nil {
		return failureFrom(err), nil
	}
	return &Result{OK: true, Message: "opened view " + v.ID, Data: map[string]string{"viewId": v.ID}}, nil
}

func (t *BrowserTool) listViews(ctx context.Context) (*Result, error) {
	infos, err := t.views.ListViews(ctx)
	if err != nil {
		return failureFrom(err), nil
	}
	var sb strings.Builder
	for _, info := range infos {
		marker := " "
		if info.ID == t.auto.ActiveViewID() {
			marker = "*"
		}
		fmt.Fprintf(&sb, "%s %s  %s  %s\n", marker, info.ID, info.URL, info.Title)
	}
	return &Result{OK: true, Message: sb.String(), Data: infos}, nil
}

func (t *BrowserTool) focus(ctx context.Context, p browserParams) (*Result, error) {
	return result(t.auto.SetActiveView(ctx, p.ViewID), "focused view "+p.ViewID)
}

func (t *BrowserTool) close(ctx context.Context, p browserParams) (*Result, error) {
	viewID := p.ViewID
	if viewID == "" {
		viewID = t.auto.ActiveViewID()
	}
	if viewID == "" {
		return Failure(automation.KindNoActiveView.String(), "no view to close"), nil
	}
	if viewID == t.auto.ActiveViewID() {
		t.auto.Dispose(ctx)
	}
	if err := t.views.CloseView(ctx, viewID); err != nil {
		return failureFrom(err), nil
	}
	return Text("closed view " + viewID), nil
}

func (t *BrowserTool) navigate(ctx context.Context, p browserParams) (*Result, error) {
	if err := view.ValidateURLSafety(p.URL); err != nil {
		return Failure("blocked", err.Error()), nil
	}
	if err := t.auto.Navigate(ctx, p.URL, p.timeout(defaultNavigateTimeout)); err != nil {
		return failureFrom(err), nil
	}
	return Text("navigated to " + p.URL), nil
}

func (t *BrowserTool) snapshot(ctx context.Context, p browserParams) (*Result, error) {
	snap, err := t.auto.CaptureSnapshot(ctx, p.Verbose)
	if err != nil {
		return failureFrom(err), nil
	}
	meta, err := t.auto.ActiveViewMeta(ctx)
	header := ""
	if err == nil {
		header = fmt.Sprintf("%s — %s\n", meta.URL, meta.Title)
	}
	return Text(header + snap.Format()), nil
}

func (t *BrowserTool) pageText(ctx context.Context) (*Result, error) {
	content, err := t.auto.PageText(ctx)
	if err != nil {
		return failureFrom(err), nil
	}
	var sb strings.Builder
	if content.Title != "" {
		sb.WriteString(content.Title + "\n")
	}
	if content.Byline != "" {
		sb.WriteString(content.Byline + "\n")
	}
	sb.WriteString("\n" + content.Text)
	return Text(sb.String()), nil
}

func (t *BrowserTool) screenshot(ctx context.Context, p browserParams) (*Result, error) {
	data, err := t.auto.CaptureScreenshot(ctx, automation.ScreenshotOptions{
		Format:    p.Format,
		Quality:   p.Quality,
		FullPage:  p.FullPage,
		ElementID: p.Element,
	})
	if err != nil {
		return failureFrom(err), nil
	}
	path, img, err := t.store.SaveImage(data, "screenshots")
	if err != nil {
		return Failure("error", "failed to store screenshot: "+err.Error()), nil
	}
	return &Result{
		OK:      true,
		Message: "screenshot saved to " + path,
		Data: map[string]interface{}{
			"path":     path,
			"mimeType": img.MimeType,
			"width":    img.Width,
			"height":   img.Height,
			"bytes":    img.Size(),
		},
	}, nil
}

func (t *BrowserTool) eval(ctx context.Context, p browserParams) (*Result, error) {
	value, err := t.auto.EvaluateScript(ctx, p.Script, p.Args)
	if err != nil {
		return failureFrom(err), nil
	}
	encoded, jsonErr := json.MarshalIndent(value, "", "  ")
	if jsonErr != nil {
		encoded = []byte(fmt.Sprintf("%v", value))
	}
	return &Result{OK: true, Message: string(encoded), Data: value}, nil
}

func (t *BrowserTool) network(ctx context.Context, p browserParams) (*Result, error) {
	if p.Enable != nil {
		if err := t.auto.SetNetworkMonitoring(ctx, *p.Enable); err != nil {
			return failureFrom(err), nil
		}
		if *p.Enable {
			return Text("network monitoring enabled"), nil
		}
		return Text("network monitoring disabled"), nil
	}
	if p.Clear {
		if err := t.auto.ClearNetworkRequests(); err != nil {
			return failureFrom(err), nil
		}
		return Text("network history cleared"), nil
	}

	reqs, err := t.auto.NetworkRequests()
	if err != nil {
		return failureFrom(err), nil
	}
	var sb strings.Builder
	for _, r := range reqs {
		status := fmt.Sprintf("%d", r.Status)
		if r.Error != "" {
			status = r.Error
		} else if r.Status == 0 {
			status = "pending"
		}
		fmt.Fprintf(&sb, "%s  %-6s %s  %s\n", r.ID, r.Method, r.URL, status)
	}
	return &Result{OK: true, Message: sb.String(), Data: reqs}, nil
}

func (t *BrowserTool) console(ctx context.Context, p browserParams) (*Result, error) {
	if p.Enable != nil {
		if err := t.auto.SetConsoleMonitoring(ctx, *p.Enable); err != nil {
			return failureFrom(err), nil
		}
		if *p.Enable {
			return Text("console monitoring enabled"), nil
		}
		return Text("console monitoring disabled"), nil
	}
	if p.Clear {
		if err := t.auto.ClearConsoleMessages(); err != nil {
			return failureFrom(err), nil
		}
		return Text("console history cleared"), nil
	}

	msgs, err := t.auto.ConsoleMessages()
	if err != nil {
		return failureFrom(err), nil
	}
	var sb strings.Builder
	for _, m := range msgs {
		location := ""
		if m.URL != "" {
			location = fmt.Sprintf("  (%s:%d)", m.URL, m.Line)
		}
		fmt.Fprintf(&sb, "[%s] %s%s\n", m.Type, m.Text, location)
	}
	return &Result{OK: true, Message: sb.String(), Data: msgs}, nil
}

func (t *BrowserTool) dialog(ctx context.Context, p browserParams) (*Result, error) {
	if p.Accept == nil {
		d, err := t.auto.PendingDialog()
		if err != nil {
			return failureFrom(err), nil
		}
		if d == nil {
			return Text("no pending dialog"), nil
		}
		return &Result{OK: true, Message: fmt.Sprintf("%s: %s", d.Type, d.Message), Data: d}, nil
	}
	if err := t.auto.HandleDialog(ctx, *p.Accept, p.PromptText); err != nil {
		return failureFrom(err), nil
	}
	if *p.Accept {
		return Text("dialog accepted"), nil
	}
	return Text("dialog dismissed"), nil
}

// Automation returns the underlying automation context, for callers
// that drive operations directly.
func (t *BrowserTool) Automation() *automation.Context {
	return t.auto
}
