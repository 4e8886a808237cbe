package automation

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"drover/internal/cdp"
)

// maxConsoleHistory bounds the console ring buffer; the oldest entries
// are evicted once the cap is exceeded.
const maxConsoleHistory = 1000

// NetworkRequest is one observed network exchange. It is created on
// request start and patched in place when the response or failure
// arrives.
type NetworkRequest struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	ResourceType    string            `json:"resourceType,omitempty"`
	RequestHeaders  map[string]string `json:"requestHeaders,omitempty"`
	PostData        string            `json:"postData,omitempty"`
	Status          int               `json:"status,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	MimeType        string            `json:"mimeType,omitempty"`
	RequestTime     time.Time         `json:"requestTime"`
	ResponseTime    time.Time         `json:"responseTime,omitzero"`
	Duration        time.Duration     `json:"duration,omitempty"`
	Error           string            `json:"error,omitempty"`

	start proto.MonotonicTime
}

// ConsoleMessage is one captured console API call.
type ConsoleMessage struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Args      []string  `json:"args,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url,omitempty"`
	Line      int       `json:"line,omitempty"`
}

// DialogInfo describes the pending native dialog, if any. Dialogs are
// modal, so at most one is pending; a new one overwrites the slot.
type DialogInfo struct {
	Type          string `json:"type"`
	Message       string `json:"message"`
	DefaultPrompt string `json:"defaultPrompt,omitempty"`
}

// monitors accumulates event-driven state for the active binding. The
// event router writes from the connection's read goroutine; callers
// read through copying accessors, so everything is behind one mutex.
type monitors struct {
	mu sync.Mutex

	networkEnabled bool
	consoleEnabled bool

	netSeq    int
	msgSeq    int
	byProtoID map[proto.NetworkRequestID]*NetworkRequest
	requests  []*NetworkRequest
	messages  []*ConsoleMessage
	dialog    *DialogInfo
}

func newMonitors() *monitors {
	return &monitors{
		byProtoID: make(map[proto.NetworkRequestID]*NetworkRequest),
	}
}

// handleEvent is the demultiplexing router installed on the session.
func (m *monitors) handleEvent(ev cdp.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch e := ev.(type) {
	case cdp.RequestInitiated:
		m.addRequest(e.NetworkRequestWillBeSent)
	case cdp.ResponseReceived:
		m.patchResponse(e.NetworkResponseReceived)
	case cdp.LoadFailed:
		m.patchFailure(e.NetworkLoadingFailed)
	case cdp.ConsoleCalled:
		m.addMessage(e.RuntimeConsoleAPICalled)
	case cdp.DialogOpening:
		m.dialog = &DialogInfo{
			Type:          string(e.Type),
			Message:       e.Message,
			DefaultPrompt: e.DefaultPrompt,
		}
	}
}

func (m *monitors) addRequest(e *proto.NetworkRequestWillBeSent) {
	m.netSeq++
	req := &NetworkRequest{
		ID:          fmt.Sprintf("req_%d", m.netSeq),
		RequestTime: time.Now(),
		start:       e.Timestamp,
	}
	if e.Request != nil {
		req.URL = e.Request.URL
		req.Method = e.Request.Method
		req.RequestHeaders = headerMap(e.Request.Headers)
		req.PostData = e.Request.PostData
	}
	req.ResourceType = string(e.Type)

	m.byProtoID[e.RequestID] = req
	m.requests = append(m.requests, req)
}

// patchResponse fills response fields on the matching record. An
// unknown request id (history cleared mid-flight) is silently ignored.
func (m *monitors) patchResponse(e *proto.NetworkResponseReceived) {
	req, ok := m.byProtoID[e.RequestID]
	if !ok {
		return
	}
	if e.Response != nil {
		req.Status = e.Response.Status
		req.ResponseHeaders = headerMap(e.Response.Headers)
		req.MimeType = e.Response.MIMEType
	}
	req.ResponseTime = time.Now()
	req.Duration = e.Timestamp.Duration() - req.start.Duration()
}

func (m *monitors) patchFailure(e *proto.NetworkLoadingFailed) {
	req, ok := m.byProtoID[e.RequestID]
	if !ok {
		return
	}
	req.Error = e.ErrorText
	req.ResponseTime = time.Now()
	req.Duration = e.Timestamp.Duration() - req.start.Duration()
}

func (m *monitors) addMessage(e *proto.RuntimeConsoleAPICalled) {
	m.msgSeq++
	msg := &ConsoleMessage{
		ID:        fmt.Sprintf("msg_%d", m.msgSeq),
		Type:      string(e.Type),
		Timestamp: time.Now(),
	}

	parts := make([]string, 0, len(e.Args))
	for _, arg := range e.Args {
		rendered := renderRemoteValue(arg)
		parts = append(parts, rendered)
		msg.Args = append(msg.Args, rendered)
	}
	msg.Text = strings.Join(parts, " ")

	if e.StackTrace != nil && len(e.StackTrace.CallFrames) > 0 {
		top := e.StackTrace.CallFrames[0]
		msg.URL = top.URL
		msg.Line = top.LineNumber
	}

	m.messages = append(m.messages, msg)
	if len(m.messages) > maxConsoleHistory {
		m.messages = m.messages[len(m.messages)-maxConsoleHistory:]
	}
}

// renderRemoteValue turns a console argument into display text:
// primitive value first, then description, then a typed placeholder.
func renderRemoteValue(o *proto.RuntimeRemoteObject) string {
	if o == nil {
		return "<unavailable>"
	}
	if !o.Value.Nil() {
		if o.Type == proto.RuntimeRemoteObjectTypeString {
			return o.Value.Str()
		}
		return o.Value.String()
	}
	if o.Description != "" {
		return o.Description
	}
	return "<" + string(o.Type) + ">"
}

func headerMap(h proto.NetworkHeaders) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v.Str()
	}
	return out
}

// Requests returns a copy of the accumulated network history in
// arrival order.
func (m *monitors) Requests() []NetworkRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]NetworkRequest, len(m.requests))
	for i, r := range m.requests {
		out[i] = *r
	}
	return out
}

// Messages returns a copy of the console history in arrival order.
func (m *monitors) Messages() []ConsoleMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ConsoleMessage, len(m.messages))
	for i, msg := range m.messages {
		out[i] = *msg
	}
	return out
}

// Dialog returns the pending dialog, or nil.
func (m *monitors) Dialog() *DialogInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dialog == nil {
		return nil
	}
	d := *m.dialog
	return &d
}

func (m *monitors) clearDialog() {
	m.mu.Lock()
	m.dialog = nil
	m.mu.Unlock()
}

func (m *monitors) networkMonitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.networkEnabled
}

func (m *monitors) consoleMonitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consoleEnabled
}

func (m *monitors) setNetworkMonitoring(v bool) {
	m.mu.Lock()
	m.networkEnabled = v
	m.mu.Unlock()
}

func (m *monitors) setConsoleMonitoring(v bool) {
	m.mu.Lock()
	m.consoleEnabled = v
	m.mu.Unlock()
}

// clear drops all accumulated state. Called on binding switches so no
// history leaks across unrelated pages.
func (m *monitors) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byProtoID = make(map[proto.NetworkRequestID]*NetworkRequest)
	m.requests = nil
	m.messages = nil
	m.dialog = nil
	m.netSeq = 0
	m.msgSeq = 0
}
