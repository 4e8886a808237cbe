package automation

import (
	"fmt"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"drover/internal/cdp"
)

func consoleEvent(args ...*proto.RuntimeRemoteObject) cdp.Event {
	return cdp.ConsoleCalled{RuntimeConsoleAPICalled: &proto.RuntimeConsoleAPICalled{
		Type: proto.RuntimeConsoleAPICalledTypeLog,
		Args: args,
	}}
}

func TestConsoleRingBufferCap(t *testing.T) {
	m := newMonitors()
	for i := 0; i < maxConsoleHistory+1; i++ {
		m.handleEvent(consoleEvent(&proto.RuntimeRemoteObject{
			Type:  proto.RuntimeRemoteObjectTypeString,
			Value: gson.New(fmt.Sprintf("line %d", i)),
		}))
	}
	msgs := m.Messages()
	if len(msgs) != maxConsoleHistory {
		t.Fatalf("messages = %d, want %d", len(msgs), maxConsoleHistory)
	}
	if msgs[0].Text != "line 1" {
		t.Errorf("oldest surviving message = %q, want the second ever logged", msgs[0].Text)
	}
	if msgs[0].ID != "msg_2" {
		t.Errorf("oldest surviving id = %q, want msg_2 (ids are never reused)", msgs[0].ID)
	}
	if last := msgs[len(msgs)-1]; last.Text != fmt.Sprintf("line %d", maxConsoleHistory) {
		t.Errorf("newest message = %q", last.Text)
	}
}

func TestConsoleArgRendering(t *testing.T) {
	tests := []struct {
		name string
		arg  *proto.RuntimeRemoteObject
		want string
	}{
		{"string", &proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeString, Value: gson.New("hello")}, "hello"},
		{"number", &proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeNumber, Value: gson.New(42)}, "42"},
		{"described object", &proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeObject, Description: "Error: nope"}, "Error: nope"},
		{"bare object", &proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeObject}, "<object>"},
		{"nil", nil, "<unavailable>"},
	}
	for _, tt := range tests {
		if got := renderRemoteValue(tt.arg); got != tt.want {
			t.Errorf("%s: renderRemoteValue = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestConsoleMultipleArgsJoined(t *testing.T) {
	m := newMonitors()
	m.handleEvent(consoleEvent(
		&proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeString, Value: gson.New("count:")},
		&proto.RuntimeRemoteObject{Type: proto.RuntimeRemoteObjectTypeNumber, Value: gson.New(3)},
	))
	msgs := m.Messages()
	if len(msgs) != 1 || msgs[0].Text != "count: 3" {
		t.Fatalf("messages = %+v, want one joined as %q", msgs, "count: 3")
	}
	if len(msgs[0].Args) != 2 {
		t.Errorf("args = %d, want 2", len(msgs[0].Args))
	}
}

func TestConsoleStackFrameAttached(t *testing.T) {
	m := newMonitors()
	m.handleEvent(cdp.ConsoleCalled{RuntimeConsoleAPICalled: &proto.RuntimeConsoleAPICalled{
		Type: proto.RuntimeConsoleAPICalledTypeError,
		Args: []*proto.RuntimeRemoteObject{
			{Type: proto.RuntimeRemoteObjectTypeString, Value: gson.New("boom")},
		},
		StackTrace: &proto.RuntimeStackTrace{CallFrames: []*proto.RuntimeCallFrame{
			{URL: "https://example.com/app.js", LineNumber: 12},
		}},
	}})
	msg := m.Messages()[0]
	if msg.URL != "https://example.com/app.js" || msg.Line != 12 {
		t.Errorf("frame = %s:%d, want app.js:12", msg.URL, msg.Line)
	}
	if msg.Type != "error" {
		t.Errorf("type = %q, want error", msg.Type)
	}
}

func TestNetworkRequestLifecycle(t *testing.T) {
	m := newMonitors()
	m.handleEvent(cdp.RequestInitiated{NetworkRequestWillBeSent: &proto.NetworkRequestWillBeSent{
		RequestID: "42",
		Request: &proto.NetworkRequest{
			URL:     "https://example.com/api",
			Method:  "POST",
			Headers: proto.NetworkHeaders{"Content-Type": gson.New("application/json")},
		},
		Type:      proto.NetworkResourceTypeXHR,
		Timestamp: proto.MonotonicTime(10),
	}})
	m.handleEvent(cdp.ResponseReceived{NetworkResponseReceived: &proto.NetworkResponseReceived{
		RequestID: "42",
		Response: &proto.NetworkResponse{
			Status:   201,
			MIMEType: "application/json",
		},
		Timestamp: proto.MonotonicTime(10.25),
	}})

	reqs := m.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	r := reqs[0]
	if r.ID != "req_1" || r.Method != "POST" || r.URL != "https://example.com/api" {
		t.Errorf("request = %+v", r)
	}
	if r.Status != 201 || r.MimeType != "application/json" {
		t.Errorf("response fields = %d %q", r.Status, r.MimeType)
	}
	if r.RequestHeaders["Content-Type"] != "application/json" {
		t.Errorf("headers = %v", r.RequestHeaders)
	}
	if r.Duration != 250*time.Millisecond {
		t.Errorf("duration = %s, want 250ms", r.Duration)
	}
	if r.ResourceType != "XHR" {
		t.Errorf("resource type = %q, want XHR", r.ResourceType)
	}
}

func TestNetworkFailureRecorded(t *testing.T) {
	m := newMonitors()
	m.handleEvent(cdp.RequestInitiated{NetworkRequestWillBeSent: &proto.NetworkRequestWillBeSent{
		RequestID: "7",
		Request:   &proto.NetworkRequest{URL: "https://example.com/x", Method: "GET"},
	}})
	m.handleEvent(cdp.LoadFailed{NetworkLoadingFailed: &proto.NetworkLoadingFailed{
		RequestID: "7",
		ErrorText: "net::ERR_CONNECTION_REFUSED",
	}})
	r := m.Requests()[0]
	if r.Error != "net::ERR_CONNECTION_REFUSED" {
		t.Errorf("error = %q", r.Error)
	}
	if r.Status != 0 {
		t.Errorf("status = %d, want 0 on failure", r.Status)
	}
}

func TestUnknownResponseIgnored(t *testing.T) {
	m := newMonitors()
	// Response for a request cleared mid-flight must not resurrect it.
	m.handleEvent(cdp.ResponseReceived{NetworkResponseReceived: &proto.NetworkResponseReceived{
		RequestID: "gone",
		Response:  &proto.NetworkResponse{Status: 200},
	}})
	m.handleEvent(cdp.LoadFailed{NetworkLoadingFailed: &proto.NetworkLoadingFailed{
		RequestID: "also-gone",
		ErrorText: "net::ERR_ABORTED",
	}})
	if got := m.Requests(); len(got) != 0 {
		t.Fatalf("requests = %d, want 0", len(got))
	}
}

func TestRequestsReturnsCopies(t *testing.T) {
	m := newMonitors()
	m.handleEvent(cdp.RequestInitiated{NetworkRequestWillBeSent: &proto.NetworkRequestWillBeSent{
		RequestID: "1",
		Request:   &proto.NetworkRequest{URL: "https://example.com", Method: "GET"},
	}})
	snapshot := m.Requests()
	snapshot[0].URL = "mutated"
	if m.Requests()[0].URL != "https://example.com" {
		t.Error("caller mutation leaked into monitor state")
	}
}
