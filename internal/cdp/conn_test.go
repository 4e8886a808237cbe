package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// fakeWire is an in-memory transport: frames pushed into incoming are
// read by the conn, frames the conn writes land on writes.
type fakeWire struct {
	incoming  chan []byte
	writes    chan []byte
	closeOnce sync.Once
}

func newFakeWire() *fakeWire {
	return &fakeWire{
		incoming: make(chan []byte, 16),
		writes:   make(chan []byte, 16),
	}
}

func (w *fakeWire) ReadMessage() ([]byte, error) {
	data, ok := <-w.incoming
	if !ok {
		return nil, io.EOF
	}
	return data, nil
}

func (w *fakeWire) WriteMessage(data []byte) error {
	w.writes <- data
	return nil
}

func (w *fakeWire) Close() error {
	w.closeOnce.Do(func() { close(w.incoming) })
	return nil
}

func (w *fakeWire) nextWrite(t *testing.T) request {
	t.Helper()
	select {
	case data := <-w.writes:
		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			t.Fatalf("decoding written frame: %v", err)
		}
		return req
	case <-time.After(time.Second):
		t.Fatal("no frame written")
		return request{}
	}
}

func (w *fakeWire) push(frame string) {
	w.incoming <- []byte(frame)
}

func TestCallRoundTrip(t *testing.T) {
	wire := newFakeWire()
	conn := NewConn(wire)
	defer conn.Close()

	type nav struct {
		FrameID string `json:"frameId"`
	}
	done := make(chan error, 1)
	var res nav
	go func() {
		done <- conn.Request(context.Background(), "", &proto.PageNavigate{URL: "https://example.com"}, &res)
	}()

	req := wire.nextWrite(t)
	if req.Method != "Page.navigate" {
		t.Fatalf("method = %q, want Page.navigate", req.Method)
	}
	wire.push(fmt.Sprintf(`{"id":%d,"result":{"frameId":"F1"}}`, req.ID))

	if err := <-done; err != nil {
		t.Fatalf("Request: %v", err)
	}
	if res.FrameID != "F1" {
		t.Errorf("frameId = %q, want F1", res.FrameID)
	}
}

func TestCallProtocolError(t *testing.T) {
	wire := newFakeWire()
	conn := NewConn(wire)
	defer conn.Close()

	done := make(chan error, 1)
	go func() {
		done <- conn.Request(context.Background(), "", &proto.PageNavigate{URL: "bad"}, nil)
	}()

	req := wire.nextWrite(t)
	wire.push(fmt.Sprintf(`{"id":%d,"error":{"code":-32000,"message":"Cannot navigate to invalid URL"}}`, req.ID))

	err := <-done
	if err == nil {
		t.Fatal("protocol error not surfaced")
	}
	if !strings.Contains(err.Error(), "Page.navigate") || !strings.Contains(err.Error(), "Cannot navigate") {
		t.Errorf("error = %v, want method and protocol message", err)
	}
}

func TestCallContextCancelled(t *testing.T) {
	wire := newFakeWire()
	conn := NewConn(wire)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- conn.Request(ctx, "", &proto.PageEnable{}, nil)
	}()
	wire.nextWrite(t)
	cancel()

	if err := <-done; err == nil || !strings.Contains(err.Error(), "context canceled") {
		t.Fatalf("err = %v, want context cancellation", err)
	}
}

func TestCloseFailsPendingCalls(t *testing.T) {
	wire := newFakeWire()
	conn := NewConn(wire)

	done := make(chan error, 1)
	go func() {
		done <- conn.Request(context.Background(), "", &proto.PageEnable{}, nil)
	}()
	wire.nextWrite(t)
	conn.Close()

	if err := <-done; err == nil || !strings.Contains(err.Error(), "connection closed") {
		t.Fatalf("err = %v, want connection closed", err)
	}
	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Close")
	}
}

func TestSessionAttachAndEventDispatch(t *testing.T) {
	wire := newFakeWire()
	conn := NewConn(wire)
	defer conn.Close()

	session := NewSession(conn, "T1")
	events := make(chan Event, 1)
	session.SetRouter(func(ev Event) { events <- ev })

	done := make(chan error, 1)
	go func() {
		done <- session.Attach(context.Background())
	}()

	req := wire.nextWrite(t)
	if req.Method != "Target.attachToTarget" {
		t.Fatalf("method = %q, want Target.attachToTarget", req.Method)
	}
	wire.push(fmt.Sprintf(`{"id":%d,"result":{"sessionId":"S1"}}`, req.ID))
	if err := <-done; err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if !session.Attached() {
		t.Fatal("session not marked attached")
	}

	// An event for the attached session reaches the router.
	wire.push(`{"sessionId":"S1","method":"Network.requestWillBeSent","params":{"requestId":"R1","request":{"url":"https://example.com","method":"GET"}}}`)
	select {
	case ev := <-events:
		ri, ok := ev.(RequestInitiated)
		if !ok {
			t.Fatalf("event = %T, want RequestInitiated", ev)
		}
		if ri.Request.URL != "https://example.com" {
			t.Errorf("url = %q", ri.Request.URL)
		}
	case <-time.After(time.Second):
		t.Fatal("event not dispatched")
	}

	// Events for other sessions and unknown methods are dropped.
	wire.push(`{"sessionId":"S9","method":"Network.requestWillBeSent","params":{"requestId":"R2","request":{"url":"x","method":"GET"}}}`)
	wire.push(`{"sessionId":"S1","method":"Page.frameNavigated","params":{}}`)
	select {
	case ev := <-events:
		t.Fatalf("unexpected event dispatched: %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		method string
		params string
		want   bool
	}{
		{"Network.requestWillBeSent", `{"requestId":"1"}`, true},
		{"Network.responseReceived", `{"requestId":"1"}`, true},
		{"Network.loadingFailed", `{"requestId":"1"}`, true},
		{"Runtime.consoleAPICalled", `{"type":"log"}`, true},
		{"Page.javascriptDialogOpening", `{"type":"alert","message":"hi"}`, true},
		{"Page.loadEventFired", `{"timestamp":1}`, true},
		{"Page.frameNavigated", `{}`, false},
		{"Network.requestWillBeSent", `not json`, false},
	}
	for _, tt := range tests {
		_, ok := decodeEvent(tt.method, json.RawMessage(tt.params))
		if ok != tt.want {
			t.Errorf("decodeEvent(%q) ok = %v, want %v", tt.method, ok, tt.want)
		}
	}
}
