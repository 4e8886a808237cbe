// Package cdp implements the DevTools protocol session layer: a wire
// connection to a browser, flat session attachment to individual
// targets, a single async command round-trip primitive, and typed
// decoding of the protocol events the automation layer consumes.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/gorilla/websocket"

	. "drover/internal/logging"
)

// Wire is the transport under a Conn: ordered, whole-message text
// frames. The default implementation is a gorilla/websocket connection;
// any CDP-compatible transport (pipe, embedded debugger bridge) can be
// substituted.
type Wire interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

type wsWire struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (w *wsWire) ReadMessage() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

func (w *wsWire) WriteMessage(data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsWire) Close() error {
	return w.conn.Close()
}

// DialWire opens a websocket transport to a DevTools endpoint.
func DialWire(ctx context.Context, wsURL string) (Wire, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1 << 20,
		WriteBufferSize:  1 << 20,
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial devtools endpoint %s: %w", wsURL, err)
	}
	return &wsWire{conn: conn}, nil
}

// rpcError is the error object of a failed protocol command.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Data)
	}
	return e.Message
}

type request struct {
	ID        int64       `json:"id"`
	SessionID string      `json:"sessionId,omitempty"`
	Method    string      `json:"method"`
	Params    interface{} `json:"params,omitempty"`
}

// envelope is an incoming frame: either a command response (ID set) or
// an event (Method set).
type envelope struct {
	ID        int64           `json:"id,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *rpcError       `json:"error,omitempty"`
}

type callResult struct {
	data json.RawMessage
	err  error
}

// Conn multiplexes command round-trips and event delivery for all
// sessions attached over one browser connection.
type Conn struct {
	wire Wire

	seqMu sync.Mutex
	seq   int64

	pendingMu sync.Mutex
	pending   map[int64]chan callResult

	sessionsMu sync.RWMutex
	sessions   map[string]*Session

	done      chan struct{}
	closeOnce sync.Once
	readErr   error
}

// Connect dials the endpoint and starts the read loop.
func Connect(ctx context.Context, wsURL string) (*Conn, error) {
	wire, err := DialWire(ctx, wsURL)
	if err != nil {
		return nil, err
	}
	return NewConn(wire), nil
}

// NewConn wraps an established wire and starts the read loop.
func NewConn(wire Wire) *Conn {
	c := &Conn{
		wire:     wire,
		pending:  make(map[int64]chan callResult),
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Call performs one raw command round-trip. sessionID is empty for
// browser-level commands.
func (c *Conn) Call(ctx context.Context, sessionID, method string, params interface{}) (json.RawMessage, error) {
	c.seqMu.Lock()
	c.seq++
	id := c.seq
	c.seqMu.Unlock()

	ch := make(chan callResult, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	payload, err := json.Marshal(request{ID: id, SessionID: sessionID, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}

	L_trace("cdp: send", "id", id, "method", method)
	if err := c.wire.WriteMessage(payload); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	select {
	case res := <-ch:
		return res.data, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("connection closed: %w", c.readErr)
	}
}

// Request performs a typed command round-trip, unmarshaling the result
// into res when non-nil. Errors always name the protocol method.
func (c *Conn) Request(ctx context.Context, sessionID string, req proto.Request, res interface{}) error {
	data, err := c.Call(ctx, sessionID, req.ProtoReq(), req)
	if err != nil {
		return fmt.Errorf("%s: %w", req.ProtoReq(), err)
	}
	if res == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, res); err != nil {
		return fmt.Errorf("%s: failed to decode result: %w", req.ProtoReq(), err)
	}
	return nil
}

// Close tears down the wire. Pending calls fail with a connection
// closed error from the read loop.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.wire.Close()
	})
	return err
}

// Done is closed when the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) addSession(s *Session, sessionID string) {
	c.sessionsMu.Lock()
	c.sessions[sessionID] = s
	c.sessionsMu.Unlock()
}

func (c *Conn) removeSession(sessionID string) {
	c.sessionsMu.Lock()
	delete(c.sessions, sessionID)
	c.sessionsMu.Unlock()
}

func (c *Conn) readLoop() {
	for {
		data, err := c.wire.ReadMessage()
		if err != nil {
			c.readErr = err
			c.failPending(err)
			close(c.done)
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			L_warn("cdp: dropping malformed frame", "error", err)
			continue
		}

		if env.ID != 0 {
			c.pendingMu.Lock()
			ch, ok := c.pending[env.ID]
			c.pendingMu.Unlock()
			if !ok {
				// Caller gave up (context cancelled); the response is stale.
				continue
			}
			if env.Error != nil {
				ch <- callResult{err: env.Error}
			} else {
				ch <- callResult{data: env.Result}
			}
			continue
		}

		if env.Method == "" {
			continue
		}

		ev, ok := decodeEvent(env.Method, env.Params)
		if !ok {
			continue
		}

		c.sessionsMu.RLock()
		s := c.sessions[env.SessionID]
		c.sessionsMu.RUnlock()
		if s != nil {
			s.dispatch(ev)
		}
	}
}

func (c *Conn) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- callResult{err: fmt.Errorf("connection closed: %w", err)}
		delete(c.pending, id)
	}
}
