package cdp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"

	. "drover/internal/logging"
)

// Target is the debuggable-target surface the automation layer
// consumes: attach/detach lifecycle, one async command primitive, and
// one event-router slot. Session implements it for real browser
// targets; tests implement it in memory.
type Target interface {
	// Attach binds the session; attaching an attached target is a no-op.
	Attach(ctx context.Context) error
	// Detach releases the session. It is cleanup-path code: it never
	// fails and is safe to call redundantly.
	Detach()
	// Call performs one command round-trip, decoding the result into
	// res when non-nil. Errors name the protocol method.
	Call(ctx context.Context, req proto.Request, res interface{}) error
	// SetRouter installs the single demultiplexing event callback.
	SetRouter(fn func(Event))
	// ClearRouter removes the installed callback.
	ClearRouter()
}

// Session is a flat-mode protocol session bound to one target.
type Session struct {
	conn     *Conn
	targetID proto.TargetTargetID

	mu        sync.Mutex
	attached  bool
	sessionID proto.TargetSessionID

	routerMu sync.RWMutex
	router   func(Event)
}

// NewSession creates an unattached session for a target.
func NewSession(conn *Conn, targetID proto.TargetTargetID) *Session {
	return &Session{conn: conn, targetID: targetID}
}

// TargetID returns the target this session binds.
func (s *Session) TargetID() proto.TargetTargetID {
	return s.targetID
}

// Attached reports whether the session currently holds an attachment.
func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

// Attach binds the session to its target. Idempotent.
func (s *Session) Attach(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached {
		return nil
	}

	var res proto.TargetAttachToTargetResult
	err := s.conn.Request(ctx, "", proto.TargetAttachToTarget{
		TargetID: s.targetID,
		Flatten:  true,
	}, &res)
	if err != nil {
		return fmt.Errorf("failed to attach to target %s: %w", s.targetID, err)
	}

	s.sessionID = res.SessionID
	s.attached = true
	s.conn.addSession(s, string(res.SessionID))

	L_debug("cdp: attached", "target", s.targetID, "session", res.SessionID)
	return nil
}

// Detach releases the attachment. Every step tolerates failure; the
// target may already be gone.
func (s *Session) Detach() {
	s.mu.Lock()
	if !s.attached {
		s.mu.Unlock()
		return
	}
	sessionID := s.sessionID
	s.attached = false
	s.sessionID = ""
	s.mu.Unlock()

	s.ClearRouter()
	s.conn.removeSession(string(sessionID))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.conn.Request(ctx, "", proto.TargetDetachFromTarget{SessionID: sessionID}, nil)
	if err != nil {
		L_debug("cdp: detach failed, target may be gone", "target", s.targetID, "error", err)
	}
}

// Call performs one command round-trip on the attached session.
func (s *Session) Call(ctx context.Context, req proto.Request, res interface{}) error {
	s.mu.Lock()
	attached := s.attached
	sessionID := s.sessionID
	s.mu.Unlock()

	if !attached {
		return fmt.Errorf("%s: target not attached", req.ProtoReq())
	}
	return s.conn.Request(ctx, string(sessionID), req, res)
}

// SetRouter installs the event router. Exactly one router is active at
// a time; installing replaces any prior one.
func (s *Session) SetRouter(fn func(Event)) {
	s.routerMu.Lock()
	s.router = fn
	s.routerMu.Unlock()
}

// ClearRouter removes the event router.
func (s *Session) ClearRouter() {
	s.routerMu.Lock()
	s.router = nil
	s.routerMu.Unlock()
}

func (s *Session) dispatch(ev Event) {
	s.routerMu.RLock()
	fn := s.router
	s.routerMu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}
