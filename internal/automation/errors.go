package automation

import (
	"errors"
	"fmt"
)

// Kind classifies an automation failure for the dispatch boundary.
type Kind int

const (
	// KindNoActiveView means no view is bound, or the bound view
	// resolved to nothing.
	KindNoActiveView Kind = iota + 1
	// KindElementNotFound means an opaque id is absent from the current
	// snapshot, or a selector/option text matched nothing.
	KindElementNotFound
	// KindCommandFailed means a protocol round-trip was rejected.
	KindCommandFailed
	// KindTimeout means a wait utility ran out of time.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindNoActiveView:
		return "no_active_view"
	case KindElementNotFound:
		return "element_not_found"
	case KindCommandFailed:
		return "command_failed"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

// Error is a structured automation failure: a kind plus a
// human-readable message. It wraps the underlying cause when there is
// one.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or 0 for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return 0
}

func errNoActiveView() error {
	return &Error{Kind: KindNoActiveView, Message: "no active view"}
}

func errElementNotFound(id string) error {
	return &Error{Kind: KindElementNotFound, Message: fmt.Sprintf("element not found: %s", id)}
}

func errOptionNotFound(value string) error {
	return &Error{Kind: KindElementNotFound, Message: fmt.Sprintf("option not found: %q", value)}
}

func errCommandFailed(err error) error {
	return &Error{Kind: KindCommandFailed, Message: "command failed", Err: err}
}

func errTimeout(condition string) error {
	return &Error{Kind: KindTimeout, Message: "timeout waiting for " + condition}
}

func errNavigation(errorText string) error {
	return errors.New("navigation failed: " + errorText)
}
