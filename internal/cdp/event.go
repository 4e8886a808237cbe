package cdp

import (
	"encoding/json"

	"github.com/go-rod/rod/lib/proto"
)

// Event is one of the closed set of protocol events the automation
// layer consumes. Raw frames are decoded exactly once, here at the
// protocol boundary; consumers route by type switch. Anything outside
// the set is dropped during decode.
type Event interface {
	eventMethod() string
}

// RequestInitiated fires when the page starts a network request.
type RequestInitiated struct {
	*proto.NetworkRequestWillBeSent
}

// ResponseReceived fires when response headers arrive for a request.
type ResponseReceived struct {
	*proto.NetworkResponseReceived
}

// LoadFailed fires when a network request errors out.
type LoadFailed struct {
	*proto.NetworkLoadingFailed
}

// ConsoleCalled fires on every console API invocation in the page.
type ConsoleCalled struct {
	*proto.RuntimeConsoleAPICalled
}

// DialogOpening fires when a native JavaScript dialog opens.
type DialogOpening struct {
	*proto.PageJavascriptDialogOpening
}

// LoadFired fires on the page's load event.
type LoadFired struct {
	*proto.PageLoadEventFired
}

func (RequestInitiated) eventMethod() string { return proto.NetworkRequestWillBeSent{}.ProtoEvent() }
func (ResponseReceived) eventMethod() string { return proto.NetworkResponseReceived{}.ProtoEvent() }
func (LoadFailed) eventMethod() string       { return proto.NetworkLoadingFailed{}.ProtoEvent() }
func (ConsoleCalled) eventMethod() string    { return proto.RuntimeConsoleAPICalled{}.ProtoEvent() }
func (DialogOpening) eventMethod() string    { return proto.PageJavascriptDialogOpening{}.ProtoEvent() }
func (LoadFired) eventMethod() string        { return proto.PageLoadEventFired{}.ProtoEvent() }

func decodeEvent(method string, params json.RawMessage) (Event, bool) {
	switch method {
	case proto.NetworkRequestWillBeSent{}.ProtoEvent():
		var e proto.NetworkRequestWillBeSent
		if json.Unmarshal(params, &e) != nil {
			return nil, false
		}
		return RequestInitiated{&e}, true

	case proto.NetworkResponseReceived{}.ProtoEvent():
		var e proto.NetworkResponseReceived
		if json.Unmarshal(params, &e) != nil {
			return nil, false
		}
		return ResponseReceived{&e}, true

	case proto.NetworkLoadingFailed{}.ProtoEvent():
		var e proto.NetworkLoadingFailed
		if json.Unmarshal(params, &e) != nil {
			return nil, false
		}
		return LoadFailed{&e}, true

	case proto.RuntimeConsoleAPICalled{}.ProtoEvent():
		var e proto.RuntimeConsoleAPICalled
		if json.Unmarshal(params, &e) != nil {
			return nil, false
		}
		return ConsoleCalled{&e}, true

	case proto.PageJavascriptDialogOpening{}.ProtoEvent():
		var e proto.PageJavascriptDialogOpening
		if json.Unmarshal(params, &e) != nil {
			return nil, false
		}
		return DialogOpening{&e}, true

	case proto.PageLoadEventFired{}.ProtoEvent():
		var e proto.PageLoadEventFired
		if json.Unmarshal(params, &e) != nil {
			return nil, false
		}
		return LoadFired{&e}, true
	}
	return nil, false
}
