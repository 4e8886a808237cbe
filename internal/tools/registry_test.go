package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"drover/internal/automation"
)

type echoTool struct{}

func (echoTool) Name() string           { return "echo" }
func (echoTool) Description() string    { return "echoes its input" }
func (echoTool) Schema() map[string]any { return map[string]any{"type": "object"} }
func (echoTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	return Text(string(input)), nil
}

func TestRegistryRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{})

	if !r.Has("echo") {
		t.Fatal("registered tool not found")
	}
	if r.Count() != 1 {
		t.Fatalf("count = %d, want 1", r.Count())
	}

	res, err := r.Execute(context.Background(), "echo", json.RawMessage(`{"x":1}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.OK || res.Message != `{"x":1}` {
		t.Errorf("result = %+v", res)
	}

	if _, err := r.Execute(context.Background(), "missing", nil); err == nil {
		t.Error("executing an unknown tool succeeded")
	}

	defs := r.Definitions()
	if len(defs) != 1 || defs[0].Name != "echo" {
		t.Errorf("definitions = %+v", defs)
	}
}

func TestFailureFromClassifiesAutomationErrors(t *testing.T) {
	err := &automation.Error{Kind: automation.KindElementNotFound, Message: "element not found: e9"}
	res := failureFrom(err)
	if res.OK {
		t.Fatal("failure marked ok")
	}
	if res.Kind != "element_not_found" {
		t.Errorf("kind = %q, want element_not_found", res.Kind)
	}

	res = failureFrom(errors.New("plain"))
	if res.Kind != "error" {
		t.Errorf("unclassified kind = %q, want error", res.Kind)
	}
}
