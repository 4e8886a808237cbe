// Package tools provides the tool execution framework.
package tools

import (
	"context"
	"encoding/json"
)

// Tool is the interface that all tools must implement.
type Tool interface {
	// Name returns the unique name of the tool
	Name() string

	// Description returns a human-readable description of what the
	// tool does
	Description() string

	// Schema returns the JSON Schema for the tool's input parameters
	Schema() map[string]any

	// Execute runs the tool with the given input
	Execute(ctx context.Context, input json.RawMessage) (*Result, error)
}

// Result is a structured tool outcome. Failed operations come back as
// a Result with OK false and a machine-readable Kind rather than a Go
// error; errors are reserved for malformed invocations.
type Result struct {
	OK      bool        `json:"ok"`
	Kind    string      `json:"kind,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Text builds a successful text result.
func Text(msg string) *Result {
	return &Result{OK: true, Message: msg}
}

// Failure builds a failed result with a classification kind.
func Failure(kind, msg string) *Result {
	return &Result{OK: false, Kind: kind, Message: msg}
}

// Definition is the wire format for advertising a tool.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToDefinition converts a Tool to the advertised format.
func ToDefinition(t Tool) Definition {
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.Schema(),
	}
}
