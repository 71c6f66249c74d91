// Package tools defines the function tools advertised to the remote agent and the registry that holds them.
package tools

import (
	"context"
)

// Property describes one parameter in a tool's input schema.
type Property struct {
	Type        string              `json:"type"`
	Description string              `json:"description,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Items       *Property           `json:"items,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
}

// InputSchema is the JSON-schema object describing a tool's arguments.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Definition is the machine-readable schema advertised to the Conversation Service.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"parameters"`
}

// Tool pairs a definition with its implementation.
//
// Exec returns a structured payload that is serialized as the tool output. A returned
// error is reported back to the agent as an error payload by the dispatcher.
type Tool interface {
	Definition() Definition
	Exec(ctx context.Context, args map[string]any) (any, error)
}

// ArgValidator is implemented by tools that check their own arguments before Exec.
// Tools without it are checked against their schema's required list.
type ArgValidator interface {
	ValidateArgs(args map[string]any) error
}

// Func adapts a definition and a plain function into a Tool.
type Func struct {
	Def Definition
	Fn  func(ctx context.Context, args map[string]any) (any, error)
}

func (f *Func) Definition() Definition {
	return f.Def
}

func (f *Func) Exec(ctx context.Context, args map[string]any) (any, error) {
	return f.Fn(ctx, args)
}

// Schema converts a property into a plain map for SDKs that take untyped JSON schema.
func (p *Property) Schema() map[string]any {
	schema := map[string]any{"type": p.Type}
	if p.Description != "" {
		schema["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		schema["enum"] = p.Enum
	}
	if p.Type == "array" && p.Items != nil {
		schema["items"] = p.Items.Schema()
	}
	if p.Type == "object" && p.Properties != nil {
		props := make(map[string]any, len(p.Properties))
		for name, child := range p.Properties {
			props[name] = child.Schema()
		}
		schema["properties"] = props
	}
	return schema
}

// Schema converts the input schema into a plain map.
func (s *InputSchema) Schema() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, prop := range s.Properties {
		props[name] = prop.Schema()
	}
	typ := s.Type
	if typ == "" {
		typ = "object"
	}
	schema := map[string]any{
		"type":       typ,
		"properties": props,
	}
	if len(s.Required) > 0 {
		schema["required"] = s.Required
	}
	return schema
}
