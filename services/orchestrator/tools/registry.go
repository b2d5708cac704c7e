// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tools holds the fixed set of named, schema-described capabilities
// the model may request during a turn.
//
// Tools are registered once at startup; every name maps to exactly one
// descriptor. Invocation failures of any kind are recoverable by contract:
// the orchestrator converts them into model-visible tool output rather than
// failing the turn.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownTool is returned when the requested name is not registered.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments is returned when a required parameter is missing
	// or has the wrong type.
	ErrInvalidArguments = errors.New("invalid tool arguments")

	// ErrToolExecution wraps any internal failure of a tool capability.
	ErrToolExecution = errors.New("tool execution failed")
)

// ParamSpec describes one tool parameter.
type ParamSpec struct {
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Descriptor is the schema half of a tool: its unique name, a description
// for the model, and the parameter specs.
type Descriptor struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]ParamSpec `json:"parameters"`
}

// InputSchema renders the descriptor's parameters as a JSON Schema object,
// the shape model APIs expect for tool definitions.
func (d Descriptor) InputSchema() map[string]any {
	properties := make(map[string]any, len(d.Parameters))
	var required []string
	for name, spec := range d.Parameters {
		prop := map[string]any{"type": spec.Type}
		if spec.Description != "" {
			prop["description"] = spec.Description
		}
		properties[name] = prop
		if spec.Required {
			required = append(required, name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Result is the ephemeral outcome of one invocation; the orchestrator embeds
// it into a tool-role message and discards it.
type Result struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Output    any            `json:"output"`
}

// Tool is a single callable capability. Built-in tools are local synchronous
// computations; Invoke still takes a context so future remote tools have a
// cancellation point.
type Tool interface {
	Describe() Descriptor
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// Registry maps tool names to capabilities, preserving registration order
// for List.
//
// # Thread Safety
//
// Safe for concurrent use. Registration happens at startup; invocation and
// listing take the read lock.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

// NewRegistry creates a registry holding the given tools, in order.
// Panics on a duplicate name: registration is static startup wiring and a
// duplicate is a programming error.
func NewRegistry(toolset ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range toolset {
		name := t.Describe().Name
		if _, exists := r.tools[name]; exists {
			panic(fmt.Sprintf("tools.NewRegistry: duplicate tool %q", name))
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r
}

// NewBuiltinRegistry creates the registry with the built-in toolset:
// weather lookup and calculator.
func NewBuiltinRegistry() *Registry {
	return NewRegistry(NewWeatherTool(), NewCalculatorTool())
}

// List returns descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Describe())
	}
	return out
}

// Invoke executes the named tool synchronously.
//
// Fails with ErrUnknownTool for unregistered names, ErrInvalidArguments when
// a required parameter is missing or ill-typed, and ErrToolExecution
// (joined with the capability's own error) on internal failure.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (*Result, error) {
	r.mu.RLock()
	tool, exists := r.tools[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if err := validateArgs(tool.Describe(), args); err != nil {
		return nil, err
	}

	output, err := tool.Invoke(ctx, args)
	if err != nil {
		return nil, errors.Join(ErrToolExecution, err)
	}

	return &Result{Name: name, Arguments: args, Output: output}, nil
}

// validateArgs checks required parameters and types against the descriptor.
func validateArgs(desc Descriptor, args map[string]any) error {
	for param, spec := range desc.Parameters {
		value, present := args[param]
		if !present {
			if spec.Required {
				return fmt.Errorf("%w: missing required parameter %q", ErrInvalidArguments, param)
			}
			continue
		}
		if !typeMatches(spec.Type, value) {
			return fmt.Errorf("%w: parameter %q must be of type %s", ErrInvalidArguments, param, spec.Type)
		}
	}
	return nil
}

func typeMatches(want string, value any) bool {
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	default:
		// Unknown schema types are not validated here; the tool itself
		// rejects what it cannot handle.
		return true
	}
}
