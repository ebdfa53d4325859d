// Package tools maps tool names to executors and exposes the schema list
// handed to the provider so the model knows what it may call.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"loremaster/internal/llm"
)

// ErrUnknownTool is returned when the model requests a tool that was never
// registered.
var ErrUnknownTool = errors.New("tools: unknown tool")

// Executor runs one tool call. The returned string is a JSON blob fed back
// to the model and recorded on the tool turn.
type Executor func(ctx context.Context, args map[string]interface{}) (string, error)

type definition struct {
	schema  llm.Tool
	execute Executor
}

type Registry struct {
	mu    sync.RWMutex
	defs  map[string]definition
	order []string
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]definition)}
}

// Register adds or replaces a tool. Registration order is preserved in
// Schemas so the provider sees a stable tool list.
func (r *Registry) Register(schema llm.Tool, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := schema.Function.Name
	if _, exists := r.defs[name]; !exists {
		r.order = append(r.order, name)
	}
	r.defs[name] = definition{schema: schema, execute: exec}
}

// Execute dispatches one call to its registered executor.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	r.mu.RLock()
	def, ok := r.defs[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return def.execute(ctx, args)
}

// Schemas returns the tool list passed to the provider client.
func (r *Registry) Schemas() []llm.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name].schema)
	}
	return out
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
