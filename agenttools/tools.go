// Package agenttools defines the tool contract from spec §6: name,
// description, a JSON argument schema, a danger classification, and an
// execute function bound to an execution context. Schema validation is
// grounded on github.com/santhosh-tekuri/jsonschema/v6, a dependency
// already declared by the teacher's go.mod.
package agenttools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

type (
	// DangerLevel classifies how much latitude a tool has to cause
	// irreversible or destructive effects. The plan lifecycle (P) and
	// kernel (K) use this to decide whether a call needs interception.
	DangerLevel string

	// Result is the outcome of executing a tool.
	Result struct {
		Success bool
		Output  any
		Err     error
	}

	// CancelToken is the minimal view of a cancellation token a tool needs;
	// see the kernel package for the concrete hierarchical implementation.
	CancelToken interface {
		Done() <-chan struct{}
		Err() error
	}

	// ExecContext is passed to every tool invocation. It is intentionally a
	// struct of narrow interfaces rather than the full kernel state so
	// tools can't reach past their sandboxed surface.
	ExecContext struct {
		Context       context.Context
		Cancel        CancelToken
		SessionID     string
		TurnNumber    int
		ToolCallID    string
		TraceRecorder TraceRecorder
		FileTracker   FileTracker
	}

	// TraceRecorder is the subset of the trace collector (O) a tool needs
	// to attach sub-events to its own execution span.
	TraceRecorder interface {
		RecordEvent(ctx context.Context, toolCallID, eventType string, payload any) error
	}

	// FileTracker is the subset of the file change journal (U) a
	// file-mutating tool uses to capture before/after state.
	FileTracker interface {
		BeginChange(ctx context.Context, filePath string, op string) (ChangeHandle, error)
	}

	// ChangeHandle lets a tool commit or abandon a tracked file mutation.
	ChangeHandle interface {
		Commit(ctx context.Context, contentAfter []byte) error
		Abandon()
	}

	// Tool is the external collaborator contract for a single capability.
	Tool struct {
		Name        string
		Description string
		ArgsSchema  map[string]any
		Danger      DangerLevel
		Execute     func(ctx ExecContext, args json.RawMessage) (Result, error)

		schema *jsonschema.Schema
	}

	// Registry indexes tools by name for lookup during dispatch.
	Registry struct {
		tools map[string]*Tool
	}
)

const (
	DangerSafe      DangerLevel = "safe"
	DangerModerate  DangerLevel = "moderate"
	DangerDangerous DangerLevel = "dangerous"
	DangerCritical  DangerLevel = "critical"
)

// Compile parses t.ArgsSchema into a reusable jsonschema.Schema. Callers
// must call Compile once (typically at registration time) before Validate
// is used; Execute paths that never validate args need not call it.
func (t *Tool) Compile() error {
	if t.ArgsSchema == nil {
		return nil
	}
	raw, err := json.Marshal(t.ArgsSchema)
	if err != nil {
		return fmt.Errorf("agenttools: marshal schema for %q: %w", t.Name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("agenttools: unmarshal schema for %q: %w", t.Name, err)
	}
	c := jsonschema.NewCompiler()
	const resource = "agenttools://schema"
	if err := c.AddResource(resource, doc); err != nil {
		return fmt.Errorf("agenttools: add schema resource for %q: %w", t.Name, err)
	}
	sch, err := c.Compile(resource)
	if err != nil {
		return fmt.Errorf("agenttools: compile schema for %q: %w", t.Name, err)
	}
	t.schema = sch
	return nil
}

// Validate checks args against the tool's compiled schema. A tool with no
// schema (or one that was never Compile()d) accepts any arguments.
func (t *Tool) Validate(args json.RawMessage) error {
	if t.schema == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("agenttools: %s: invalid JSON arguments: %w", t.Name, err)
	}
	if err := t.schema.Validate(v); err != nil {
		return fmt.Errorf("agenttools: %s: arguments failed schema validation: %w", t.Name, err)
	}
	return nil
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool, compiling its schema if present. Re-registering a
// name replaces the previous tool.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("agenttools: tool must have a non-empty name")
	}
	if err := t.Compile(); err != nil {
		return err
	}
	r.tools[t.Name] = t
	return nil
}

// Lookup returns the tool registered under name, if any.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool, order unspecified.
func (r *Registry) All() []*Tool {
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}
