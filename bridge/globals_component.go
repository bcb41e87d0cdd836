package bridge

import (
	"context"
	"encoding/json"

	"github.com/lexlapax/kernelspell/errors"
	"github.com/lexlapax/kernelspell/registry"
)

// AgentGlobal implements the `Agent` namespace of spec §4.2: "create/list;
// agent.execute(input, context) invokes a component."
type AgentGlobal struct {
	registry *registry.Registry
	async    *AsyncBridge
}

// Create constructs a new agent instance from a JSON-encoded config
// document, returning a Handle to it (spec §4.2 "Agent.create(name,
// config) -> handle").
func (g *AgentGlobal) Create(ctx context.Context, name string, config Value) (Handle, error) {
	cfg, err := valueToRaw(config)
	if err != nil {
		return Handle{}, err
	}
	ctx = mustCtx(ctx)
	inst, err := CallTyped(ctx, g.async, func(ctx context.Context) (any, error) {
		return g.registry.Create(ctx, name, cfg)
	})
	if err != nil {
		return Handle{}, err
	}
	return Handle{Name: name, Instance: inst}, nil
}

// List returns every registered agent's metadata.
func (g *AgentGlobal) List() []registry.Metadata {
	return g.registry.List(registry.KindAgent, nil)
}

// Handle is an opaque reference to a constructed agent/tool/workflow
// instance, returned by Create and consumed by Execute/Invoke.
type Handle struct {
	Name     string
	Instance any
}

// Executor is the narrow contract a constructed agent instance must
// satisfy for Agent.execute to invoke it. Concrete agent implementations
// are an external collaborator (spec §1); this is the minimal shape the
// bridge depends on.
type Executor interface {
	Execute(ctx context.Context, input Value, execCtx map[string]any) (Value, error)
}

// Execute invokes a constructed agent's Execute method (spec §4.2
// "agent.execute(input, context) invokes a component").
func (g *AgentGlobal) Execute(ctx context.Context, h Handle, input Value, execCtx map[string]any) (Value, error) {
	exec, ok := h.Instance.(Executor)
	if !ok {
		return Value{}, errors.New(errors.Validation, "handle does not implement Executor")
	}
	ctx = mustCtx(ctx)
	return CallTyped(ctx, g.async, func(ctx context.Context) (Value, error) {
		return exec.Execute(ctx, input, execCtx)
	})
}

// ToolGlobal implements the `Tool` namespace: "list/info/search/invoke;
// tool invocations flow through the Component Registry."
type ToolGlobal struct {
	registry *registry.Registry
	async    *AsyncBridge
}

func (g *ToolGlobal) List(tags []string) []registry.Metadata {
	return g.registry.List(registry.KindTool, tags)
}

func (g *ToolGlobal) Info(name string) (registry.Metadata, error) {
	d, err := g.registry.Get(name)
	if err != nil {
		return registry.Metadata{}, err
	}
	return d.Metadata, nil
}

func (g *ToolGlobal) Search(query string) []registry.Metadata {
	return g.registry.Search(query)
}

// Invoke constructs (or reuses) and invokes a tool by name, passing
// params as its JSON configuration/argument document.
func (g *ToolGlobal) Invoke(ctx context.Context, name string, params Value) (Value, error) {
	raw, err := valueToRaw(params)
	if err != nil {
		return Value{}, err
	}
	ctx = mustCtx(ctx)
	return CallTyped(ctx, g.async, func(ctx context.Context) (Value, error) {
		inst, err := g.registry.Create(ctx, name, raw)
		if err != nil {
			return Value{}, err
		}
		exec, ok := inst.(Executor)
		if !ok {
			return Value{}, errors.New(errors.Validation, "tool does not implement Executor")
		}
		return exec.Execute(ctx, params, nil)
	})
}

// WorkflowGlobal implements the `Workflow` namespace: "create
// sequential/parallel/conditional/loop workflows from descriptors."
type WorkflowGlobal struct {
	registry *registry.Registry
	async    *AsyncBridge
}

// WorkflowKind enumerates the workflow shapes spec §4.2 names.
type WorkflowKind string

const (
	WorkflowSequential  WorkflowKind = "sequential"
	WorkflowParallel    WorkflowKind = "parallel"
	WorkflowConditional WorkflowKind = "conditional"
	WorkflowLoop        WorkflowKind = "loop"
)

// Descriptor is the JSON-shaped definition a script passes to
// Workflow.create; concrete step execution is supplied by the registered
// factory (spec §1 "workflows" as a registered component kind).
type Descriptor struct {
	Kind WorkflowKind
	Name string
	// Steps names the component (agent/tool/workflow) invoked at each
	// step, in order; Conditional/Loop interpret it per their own
	// semantics via the registered factory.
	Steps []string
	Config map[string]any
}

// Create builds an instance of the component already registered under
// desc.Name, passing the JSON-encoded desc as its configuration, and
// returns a Handle to it. It registers nothing; an unregistered name is
// an error.
func (g *WorkflowGlobal) Create(ctx context.Context, desc Descriptor) (Handle, error) {
	raw, err := json.Marshal(desc)
	if err != nil {
		return Handle{}, errors.Wrap(errors.Validation, "workflow descriptor is not JSON-encodable", err)
	}
	ctx = mustCtx(ctx)
	inst, err := CallTyped(ctx, g.async, func(ctx context.Context) (any, error) {
		return g.registry.Create(ctx, desc.Name, raw)
	})
	if err != nil {
		return Handle{}, err
	}
	return Handle{Name: desc.Name, Instance: inst}, nil
}

func valueToRaw(v Value) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(errors.Validation, "value is not JSON-encodable", err)
	}
	return raw, nil
}
